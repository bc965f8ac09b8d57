// Package doi derives identifiers for articles, sub-articles and supplementary
// materials from DOIs and publisher-specific names.
package doi

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DOI shape from https://www.crossref.org/blog/dois-and-matching-regular-expressions/
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/[-._;()/:A-Za-z0-9]+$`)

// DOI resolver links embedded in page text, optionally flagged as not yet registered.
var (
	resolverPattern     = regexp.MustCompile(`https://doi\.org/(10\.\d{4,9}/[-._;()/:A-Za-z0-9]+)`)
	unregisteredPattern = regexp.MustCompile(`https://doi\.org/10\.\d{4,9}/[-._;()/:A-Za-z0-9]+\s+\(registering\s+DOI\)`)
)

// Extensions longer than this, or with characters outside [A-Za-z0-9], are dropped.
var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,10}$`)

// Valid reports whether s has the shape of a DOI.
func Valid(s string) bool {
	return doiPattern.MatchString(s)
}

// ShortID returns the tail of a DOI after its last '/'.
// Invalid input is logged and returned unchanged: some sources publish DOI-like
// strings that must still round-trip through the corpus.
func ShortID(d string, log *zap.Logger) string {
	if !Valid(d) {
		if log != nil {
			log.Warn("invalid DOI, using it unchanged as identifier", zap.String("doi", d))
		}
		return d
	}
	return d[strings.LastIndex(d, "/")+1:]
}

// FromText finds the first doi.org link in text. registered is false when the link is
// followed by "(registering DOI)", which marks early-access articles.
func FromText(text string) (d string, registered bool, ok bool) {
	m := resolverPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false, false
	}
	return m[1], !unregisteredPattern.MatchString(text), true
}

// ReviewID is the id of reviewer's report in the given round. The numbers are
// concatenated, so ids are ambiguous once either reaches 10: round 1 reviewer 11
// and round 11 reviewer 1 both give "{short}.r111".
func ReviewID(short string, round, reviewer int) string {
	return fmt.Sprintf("%s.r%d%d", short, round, reviewer)
}

// AuthorCommentID is the id of an author response. reviewer is the reviewer being
// answered, or 0 when the response does not follow a reviewer report.
func AuthorCommentID(short string, round, reviewer int) string {
	if reviewer == 0 {
		return fmt.Sprintf("%s.a%d", short, round)
	}
	return fmt.Sprintf("%s.a%d%d", short, round, reviewer)
}

// AggregatedID is the id of an aggregated bundle of review documents for one round.
func AggregatedID(short string, round int) string {
	return fmt.Sprintf("%s.r%d", short, round)
}

// MaterialID namespaces the n-th supplementary material under its owner's id.
func MaterialID(owner string, n int) string {
	return fmt.Sprintf("%s.s%d", owner, n)
}

// Extension returns the file extension of name including the dot, or "" when name has
// none or the suffix is not filesystem-safe.
func Extension(name string) string {
	ext := filepath.Ext(strings.TrimSpace(name))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// Filename is the on-disk name for an artifact: its id plus the original extension.
// Publisher-supplied names are never used directly.
func Filename(id, originalName string) string {
	return id + Extension(originalName)
}

// URLTail returns the last path segment of a URL, without query or fragment.
func URLTail(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		s := rawURL
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		return s[strings.LastIndex(s, "/")+1:]
	}
	tail := path.Base(u.Path)
	if tail == "/" || tail == "." {
		return ""
	}
	return tail
}

// stem strips the directory and extension from a filename.
func stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PLOSShortIDFromFilename maps "journal.pone.0262049.xml" to "journal.pone.0262049".
func PLOSShortIDFromFilename(filename string) string {
	return stem(filename)
}

// PLOSSubArticleID maps a PLOS sub-article DOI such as
// "10.1371/journal.pone.0262049.r001" to "journal.pone.0262049.r1"
// (".a1" for author comments).
func PLOSSubArticleID(subDOI, subType string) (string, error) {
	short := subDOI[strings.LastIndex(subDOI, "/")+1:]
	dot := strings.LastIndex(short, ".")
	if dot < 0 || len(short)-dot < 3 {
		return "", fmt.Errorf("malformed PLOS sub-article DOI %q", subDOI)
	}
	n, err := strconv.Atoi(short[dot+2:])
	if err != nil {
		return "", fmt.Errorf("malformed PLOS sub-article DOI %q: %w", subDOI, err)
	}
	kind := "r"
	if subType == "author-comment" {
		kind = "a"
	}
	return fmt.Sprintf("%s.%s%d", short[:dot], kind, n), nil
}

// PLOS journal codes, as found in DOIs, mapped to their site slugs.
var plosJournals = map[string]string{
	"pone": "plosone",
	"pbio": "plosbiology",
	"pmed": "plosmedicine",
	"pcbi": "ploscompbiol",
	"pgen": "plosgenetics",
	"ppat": "plospathogens",
	"pntd": "plosntds",
	"pclm": "climate",
	"pdig": "digitalhealth",
	"pgph": "globalpublichealth",
	"pwat": "water",
}

// PLOSPageURL returns the journals.plos.org page for an article DOI. page is "" for the
// article itself, or a sub-page such as "peerReview".
func PLOSPageURL(d, page string) string {
	slug := "plosone"
	parts := strings.Split(d[strings.LastIndex(d, "/")+1:], ".")
	if len(parts) >= 2 {
		if s, ok := plosJournals[parts[1]]; ok {
			slug = s
		}
	}
	base := "https://journals.plos.org/" + slug + "/article"
	if page != "" {
		base += "/" + page
	}
	return base + "?id=" + d
}

// ELifeShortIDFromFilename maps "elife-47612-v2.xml" to "eLife.47612", the short id of
// DOI 10.7554/eLife.47612.
func ELifeShortIDFromFilename(filename string) string {
	parts := strings.Split(stem(filename), "-")
	if len(parts) < 2 || !strings.EqualFold(parts[0], "elife") {
		return stem(filename)
	}
	return "eLife." + parts[1]
}

// ELifeVersion splits "elife-47612-v2.xml" into its article key "elife-47612" and
// version 2. ok is false when the name carries no version.
func ELifeVersion(filename string) (key string, version int, ok bool) {
	s := stem(filename)
	i := strings.LastIndex(s, "-v")
	if i < 0 {
		return s, 0, false
	}
	v, err := strconv.Atoi(s[i+2:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], v, true
}

// ELifeSubArticleID maps an eLife sub-article DOI such as "10.7554/eLife.47612.sa1" to
// "eLife.47612.rsa1" (".asa2" for replies) and returns the parent article's DOI.
func ELifeSubArticleID(subDOI, subType string) (id, articleDOI string) {
	dot := strings.LastIndex(subDOI, ".")
	if dot < 0 {
		return subDOI, subDOI
	}
	articleDOI = subDOI[:dot]
	kind := "r"
	if subType == "reply" {
		kind = "a"
	}
	short := articleDOI[strings.LastIndex(articleDOI, "/")+1:]
	return short + "." + kind + subDOI[dot+1:], articleDOI
}

// ELifeURL returns the elifesciences.org page for an article DOI.
func ELifeURL(d string) string {
	return "https://elifesciences.org/articles/" + d[strings.LastIndex(d, ".")+1:]
}
