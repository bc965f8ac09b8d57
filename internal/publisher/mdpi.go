package publisher

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/matsen/revharvest/internal/article"
	"github.com/matsen/revharvest/internal/doi"
)

var retractionPattern = regexp.MustCompile(`Retraction published on \d+`)

// ParseMDPIArticle extracts article metadata from an MDPI article page fetched from
// pageURL. A page without a DOI in its citation block is an InvalidSourceError.
func ParseMDPIArticle(r io.Reader, pageURL string, log *zap.Logger) (*article.Article, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	bib := htmlquery.FindOne(root, `//div[contains(concat(' ', normalize-space(@class), ' '), ' bib-identity ')]`)
	if bib == nil {
		return nil, invalid(pageURL, "no bib-identity block")
	}
	d, registered, ok := doi.FromText(htmlquery.InnerText(bib))
	if !ok {
		return nil, invalid(pageURL, "no DOI in bib-identity block")
	}

	a := &article.Article{
		DOI:           d,
		ShortID:       doi.ShortID(d, log),
		Title:         meta(root, "name", "title"),
		URL:           meta(root, "property", "og:url"),
		Authors:       metaAll(root, "citation_author"),
		DOIRegistered: &registered,
		Journal: article.Journal{
			Title:  meta(root, "name", "citation_journal_title"),
			Volume: meta(root, "name", "citation_volume"),
			Issue:  meta(root, "name", "citation_issue"),
		},
		FulltextPDFURL:  meta(root, "name", "fulltext_pdf"),
		FulltextXMLURL:  meta(root, "name", "fulltext_xml"),
		FulltextHTMLURL: meta(root, "name", "fulltext_html"),
	}
	if a.URL == "" {
		a.URL = pageURL
	}
	if a.Authors == nil {
		a.Authors = []string{}
	}

	if info := htmlquery.FindOne(root, `//a[contains(concat(' ', normalize-space(@class), ' '), ' Var_JournalInfo ')]`); info != nil {
		// href is /journal/{abbrev}
		if parts := strings.Split(htmlquery.SelectAttr(info, "href"), "/"); len(parts) > 2 {
			a.Journal.Abbrev = parts[2]
		}
	}

	date := meta(root, "name", "citation_publication_date")
	pd, err := parseSlashDate(date)
	if err != nil {
		log.Warn("unparseable publication date", zap.String("article", a.ShortID), zap.String("date", date))
	}
	a.PublicationDate = pd

	var keywords []string
	if kw := htmlquery.FindOne(root, `//span[@itemprop='keywords']`); kw != nil {
		for _, k := range strings.Split(htmlquery.InnerText(kw), ";") {
			keywords = append(keywords, strings.TrimSpace(k))
		}
	}
	a.SetKeywords(keywords)

	a.Retracted = retractionPattern.MatchString(htmlquery.InnerText(root))

	if link := reviewReportLink(root); link != "" {
		a.HasReviews = true
		a.ReviewsURL = resolveAgainst(pageURL, link)
	}
	return a, nil
}

func meta(root *html.Node, attr, name string) string {
	n := htmlquery.FindOne(root, fmt.Sprintf(`//meta[@%s='%s']`, attr, name))
	if n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.SelectAttr(n, "content"))
}

func metaAll(root *html.Node, name string) []string {
	var out []string
	for _, n := range htmlquery.Find(root, fmt.Sprintf(`//meta[@name='%s']`, name)) {
		if v := strings.TrimSpace(htmlquery.SelectAttr(n, "content")); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func reviewReportLink(root *html.Node) string {
	for _, n := range htmlquery.Find(root, `//a[@href]`) {
		if href := htmlquery.SelectAttr(n, "href"); strings.HasSuffix(href, "review_report") {
			return href
		}
	}
	return ""
}

func resolveAgainst(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// parseSlashDate parses "2021/1/5" or "2021/1".
func parseSlashDate(s string) (article.PublicationDate, error) {
	var pd article.PublicationDate
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 {
		return pd, fmt.Errorf("date %q: want year/month[/day]", s)
	}
	fields := []*int{&pd.Year, &pd.Month, &pd.Day}
	for i, p := range parts {
		if i == len(fields) {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return article.PublicationDate{}, fmt.Errorf("date %q: %w", s, err)
		}
		*fields[i] = n
	}
	return pd, nil
}

// EmbeddedReviewURL maps a review subpage URL to the article-page anchor that
// embeds the same reviews.
func EmbeddedReviewURL(reviewsURL string) string {
	if i := strings.LastIndex(reviewsURL, "/review_report"); i >= 0 && i+len("/review_report") == len(reviewsURL) {
		return reviewsURL[:i] + "#review_report"
	}
	return reviewsURL
}

// ArticleURLFromReviews strips the review suffix from a reviews URL.
func ArticleURLFromReviews(reviewsURL string) string {
	if i := strings.LastIndex(reviewsURL, "review_report"); i > 0 {
		return strings.TrimRight(reviewsURL[:i], "/#")
	}
	return reviewsURL
}
