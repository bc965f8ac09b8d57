package publisher

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/matsen/revharvest/internal/review"
)

// HTMLDocument is a publisher HTML page whose regions are located by CSS selectors.
type HTMLDocument struct {
	doc  *goquery.Document
	base *url.URL
	sel  Selectors
}

var _ review.Document = (*HTMLDocument)(nil)

// NewHTMLDocument parses an HTML page fetched from pageURL.
func NewHTMLDocument(r io.Reader, pageURL string, sel Selectors) (*HTMLDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}
	return &HTMLDocument{doc: doc, base: base, sel: sel}, nil
}

// URL returns the page URL.
func (d *HTMLDocument) URL() string {
	return d.base.String()
}

// Blocks returns the paragraphs and lists of region in document order. Elements
// nested inside another matched element are part of their container's block.
func (d *HTMLDocument) Blocks(region review.Region) ([]review.Block, error) {
	var selector string
	switch region {
	case review.RegionReviewers:
		selector = d.sel.Reviewers
	case review.RegionReviews:
		selector = d.sel.Reviews
	default:
		return nil, fmt.Errorf("unknown region %q", region)
	}
	if selector == "" {
		return nil, nil
	}

	var blocks []review.Block
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(selector).Length() > 0 {
			return
		}
		b := d.block(s)
		if region == review.RegionReviewers {
			// One reviewer per element, however its name is marked up.
			b.Text = strings.Join(strings.Fields(b.Text), " ")
		}
		if b.Text == "" && len(b.Links) == 0 {
			return
		}
		blocks = append(blocks, b)
	})
	return blocks, nil
}

func (d *HTMLDocument) block(s *goquery.Selection) review.Block {
	var text string
	if s.Is("ul, ol") {
		var items []string
		s.Find("li").Each(func(_ int, li *goquery.Selection) {
			if t := review.Normalize(selectionText(li)); t != "" {
				items = append(items, t)
			}
		})
		text = strings.Join(items, "\n")
	} else {
		text = selectionText(s)
	}

	b := review.Block{Text: review.Normalize(text)}
	s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if link, ok := d.resolve(href); ok {
			b.Links = append(b.Links, review.Link{URL: link, Text: strings.TrimSpace(a.Text())})
		}
	})
	return b
}

// resolve turns href into an absolute URL. In-page anchors, mail and script links
// are not attachments.
func (d *HTMLDocument) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "mailto", "javascript", "tel":
		return "", false
	}
	return d.base.ResolveReference(u).String(), true
}

// BibIdentity returns the text of the citation block carrying the article DOI.
func (d *HTMLDocument) BibIdentity() string {
	if d.sel.BibIdentity == "" {
		return ""
	}
	return review.Normalize(d.doc.Find(d.sel.BibIdentity).First().Text())
}

// EmbeddedReport is a review report attached to an article page rather than
// published on a review subpage.
type EmbeddedReport struct {
	Title  string
	URL    string
	Format string // lower-case file format, e.g. "pdf"
}

var formatPattern = regexp.MustCompile(`\(\s*([A-Za-z0-9]+)\s*,`)

// EmbeddedReports lists the entries of the page's report list whose bold label
// mentions a review report.
func (d *HTMLDocument) EmbeddedReports() []EmbeddedReport {
	if d.sel.EmbeddedReports == "" {
		return nil
	}
	var reports []EmbeddedReport
	d.doc.Find(d.sel.EmbeddedReports).Each(func(_ int, li *goquery.Selection) {
		label := strings.TrimSpace(li.Find("b").First().Text())
		if !strings.Contains(strings.ToLower(label), "review report") {
			return
		}
		href, ok := li.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		link, ok := d.resolve(href)
		if !ok {
			return
		}
		r := EmbeddedReport{
			Title: strings.TrimSpace(strings.TrimSuffix(label, ":")),
			URL:   link,
		}
		if m := formatPattern.FindStringSubmatch(li.Text()); m != nil {
			r.Format = strings.ToLower(m[1])
		}
		reports = append(reports, r)
	})
	return reports
}

// selectionText is the text of s with line breaks kept at <br> and block elements.
func selectionText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		nodeText(n, &b)
	}
	return b.String()
}

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "blockquote": true,
}

func nodeText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteByte('\n')
			return
		case "script", "style":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		nodeText(c, b)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteByte('\n')
	}
}
