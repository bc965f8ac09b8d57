// Package article defines the core domain types for harvested articles and their reviews.
package article

// Sub-article types. JATS sources may carry other article-type values
// (decision-letter, reply, ...), which are recorded verbatim.
const (
	TypeReview     = "review"
	TypeAuthor     = "author-comment"
	TypeAggregated = "aggregated-review-documents"
)

// AnonymousReviewer is the name recorded when a reviewer chose not to be named.
const AnonymousReviewer = "Anonymous"

// UnknownMaterialType is recorded when a material's type cannot be determined.
const UnknownMaterialType = "NA"

// Article represents a published article and, when reviewed, its sub-articles.
type Article struct {
	// Identity
	DOI     string `json:"doi"`
	ShortID string `json:"short_id"` // Tail of the DOI after the last '/'

	// Metadata
	Title           string          `json:"title"`
	URL             string          `json:"url,omitempty"`
	Authors         []string        `json:"authors"`
	Journal         Journal         `json:"journal"`
	PublicationDate PublicationDate `json:"publication_date"`
	Keywords        []string        `json:"keywords"`

	Retracted     bool  `json:"retracted"`
	DOIRegistered *bool `json:"doi_registered,omitempty"` // nil when the source does not say

	FulltextPDFURL  string `json:"fulltext_pdf_url,omitempty"`
	FulltextXMLURL  string `json:"fulltext_xml_url,omitempty"`
	FulltextHTMLURL string `json:"fulltext_html_url,omitempty"`

	// Reviews
	HasReviews  bool         `json:"has_reviews"`
	ReviewsURL  string       `json:"reviews_url,omitempty"`
	SubArticles []SubArticle `json:"sub_articles,omitempty"`
}

// Journal identifies the venue an article was published in.
type Journal struct {
	Title  string `json:"title"`
	Abbrev string `json:"abbrev,omitempty"`
	Volume string `json:"volume"`
	Issue  string `json:"issue,omitempty"`
}

// PublicationDate represents a publication date with an optional day.
type PublicationDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day,omitempty"` // 1-31, 0 if unknown
}

// Reviewer identifies one reviewer of a manuscript.
type Reviewer struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// SubArticle is a reviewer report, an author response or an aggregated bundle of
// review documents belonging to one article.
type SubArticle struct {
	ID    string `json:"id"`
	DOI   string `json:"doi,omitempty"`
	Type  string `json:"type"`
	Round int    `json:"round"`

	Reviewer   *Reviewer  `json:"reviewer,omitempty"`
	ReplyingTo int        `json:"replying_to,omitempty"` // reviewer number an author comment answers
	Reviewers  []Reviewer `json:"reviewers,omitempty"`   // full table, aggregated records only

	URL                string `json:"url,omitempty"`
	OriginalArticleDOI string `json:"original_article_doi,omitempty"`
	OriginalArticleURL string `json:"original_article_url,omitempty"`
	Date               string `json:"date,omitempty"`

	// BodyFile names the plaintext or XML artifact holding the body.
	BodyFile string `json:"body_file,omitempty"`

	SupplementaryMaterials []SupplementaryMaterial `json:"supplementary_materials"`

	// BodyText is persisted as its own artifact, not inside the JSON metadata.
	BodyText string `json:"-"`
}

// SupplementaryMaterial is a file attached to a sub-article or article.
type SupplementaryMaterial struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	Type             string `json:"type"`
}

// AppendBody appends one line of text to the body, newline separated.
func (s *SubArticle) AppendBody(text string) {
	if text == "" {
		return
	}
	if s.BodyText == "" {
		s.BodyText = text
		return
	}
	s.BodyText += "\n" + text
}

// SetKeywords stores keywords with duplicates and blanks removed, keeping first-seen order.
func (a *Article) SetKeywords(keywords []string) {
	seen := make(map[string]bool, len(keywords))
	a.Keywords = make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		a.Keywords = append(a.Keywords, k)
	}
}
