package publisher

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/article"
	"github.com/matsen/revharvest/internal/doi"
	"github.com/matsen/revharvest/internal/review"
)

var (
	xpArticleMeta = xpath.MustCompile(`/article/front/article-meta`)
	xpJournal     = xpath.MustCompile(`/article/front/journal-meta//journal-title`)
	xpDOI         = xpath.MustCompile(`article-id[@pub-id-type='doi']`)
	xpTitle       = xpath.MustCompile(`title-group/article-title`)
	xpAuthors     = xpath.MustCompile(`contrib-group/contrib[@contrib-type='author']`)
	xpReviewers   = xpath.MustCompile(`.//contrib[@contrib-type='reviewer']`)
	xpPubDates    = xpath.MustCompile(`pub-date`)
	xpKeywords    = xpath.MustCompile(`kwd-group/kwd`)
	xpSubArticles = xpath.MustCompile(`//sub-article`)

	xpFrontStub  = xpath.MustCompile(`front-stub`)
	xpStubID     = xpath.MustCompile(`article-id`)
	xpRelated    = xpath.MustCompile(`related-object[@link-type='peer-reviewed-article']`)
	xpLetterDate = xpath.MustCompile(`body//named-content[@content-type='letter-date']`)
	xpBodyParas  = xpath.MustCompile(`body//p`)
	xpMaterials  = xpath.MustCompile(`.//supplementary-material`)
	xpSubmitted  = xpath.MustCompile(`.//named-content[@content-type='submitted-filename']`)
	xpMedia      = xpath.MustCompile(`.//media`)
	xpLabel      = xpath.MustCompile(`label`)
	xpBoxedText  = xpath.MustCompile(`.//boxed-text`)
	xpBoxedTitle = xpath.MustCompile(`.//title`)
	xpBoxedPara  = xpath.MustCompile(`.//p`)
	xpGivenNames = xpath.MustCompile(`.//given-names`)
	xpSurname    = xpath.MustCompile(`.//surname`)
	xpCollab     = xpath.MustCompile(`collab`)
	xpDateYear   = xpath.MustCompile(`year`)
	xpDateMonth  = xpath.MustCompile(`month`)
	xpDateDay    = xpath.MustCompile(`day`)
	xpVolume     = xpath.MustCompile(`volume`)
	xpIssue      = xpath.MustCompile(`issue`)
)

// JATSArticle is a parsed JATS document.
type JATSArticle struct {
	Article article.Article
	// SubArticleXML holds the serialized <sub-article> element of each kept
	// sub-article, keyed by sub-article id.
	SubArticleXML map[string]string
}

// ParseJATS parses a PLOS or eLife JATS article. Sub-articles whose specific-use the
// table skips are left out; a document without an article DOI is an InvalidSourceError.
func ParseJATS(r io.Reader, name string, t *Table, log *zap.Logger) (*JATSArticle, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &InvalidSourceError{Source: name, Reason: fmt.Sprintf("parsing XML: %v", err)}
	}
	meta := xmlquery.QuerySelector(root, xpArticleMeta)
	if meta == nil {
		return nil, invalid(name, "no article-meta")
	}
	d := text(xmlquery.QuerySelector(meta, xpDOI))
	if d == "" {
		return nil, invalid(name, "no article DOI")
	}

	short := doi.ShortID(d, log)
	log = log.With(zap.String("article", short))

	a := article.Article{
		DOI:     d,
		ShortID: short,
		Title:   text(xmlquery.QuerySelector(meta, xpTitle)),
		URL:     t.articleURL(d),
		Authors: []string{},
		Journal: article.Journal{
			Title:  text(xmlquery.QuerySelector(root, xpJournal)),
			Volume: text(xmlquery.QuerySelector(meta, xpVolume)),
			Issue:  text(xmlquery.QuerySelector(meta, xpIssue)),
		},
		PublicationDate: pubDate(meta),
	}
	for _, c := range xmlquery.QuerySelectorAll(meta, xpAuthors) {
		if name := personName(c); name != "" {
			a.Authors = append(a.Authors, name)
		}
	}
	var keywords []string
	for _, k := range xmlquery.QuerySelectorAll(meta, xpKeywords) {
		keywords = append(keywords, text(k))
	}
	a.SetKeywords(keywords)

	out := &JATSArticle{SubArticleXML: make(map[string]string)}
	round := 0
	for _, sub := range xmlquery.QuerySelectorAll(root, xpSubArticles) {
		if use := sub.SelectAttr("specific-use"); t.Skips(use) {
			log.Debug("skipping sub-article", zap.String("specific_use", use))
			continue
		}
		s, err := t.subArticle(sub, &a, &round, log)
		if err != nil {
			log.Warn("skipping malformed sub-article", zap.Error(err))
			continue
		}
		if _, dup := out.SubArticleXML[s.ID]; dup {
			log.Warn("duplicate sub-article id", zap.String("id", s.ID))
			continue
		}
		out.SubArticleXML[s.ID] = sub.OutputXML(true)
		a.SubArticles = append(a.SubArticles, *s)
	}
	if len(a.SubArticles) > 0 {
		a.HasReviews = true
		a.ReviewsURL = t.reviewsURL(d)
	}
	out.Article = a
	return out, nil
}

// subArticle converts one <sub-article>. round carries the current review round
// across calls: aggregated documents open a round, the others inherit it.
func (t *Table) subArticle(sub *xmlquery.Node, a *article.Article, round *int, log *zap.Logger) (*article.SubArticle, error) {
	stub := xmlquery.QuerySelector(sub, xpFrontStub)
	if stub == nil {
		return nil, fmt.Errorf("sub-article without front-stub")
	}
	subDOI := text(xmlquery.QuerySelector(stub, xpDOI))
	if subDOI == "" {
		subDOI = text(xmlquery.QuerySelector(stub, xpStubID))
	}
	if subDOI == "" {
		return nil, fmt.Errorf("sub-article without DOI")
	}
	typ := sub.SelectAttr("article-type")

	s := &article.SubArticle{
		DOI:                    subDOI,
		Type:                   typ,
		URL:                    t.reviewsURL(a.DOI),
		OriginalArticleDOI:     a.DOI,
		OriginalArticleURL:     a.URL,
		SupplementaryMaterials: []article.SupplementaryMaterial{},
	}

	switch t.IDs {
	case ELife:
		s.ID, _ = doi.ELifeSubArticleID(subDOI, typ)
	default:
		id, err := doi.PLOSSubArticleID(subDOI, typ)
		if err != nil {
			return nil, err
		}
		s.ID = id
	}
	if rel := xmlquery.QuerySelector(stub, xpRelated); rel != nil {
		if v := rel.SelectAttr("document-id"); v != "" {
			s.OriginalArticleDOI = v
		}
	}

	if typ == article.TypeAggregated {
		// Titles number rounds from 0 or 1 depending on the journal; order is reliable.
		*round++
	}
	s.Round = max(*round, 1)

	if d := text(xmlquery.QuerySelector(sub, xpLetterDate)); d != "" {
		s.Date = d
	} else if pd := pubDate(stub); pd.Year > 0 {
		s.Date = formatDate(pd)
	}

	s.Reviewers = t.reviewers(sub, stub)

	for i, m := range xmlquery.QuerySelectorAll(sub, xpMaterials) {
		s.SupplementaryMaterials = append(s.SupplementaryMaterials, t.material(m, s.ID, i+1, a.DOI))
	}

	if box := xmlquery.QuerySelector(sub, xpBoxedText); box != nil {
		log.Warn("notice in sub-article",
			zap.String("sub_article", s.ID),
			zap.String("title", text(xmlquery.QuerySelector(box, xpBoxedTitle))),
			zap.String("text", text(xmlquery.QuerySelector(box, xpBoxedPara))))
	}
	return s, nil
}

func (t *Table) reviewers(sub, stub *xmlquery.Node) []article.Reviewer {
	var table *review.ReviewersTable
	if t.Reviewers.Entry != "" {
		var blocks []review.Block
		for _, p := range xmlquery.QuerySelectorAll(sub, xpBodyParas) {
			blocks = append(blocks, review.Block{Text: p.InnerText()})
		}
		var err error
		if table, err = review.ParseReviewers(blocks, t.Reviewers); err != nil {
			return nil
		}
	} else {
		table = review.NewReviewersTable()
		for i, c := range xmlquery.QuerySelectorAll(stub, xpReviewers) {
			table.Add(i+1, personName(c))
		}
	}
	return table.List()
}

func (t *Table) material(m *xmlquery.Node, owner string, n int, articleDOI string) article.SupplementaryMaterial {
	id := doi.MaterialID(owner, n)
	href := attrLocal(m, "href")
	if href == "" {
		if media := xmlquery.QuerySelector(m, xpMedia); media != nil {
			href = attrLocal(media, "href")
		}
	}
	original := text(xmlquery.QuerySelector(m, xpSubmitted))
	if original == "" {
		original = href
	}
	ext := doi.Extension(original)
	if ext == "" {
		ext = doi.Extension(href)
	}
	title := text(xmlquery.QuerySelector(m, xpLabel))
	if title == "" {
		title = strings.TrimSuffix(original, doi.Extension(original))
	}
	typ := article.UnknownMaterialType
	if mt, sub := m.SelectAttr("mimetype"), m.SelectAttr("mime-subtype"); mt != "" && sub != "" {
		typ = mt + "/" + sub
	}
	return article.SupplementaryMaterial{
		ID:               id,
		Filename:         id + ext,
		OriginalFilename: original,
		Title:            title,
		URL:              t.AttachmentURL(m.SelectAttr("id"), articleDOI),
		Type:             typ,
	}
}

func (t *Table) articleURL(d string) string {
	if t.IDs == ELife {
		return doi.ELifeURL(d)
	}
	return doi.PLOSPageURL(d, "")
}

func (t *Table) reviewsURL(d string) string {
	if t.IDs == ELife {
		return doi.ELifeURL(d) + "/peer-reviews"
	}
	return doi.PLOSPageURL(d, "peerReview")
}

func pubDate(parent *xmlquery.Node) article.PublicationDate {
	dates := xmlquery.QuerySelectorAll(parent, xpPubDates)
	if len(dates) == 0 {
		return article.PublicationDate{}
	}
	chosen := dates[0]
	for _, d := range dates {
		if d.SelectAttr("pub-type") == "epub" || d.SelectAttr("date-type") == "pub" {
			chosen = d
			break
		}
	}
	num := func(expr *xpath.Expr) int {
		n, _ := strconv.Atoi(text(xmlquery.QuerySelector(chosen, expr)))
		return n
	}
	return article.PublicationDate{Year: num(xpDateYear), Month: num(xpDateMonth), Day: num(xpDateDay)}
}

func formatDate(pd article.PublicationDate) string {
	if pd.Day > 0 {
		return fmt.Sprintf("%04d-%02d-%02d", pd.Year, pd.Month, pd.Day)
	}
	return fmt.Sprintf("%04d-%02d", pd.Year, pd.Month)
}

func personName(c *xmlquery.Node) string {
	given := text(xmlquery.QuerySelector(c, xpGivenNames))
	surname := text(xmlquery.QuerySelector(c, xpSurname))
	if name := strings.TrimSpace(given + " " + surname); name != "" {
		return name
	}
	return text(xmlquery.QuerySelector(c, xpCollab))
}

// attrLocal returns the value of the attribute with the given local name, whatever
// its namespace prefix (xlink:href, href).
func attrLocal(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(n.InnerText()), " ")
}
