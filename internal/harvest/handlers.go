package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/article"
	"github.com/matsen/revharvest/internal/corpus"
	"github.com/matsen/revharvest/internal/doi"
	"github.com/matsen/revharvest/internal/fetch"
	"github.com/matsen/revharvest/internal/publisher"
	"github.com/matsen/revharvest/internal/review"
)

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// JATS harvests PLOS and eLife corpus files.
type JATS struct {
	Table *publisher.Table
	Saver *Saver
	Log   *zap.Logger
}

var _ corpus.Handler = (*JATS)(nil)

// ShortID derives the short id from the file name.
func (h *JATS) ShortID(it corpus.Item) string {
	if it.ShortID != "" {
		return it.ShortID
	}
	if h.Table.IDs == publisher.ELife {
		return doi.ELifeShortIDFromFilename(it.Name)
	}
	return doi.PLOSShortIDFromFilename(it.Name)
}

// Handle parses one JATS file and saves the article with its sub-articles.
func (h *JATS) Handle(ctx context.Context, it corpus.Item) (corpus.Outcome, error) {
	log := nopIfNil(h.Log).With(zap.String("item", it.Name))
	if it.Open == nil {
		return 0, fmt.Errorf("item %s has no content", it.Name)
	}
	rc, err := it.Open()
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", it.Name, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", it.Name, err)
	}

	ja, err := publisher.ParseJATS(bytes.NewReader(data), it.Name, h.Table, log)
	if err != nil {
		return 0, err
	}
	a := &ja.Article
	if want := h.ShortID(it); want != a.ShortID {
		log.Warn("file name does not match article DOI", zap.String("article", a.ShortID))
	}

	x := Extras{SubArticleXML: ja.SubArticleXML}
	outcome := corpus.Processed
	if a.HasReviews {
		x.SourceXML = data
		outcome = corpus.Reviewed
		log.Debug("found reviews", zap.String("article", a.ShortID), zap.Int("sub_articles", len(a.SubArticles)))
	}
	_, err = h.Saver.Save(ctx, a, x)
	return outcome, err
}

// Reviews is what a review page yielded.
type Reviews struct {
	ArticleDOI  string
	ShortID     string
	SubArticles []article.SubArticle
	HTML        []byte // the page the reviews were read from
	// Embedded is set when the reviews came from the article page's report list.
	Embedded bool
}

// ReviewCollector reads MDPI review pages.
type ReviewCollector struct {
	table  *publisher.Table
	engine *review.Engine
	pages  fetch.PageFetcher
	log    *zap.Logger
}

// NewReviewCollector returns a collector segmenting pages with t's patterns.
func NewReviewCollector(t *publisher.Table, pages fetch.PageFetcher, policy review.BoilerplatePolicy, log *zap.Logger) (*ReviewCollector, error) {
	log = nopIfNil(log)
	c, err := t.Classifier()
	if err != nil {
		return nil, err
	}
	layout, err := review.ParseLayout(t.Layout)
	if err != nil {
		return nil, fmt.Errorf("publisher %s: %w", t.Name, err)
	}
	engine := review.NewEngine(c, review.Options{Policy: policy, Layout: layout}, log)
	return &ReviewCollector{table: t, engine: engine, pages: pages, log: log}, nil
}

// Collect reads the reviews at reviewsURL. A review subpage that does not exist
// falls back to the report list embedded in the article page.
func (c *ReviewCollector) Collect(ctx context.Context, reviewsURL string) (*Reviews, error) {
	if strings.HasSuffix(reviewsURL, "#review_report") {
		return c.embedded(ctx, reviewsURL)
	}
	page, err := c.pages.Fetch(ctx, reviewsURL)
	if fetch.IsNotFound(err) {
		c.log.Info("no review subpage, reading reviews embedded in the article page", zap.String("url", reviewsURL))
		return c.embedded(ctx, publisher.EmbeddedReviewURL(reviewsURL))
	}
	if err != nil {
		return nil, err
	}

	doc, d, err := c.parse(page)
	if err != nil {
		return nil, err
	}
	short := doi.ShortID(d, c.log)
	res, err := c.engine.SegmentDocument(doc, c.table.Reviewers, review.Input{
		ShortID:    short,
		ArticleDOI: d,
		ArticleURL: publisher.ArticleURLFromReviews(reviewsURL),
		PageURL:    page.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("segmenting %s: %w", reviewsURL, err)
	}
	return &Reviews{ArticleDOI: d, ShortID: short, SubArticles: res.SubArticles, HTML: page.Body}, nil
}

func (c *ReviewCollector) parse(page *fetch.Page) (*publisher.HTMLDocument, string, error) {
	doc, err := publisher.NewHTMLDocument(bytes.NewReader(page.Body), page.URL, c.table.Selectors)
	if err != nil {
		return nil, "", &publisher.InvalidSourceError{Source: page.URL, Reason: err.Error()}
	}
	d, _, ok := doi.FromText(doc.BibIdentity())
	if !ok {
		return nil, "", &publisher.InvalidSourceError{Source: page.URL, Reason: "no DOI in bib-identity block"}
	}
	return doc, d, nil
}

// embedded reads the review reports listed on the article page as one aggregated
// sub-article whose materials are the reports.
func (c *ReviewCollector) embedded(ctx context.Context, reviewsURL string) (*Reviews, error) {
	articleURL := strings.TrimSuffix(reviewsURL, "#review_report")
	page, err := c.pages.Fetch(ctx, articleURL)
	if err != nil {
		return nil, err
	}
	doc, d, err := c.parse(page)
	if err != nil {
		return nil, err
	}
	short := doi.ShortID(d, c.log)
	revs := &Reviews{ArticleDOI: d, ShortID: short, HTML: page.Body, Embedded: true}

	reports := doc.EmbeddedReports()
	if len(reports) == 0 {
		c.log.Info("article page lists no review reports", zap.String("article", short))
		return revs, nil
	}

	sub := article.SubArticle{
		ID:                     doi.AggregatedID(short, 1),
		Type:                   article.TypeAggregated,
		Round:                  1,
		URL:                    articleURL + "#review_report",
		OriginalArticleDOI:     d,
		OriginalArticleURL:     articleURL,
		SupplementaryMaterials: []article.SupplementaryMaterial{},
	}
	seen := make(map[string]bool)
	for _, r := range reports {
		tail := doi.URLTail(r.URL)
		if tail == "" {
			continue
		}
		id := short + "." + tail
		if seen[id] {
			c.log.Warn("duplicate review report link", zap.String("id", id), zap.String("url", r.URL))
			continue
		}
		seen[id] = true
		ext, typ := "", article.UnknownMaterialType
		if r.Format != "" {
			ext, typ = "."+r.Format, r.Format
		}
		sub.SupplementaryMaterials = append(sub.SupplementaryMaterials, article.SupplementaryMaterial{
			ID:               id,
			Filename:         id + ext,
			OriginalFilename: r.Title + ext,
			Title:            r.Title,
			URL:              r.URL,
			Type:             typ,
		})
	}
	revs.SubArticles = []article.SubArticle{sub}
	return revs, nil
}

// MDPIArticles harvests MDPI article pages.
type MDPIArticles struct {
	Pages fetch.PageFetcher
	Saver *Saver
	// Reviews, when set, also harvests the reviews of reviewed articles.
	Reviews             *ReviewCollector
	IncludeUnregistered bool
	Log                 *zap.Logger
}

var _ corpus.Handler = (*MDPIArticles)(nil)

// ShortID is unknown until the page is read.
func (h *MDPIArticles) ShortID(it corpus.Item) string {
	return it.ShortID
}

// Handle fetches and saves one article page.
func (h *MDPIArticles) Handle(ctx context.Context, it corpus.Item) (corpus.Outcome, error) {
	log := nopIfNil(h.Log).With(zap.String("url", it.URL))
	page, err := h.Pages.Fetch(ctx, it.URL)
	if err != nil {
		return 0, err
	}
	a, err := publisher.ParseMDPIArticle(bytes.NewReader(page.Body), page.URL, log)
	if err != nil {
		return 0, err
	}
	log = log.With(zap.String("article", a.ShortID))
	if !h.IncludeUnregistered && a.DOIRegistered != nil && !*a.DOIRegistered {
		log.Info("excluding article with unregistered DOI")
		return corpus.Excluded, nil
	}

	var x Extras
	var reviewErr error
	if a.HasReviews && h.Reviews != nil {
		revs, err := h.Reviews.Collect(ctx, a.ReviewsURL)
		if err != nil {
			reviewErr = fmt.Errorf("collecting reviews of %s: %w", a.ShortID, err)
		} else {
			if revs.ShortID != a.ShortID {
				log.Warn("review page belongs to another article", zap.String("review_article", revs.ShortID))
			}
			a.SubArticles = revs.SubArticles
			x.SourceHTML = revs.HTML
		}
	}

	_, err = h.Saver.Save(ctx, a, x)
	outcome := corpus.Processed
	if a.HasReviews {
		outcome = corpus.Reviewed
	}
	return outcome, errors.Join(reviewErr, err)
}

// MDPIReviews harvests the reviews of articles whose metadata is already saved.
type MDPIReviews struct {
	Reviews *ReviewCollector
	Saver   *Saver
	Log     *zap.Logger
}

var _ corpus.Handler = (*MDPIReviews)(nil)

// ShortID is known for items found in the reviewed-articles directory.
func (h *MDPIReviews) ShortID(it corpus.Item) string {
	return it.ShortID
}

// Handle reads one review page and saves its sub-articles.
func (h *MDPIReviews) Handle(ctx context.Context, it corpus.Item) (corpus.Outcome, error) {
	log := nopIfNil(h.Log).With(zap.String("url", it.URL))
	revs, err := h.Reviews.Collect(ctx, it.URL)
	if err != nil {
		return 0, err
	}
	short := revs.ShortID
	if it.ShortID != "" && it.ShortID != short {
		log.Warn("review page belongs to another article",
			zap.String("article", it.ShortID), zap.String("review_article", short))
		short = it.ShortID
	}
	if len(revs.SubArticles) == 0 {
		log.Info("no reviews found", zap.String("article", short))
		return corpus.Processed, nil
	}
	err = h.Saver.SaveReviews(ctx, short, revs.SubArticles, Extras{SourceHTML: revs.HTML})
	return corpus.Reviewed, err
}
