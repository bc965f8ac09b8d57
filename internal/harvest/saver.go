// Package harvest writes harvested articles to the output layout and implements the
// per-item handlers the corpus driver runs: JATS corpora and MDPI pages.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/article"
	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/fetch"
	"github.com/matsen/revharvest/internal/pdf"
	"github.com/matsen/revharvest/internal/persist"
)

// Options control which artifacts a Saver writes.
type Options struct {
	Update                    bool
	SkipSupplementaryDownload bool
	ExtractPDFText            bool
	SaveHTML                  bool
	// PDFMaxPages limits text extraction; 0 reads every page.
	PDFMaxPages int
}

// Extras are the raw source documents saved next to an article's metadata.
type Extras struct {
	SourceXML     []byte            // JATS document, saved as {short}.xml
	SourceHTML    []byte            // review page, saved as {short}.html when SaveHTML is set
	SubArticleXML map[string]string // JATS sub-article elements by sub-article id
}

// Saver writes articles below one publisher root.
type Saver struct {
	root   string
	store  *persist.Store
	opener fetch.Opener
	opts   Options
	log    *zap.Logger
}

// NewSaver returns a Saver writing below root through store. opener downloads
// supplementary materials; a nil opener disables downloads.
func NewSaver(root string, store *persist.Store, opener fetch.Opener, opts Options, log *zap.Logger) *Saver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Saver{root: root, store: store, opener: opener, opts: opts, log: log}
}

// Root returns the publisher root the Saver writes to.
func (s *Saver) Root() string {
	return s.root
}

// Save writes a's metadata to all_articles and, for reviewed articles, the
// reviewed-article directory with its sub-articles and materials. Every artifact is
// attempted; the returned outcome is that of the all_articles file and the error
// joins every artifact that failed.
func (s *Saver) Save(ctx context.Context, a *article.Article, x Extras) (persist.Outcome, error) {
	SetBodyFiles(a.SubArticles, x.SubArticleXML)

	outcome, err := s.store.PutJSON(config.ArticlePath(s.root, a.ShortID), a, s.opts.Update)
	errs := []error{err}
	if !a.HasReviews {
		return outcome, errors.Join(errs...)
	}

	_, err = s.store.PutJSON(config.MetadataPath(s.root, a.ShortID), a, s.opts.Update)
	errs = append(errs, err)
	if len(x.SourceXML) > 0 {
		_, err = s.store.Put(s.articleFile(a.ShortID, ".xml"), x.SourceXML, s.opts.Update)
		errs = append(errs, err)
	}
	errs = append(errs, s.SaveReviews(ctx, a.ShortID, a.SubArticles, x))
	return outcome, errors.Join(errs...)
}

// SaveReviews writes the sub-articles of the reviewed article short: one JSON file
// and one body file per sub-article, plus its downloaded materials.
func (s *Saver) SaveReviews(ctx context.Context, short string, subs []article.SubArticle, x Extras) error {
	SetBodyFiles(subs, x.SubArticleXML)
	var errs []error
	if s.opts.SaveHTML && len(x.SourceHTML) > 0 {
		_, err := s.store.Put(s.articleFile(short, ".html"), x.SourceHTML, s.opts.Update)
		errs = append(errs, err)
	}

	dir := config.SubArticlesPath(s.root, short)
	for i := range subs {
		sub := &subs[i]
		_, err := s.store.PutJSON(filepath.Join(dir, sub.ID+".json"), sub, s.opts.Update)
		errs = append(errs, err)

		if body := x.SubArticleXML[sub.ID]; body != "" {
			_, err = s.store.PutText(filepath.Join(dir, sub.BodyFile), body, s.opts.Update)
			errs = append(errs, err)
		} else if sub.BodyText != "" {
			_, err = s.store.PutText(filepath.Join(dir, sub.BodyFile), sub.BodyText, s.opts.Update)
			errs = append(errs, err)
		}

		for _, m := range sub.SupplementaryMaterials {
			errs = append(errs, s.download(ctx, dir, m))
		}
	}
	return errors.Join(errs...)
}

// download fetches one material into dir. Links that can never be downloaded are
// logged and ignored.
func (s *Saver) download(ctx context.Context, dir string, m article.SupplementaryMaterial) error {
	if s.opener == nil || s.opts.SkipSupplementaryDownload || m.URL == "" {
		return nil
	}
	path := filepath.Join(dir, m.Filename)
	log := s.log.With(zap.String("material", m.ID), zap.String("url", m.URL))

	outcome, err := s.store.PutFrom(path, func() (io.ReadCloser, error) {
		log.Debug("downloading supplementary material")
		return s.opener.Open(ctx, m.URL)
	}, s.opts.Update)
	if errors.Is(err, fetch.ErrEmailProtected) {
		return nil
	}
	if err != nil {
		if !persist.IsPersistence(err) {
			log.Error("download failed", zap.Error(err))
		}
		return fmt.Errorf("material %s: %w", m.ID, err)
	}

	if !s.opts.ExtractPDFText || !pdf.IsPDF(m.Filename) {
		return nil
	}
	sidecar := pdf.SidecarPath(path)
	if outcome == persist.Skipped && s.store.Exists(sidecar) {
		return nil
	}
	text, err := pdf.ExtractText(path, s.opts.PDFMaxPages)
	if err != nil {
		// Scanned or malformed reports are common; the PDF itself is kept.
		log.Warn("extracting PDF text", zap.Error(err))
		return nil
	}
	_, err = s.store.PutText(sidecar, text, s.opts.Update)
	return err
}

func (s *Saver) articleFile(short, ext string) string {
	return filepath.Join(config.ReviewedArticlePath(s.root, short), short+ext)
}

// SetBodyFiles names the body artifact of each sub-article: {id}.xml when its JATS
// element is known, {id}.txt when it has body text.
func SetBodyFiles(subs []article.SubArticle, xml map[string]string) {
	for i := range subs {
		switch {
		case xml[subs[i].ID] != "":
			subs[i].BodyFile = subs[i].ID + ".xml"
		case subs[i].BodyText != "":
			subs[i].BodyFile = subs[i].ID + ".txt"
		}
	}
}
