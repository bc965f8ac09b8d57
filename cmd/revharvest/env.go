package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/corpus"
	"github.com/matsen/revharvest/internal/fetch"
	"github.com/matsen/revharvest/internal/harvest"
	"github.com/matsen/revharvest/internal/persist"
	"github.com/matsen/revharvest/internal/publisher"
)

// env is what every harvesting command needs for one publisher.
type env struct {
	name  string
	root  string
	table *publisher.Table
	store *persist.Store
	log   *zap.Logger
}

func newEnv(name string) *env {
	tables, err := publisher.LoadTables(cfg.Tables)
	if err != nil {
		exitWithError(ExitConfigError, "loading publisher tables: %v", err)
	}
	t, err := tables.Get(name)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	log := logger().With(zap.String("publisher", name))
	return &env{
		name:  name,
		root:  config.PublisherRoot(cfg.DumpDir, name),
		table: t,
		store: persist.New(log),
		log:   log,
	}
}

func (e *env) pages() *fetch.Fetcher {
	f, err := fetch.New(cfg.Fetch.Options(), e.log)
	if err != nil {
		exitWithError(ExitConfigError, "creating fetcher: %v", err)
	}
	return f
}

func (e *env) saver(opener fetch.Opener) *harvest.Saver {
	return harvest.NewSaver(e.root, e.store, opener, harvest.Options{
		Update:                    cfg.Update,
		SkipSupplementaryDownload: cfg.SkipSupplementaryDownload,
		ExtractPDFText:            cfg.ExtractPDFText,
		SaveHTML:                  cfg.SaveHTML,
		PDFMaxPages:               cfg.PDFMaxPages,
	}, e.log)
}

func (e *env) downloader() fetch.Opener {
	if cfg.SkipSupplementaryDownload {
		return nil
	}
	return fetch.NewDownloader(cfg.Fetch.Options(), e.log)
}

func (e *env) collector(pages fetch.PageFetcher) *harvest.ReviewCollector {
	c, err := harvest.NewReviewCollector(e.table, pages, cfg.Policy(), e.log)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return c
}

// run drives h over src and reports the result. checkpoint enables resuming.
func (e *env) run(ctx context.Context, h corpus.Handler, src corpus.Source, checkpoint bool) {
	d := &corpus.Driver{
		Root:     e.root,
		Handler:  h,
		Workers:  cfg.Workers,
		Update:   cfg.Update,
		MaxItems: cfg.MaxArticles,
		Log:      e.log,
	}
	if checkpoint {
		d.Checkpoint = config.CheckpointPath(e.root)
	}

	summary, err := d.Run(ctx, src)
	if err != nil {
		code := ExitError
		if errors.Is(err, corpus.ErrCorruptCheckpoint) {
			code = ExitDataError
		}
		exitWithError(code, "%v", err)
	}
	reportHarvest(HarvestResult{
		RunID:     runID(),
		Publisher: e.name,
		Root:      e.root,
		Summary:   summary,
		Files:     e.store.Counts(),
	})
}
