package corpus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/revharvest/internal/config"
)

// Outcome is what a handler did with one item.
type Outcome int

const (
	// Processed items were harvested and had no reviews.
	Processed Outcome = iota + 1
	// Reviewed items were harvested with their reviews.
	Reviewed
	// Excluded items were recognised but deliberately not harvested.
	Excluded
)

func (o Outcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case Reviewed:
		return "reviewed"
	case Excluded:
		return "excluded"
	}
	return "unknown"
}

// Handler harvests one item.
type Handler interface {
	// ShortID derives the article short id of an item without reading it, or ""
	// when only the content can tell.
	ShortID(it Item) string
	Handle(ctx context.Context, it Item) (Outcome, error)
}

// Summary reports a finished or interrupted pass.
type Summary struct {
	Items       int   `json:"items"` // items listed by the source
	Processed   int64 `json:"processed"`
	Reviewed    int64 `json:"reviewed"`
	Skipped     int64 `json:"skipped"`
	Errors      int64 `json:"errors"`
	DoneFiles   int   `json:"done_files"`
	Interrupted bool  `json:"interrupted"`
}

// Driver runs a Handler over a Source.
type Driver struct {
	// Root is the publisher root holding all_articles and reviewed_articles.
	Root    string
	Handler Handler
	Workers int
	Update  bool
	// MaxItems bounds the items handled in one pass; 0 means no bound.
	MaxItems int
	// Checkpoint is the checkpoint file; empty disables resuming.
	Checkpoint string
	Log        *zap.Logger

	locks KeyedMutex
}

// Run handles every pending item of src. Items before the checkpoint are not
// handled again. When ctx is cancelled no new item starts; items already running
// finish, and the checkpoint records the contiguous prefix of finished items.
// A corrupt checkpoint fails the run before any item is handled.
func (d *Driver) Run(ctx context.Context, src Source) (Summary, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	var sum Summary

	cp := Checkpoint{}
	if d.Checkpoint != "" {
		var err error
		if cp, err = LoadCheckpoint(d.Checkpoint); err != nil {
			return sum, err
		}
	}

	items, err := src.List(ctx)
	if err != nil {
		return sum, fmt.Errorf("listing items: %w", err)
	}
	sum.Items = len(items)

	start := cp.DoneFiles
	if start > len(items) {
		log.Warn("checkpoint is past the end of the source", zap.Int("done_files", start), zap.Int("items", len(items)))
		start = len(items)
	}
	pending := items[start:]
	if d.MaxItems > 0 && len(pending) > d.MaxItems {
		pending = pending[:d.MaxItems]
	}
	log.Info("starting pass",
		zap.Int("items", len(items)),
		zap.Int("resuming_at", start),
		zap.Int("pending", len(pending)))

	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	prog := newProgress(d.Checkpoint, start)
	var processed, reviewed, skipped, errs atomic.Int64
	began := time.Now()

	var g errgroup.Group
	g.SetLimit(workers)
	for i, it := range pending {
		if ctx.Err() != nil {
			break
		}
		index := start + i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			// Running items are not cancelled; only dispatch stops.
			outcome, err := d.process(context.WithoutCancel(ctx), it, log)
			switch {
			case err != nil:
				errs.Add(1)
				log.Error("item failed", zap.String("item", it.Name), zap.Error(err))
			case outcome == 0 || outcome == Excluded:
				skipped.Add(1)
			case outcome == Reviewed:
				reviewed.Add(1)
				processed.Add(1)
			default:
				processed.Add(1)
			}
			if err := prog.finish(index); err != nil {
				log.Error("saving checkpoint", zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
	sum.Interrupted = ctx.Err() != nil && prog.doneFiles() < start+len(pending)

	if err := prog.save(); err != nil {
		log.Error("saving checkpoint", zap.Error(err))
	}

	sum.Processed = processed.Load()
	sum.Reviewed = reviewed.Load()
	sum.Skipped = skipped.Load()
	sum.Errors = errs.Load()
	sum.DoneFiles = prog.doneFiles()
	log.Info("pass finished",
		zap.Int64("processed", sum.Processed),
		zap.Int64("reviewed", sum.Reviewed),
		zap.Int64("skipped", sum.Skipped),
		zap.Int64("errors", sum.Errors),
		zap.Int("done_files", sum.DoneFiles),
		zap.Bool("interrupted", sum.Interrupted),
		zap.Duration("elapsed", time.Since(began)))
	return sum, nil
}

// process applies the skip policy and runs the handler under the article's lock.
// A zero outcome means the item was skipped.
func (d *Driver) process(ctx context.Context, it Item, log *zap.Logger) (Outcome, error) {
	short := d.Handler.ShortID(it)
	if short != "" && it.ShortID == "" {
		it.ShortID = short
	}

	unlock := d.locks.Lock(it.Key())
	defer unlock()

	// Reviewed articles are never skipped; their sub-articles may be incomplete.
	if short != "" && !d.Update && config.HasMetadata(d.Root, short) && !config.IsReviewed(d.Root, short) {
		log.Debug("already harvested, skipping", zap.String("article", short))
		return 0, nil
	}
	return d.Handler.Handle(ctx, it)
}
