// Package logging builds the per-run zap logger that is threaded through the
// driver, handlers, store and segmentation engine.
package logging

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats understood by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configure a run logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	// File, when set, receives the log in addition to stderr.
	File string
}

// Run is the logging context of one harvester run.
type Run struct {
	ID     string
	Logger *zap.Logger
}

// New builds a logger whose every entry carries a fresh run_id.
func New(opts Options) (*Run, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		level = l
	}

	var cfg zap.Config
	switch opts.Format {
	case FormatJSON:
		cfg = zap.NewProductionConfig()
	case FormatConsole, "":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	id := uuid.NewString()
	cfg.InitialFields = map[string]any{"run_id": id}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return &Run{ID: id, Logger: logger}, nil
}

// Close flushes buffered entries.
func (r *Run) Close() {
	// Sync on stderr fails on some terminals; nothing useful can be done about it.
	_ = r.Logger.Sync()
}
