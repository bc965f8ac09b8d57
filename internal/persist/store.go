// Package persist writes corpus artifacts incrementally: a file that already exists
// is kept unless the caller asks for an update, and a failed write is counted and
// reported without aborting the pass.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
)

// Outcome is the result of one Put.
type Outcome int

const (
	Written Outcome = iota + 1
	Skipped
	Overwritten
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case Skipped:
		return "skipped"
	case Overwritten:
		return "overwritten"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Counts is a snapshot of a Store's counters.
type Counts struct {
	Written     int64 `json:"written"`
	Overwritten int64 `json:"overwritten"`
	Skipped     int64 `json:"skipped"`
	Failed      int64 `json:"failed"`
}

// Dumped is the number of files written or overwritten.
func (c Counts) Dumped() int64 {
	return c.Written + c.Overwritten
}

// Store publishes artifacts atomically. A reader never sees a partially written
// file. It is safe for concurrent use; callers must not write the same path from
// two goroutines with update set.
type Store struct {
	log  *zap.Logger
	link func(oldname, newname string) error

	written     atomic.Int64
	overwritten atomic.Int64
	skipped     atomic.Int64
	failed      atomic.Int64
}

// New returns a Store logging to log.
func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log, link: os.Link}
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Put writes content to path. An existing file is left untouched unless update is
// set, in which case it is replaced.
func (s *Store) Put(path string, content []byte, update bool) (Outcome, error) {
	return s.PutReader(path, bytes.NewReader(content), update)
}

// PutText writes text as UTF-8.
func (s *Store) PutText(path, text string, update bool) (Outcome, error) {
	return s.Put(path, []byte(text), update)
}

// PutJSON writes v as indented JSON. HTML characters are not escaped.
func (s *Store) PutJSON(path string, v any, update bool) (Outcome, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return s.fail(path, fmt.Errorf("encoding JSON: %w", err))
	}
	return s.Put(path, buf.Bytes(), update)
}

// PutReader streams r to path. r is not read when the file exists and update is
// false.
func (s *Store) PutReader(path string, r io.Reader, update bool) (Outcome, error) {
	existed := s.Exists(path)
	if existed && !update {
		return s.skip(path), nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return s.fail(path, fmt.Errorf("creating directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return s.fail(path, fmt.Errorf("creating temp file: %w", err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return s.fail(path, fmt.Errorf("writing: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return s.fail(path, fmt.Errorf("closing: %w", err))
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return s.fail(path, fmt.Errorf("setting mode: %w", err))
	}

	if !update {
		// Link refuses to replace an existing file, so a concurrent creator wins.
		err := s.link(tmpName, path)
		if errors.Is(err, fs.ErrExist) {
			return s.skip(path), nil
		}
		if err != nil {
			// No hard links on this filesystem (some SMB and FUSE mounts). Rename
			// after a second check leaves a narrow window for concurrent creators.
			s.log.Debug("hard link failed, renaming", zap.String("path", path), zap.Error(err))
			if s.Exists(path) {
				return s.skip(path), nil
			}
			if err := os.Rename(tmpName, path); err != nil {
				return s.fail(path, fmt.Errorf("publishing: %w", err))
			}
		}
		s.written.Add(1)
		return Written, nil
	}

	if err := os.Rename(tmpName, path); err != nil {
		return s.fail(path, fmt.Errorf("publishing: %w", err))
	}
	if existed {
		s.overwritten.Add(1)
		s.log.Warn("overwrote existing file", zap.String("path", path))
		return Overwritten, nil
	}
	s.written.Add(1)
	return Written, nil
}

// PutFrom streams the body returned by open to path. open is only called when the
// file is going to be written, so a skipped download costs no request. An error from
// open is returned unchanged and is not counted as a failed write.
func (s *Store) PutFrom(path string, open func() (io.ReadCloser, error), update bool) (Outcome, error) {
	if s.Exists(path) && !update {
		return s.skip(path), nil
	}
	rc, err := open()
	if err != nil {
		return Failed, err
	}
	defer rc.Close()
	return s.PutReader(path, rc, update)
}

func (s *Store) skip(path string) Outcome {
	s.skipped.Add(1)
	s.log.Debug("file exists, skipping", zap.String("path", path))
	return Skipped
}

func (s *Store) fail(path string, err error) (Outcome, error) {
	s.failed.Add(1)
	perr := &PersistenceError{Path: path, Err: err}
	s.log.Error("write failed", zap.String("path", path), zap.Error(err))
	return Failed, perr
}

// Counts returns the current counters.
func (s *Store) Counts() Counts {
	return Counts{
		Written:     s.written.Load(),
		Overwritten: s.overwritten.Load(),
		Skipped:     s.skipped.Load(),
		Failed:      s.failed.Load(),
	}
}

// Dumped is the number of files written or overwritten so far.
func (s *Store) Dumped() int64 {
	return s.Counts().Dumped()
}
