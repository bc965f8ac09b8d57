package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/persist"
)

// ErrCorruptCheckpoint is returned before any processing when the checkpoint file
// cannot be read.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

// Checkpoint records how many leading source items are done.
type Checkpoint struct {
	DoneFiles int `json:"done_files"`
}

// LoadCheckpoint reads the checkpoint at path. A missing file is a zero checkpoint.
func LoadCheckpoint(path string) (Checkpoint, error) {
	var cp Checkpoint
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("%w: %s: %v", ErrCorruptCheckpoint, path, err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("%w: %s: %v", ErrCorruptCheckpoint, path, err)
	}
	if cp.DoneFiles < 0 {
		return cp, fmt.Errorf("%w: %s: negative done_files %d", ErrCorruptCheckpoint, path, cp.DoneFiles)
	}
	return cp, nil
}

// progress tracks finished item indexes and persists the contiguous prefix. It is
// the only writer of the checkpoint file.
type progress struct {
	mu       sync.Mutex
	path     string
	done     int // every index below done has finished
	finished map[int]bool
	store    *persist.Store
}

func newProgress(path string, start int) *progress {
	return &progress{
		path:     path,
		done:     start,
		finished: make(map[int]bool),
		store:    persist.New(zap.NewNop()),
	}
}

// finish marks index i done and saves the checkpoint when the prefix grew.
func (p *progress) finish(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished[i] = true
	before := p.done
	for p.finished[p.done] {
		delete(p.finished, p.done)
		p.done++
	}
	if p.done == before {
		return nil
	}
	return p.saveLocked()
}

func (p *progress) doneFiles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *progress) save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveLocked()
}

func (p *progress) saveLocked() error {
	if p.path == "" {
		return nil
	}
	_, err := p.store.PutJSON(p.path, Checkpoint{DoneFiles: p.done}, true)
	return err
}
