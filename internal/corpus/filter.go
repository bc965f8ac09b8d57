package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FilterResult counts what Filter did.
type FilterResult struct {
	Scanned int `json:"scanned"`
	Moved   int `json:"moved"`
	Kept    int `json:"kept"`    // key present and false
	Skipped int `json:"skipped"` // destination exists and update is false
	Invalid int `json:"invalid"` // unreadable JSON, or key missing or not a bool
}

// FilterOptions configure Filter.
type FilterOptions struct {
	// Key names the boolean property selecting files to move, e.g. "has_reviews".
	Key string
	// ScanSubdirs reads the JSON files one level down and moves their whole
	// directory instead of the file.
	ScanSubdirs bool
	Update      bool
}

// Filter moves the JSON files of src, or with ScanSubdirs their directories, whose
// boolean property Key is true into dest. Problems with one file are logged and
// counted; only failing to read src or create dest is an error.
func Filter(src, dest string, opts FilterOptions, log *zap.Logger) (FilterResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var res FilterResult
	if err := os.MkdirAll(dest, 0755); err != nil {
		return res, fmt.Errorf("creating %s: %w", dest, err)
	}

	type candidate struct {
		path string // JSON file
		move string // file or directory to move
	}
	var candidates []candidate
	entries, err := os.ReadDir(src)
	if err != nil {
		return res, fmt.Errorf("reading %s: %w", src, err)
	}
	for _, e := range entries {
		path := filepath.Join(src, e.Name())
		switch {
		case opts.ScanSubdirs && e.IsDir():
			sub, err := os.ReadDir(path)
			if err != nil {
				log.Error("reading directory", zap.String("path", path), zap.Error(err))
				continue
			}
			for _, f := range sub {
				if !f.IsDir() && isJSON(f.Name()) {
					candidates = append(candidates, candidate{filepath.Join(path, f.Name()), path})
				}
			}
		case !opts.ScanSubdirs && !e.IsDir() && isJSON(e.Name()):
			candidates = append(candidates, candidate{path, path})
		}
	}
	log.Info("loaded JSON files", zap.Int("count", len(candidates)))

	moved := make(map[string]bool)
	for _, c := range candidates {
		if moved[c.move] {
			continue
		}
		res.Scanned++
		flag, err := readFlag(c.path, opts.Key)
		if err != nil {
			res.Invalid++
			log.Info("skipping file", zap.String("path", c.path), zap.Error(err))
			continue
		}
		if !flag {
			res.Kept++
			continue
		}

		target := filepath.Join(dest, filepath.Base(c.move))
		if _, err := os.Stat(target); err == nil {
			if !opts.Update {
				res.Skipped++
				log.Info("already in destination, not overwriting", zap.String("path", target))
				continue
			}
			log.Warn("replacing existing destination", zap.String("path", target))
			if err := os.RemoveAll(target); err != nil {
				log.Error("removing destination", zap.String("path", target), zap.Error(err))
				continue
			}
		}
		if err := os.Rename(c.move, target); err != nil {
			log.Error("moving", zap.String("from", c.move), zap.String("to", target), zap.Error(err))
			continue
		}
		moved[c.move] = true
		res.Moved++
		log.Debug("moved", zap.String("from", c.move), zap.String("to", target))
	}
	return res, nil
}

func isJSON(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}

func readFlag(path, key string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("invalid JSON: %w", err)
	}
	v, ok := doc[key]
	if !ok {
		return false, fmt.Errorf("no property %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("property %q is not a bool", key)
	}
	return b, nil
}
