// Package corpus drives a harvest over a list of source items: it applies the skip
// policy, runs handlers on a bounded worker pool and keeps a resumable checkpoint.
package corpus

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/article"
	"github.com/matsen/revharvest/internal/config"
	"github.com/matsen/revharvest/internal/doi"
)

// Item is one unit of work: a corpus file or a page URL.
type Item struct {
	Name    string // entry name, file path or URL
	URL     string
	ShortID string // set when the source already knows the article
	// Open returns the item's content; nil for page URLs.
	Open func() (io.ReadCloser, error)
}

// Key identifies the article an item belongs to, for locking.
func (it Item) Key() string {
	if it.ShortID != "" {
		return it.ShortID
	}
	return it.Name
}

// Source lists the items of one harvest, in a stable order.
type Source interface {
	List(ctx context.Context) ([]Item, error)
}

// ZipSource lists the XML entries of a zip archive, such as the allofplos corpus.
type ZipSource struct {
	Path string
	Ext  string // entry suffix to keep, default ".xml"

	zr *zip.ReadCloser
}

// List opens the archive. Items read from it until Close is called.
func (z *ZipSource) List(ctx context.Context) ([]Item, error) {
	if z.zr == nil {
		zr, err := zip.OpenReader(z.Path)
		if err != nil {
			return nil, fmt.Errorf("opening zip %s: %w", z.Path, err)
		}
		z.zr = zr
	}
	ext := z.Ext
	if ext == "" {
		ext = ".xml"
	}

	var items []Item
	for _, f := range z.zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ext) {
			continue
		}
		items = append(items, Item{Name: f.Name, Open: f.Open})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, ctx.Err()
}

// Close releases the archive.
func (z *ZipSource) Close() error {
	if z.zr == nil {
		return nil
	}
	err := z.zr.Close()
	z.zr = nil
	return err
}

// DirSource lists the files of one directory with a given extension.
type DirSource struct {
	Dir string
	Ext string // default ".xml"
	// NewestVersion keeps only the highest -vN revision of each eLife article.
	NewestVersion bool
	Log           *zap.Logger
}

// List reads the directory.
func (d *DirSource) List(ctx context.Context) ([]Item, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.Dir, err)
	}
	ext := d.Ext
	if ext == "" {
		ext = ".xml"
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			continue
		}
		names = append(names, e.Name())
	}
	if d.NewestVersion {
		names = newestVersions(names)
		if d.Log != nil {
			d.Log.Info("kept newest article versions", zap.Int("files", len(names)))
		}
	}

	items := make([]Item, 0, len(names))
	for _, name := range names {
		path := filepath.Join(d.Dir, name)
		items = append(items, Item{
			Name: name,
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return items, ctx.Err()
}

// newestVersions keeps, per article key, the file with the highest version.
// Unversioned files are kept as they are. The result is sorted.
func newestVersions(names []string) []string {
	type best struct {
		name    string
		version int
	}
	newest := make(map[string]best)
	var out []string
	for _, name := range names {
		key, v, ok := doi.ELifeVersion(name)
		if !ok {
			out = append(out, name)
			continue
		}
		if b, seen := newest[key]; !seen || v > b.version {
			newest[key] = best{name, v}
		}
	}
	for _, b := range newest {
		out = append(out, b.name)
	}
	sort.Strings(out)
	return out
}

// URLSource lists page URLs, dropping blanks and duplicates.
type URLSource struct {
	URLs []string
}

// List returns one item per distinct URL, in input order.
func (u *URLSource) List(ctx context.Context) ([]Item, error) {
	seen := make(map[string]bool, len(u.URLs))
	items := make([]Item, 0, len(u.URLs))
	for _, raw := range u.URLs {
		url := strings.TrimSpace(raw)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		items = append(items, Item{Name: url, URL: url})
	}
	return items, ctx.Err()
}

// ReadURLFile reads one URL per line. Blank lines and lines starting with '#' are
// ignored.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening URL list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading URL list: %w", err)
	}
	return urls, nil
}

// ReviewedSource lists the reviews URLs recorded in the metadata of reviewed
// articles below Root. Articles whose sub-articles directory already has content
// are left out unless Update is set.
type ReviewedSource struct {
	Root   string
	Update bool
	Log    *zap.Logger
}

// List scans reviewed_articles/*/metadata.json.
func (r *ReviewedSource) List(ctx context.Context) ([]Item, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(config.ReviewedPath(r.Root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading reviewed articles: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		short := e.Name()
		a, err := readMetadata(config.MetadataPath(r.Root, short))
		if err != nil {
			log.Warn("no readable metadata in reviewed directory", zap.String("article", short), zap.Error(err))
			continue
		}
		if !a.HasReviews || a.ReviewsURL == "" {
			continue
		}
		if !r.Update && hasFiles(config.SubArticlesPath(r.Root, short)) {
			log.Debug("reviews already harvested", zap.String("article", short))
			continue
		}
		items = append(items, Item{Name: a.ReviewsURL, URL: a.ReviewsURL, ShortID: short})
	}
	log.Info("found review URLs", zap.Int("count", len(items)))
	return items, nil
}

func readMetadata(path string) (*article.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a article.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &a, nil
}

func hasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// CSVSource lists the reviews URLs of a CSV export with short_id and reviews_url
// columns.
type CSVSource struct {
	Path string
}

// List reads the CSV file. The header row names the columns.
func (c *CSVSource) List(ctx context.Context) ([]Item, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.Path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.Path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	shortCol, urlCol := -1, -1
	for i, h := range records[0] {
		switch strings.TrimSpace(h) {
		case "short_id":
			shortCol = i
		case "reviews_url":
			urlCol = i
		}
	}
	if urlCol < 0 {
		return nil, fmt.Errorf("%s: no reviews_url column", c.Path)
	}

	var items []Item
	for _, rec := range records[1:] {
		it := Item{URL: strings.TrimSpace(rec[urlCol])}
		if it.URL == "" {
			continue
		}
		it.Name = it.URL
		if shortCol >= 0 {
			it.ShortID = strings.TrimSpace(rec[shortCol])
		}
		items = append(items, it)
	}
	return items, ctx.Err()
}

// ReviewedOnly restricts src to the items whose article already has a
// reviewed_articles directory below root, for re-harvesting reviews only.
func ReviewedOnly(src Source, root string, shortID func(Item) string) Source {
	return SourceFunc(func(ctx context.Context) ([]Item, error) {
		items, err := src.List(ctx)
		if err != nil {
			return nil, err
		}
		kept := items[:0]
		for _, it := range items {
			if config.IsReviewed(root, shortID(it)) {
				kept = append(kept, it)
			}
		}
		return kept, nil
	})
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) ([]Item, error)

// List calls f.
func (f SourceFunc) List(ctx context.Context) ([]Item, error) { return f(ctx) }
