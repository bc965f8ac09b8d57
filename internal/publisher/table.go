// Package publisher holds per-publisher selector tables and the document parsers
// that feed the review engine: goquery HTML pages, MDPI article metadata and JATS XML.
package publisher

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matsen/revharvest/internal/review"
)

// Publishers with built-in tables.
const (
	MDPI  = "mdpi"
	PLOS  = "plos"
	ELife = "elife"
)

// Source formats.
const (
	FormatHTML = "html"
	FormatJATS = "jats"
)

//go:embed tables.yaml
var defaultTables []byte

// ErrUnknownPublisher is returned when no table exists for a publisher name.
var ErrUnknownPublisher = errors.New("unknown publisher")

// Selectors are the CSS selectors locating each region of an HTML page.
type Selectors struct {
	Reviewers       string `yaml:"reviewers"`
	Reviews         string `yaml:"reviews"`
	BibIdentity     string `yaml:"bib_identity"`
	EmbeddedReports string `yaml:"embedded_reports"`
}

// Table is everything the harvester needs to know about one publisher's markup.
type Table struct {
	Name            string           `yaml:"-"`
	Format          string           `yaml:"format"`
	Layout          string           `yaml:"layout"`
	Patterns        review.Patterns  `yaml:"patterns"`
	Reviewers       review.TableRule `yaml:"reviewers"`
	Selectors       Selectors        `yaml:"selectors"`
	SkipSpecificUse []string         `yaml:"skip_specific_use"`
	// IDs selects the JATS identifier grammar: "plos" or "elife".
	IDs string `yaml:"ids"`
	// MaterialURL templates JATS attachment URLs. Placeholders: {id}, {id_tail},
	// {article_doi}.
	MaterialURL string `yaml:"material_url"`
}

// Tables maps publisher names to their tables.
type Tables map[string]*Table

// DefaultTables returns the built-in tables.
func DefaultTables() (Tables, error) {
	return parseTables(defaultTables)
}

// LoadTables returns the built-in tables overridden by the publishers defined in
// the YAML file at path. An empty path returns the defaults.
func LoadTables(path string) (Tables, error) {
	tables, err := DefaultTables()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading publisher tables: %w", err)
	}
	overrides, err := parseTables(data)
	if err != nil {
		return nil, err
	}
	for name, t := range overrides {
		tables[name] = t
	}
	return tables, nil
}

func parseTables(data []byte) (Tables, error) {
	var tables Tables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parsing publisher tables: %w", err)
	}
	for name, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("publisher %s: empty table", name)
		}
		t.Name = name
		if t.Format == "" {
			t.Format = FormatHTML
		}
		if t.Format != FormatHTML && t.Format != FormatJATS {
			return nil, fmt.Errorf("publisher %s: unknown format %q", name, t.Format)
		}
		if t.Format == FormatJATS && t.IDs != PLOS && t.IDs != ELife {
			return nil, fmt.Errorf("publisher %s: unknown id grammar %q", name, t.IDs)
		}
	}
	return tables, nil
}

// Get returns the table for name.
func (ts Tables) Get(name string) (*Table, error) {
	t, ok := ts[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownPublisher, name, strings.Join(ts.Names(), ", "))
	}
	return t, nil
}

// Names returns the known publisher names, sorted.
func (ts Tables) Names() []string {
	names := make([]string, 0, len(ts))
	for name := range ts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classifier compiles the table's heading patterns.
func (t *Table) Classifier() (*review.Classifier, error) {
	c, err := review.NewClassifier(t.Patterns)
	if err != nil {
		return nil, fmt.Errorf("publisher %s: %w", t.Name, err)
	}
	return c, nil
}

// Skips reports whether a JATS sub-article with the given specific-use is ignored.
func (t *Table) Skips(specificUse string) bool {
	for _, s := range t.SkipSpecificUse {
		if s == specificUse {
			return true
		}
	}
	return false
}

// AttachmentURL expands MaterialURL for a JATS supplementary-material id.
func (t *Table) AttachmentURL(id, articleDOI string) string {
	if t.MaterialURL == "" {
		return ""
	}
	tail := id
	if i := strings.LastIndex(id, "."); i >= 0 {
		tail = id[i+1:]
	}
	return strings.NewReplacer("{id}", id, "{id_tail}", tail, "{article_doi}", articleDOI).Replace(t.MaterialURL)
}
