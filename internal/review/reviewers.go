package review

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/revharvest/internal/article"
)

// TableRule describes how a publisher lists its reviewers.
type TableRule struct {
	// Entry matches one reviewer line; group 1 is the number, group 2 the name.
	Entry string `yaml:"entry"`
	// StartMarker, when set, ignores lines until one contains it (case-insensitive).
	StartMarker string `yaml:"start_marker"`
}

// ReviewersTable maps reviewer numbers to reviewers, keeping listing order.
type ReviewersTable struct {
	entries  []article.Reviewer
	byNumber map[int]int
}

// NewReviewersTable returns an empty table.
func NewReviewersTable() *ReviewersTable {
	return &ReviewersTable{byNumber: make(map[int]int)}
}

// Add records reviewer n. An empty name is recorded as Anonymous; a number already
// present keeps its first entry.
func (t *ReviewersTable) Add(n int, name string) {
	if _, ok := t.byNumber[n]; ok {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = article.AnonymousReviewer
	}
	t.byNumber[n] = len(t.entries)
	t.entries = append(t.entries, article.Reviewer{Number: n, Name: name})
}

// Lookup returns reviewer n.
func (t *ReviewersTable) Lookup(n int) (article.Reviewer, bool) {
	if t == nil {
		return article.Reviewer{}, false
	}
	i, ok := t.byNumber[n]
	if !ok {
		return article.Reviewer{}, false
	}
	return t.entries[i], true
}

// List returns a copy of the table in listing order.
func (t *ReviewersTable) List() []article.Reviewer {
	if t == nil || len(t.entries) == 0 {
		return nil
	}
	out := make([]article.Reviewer, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of reviewers.
func (t *ReviewersTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// ParseReviewers builds a reviewers table from the blocks of a reviewers region.
func ParseReviewers(blocks []Block, rule TableRule) (*ReviewersTable, error) {
	t := NewReviewersTable()
	if rule.Entry == "" {
		return t, nil
	}
	re, err := regexp.Compile(rule.Entry)
	if err != nil {
		return nil, fmt.Errorf("invalid reviewer entry pattern: %w", err)
	}
	marker := strings.ToLower(rule.StartMarker)
	started := marker == ""

	for _, b := range blocks {
		for _, line := range strings.Split(b.Text, "\n") {
			line = fold(line)
			if !started {
				started = strings.Contains(strings.ToLower(line), marker)
				continue
			}
			m := re.FindStringSubmatch(line)
			if m == nil || len(m) < 2 {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			name := ""
			if len(m) > 2 {
				name = m[2]
			}
			t.Add(n, name)
		}
	}
	return t, nil
}
