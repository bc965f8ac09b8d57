// Package review turns the ordered content blocks of a review page into typed
// sub-articles: reviewer reports, author responses and aggregated review bundles.
package review

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Link is a hyperlink embedded in a content block.
type Link struct {
	URL  string
	Text string
}

// Block is one paragraph or list of a document region, in document order.
// Text may span several lines (list items are newline separated).
type Block struct {
	Text  string
	Links []Link
}

// Region names a part of a document that yields blocks.
type Region string

// Regions understood by every Document.
const (
	RegionReviewers Region = "reviewers"
	RegionReviews   Region = "reviews"
)

// Document is a parsed publisher page able to list the blocks of a region.
type Document interface {
	Blocks(region Region) ([]Block, error)
}

// Normalize collapses every whitespace run inside each line (non-breaking spaces
// included) to one space and drops blank lines.
func Normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// fold is the form text takes before it is matched against patterns.
func fold(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
