package review

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the structural role of a classified block.
type Kind int

const (
	RoundHeading Kind = iota + 1
	ReviewerHeading
	AuthorResponseHeading
	// AuthorResponseFile labels the line linking the author's reply document. It
	// joins an open author response and opens one otherwise.
	AuthorResponseFile
	Boilerplate
)

func (k Kind) String() string {
	switch k {
	case RoundHeading:
		return "round"
	case ReviewerHeading:
		return "reviewer"
	case AuthorResponseHeading:
		return "author-response"
	case AuthorResponseFile:
		return "author-response-file"
	case Boilerplate:
		return "boilerplate"
	}
	return "unknown"
}

// Label is the classification of a block. Number is the round or reviewer number the
// heading carries, 0 when it carries none.
type Label struct {
	Kind   Kind
	Number int
}

// Patterns are the publisher's heading expressions and boilerplate sentence.
// Heading expressions are matched against whole blocks of review text, so they
// should be anchored at both ends; their first capture group, when present, is the
// number the heading carries.
type Patterns struct {
	Round              string `yaml:"round"`
	Reviewer           string `yaml:"reviewer"`
	AuthorResponse     string `yaml:"author_response"`
	AuthorResponseFile string `yaml:"author_response_file,omitempty"`
	Boilerplate        string `yaml:"boilerplate"`
}

// Classifier labels block text with its structural role.
type Classifier struct {
	round       *regexp.Regexp
	reviewer    *regexp.Regexp
	author      *regexp.Regexp
	authorFile  *regexp.Regexp
	boilerplate string
}

// NewClassifier compiles p. Empty patterns never match.
func NewClassifier(p Patterns) (*Classifier, error) {
	var c Classifier
	var err error
	if c.round, err = compile("round", p.Round); err != nil {
		return nil, err
	}
	if c.reviewer, err = compile("reviewer", p.Reviewer); err != nil {
		return nil, err
	}
	if c.author, err = compile("author_response", p.AuthorResponse); err != nil {
		return nil, err
	}
	if c.authorFile, err = compile("author_response_file", p.AuthorResponseFile); err != nil {
		return nil, err
	}
	c.boilerplate = fold(p.Boilerplate)
	return &c, nil
}

func compile(name, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern: %w", name, err)
	}
	return re, nil
}

// Classify returns the label of text, or false for ordinary body content.
func (c *Classifier) Classify(text string) (Label, bool) {
	s := fold(text)
	if s == "" {
		return Label{}, false
	}
	if c.boilerplate != "" && strings.Contains(s, c.boilerplate) {
		return Label{Kind: Boilerplate}, true
	}
	if l, ok := match(c.round, RoundHeading, s); ok {
		return l, true
	}
	if l, ok := match(c.reviewer, ReviewerHeading, s); ok {
		return l, true
	}
	if l, ok := match(c.author, AuthorResponseHeading, s); ok {
		return l, true
	}
	if l, ok := match(c.authorFile, AuthorResponseFile, s); ok {
		return l, true
	}
	return Label{}, false
}

func match(re *regexp.Regexp, kind Kind, s string) (Label, bool) {
	if re == nil {
		return Label{}, false
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return Label{}, false
	}
	l := Label{Kind: kind}
	if len(m) > 1 && m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Label{}, false
		}
		l.Number = n
	}
	if (kind == RoundHeading || kind == ReviewerHeading) && l.Number == 0 {
		// Round and reviewer headings are meaningless without their number.
		return Label{}, false
	}
	return l, true
}
