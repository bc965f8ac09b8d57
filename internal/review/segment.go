package review

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/revharvest/internal/article"
	"github.com/matsen/revharvest/internal/doi"
)

// BoilerplatePolicy decides what happens once the resubmission boilerplate is seen.
type BoilerplatePolicy string

const (
	// PolicyStop ends the region at the boilerplate block.
	PolicyStop BoilerplatePolicy = "stop"
	// PolicySkip ignores the boilerplate block and keeps segmenting.
	PolicySkip BoilerplatePolicy = "skip"
)

// Layout selects how the reviews region is segmented.
type Layout string

const (
	// LayoutAuto is threaded when the region has reviewer or author headings,
	// aggregated otherwise.
	LayoutAuto       Layout = "auto"
	LayoutThreaded   Layout = "threaded"
	LayoutAggregated Layout = "aggregated"
)

// ParsePolicy validates a policy name. The empty string selects PolicyStop.
func ParsePolicy(s string) (BoilerplatePolicy, error) {
	switch BoilerplatePolicy(s) {
	case "", PolicyStop:
		return PolicyStop, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", fmt.Errorf("unknown boilerplate policy %q (want stop or skip)", s)
}

// ParseLayout validates a layout name. The empty string selects LayoutAuto.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case "", LayoutAuto:
		return LayoutAuto, nil
	case LayoutThreaded, LayoutAggregated:
		return Layout(s), nil
	}
	return "", fmt.Errorf("unknown layout %q (want auto, threaded or aggregated)", s)
}

// Options configure an Engine.
type Options struct {
	Policy BoilerplatePolicy
	Layout Layout
}

// Input is one article's review region.
type Input struct {
	ShortID    string
	ArticleDOI string
	ArticleURL string
	PageURL    string // page the blocks came from; stamped on every sub-article
	Reviewers  *ReviewersTable
	Blocks     []Block
}

// Result is the outcome of segmenting one region. Errors are per-segment; the
// sub-articles that could be built are always returned.
type Result struct {
	SubArticles []article.SubArticle
	Errors      []error
	// Truncated is set when a boilerplate block ended the region early.
	Truncated bool
}

// Engine segments review regions. It is safe for concurrent use.
type Engine struct {
	classifier *Classifier
	opts       Options
	log        *zap.Logger
}

// NewEngine returns an engine classifying blocks with c.
func NewEngine(c *Classifier, opts Options, log *zap.Logger) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicyStop
	}
	if opts.Layout == "" {
		opts.Layout = LayoutAuto
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{classifier: c, opts: opts, log: log}
}

// SegmentDocument reads the reviewers and reviews regions of doc and segments them.
func (e *Engine) SegmentDocument(doc Document, rule TableRule, in Input) (Result, error) {
	reviewerBlocks, err := doc.Blocks(RegionReviewers)
	if err != nil {
		return Result{}, fmt.Errorf("reading reviewers region: %w", err)
	}
	table, err := ParseReviewers(reviewerBlocks, rule)
	if err != nil {
		return Result{}, err
	}
	blocks, err := doc.Blocks(RegionReviews)
	if err != nil {
		return Result{}, fmt.Errorf("reading reviews region: %w", err)
	}
	in.Reviewers = table
	in.Blocks = blocks
	return e.Segment(in), nil
}

// Segment runs the state machine over in.Blocks.
func (e *Engine) Segment(in Input) Result {
	labels := make([]*Label, len(in.Blocks))
	threaded := false
	for i, b := range in.Blocks {
		if l, ok := e.classifier.Classify(b.Text); ok {
			labels[i] = &l
			if l.Kind == ReviewerHeading || l.Kind == AuthorResponseHeading || l.Kind == AuthorResponseFile {
				threaded = true
			}
		}
	}

	s := &segmenter{in: in, policy: e.opts.Policy, seen: make(map[string][2]int)}
	switch e.opts.Layout {
	case LayoutThreaded:
		s.runThreaded(labels)
	case LayoutAggregated:
		s.runAggregated(labels)
	default:
		if threaded {
			s.runThreaded(labels)
		} else {
			s.runAggregated(labels)
		}
	}

	log := e.log.With(zap.String("article", in.ShortID))
	for _, err := range s.res.Errors {
		log.Warn("review segment dropped", zap.Error(err))
	}
	if s.res.Truncated {
		log.Debug("resubmission boilerplate ended the review region")
	}
	return s.res
}

type segmenter struct {
	in     Input
	policy BoilerplatePolicy
	res    Result

	round        int
	open         *article.SubArticle
	lastReviewer int
	discarding   bool
	seen         map[string][2]int // id -> round and heading number that claimed it
	materials    int               // region-wide counter, aggregated layout
}

func (s *segmenter) flush() {
	if s.open == nil {
		return
	}
	s.res.SubArticles = append(s.res.SubArticles, *s.open)
	s.open = nil
}

func (s *segmenter) fail(err error) {
	s.res.Errors = append(s.res.Errors, err)
}

// boilerplate reports whether segmentation must stop.
func (s *segmenter) boilerplate() bool {
	if s.policy == PolicySkip {
		return false
	}
	s.flush()
	s.res.Truncated = true
	return true
}

// enterRound moves to round n, or starts discarding when n would decrease the round.
func (s *segmenter) enterRound(n int) bool {
	if n < s.round {
		s.fail(&RoundOrderError{Article: s.in.ShortID, Current: s.round, Got: n})
		s.discarding = true
		return false
	}
	if n != s.round {
		s.lastReviewer = 0
	}
	s.round = n
	s.discarding = false
	return true
}

func (s *segmenter) newSub(id, typ string) *article.SubArticle {
	return &article.SubArticle{
		ID:                     id,
		Type:                   typ,
		Round:                  s.round,
		URL:                    s.in.PageURL,
		OriginalArticleDOI:     s.in.ArticleDOI,
		OriginalArticleURL:     s.in.ArticleURL,
		SupplementaryMaterials: []article.SupplementaryMaterial{},
	}
}

// claim registers id for the heading numbered n in the current round. A second
// claim by the same heading is a duplicate; a claim by a different heading is an
// id clash, since ids concatenate round and reviewer numbers.
func (s *segmenter) claim(id string, n int) bool {
	key := [2]int{s.round, n}
	if prev, ok := s.seen[id]; ok {
		if prev == key {
			s.fail(&DuplicateSegmentError{ID: id})
		} else {
			s.fail(&IDClashError{ID: id, Round: s.round, Number: n, PrevRound: prev[0], PrevNumber: prev[1]})
		}
		return false
	}
	s.seen[id] = key
	return true
}

func (s *segmenter) openReview(n int) {
	s.flush()
	if s.discarding {
		return
	}
	if s.round == 0 {
		s.enterRound(1)
	}
	reviewer, ok := s.in.Reviewers.Lookup(n)
	if !ok {
		s.fail(&MissingReviewerError{Article: s.in.ShortID, Round: s.round, Reviewer: n})
		return
	}
	id := doi.ReviewID(s.in.ShortID, s.round, n)
	if !s.claim(id, n) {
		return
	}
	s.open = s.newSub(id, article.TypeReview)
	s.open.Reviewer = &reviewer
	s.lastReviewer = n
}

func (s *segmenter) openAuthor(n int) {
	s.flush()
	if s.discarding {
		return
	}
	if s.round == 0 {
		s.enterRound(1)
	}
	replyingTo := s.lastReviewer
	if n > 0 {
		replyingTo = n
	}
	id := doi.AuthorCommentID(s.in.ShortID, s.round, replyingTo)
	if !s.claim(id, replyingTo) {
		return
	}
	s.open = s.newSub(id, article.TypeAuthor)
	s.open.ReplyingTo = replyingTo
}

func (s *segmenter) runThreaded(labels []*Label) {
	nextID := func() string {
		return doi.MaterialID(s.open.ID, len(s.open.SupplementaryMaterials)+1)
	}
	for i, b := range s.in.Blocks {
		l := labels[i]
		if l == nil {
			s.appendBlock(b, nextID)
			continue
		}
		switch l.Kind {
		case Boilerplate:
			if s.boilerplate() {
				return
			}
			continue
		case RoundHeading:
			s.flush()
			s.enterRound(l.Number)
		case ReviewerHeading:
			s.openReview(l.Number)
		case AuthorResponseHeading:
			s.openAuthor(l.Number)
		case AuthorResponseFile:
			if s.open == nil || s.open.Type != article.TypeAuthor {
				s.openAuthor(l.Number)
			}
		}
		// Links on a heading belong to the segment it leaves open.
		s.appendLinks(b, nextID)
	}
	s.flush()
}

func (s *segmenter) runAggregated(labels []*Label) {
	table := s.in.Reviewers.List()
	open := func(round int) {
		id := doi.AggregatedID(s.in.ShortID, round)
		if !s.claim(id, 0) {
			return
		}
		s.open = s.newSub(id, article.TypeAggregated)
		s.open.Reviewers = table
	}
	nextID := func() string {
		s.materials++
		return doi.MaterialID(s.in.ShortID, s.materials)
	}

	for i, b := range s.in.Blocks {
		l := labels[i]
		if l != nil && l.Kind == Boilerplate {
			if s.boilerplate() {
				return
			}
			continue
		}
		if l != nil && l.Kind == RoundHeading {
			s.flush()
			if s.enterRound(l.Number) {
				open(s.round)
			}
			s.appendLinks(b, nextID)
			continue
		}
		if s.discarding {
			continue
		}
		if s.open == nil && s.round == 0 && (strings.TrimSpace(b.Text) != "" || len(b.Links) > 0) {
			// Content with no round heading belongs to round 1.
			s.enterRound(1)
			open(1)
		}
		s.appendBlock(b, nextID)
	}
	s.flush()
}

// appendBlock adds b's text and links to the open sub-article. Blocks seen while
// nothing is open are dropped.
func (s *segmenter) appendBlock(b Block, nextID func() string) {
	if s.open == nil {
		return
	}
	s.open.AppendBody(Normalize(b.Text))
	s.appendLinks(b, nextID)
}

// appendLinks adds b's links, and not its text, to the open sub-article.
func (s *segmenter) appendLinks(b Block, nextID func() string) {
	if s.open == nil {
		return
	}
	for _, l := range b.Links {
		s.open.SupplementaryMaterials = append(s.open.SupplementaryMaterials, NewMaterial(nextID(), l))
	}
}

// NewMaterial builds the supplementary material id for link l. The on-disk name is
// derived from id; the link text, or failing that the URL tail, is kept as the
// original filename.
func NewMaterial(id string, l Link) article.SupplementaryMaterial {
	original := Normalize(l.Text)
	tail := doi.URLTail(l.URL)
	if original == "" {
		original = tail
	}
	ext := doi.Extension(original)
	if ext == "" {
		ext = doi.Extension(tail)
	}
	return article.SupplementaryMaterial{
		ID:               id,
		Filename:         id + ext,
		OriginalFilename: original,
		Title:            strings.TrimSuffix(original, doi.Extension(original)),
		URL:              l.URL,
		Type:             MaterialType(l.URL),
	}
}

// MaterialType reads the content-type tag publishers put in the first query
// parameter of attachment links, e.g. "pdf" for "...?type=pdf&version=1".
func MaterialType(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return article.UnknownMaterialType
	}
	first := u.RawQuery
	if i := strings.IndexAny(first, "&;"); i >= 0 {
		first = first[:i]
	}
	_, value, ok := strings.Cut(first, "=")
	if !ok || value == "" {
		return article.UnknownMaterialType
	}
	if v, err := url.QueryUnescape(value); err == nil {
		value = v
	}
	return value
}
