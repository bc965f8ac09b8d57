package review

import (
	"errors"
	"fmt"
)

// Sentinel errors for segment-level failures. The typed errors below match them
// with errors.Is.
var (
	// ErrMissingReviewer indicates a reviewer heading with no reviewers-table entry.
	ErrMissingReviewer = errors.New("reviewer missing from reviewers table")

	// ErrRoundOrder indicates a round heading lower than the current round.
	ErrRoundOrder = errors.New("round heading out of order")

	// ErrDuplicateSegment indicates a second segment with an already emitted id.
	ErrDuplicateSegment = errors.New("duplicate review segment")

	// ErrIDClash indicates two different headings that map to the same id, e.g.
	// round 1 reviewer 11 and round 11 reviewer 1.
	ErrIDClash = errors.New("sub-article id clash")
)

// MissingReviewerError reports a reviewer heading whose number is absent from the
// reviewers table. The segment it opens is dropped.
type MissingReviewerError struct {
	Article  string
	Round    int
	Reviewer int
}

func (e *MissingReviewerError) Error() string {
	return fmt.Sprintf("%s: round %d: reviewer %d not in reviewers table", e.Article, e.Round, e.Reviewer)
}

func (e *MissingReviewerError) Is(target error) bool { return target == ErrMissingReviewer }

// RoundOrderError reports a round heading that would make rounds decrease.
type RoundOrderError struct {
	Article string
	Current int
	Got     int
}

func (e *RoundOrderError) Error() string {
	return fmt.Sprintf("%s: round %d follows round %d", e.Article, e.Got, e.Current)
}

func (e *RoundOrderError) Is(target error) bool { return target == ErrRoundOrder }

// DuplicateSegmentError reports a heading that would reuse an emitted sub-article id.
type DuplicateSegmentError struct {
	ID string
}

func (e *DuplicateSegmentError) Error() string {
	return fmt.Sprintf("duplicate segment %s", e.ID)
}

func (e *DuplicateSegmentError) Is(target error) bool { return target == ErrDuplicateSegment }

// IDClashError reports a heading whose id was already claimed by a different
// round and heading number. The later segment is dropped.
type IDClashError struct {
	ID         string
	Round      int
	Number     int
	PrevRound  int
	PrevNumber int
}

func (e *IDClashError) Error() string {
	return fmt.Sprintf("id %s of round %d heading %d clashes with round %d heading %d",
		e.ID, e.Round, e.Number, e.PrevRound, e.PrevNumber)
}

func (e *IDClashError) Is(target error) bool { return target == ErrIDClash }
