package publisher

import (
	"errors"
	"fmt"
)

// ErrInvalidSource indicates a document that does not have the expected shape.
var ErrInvalidSource = errors.New("invalid source document")

// InvalidSourceError reports why a source document could not be parsed. An article
// whose DOI cannot be derived is always invalid.
type InvalidSourceError struct {
	Source string // URL or file name
	Reason string
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source %s: %s", e.Source, e.Reason)
}

func (e *InvalidSourceError) Is(target error) bool { return target == ErrInvalidSource }

// IsInvalidSource returns true if err marks a malformed source document.
func IsInvalidSource(err error) bool {
	return errors.Is(err, ErrInvalidSource)
}

func invalid(source, format string, args ...any) error {
	return &InvalidSourceError{Source: source, Reason: fmt.Sprintf(format, args...)}
}
