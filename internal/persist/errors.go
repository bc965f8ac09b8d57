package persist

import (
	"errors"
	"fmt"
)

// ErrPersistence indicates a failed artifact write.
var ErrPersistence = errors.New("persistence error")

// PersistenceError reports an I/O failure for one artifact.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// IsPersistence returns true if err is a failed artifact write.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
