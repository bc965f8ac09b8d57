package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by fetchers.
var (
	// ErrFetch indicates a page or attachment could not be retrieved.
	ErrFetch = errors.New("fetch error")

	// ErrEmailProtected marks a link rewritten by an e-mail obfuscation service.
	// Such links never point at the attachment itself.
	ErrEmailProtected = errors.New("email-protection link")
)

// FetchError reports a failed retrieval. StatusCode is 0 when no response arrived.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetching %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetching %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Forbidden reports whether the server refused the request.
func (e *FetchError) Forbidden() bool { return e.StatusCode == http.StatusForbidden }

// IsForbidden returns true if err is a 403 response.
func IsForbidden(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Forbidden()
}

// IsNotFound returns true if err is a 404 response.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}
