package watch

import (
	"errors"
	"fmt"
)

// Sentinel classifications for fetch failures. A RequestError wraps one
// of these (or the underlying transport error) so callers can branch
// with errors.Is without inspecting status codes.
var (
	// ErrNotFound marks an authoritative 404: the resource is gone.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited marks a 429: back off and retry, never fatal.
	ErrRateLimited = errors.New("rate limited")
)

// RequestError describes a failed fetch. Status is the HTTP status code
// when the request got far enough to receive one, and 0 when the failure
// happened below HTTP (DNS, connect, read). Err carries the sentinel
// classification or the transport error.
type RequestError struct {
	URL    string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// HTTP reports whether the failure carries an HTTP status, as opposed to
// a transport-level error. The probe protocol treats the two differently.
func (e *RequestError) HTTP() bool { return e.Status != 0 }

// IsNotFound reports whether err is classified as a 404.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRateLimited reports whether err is classified as a 429.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsHTTPFailure reports whether err is a fetch failure that carries an
// HTTP status code.
func IsHTTPFailure(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.HTTP()
}
