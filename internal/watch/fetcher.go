package watch

import "context"

// Fetcher is the HTTP access layer. Implementations are stateless apart
// from connection pooling and rate limiting, and classify failures into
// the taxonomy in errors.go.
type Fetcher interface {
	// Fetch GETs a URL and returns the raw body. Protocol-relative URLs
	// are normalized before the request. Failures come back as a
	// *RequestError wrapping ErrNotFound, ErrRateLimited, or the
	// underlying transport error.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// Thread fetches and decodes the structured metadata for a thread.
	// The second return is false on any failure: metadata absence is not
	// an error, it just means the caller scrapes the page instead.
	Thread(ctx context.Context, board, id string) (*Thread, bool)

	// Subject returns a name-safe subject (or comment snippet) for the
	// thread, for directory naming. False when neither the metadata
	// endpoint nor the page markup yields one.
	Subject(ctx context.Context, board, id string) (string, bool)
}
