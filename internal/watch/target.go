package watch

import (
	"fmt"
	"strings"
)

// Target identifies one watched thread, derived once from its URL.
// Board and ID come from fixed path positions; Slug is the optional
// human-readable trailer some boards append. Immutable after parse.
type Target struct {
	URL   string
	Board string
	ID    string
	Slug  string
}

// ParseTarget splits a thread URL of the form
// scheme://host/board/thread/id[/slug][#fragment] into its parts.
func ParseTarget(rawURL string) (*Target, error) {
	rawURL = strings.TrimSpace(rawURL)
	parts := strings.Split(rawURL, "/")
	if len(parts) < 6 {
		return nil, fmt.Errorf("thread URL has too few path segments: %s", rawURL)
	}

	board := parts[3]
	id := strings.SplitN(parts[5], "#", 2)[0]
	if board == "" || id == "" {
		return nil, fmt.Errorf("thread URL missing board or id: %s", rawURL)
	}

	t := &Target{URL: rawURL, Board: board, ID: id}
	if len(parts) > 6 {
		t.Slug = strings.SplitN(parts[6], "#", 2)[0]
	}
	return t, nil
}

func (t *Target) String() string {
	return t.Board + "/" + t.ID
}
