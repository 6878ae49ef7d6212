package watch

import "time"

// Options is the immutable per-run configuration shared by every
// watcher in a fleet. It is built once from the config file and flags
// and passed into constructors; nothing in this package reads ambient
// state.
type Options struct {
	// DownloadRoot is the base of the primary storage tree
	// (<root>/<board>/<thread dir>/<file>).
	DownloadRoot string

	// FileHost serves attachment bytes for entries built from thread
	// metadata.
	FileHost string

	// Refresh is the sleep between poll iterations.
	Refresh time.Duration

	// Throttle is the initial sleep between successive downloads within
	// one thread. Rate limiting grows it by Backoff, cumulatively.
	Throttle time.Duration

	// Backoff is the throttle increment applied per rate-limit response.
	Backoff time.Duration

	// Counter annotates new-file announcements with an ordinal counter.
	Counter bool

	// Titles preserves poster-supplied filenames instead of server names.
	Titles bool

	// OriginNames strips the server's numeric prefix from filenames when
	// no original name is available.
	OriginNames bool

	// PreferNames uses the URL slug for the thread directory even when
	// no directory under that name exists yet.
	PreferNames bool

	// SubjectNames names the thread directory "<id> (<subject>)" when a
	// subject can be fetched.
	SubjectNames bool
}

// DefaultOptions mirror the tool's historical defaults.
func DefaultOptions() Options {
	return Options{
		FileHost: "i.4cdn.org",
		Refresh:  20 * time.Second,
		Throttle: 500 * time.Millisecond,
		Backoff:  500 * time.Millisecond,
	}
}
