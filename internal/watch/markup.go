package watch

// Markup is the page-parsing capability, selected once at startup. The
// rich implementation walks a real HTML tree; the basic one gets by on
// fixed patterns. Both are interchangeable from the watcher's side.
type Markup interface {
	// Attachments returns protocol-relative asset URLs found in the
	// page, in discovery order, duplicates included.
	Attachments(page []byte) []string

	// Titles returns the display title of each file anchor in page
	// order: the title attribute when present, else the link text.
	Titles(page []byte) []string

	// Subject extracts the thread subject from the page, or "".
	Subject(page []byte) string

	// CleanName sanitizes a string for use as a file or directory name.
	// Never returns "".
	CleanName(name string) string
}
