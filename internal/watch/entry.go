package watch

// FileEntry is one attachment discovered during a poll. Optional fields
// are empty when the source did not supply them: scraped entries carry
// only SourceURL and DisplayName, API entries carry everything.
type FileEntry struct {
	// SourceURL is where the bytes live. May be protocol-relative ("//...").
	SourceURL string

	// DisplayName is the server-side filename, used for ordering and as
	// the default destination name.
	DisplayName string

	// ContentHash is the hex content hash announced by the metadata
	// endpoint, when present. Lets the watcher skip the byte fetch for
	// known duplicates.
	ContentHash string

	// OriginalName is the poster's filename without extension, when the
	// metadata endpoint supplied it.
	OriginalName string

	// ServerID is the server-assigned numeric timestamp id as a string.
	ServerID string

	// Extension includes the leading dot (".jpg").
	Extension string

	// Title is the display title scraped from page markup, when title
	// preservation is on and the markup had one for this attachment.
	Title string
}
