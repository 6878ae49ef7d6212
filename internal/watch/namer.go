package watch

import (
	"path"
	"regexp"
)

// serverPrefix matches the numeric server-assigned id (plus separator)
// that prefixes uploaded filenames.
var serverPrefix = regexp.MustCompile(`^[0-9]+(?:[._-]+)?`)

// destName picks the destination filename for an entry.
//
// Title mode prefers the metadata-supplied original name, then the
// scraped title, and falls through to the default chain when neither is
// available. The default chain uses the server filename, optionally
// stripped of its numeric prefix, and a final fallback guarantees a
// non-empty name. Only title-derived names pass through the sanitizer;
// server names are already filesystem-safe.
func destName(e FileEntry, opts Options, m Markup) string {
	if opts.Titles {
		var name string
		switch {
		case e.OriginalName != "":
			name = e.OriginalName + entryExt(e)
		case e.Title != "":
			name = e.Title
		}
		if name != "" {
			return m.CleanName(name)
		}
	}

	chosen := e.DisplayName
	if opts.OriginNames {
		if e.OriginalName != "" {
			chosen = e.OriginalName + entryExt(e)
		} else if stripped := serverPrefix.ReplaceAllString(e.DisplayName, ""); stripped != "" {
			chosen = stripped
		}
	}

	if chosen == "" {
		switch {
		case e.SourceURL != "" && baseName(e.SourceURL) != "":
			chosen = baseName(e.SourceURL)
		case e.ServerID != "":
			chosen = e.ServerID + e.Extension
		default:
			chosen = "file"
		}
	}
	return chosen
}

func entryExt(e FileEntry) string {
	if e.Extension != "" {
		return e.Extension
	}
	return path.Ext(e.DisplayName)
}
