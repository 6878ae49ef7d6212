package watch

import (
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strconv"
)

// Thread is the structured metadata for one thread, as returned by the
// metadata endpoint.
type Thread struct {
	Posts []Post `json:"posts"`
}

// Post is one post in a thread. File fields (Tim, Ext, MD5) are only set
// for posts that carry an attachment.
type Post struct {
	No       int64  `json:"no"`
	Tim      int64  `json:"tim"`
	Ext      string `json:"ext"`
	Filename string `json:"filename"`
	MD5      string `json:"md5"`
	Sub      string `json:"sub"`
	Com      string `json:"com"`
}

// HasFile reports whether the post carries a downloadable attachment.
func (p *Post) HasFile() bool {
	return p.Tim != 0 && p.Ext != "" && p.MD5 != ""
}

// ContentHash decodes the post's base64 md5 field to lowercase hex.
// Returns "" when the post has no file or the digest does not decode.
func (p *Post) ContentHash() string {
	if p.MD5 == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(p.MD5)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(raw)
}

// Subject returns the thread subject from the opening post, or "" when
// the thread has none.
func (t *Thread) Subject() string {
	if len(t.Posts) == 0 {
		return ""
	}
	return t.Posts[0].Sub
}

// Comment returns the opening post's raw comment markup, or "".
func (t *Thread) Comment() string {
	if len(t.Posts) == 0 {
		return ""
	}
	return t.Posts[0].Com
}

// EntriesFromThread builds the file entries for one poll iteration from
// structured metadata, sorted by display name so processing order is
// reproducible across runs.
func EntriesFromThread(t *Thread, board, fileHost string) []FileEntry {
	var entries []FileEntry
	for i := range t.Posts {
		p := &t.Posts[i]
		if !p.HasFile() {
			continue
		}
		tim := strconv.FormatInt(p.Tim, 10)
		entries = append(entries, FileEntry{
			SourceURL:    "https://" + fileHost + "/" + board + "/" + tim + p.Ext,
			DisplayName:  tim + p.Ext,
			ContentHash:  p.ContentHash(),
			OriginalName: p.Filename,
			ServerID:     tim,
			Extension:    p.Ext,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DisplayName < entries[j].DisplayName
	})
	return entries
}

// EntriesFromPage builds file entries from raw page markup when the
// metadata endpoint is unavailable. Attachment URLs are deduplicated,
// sorted by display name, and then paired positionally with the
// scraped titles. Server filenames are timestamps, so sorted order
// tracks document order and the pairing holds up in practice.
func EntriesFromPage(page []byte, m Markup, withTitles bool) []FileEntry {
	urls := m.Attachments(page)

	seen := make(map[string]struct{}, len(urls))
	var entries []FileEntry
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		entries = append(entries, FileEntry{
			SourceURL:   u,
			DisplayName: baseName(u),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DisplayName < entries[j].DisplayName
	})

	if withTitles {
		titles := m.Titles(page)
		for i := range entries {
			if i < len(titles) {
				entries[i].Title = titles[i]
			}
		}
	}
	return entries
}

func baseName(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[i+1:]
		}
	}
	return url
}
