// Package markup extracts attachments, post titles, and subjects from
// thread pages. Two parsers implement the same capability surface: a
// regex scanner that needs nothing beyond the standard library's
// regexp, and a full HTML tree parser.
package markup

import (
	"regexp"
	"strings"

	"threadwatch/internal/watch"
)

// filePattern matches media links on a thread page. Group 1 is the
// protocol-relative URL, group 2 the server-assigned filename. The
// digit requirement in front of the extension keeps thumbnails (which
// carry an "s" suffix) out.
var filePattern = regexp.MustCompile(`(//i(?:s|)\d*\.(?:4cdn|4chan)\.org/\w+/(\d+\.(?:jpg|png|gif|webm|pdf|mp4)))`)

var (
	subjectPattern   = regexp.MustCompile(`<span class="subject">([^<]+)</span>`)
	unsafeNameChars  = regexp.MustCompile(`[^-\p{L}\p{N}_.\s]`)
	validFilenameRun = regexp.MustCompile(`[^-\p{L}\p{N}_.]`)
)

// BasicMarkup scans pages with regular expressions. It cannot extract
// post titles; callers fall back to server filenames.
type BasicMarkup struct{}

var _ watch.Markup = (*BasicMarkup)(nil)

// NewBasicMarkup creates the regex-based parser.
func NewBasicMarkup() *BasicMarkup {
	return &BasicMarkup{}
}

// Attachments returns every media URL on the page in discovery order,
// duplicates included.
func (m *BasicMarkup) Attachments(page []byte) []string {
	var urls []string
	for _, match := range filePattern.FindAllSubmatch(page, -1) {
		urls = append(urls, string(match[1]))
	}
	return urls
}

// Titles always returns nil; title extraction needs the tree parser.
func (m *BasicMarkup) Titles(page []byte) []string {
	return nil
}

// Subject returns the first subject span's raw text, or "".
func (m *BasicMarkup) Subject(page []byte) string {
	match := subjectPattern.FindSubmatch(page)
	if match == nil {
		return ""
	}
	return string(match[1])
}

// CleanName strips everything but letters, digits, underscore, dash,
// and dot, turning spaces into underscores first. A name reduced to
// nothing becomes "file".
func (m *BasicMarkup) CleanName(name string) string {
	s := strings.TrimSpace(name)
	s = unsafeNameChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "file"
	}
	return s
}
