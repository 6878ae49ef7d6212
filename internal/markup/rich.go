package markup

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"threadwatch/internal/watch"
)

// RichMarkup parses pages into an HTML tree. Unlike the regex scanner
// it can read post titles out of the file-info blocks, and its name
// cleaning is stricter (spaces never survive).
type RichMarkup struct{}

var _ watch.Markup = (*RichMarkup)(nil)

// NewRichMarkup creates the tree-based parser.
func NewRichMarkup() *RichMarkup {
	return &RichMarkup{}
}

// Attachments returns every media link href on the page in document
// order, duplicates included.
func (m *RichMarkup) Attachments(page []byte) []string {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	var urls []string
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := attrValue(n, "href")
		if match := filePattern.FindStringSubmatch(href); match != nil {
			urls = append(urls, match[1])
		}
	})
	return urls
}

// Titles returns the post-supplied filename for each file-info block
// in document order: the title attribute of the block's first direct
// link, or its link text. Blocks without a direct link contribute
// nothing.
func (m *RichMarkup) Titles(page []byte) []string {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	var titles []string
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" || !hasClass(n, "fileText") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.Data != "a" {
				continue
			}
			if title := attrValue(c, "title"); title != "" {
				titles = append(titles, title)
			} else {
				titles = append(titles, nodeText(c))
			}
			break
		}
	})
	return titles
}

// Subject returns the text of the first subject span, or "".
func (m *RichMarkup) Subject(page []byte) string {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}

	subject := ""
	walk(root, func(n *html.Node) {
		if subject != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "span" && hasClass(n, "subject") {
			subject = nodeText(n)
		}
	})
	return subject
}

// CleanName turns spaces into underscores and drops everything that is
// not a letter, digit, underscore, dash, or dot. A name reduced to
// nothing (or to bare dots) becomes "file".
func (m *RichMarkup) CleanName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, " ", "_")
	s = validFilenameRun.ReplaceAllString(s, "")
	if s == "" || s == "." || s == ".." {
		return "file"
	}
	return s
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}
