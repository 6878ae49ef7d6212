// Package fetch implements the HTTP side of thread watching: page and
// file downloads with browser-shaped headers, the structured thread
// API, and subject lookup.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	neturl "net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"threadwatch/internal/watch"
)

const (
	requestTimeout = 60 * time.Second

	// defaultUserAgent mimics a desktop Safari; some hosts reject
	// obvious non-browser clients.
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15"

	// apiUserAgent is what the structured API accepts without fuss.
	apiUserAgent = "Mozilla/5.0"

	// defaultPageHost serves thread pages for the subject fallback
	// scrape.
	defaultPageHost = "boards.4chan.org"

	subjectMaxLen = 50
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Client fetches thread pages, files, and API metadata. Requests are
// paced per host so a large watch list cannot hammer a single server.
type Client struct {
	httpClient *http.Client
	apiHost    string
	pageHost   string
	scheme     string
	userAgent  string
	markup     watch.Markup
	logger     watch.Logger
	limiters   *limiterPool
}

var _ watch.Fetcher = (*Client)(nil)

// NewClient creates a fetcher. apiHost serves the structured thread
// API; an empty value disables it and forces page scraping. rps of
// zero or less disables pacing.
func NewClient(apiHost, userAgent string, rps float64, markup watch.Markup, logger watch.Logger) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		apiHost:   apiHost,
		pageHost:  defaultPageHost,
		scheme:    "https",
		userAgent: userAgent,
		markup:    markup,
		logger:    logger,
		limiters:  &limiterPool{limit: limit},
	}
}

// Fetch performs a GET against url and returns the body. Failures come
// back as a RequestError classifying 404 and 429; protocol-relative
// URLs are promoted to https first.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	url := normalizeURL(rawURL)

	parsed, err := neturl.Parse(url)
	if err != nil {
		return nil, &watch.RequestError{URL: rawURL, Err: err}
	}
	if parsed.Host == "" {
		return nil, &watch.RequestError{URL: rawURL, Err: errors.New("url has no host")}
	}

	if err := c.limiters.wait(ctx, parsed.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &watch.RequestError{URL: rawURL, Err: err}
	}
	c.setBrowserHeaders(req, parsed)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &watch.RequestError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &watch.RequestError{URL: rawURL, Status: resp.StatusCode, Err: watch.ErrNotFound}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &watch.RequestError{URL: rawURL, Status: resp.StatusCode, Err: watch.ErrRateLimited}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := http.StatusText(resp.StatusCode)
		if msg == "" {
			msg = "unexpected status"
		}
		return nil, &watch.RequestError{URL: rawURL, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &watch.RequestError{URL: rawURL, Err: err}
	}
	return data, nil
}

// Thread fetches the structured post list for board/id. It reports
// false on any failure so callers fall back to page scraping.
func (c *Client) Thread(ctx context.Context, board, id string) (*watch.Thread, bool) {
	if c.apiHost == "" {
		return nil, false
	}
	url := c.scheme + "://" + c.apiHost + "/" + board + "/thread/" + id + ".json"

	if err := c.limiters.wait(ctx, c.apiHost); err != nil {
		return nil, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", apiUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("thread api unavailable", "url", url, "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("thread api refused", "url", url, "status", resp.StatusCode)
		return nil, false
	}

	var t watch.Thread
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		c.logger.Debug("could not decode thread api response", "url", url, "error", err)
		return nil, false
	}
	return &t, true
}

// Subject resolves a display subject for board/id: the opening post's
// subject field, then its comment stripped of markup, then the page
// itself. The result is cleaned for filesystem use.
func (c *Client) Subject(ctx context.Context, board, id string) (string, bool) {
	if t, ok := c.Thread(ctx, board, id); ok {
		if subject, ok := c.subjectFromPost(t); ok {
			return subject, true
		}
	}

	page, err := c.Fetch(ctx, c.scheme+"://"+c.pageHost+"/"+board+"/thread/"+id)
	if err != nil {
		c.logger.Debug("could not fetch thread page for subject", "board", board, "id", id, "error", err)
		return "", false
	}
	if raw := c.markup.Subject(page); raw != "" {
		return c.markup.CleanName(truncateSubject(html.UnescapeString(raw))), true
	}
	return "", false
}

func (c *Client) subjectFromPost(t *watch.Thread) (string, bool) {
	if subject := t.Subject(); subject != "" {
		return c.markup.CleanName(truncateSubject(html.UnescapeString(subject))), true
	}
	if comment := t.Comment(); comment != "" {
		text := html.UnescapeString(tagPattern.ReplaceAllString(comment, ""))
		if text = truncateSubject(text); text != "" {
			return c.markup.CleanName(text), true
		}
	}
	return "", false
}

// setBrowserHeaders applies the desktop browser profile. The referer
// points at the board root, which some hosts require before serving
// media.
func (c *Client) setBrowserHeaders(req *http.Request, u *neturl.URL) {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	referer := u.Scheme + "://" + u.Host + "/" + segments[0]

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Referer", referer)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Priority", "u=0, i")
	req.Header.Set("TE", "trailers")
	req.Header.Set("Connection", "keep-alive")
}

func normalizeURL(url string) string {
	if strings.HasPrefix(url, "//") {
		return "https:" + url
	}
	return url
}

func truncateSubject(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > subjectMaxLen {
		s = strings.TrimSpace(string(runes[:subjectMaxLen])) + "..."
	}
	return s
}
