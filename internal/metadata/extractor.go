// Package metadata fetches a page and reads the fields shown on a bookmark
// card (title, description, favicon, preview images).
package metadata

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/utils"
)

// maxBody bounds how much of a page is parsed.
const maxBody = 2 << 20

// Metadata is what enrichment adds to a pending bookmark.
type Metadata struct {
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	FaviconURL      string `json:"faviconUrl,omitempty"`
	OGImageURL      string `json:"ogImageUrl,omitempty"`
	PreviewImageURL string `json:"previewImageUrl,omitempty"`
}

// Patch converts m into a bookmark patch that also marks the bookmark ready.
// Empty fields are left untouched.
func (m Metadata) Patch() domain.BookmarkPatch {
	ready := domain.StatusReady
	p := domain.BookmarkPatch{Status: &ready}
	if m.Title != "" {
		p.Title = domain.String(m.Title)
	}
	if m.Description != "" {
		p.Description = domain.String(m.Description)
	}
	if m.FaviconURL != "" {
		p.FaviconURL = domain.String(m.FaviconURL)
	}
	if m.OGImageURL != "" {
		p.OGImageURL = domain.String(m.OGImageURL)
	}
	if m.PreviewImageURL != "" {
		p.PreviewImageURL = domain.String(m.PreviewImageURL)
	}
	return p
}

// Extractor is the metadata-extraction collaborator.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (Metadata, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, rawURL string) (Metadata, error)

func (f ExtractorFunc) Extract(ctx context.Context, rawURL string) (Metadata, error) {
	return f(ctx, rawURL)
}

// HTTPExtractor fetches pages over HTTP.
type HTTPExtractor struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
}

// NewHTTPExtractor builds an extractor with its own client.
func NewHTTPExtractor(timeout time.Duration, userAgent string) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExtractor{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		Timeout:   timeout,
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, rawURL string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("build request: %w", err)
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := e.Client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Metadata{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	base := resp.Request.URL
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "" && !strings.Contains(mt, "html") {
		// Not a page: nothing to read, but the site favicon still applies.
		return Metadata{FaviconURL: defaultFavicon(base)}, nil
	}

	return Parse(io.LimitReader(resp.Body, maxBody), base)
}

// Parse reads metadata from an HTML document. Relative URLs are resolved
// against base.
func Parse(r io.Reader, base *url.URL) (Metadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse html: %w", err)
	}

	var (
		m       Metadata
		title   string
		ogTitle string
		ogDesc  string
		twImage string
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if title == "" {
					title = strings.TrimSpace(textOf(n))
				}
			case atom.Meta:
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				content := strings.TrimSpace(attr(n, "content"))
				switch key {
				case "description":
					if m.Description == "" {
						m.Description = content
					}
				case "og:title":
					ogTitle = content
				case "og:description":
					ogDesc = content
				case "og:image", "og:image:url":
					if m.OGImageURL == "" {
						m.OGImageURL = resolve(base, content)
					}
				case "twitter:image", "twitter:image:src":
					if twImage == "" {
						twImage = resolve(base, content)
					}
				}
			case atom.Link:
				if m.FaviconURL == "" && isIconRel(attr(n, "rel")) {
					m.FaviconURL = resolve(base, attr(n, "href"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	m.Title = title
	if ogTitle != "" {
		m.Title = ogTitle
	}
	if m.Description == "" {
		m.Description = ogDesc
	}
	m.PreviewImageURL = twImage
	if m.PreviewImageURL == "" {
		m.PreviewImageURL = m.OGImageURL
	}
	if m.FaviconURL == "" {
		m.FaviconURL = defaultFavicon(base)
	}
	return m, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func isIconRel(rel string) bool {
	for _, f := range strings.Fields(strings.ToLower(rel)) {
		if f == "icon" {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

func defaultFavicon(base *url.URL) string {
	if base == nil || base.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/favicon.ico"}).String()
}
