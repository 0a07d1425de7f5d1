package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

const page = `<!doctype html>
<html><head>
<title> Plain title </title>
<meta name="description" content="A page about things">
<meta property="og:title" content="OG title">
<meta property="og:image" content="/img/card.png">
<link rel="shortcut icon" href="/static/fav.png">
</head><body><p>hello</p></body></html>`

func TestParse(t *testing.T) {
	base, _ := url.Parse("https://example.com/post/1")

	m, err := Parse(strings.NewReader(page), base)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		field string
		got   string
		want  string
	}{
		{field: "Title", got: m.Title, want: "OG title"},
		{field: "Description", got: m.Description, want: "A page about things"},
		{field: "FaviconURL", got: m.FaviconURL, want: "https://example.com/static/fav.png"},
		{field: "OGImageURL", got: m.OGImageURL, want: "https://example.com/img/card.png"},
		{field: "PreviewImageURL", got: m.PreviewImageURL, want: "https://example.com/img/card.png"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, tt.got, tt.want)
		}
	}
}

func TestParseFallbacks(t *testing.T) {
	base, _ := url.Parse("http://x.io/a")
	m, err := Parse(strings.NewReader("<html><head><title>T</title></head></html>"), base)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Title != "T" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.FaviconURL != "http://x.io/favicon.ico" {
		t.Errorf("FaviconURL = %q", m.FaviconURL)
	}
}

func TestHTTPExtractor(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(2*time.Second, "shelf-test")

	m, err := ex.Extract(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Extract(/ok) error = %v", err)
	}
	if m.Title != "OG title" || gotUA != "shelf-test" {
		t.Errorf("Extract(/ok) = %+v, ua %q", m, gotUA)
	}

	m, err = ex.Extract(context.Background(), srv.URL+"/pdf")
	if err != nil || m.Title != "" || m.FaviconURL == "" {
		t.Errorf("Extract(/pdf) = %+v, %v", m, err)
	}

	if _, err := ex.Extract(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("Extract(/missing) should fail on 404")
	}
}

func TestPatchMarksReady(t *testing.T) {
	p := Metadata{Title: "T"}.Patch()
	b := &domain.Bookmark{Status: domain.StatusPending, NormalizedURL: "https://a.io"}
	p.Apply(b)
	if b.Status != domain.StatusReady || b.Title != "T" || b.Description != "" {
		t.Errorf("Apply() = %+v", b)
	}
}
