package homepage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const servicesYAML = `---
- Infrastructure:
    - AdGuard Home:
        icon: adguard-home.svg
        href: https://adguard.domain.ext
        description: Network-wide ads & trackers blocking DNS server
    - Secret:
        href: {{HOMEPAGE_VAR_SECRET_URL}}
`

const bookmarksYAML = `---
- Developer:
    - Github:
        - abbr: GH
          href: https://github.com/
    - Empty:
        - abbr: EM
- Social:
    - Reddit:
        - icon: reddit.png
          href: https://reddit.com/
          description: The front page of the internet
`

func TestLoaderLoad(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		content   string
		kind      Kind
		wantLinks int
	}{
		{name: "services", file: "services.yaml", content: servicesYAML, kind: KindServices, wantLinks: 1},
		{name: "bookmarks", file: "bookmarks.yaml", content: bookmarksYAML, kind: KindBookmarks, wantLinks: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("Failed to create test YAML file: %v", err)
			}

			links, err := NewLoader(path, tt.kind).Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(links) != tt.wantLinks {
				t.Errorf("Load() returned %d links, want %d", len(links), tt.wantLinks)
			}
		})
	}
}

func TestLoaderLoadFileNotFound(t *testing.T) {
	loader := NewLoader("/nonexistent/path/services.yaml", KindServices)
	if _, err := loader.Load(); err == nil {
		t.Error("Load() with non-existent file should return error")
	}
}

func TestReadRejectsBadInput(t *testing.T) {
	if _, err := Read(strings.NewReader("- [unclosed"), KindBookmarks); err == nil {
		t.Error("Read() with invalid yaml should return error")
	}
	if _, err := Read(strings.NewReader(bookmarksYAML), Kind("widgets")); err == nil {
		t.Error("Read() with unknown kind should return error")
	}
}

func TestStripTemplateVariablesFunc(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "single template variable",
			input:    []byte("url: {{HOMEPAGE_VAR_URL}}"),
			expected: "url: \"\"",
		},
		{
			name:     "no template variables",
			input:    []byte("plain text"),
			expected: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := stripTemplateVariables(tt.input)
			if string(result) != tt.expected {
				t.Errorf("stripTemplateVariables() = %q, want %q", string(result), tt.expected)
			}
		})
	}
}
