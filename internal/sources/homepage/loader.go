package homepage

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Kind selects which Homepage file a document is.
type Kind string

const (
	KindBookmarks Kind = "bookmarks"
	KindServices  Kind = "services"
)

// Loader reads a Homepage bookmarks.yaml or services.yaml
type Loader struct {
	filePath string
	kind     Kind
}

// NewLoader creates a loader for the file at filePath
func NewLoader(filePath string, kind Kind) *Loader {
	return &Loader{
		filePath: filePath,
		kind:     kind,
	}
}

// Load reads the file and returns its links in document order
func (l *Loader) Load() ([]Link, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", l.kind, err)
	}
	return Parse(data, l.kind)
}

// Read is Load for an uploaded document
func Read(r io.Reader, kind Kind) ([]Link, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s document: %w", kind, err)
	}
	return Parse(data, kind)
}

// Parse decodes a Homepage document of the given kind
func Parse(data []byte, kind Kind) ([]Link, error) {
	// Strip Homepage template variables ({{HOMEPAGE_VAR_...}})
	data = stripTemplateVariables(data)

	switch kind {
	case KindBookmarks:
		var config BookmarksConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse bookmarks yaml: %w", err)
		}
		return BookmarkLinks(config), nil
	case KindServices:
		var config ServicesConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse services yaml: %w", err)
		}
		return ServiceLinks(config), nil
	default:
		return nil, fmt.Errorf("unknown homepage document kind %q", kind)
	}
}

// stripTemplateVariables removes Homepage template variables from YAML
// Example: {{HOMEPAGE_VAR_ADGUARD_USER}} -> ""
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
