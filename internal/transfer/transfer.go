// Package transfer moves bookmarks in and out of the collection: bookmark
// files exported by browsers, Homepage YAML documents, and exports back to
// the bookmark file format.
package transfer

import (
	"strings"

	"github.com/MrSnakeDoc/shelf/internal/sources/homepage"
)

// UngroupedName is the bucket of bookmarks without a resolvable group.
const UngroupedName = "Ungrouped"

// Entry is one bookmark read from a source document. Group is the name of
// the folder it was found in, empty at the top level.
type Entry struct {
	Group string `json:"group"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Phase names reported through Progress.
const (
	PhaseImport = "import"
	PhaseExport = "export"
)

// Progress reports how far a long-running transfer got.
type Progress struct {
	Phase     string `json:"phase"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
}

// ProgressFunc receives progress updates; it may be nil.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(p Progress) {
	if f != nil {
		f(p)
	}
}

// FromHomepage converts Homepage links; categories become groups.
func FromHomepage(links []homepage.Link) []Entry {
	out := make([]Entry, 0, len(links))
	for _, l := range links {
		out = append(out, Entry{
			Group: strings.TrimSpace(l.Category),
			Title: strings.TrimSpace(l.Name),
			URL:   strings.TrimSpace(l.Href),
		})
	}
	return out
}
