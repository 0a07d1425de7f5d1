package transfer

import (
	"fmt"
	"io"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// ExportOptions selects what to export.
type ExportOptions struct {
	// Groups are group names to include, UngroupedName included; empty
	// exports every group that has bookmarks.
	Groups []string
	// BatchSize is the number of groups written between progress reports.
	BatchSize int
}

// ExportResult counts what was written.
type ExportResult struct {
	Groups    int `json:"groups"`
	Bookmarks int `json:"bookmarks"`
}

type bucket struct {
	name  string
	items []*domain.Bookmark
}

// Export writes bookmarks as a bookmark file, one folder per group in
// display order and UngroupedName last. Bookmarks whose group cannot be
// resolved land in UngroupedName.
func Export(w io.Writer, bookmarks []*domain.Bookmark, groups []*domain.Group, opts ExportOptions, progress ProgressFunc) (ExportResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	buckets := partition(bookmarks, groups)

	if len(opts.Groups) > 0 {
		want := make(map[string]bool, len(opts.Groups))
		for _, name := range opts.Groups {
			want[name] = true
		}
		kept := buckets[:0]
		for _, b := range buckets {
			if want[b.name] {
				kept = append(kept, b)
			}
		}
		buckets = kept
	}

	var res ExportResult
	total := len(buckets)
	progress.report(Progress{Phase: PhaseExport, Total: total})

	hw := newHTMLWriter(w)
	hw.header()
	for i, b := range buckets {
		hw.openFolder(b.name)
		for _, bm := range b.items {
			hw.link(bm.Title, bm.Href(), bm.CreatedAt)
			res.Bookmarks++
		}
		hw.closeFolder()
		res.Groups++

		if done := i + 1; done%opts.BatchSize == 0 && done < total {
			if hw.err != nil {
				return res, fmt.Errorf("write export: %w", hw.err)
			}
			progress.report(Progress{Phase: PhaseExport, Processed: done, Total: total})
		}
	}
	hw.footer()
	if err := hw.flush(); err != nil {
		return res, fmt.Errorf("write export: %w", err)
	}

	progress.report(Progress{Phase: PhaseExport, Processed: total, Total: total, Done: true})
	return res, nil
}

// partition buckets bookmarks by group in display order.
func partition(bookmarks []*domain.Bookmark, groups []*domain.Group) []bucket {
	sortedGroups := make([]*domain.Group, len(groups))
	copy(sortedGroups, groups)
	domain.SortGroups(sortedGroups)

	sorted := make([]*domain.Bookmark, len(bookmarks))
	copy(sorted, bookmarks)
	domain.SortBookmarks(sorted)

	byID := make(map[string]int, len(sortedGroups))
	out := make([]bucket, 0, len(sortedGroups)+1)
	for _, g := range sortedGroups {
		byID[g.ID] = len(out)
		out = append(out, bucket{name: g.Name})
	}
	ungrouped := bucket{name: UngroupedName}

	for _, b := range sorted {
		if b.GroupID != nil {
			if i, ok := byID[*b.GroupID]; ok {
				out[i].items = append(out[i].items, b)
				continue
			}
		}
		ungrouped.items = append(ungrouped.items, b)
	}

	kept := out[:0]
	for _, b := range out {
		if len(b.items) > 0 {
			kept = append(kept, b)
		}
	}
	if len(ungrouped.items) > 0 {
		kept = append(kept, ungrouped)
	}
	return kept
}
