// Package dedup finds bookmarks that point at the same resource.
package dedup

import (
	"sort"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// Key returns the comparison key of b: its normalized URL when present,
// otherwise a fresh normalization of the raw URL. Empty keys never match.
func Key(b *domain.Bookmark) string {
	if b == nil {
		return ""
	}
	if b.NormalizedURL != "" {
		return b.NormalizedURL
	}
	return domain.NormalizeURL(b.URL)
}

// Set is a group of at least two bookmarks sharing one key.
type Set struct {
	Key  string             `json:"key"`
	Keep *domain.Bookmark   `json:"keep"`
	Rest []*domain.Bookmark `json:"duplicates"`
}

// Size is the number of bookmarks in the set, keep included.
func (s Set) Size() int {
	return len(s.Rest) + 1
}

// keeps reports whether a should be kept over b: earliest createdAt, then lowest id.
func keeps(a, b *domain.Bookmark) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Find groups bookmarks by key and returns every set with two or more
// members, ordered by key.
func Find(bookmarks []*domain.Bookmark) []Set {
	byKey := make(map[string][]*domain.Bookmark)
	for _, b := range bookmarks {
		k := Key(b)
		if k == "" {
			continue
		}
		byKey[k] = append(byKey[k], b)
	}

	sets := make([]Set, 0)
	for k, members := range byKey {
		if len(members) < 2 {
			continue
		}
		sorted := make([]*domain.Bookmark, len(members))
		copy(sorted, members)
		sort.SliceStable(sorted, func(i, j int) bool { return keeps(sorted[i], sorted[j]) })
		sets = append(sets, Set{Key: k, Keep: sorted[0], Rest: sorted[1:]})
	}

	sort.Slice(sets, func(i, j int) bool { return sets[i].Key < sets[j].Key })
	return sets
}

// DefaultSelection returns the ids of every non-keep member, the proposed
// bulk cleanup.
func DefaultSelection(sets []Set) []string {
	ids := make([]string, 0)
	for _, s := range sets {
		for _, b := range s.Rest {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// Conflict describes the existing bookmark a prospective insert collides with.
type Conflict struct {
	ExistingID    string `json:"existingId"`
	ExistingTitle string `json:"existingTitle"`
	ExistingURL   string `json:"existingUrl"`
}

// Err turns the conflict into the domain error the caller must resolve.
func (c *Conflict) Err() error {
	if c == nil {
		return nil
	}
	return &domain.DuplicateURLError{
		ExistingID:    c.ExistingID,
		ExistingTitle: c.ExistingTitle,
		ExistingURL:   c.ExistingURL,
	}
}

// Check reports whether rawURL already exists in existing. The oldest
// match is reported when several exist.
func Check(existing []*domain.Bookmark, rawURL string) *Conflict {
	key := domain.NormalizeURL(rawURL)
	if key == "" {
		return nil
	}
	var match *domain.Bookmark
	for _, b := range existing {
		if Key(b) != key {
			continue
		}
		if match == nil || keeps(b, match) {
			match = b
		}
	}
	if match == nil {
		return nil
	}
	return &Conflict{ExistingID: match.ID, ExistingTitle: match.Title, ExistingURL: match.URL}
}

// Batch checks a stream of prospective inserts against live state plus the
// entries already accepted earlier in the same stream, so two identical
// rows in one file also collide.
type Batch struct {
	seen map[string]*Conflict
}

// NewBatch seeds a checker with the live collection.
func NewBatch(live []*domain.Bookmark) *Batch {
	b := &Batch{seen: make(map[string]*Conflict, len(live))}
	for _, bm := range live {
		k := Key(bm)
		if k == "" {
			continue
		}
		if prev, ok := b.seen[k]; ok && prev.ExistingID != "" {
			continue
		}
		b.seen[k] = &Conflict{ExistingID: bm.ID, ExistingTitle: bm.Title, ExistingURL: bm.URL}
	}
	return b
}

// Check returns the conflict for rawURL, or nil when it is new.
func (b *Batch) Check(rawURL string) *Conflict {
	return b.seen[domain.NormalizeURL(rawURL)]
}

// Accept records an entry as part of the batch. Later entries with the
// same key will be reported as duplicates of it.
func (b *Batch) Accept(title, rawURL string) {
	k := domain.NormalizeURL(rawURL)
	if k == "" {
		return
	}
	if _, ok := b.seen[k]; ok {
		return
	}
	b.seen[k] = &Conflict{ExistingTitle: title, ExistingURL: rawURL}
}
