package domain

import "sort"

// compareIndex orders two optional indices ascending, nulls last.
func compareIndex(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

// LessBookmark is the display order: orderIndex ascending (nulls last),
// then createdAt descending, then id ascending so the order is total.
func LessBookmark(a, b *Bookmark) bool {
	if c := compareIndex(a.OrderIndex, b.OrderIndex); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// LessGroup orders groups by orderIndex (nulls last), then name, then id.
func LessGroup(a, b *Group) bool {
	if c := compareIndex(a.OrderIndex, b.OrderIndex); c != 0 {
		return c < 0
	}
	na, nb := NormalizeGroupName(a.Name), NormalizeGroupName(b.Name)
	if na != nb {
		return na < nb
	}
	return a.ID < b.ID
}

// SortBookmarks sorts in place using LessBookmark.
func SortBookmarks(items []*Bookmark) {
	sort.SliceStable(items, func(i, j int) bool {
		return LessBookmark(items[i], items[j])
	})
}

// SortGroups sorts in place using LessGroup.
func SortGroups(items []*Group) {
	sort.SliceStable(items, func(i, j int) bool {
		return LessGroup(items[i], items[j])
	})
}
