// Package ordering allocates sparse integer order indices.
//
// Indices never need to be contiguous: Prepend and Append only look at the
// current minimum or maximum, so existing rows are never touched. Reorder is
// the only operation that renumbers, and it reports just the rows whose
// index actually changed so the caller can persist them in one batch.
package ordering

import (
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// Prepend returns an index that sorts before every non-null index.
// An empty (or all-null) collection yields 0.
func Prepend(indices []*int64) int64 {
	lo, ok := bounds(indices, func(a, b int64) bool { return a < b })
	if !ok {
		return 0
	}
	return lo - 1
}

// Append returns an index that sorts after every non-null index.
// An empty (or all-null) collection yields 0.
func Append(indices []*int64) int64 {
	hi, ok := bounds(indices, func(a, b int64) bool { return a > b })
	if !ok {
		return 0
	}
	return hi + 1
}

func bounds(indices []*int64, better func(a, b int64) bool) (int64, bool) {
	var (
		best  int64
		found bool
	)
	for _, idx := range indices {
		if idx == nil {
			continue
		}
		if !found || better(*idx, best) {
			best = *idx
			found = true
		}
	}
	return best, found
}

// Reorder assigns 0..n-1 following sequence and returns only the positions
// that differ from current. Every id in sequence must belong to current
// (the caller's ownership scope) and appear once.
func Reorder(current map[string]*int64, sequence []string) ([]domain.Position, error) {
	seen := make(map[string]bool, len(sequence))
	for _, id := range sequence {
		if _, ok := current[id]; !ok {
			return nil, &domain.ValidationError{Field: "ids", Reason: fmt.Sprintf("%s is not in this collection", id)}
		}
		if seen[id] {
			return nil, &domain.ValidationError{Field: "ids", Reason: fmt.Sprintf("%s appears twice", id)}
		}
		seen[id] = true
	}

	changed := make([]domain.Position, 0, len(sequence))
	for i, id := range sequence {
		want := int64(i)
		if have := current[id]; have != nil && *have == want {
			continue
		}
		changed = append(changed, domain.Position{ID: id, Index: want})
	}
	return changed, nil
}
