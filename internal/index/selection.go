package index

import (
	"sort"
	"sync"
)

// Selection is the set of bookmark ids picked for a bulk action.
type Selection struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewSelection() *Selection {
	return &Selection{ids: make(map[string]struct{})}
}

// Toggle flips id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Select adds ids.
func (s *Selection) Select(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Has reports whether id is selected.
func (s *Selection) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ids[id]
	return ok
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = make(map[string]struct{})
}

// Prune rewrites every selected id through live, which maps any reference
// a record answers to (its id or client ref) onto its current id. Ids with
// no entry are dropped.
func (s *Selection) Prune(live map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.ids {
		cur, ok := live[id]
		if !ok {
			delete(s.ids, id)
			continue
		}
		if cur != id {
			delete(s.ids, id)
			s.ids[cur] = struct{}{}
		}
	}
}

// IDs returns the selected ids sorted.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ids)
}
