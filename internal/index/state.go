package index

import (
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// State is the ordered collection as seen inside one atomic transition.
// Bookmarks and Groups are kept in display order; helpers that add or move
// items say whether they re-sort.
type State struct {
	Bookmarks []*domain.Bookmark
	Groups    []*domain.Group

	// tombstones remember ids deleted locally so a late insert echo
	// cannot bring them back.
	tombstones map[string]time.Time
}

// ─────────────────────────────────────────────────────────────────
// Bookmark helpers
// ─────────────────────────────────────────────────────────────────

// IndexOf returns the display position of id, or -1.
func (s *State) IndexOf(id string) int {
	for i, b := range s.Bookmarks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Bookmark returns the live record for id.
func (s *State) Bookmark(id string) (*domain.Bookmark, bool) {
	if i := s.IndexOf(id); i >= 0 {
		return s.Bookmarks[i], true
	}
	return nil, false
}

// FindByRef returns the record whose ID or ClientRef equals ref.
func (s *State) FindByRef(ref string) (*domain.Bookmark, int) {
	if ref == "" {
		return nil, -1
	}
	for i, b := range s.Bookmarks {
		if b.ID == ref || (b.ClientRef != "" && b.ClientRef == ref) {
			return b, i
		}
	}
	return nil, -1
}

// InsertAt places b at min(pos, len) without re-sorting.
func (s *State) InsertAt(pos int, b *domain.Bookmark) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.Bookmarks) {
		pos = len(s.Bookmarks)
	}
	s.Bookmarks = append(s.Bookmarks, nil)
	copy(s.Bookmarks[pos+1:], s.Bookmarks[pos:])
	s.Bookmarks[pos] = b
}

// Remove deletes id and returns the removed record with its position.
func (s *State) Remove(id string) (*domain.Bookmark, int, bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return nil, -1, false
	}
	b := s.Bookmarks[i]
	s.Bookmarks = append(s.Bookmarks[:i], s.Bookmarks[i+1:]...)
	return b, i, true
}

// Upsert replaces the record with the same id or appends it, then re-sorts.
func (s *State) Upsert(b *domain.Bookmark) {
	if i := s.IndexOf(b.ID); i >= 0 {
		s.Bookmarks[i] = b
	} else {
		s.Bookmarks = append(s.Bookmarks, b)
	}
	s.Sort()
}

// Sort restores the display order.
func (s *State) Sort() {
	domain.SortBookmarks(s.Bookmarks)
}

// Indices returns the order index of every bookmark.
func (s *State) Indices() []*int64 {
	out := make([]*int64, len(s.Bookmarks))
	for i, b := range s.Bookmarks {
		out[i] = b.OrderIndex
	}
	return out
}

// DropInvalid removes records whose URL fails validation and returns their ids.
func (s *State) DropInvalid() []string {
	var dropped []string
	kept := s.Bookmarks[:0]
	for _, b := range s.Bookmarks {
		if domain.IsValidURL(b.URL) {
			kept = append(kept, b)
			continue
		}
		dropped = append(dropped, b.ID)
	}
	for i := len(kept); i < len(s.Bookmarks); i++ {
		s.Bookmarks[i] = nil
	}
	s.Bookmarks = kept
	return dropped
}

// Members returns the bookmarks of groupID in display order.
func (s *State) Members(groupID string) []*domain.Bookmark {
	var out []*domain.Bookmark
	for _, b := range s.Bookmarks {
		if b.InGroup(groupID) {
			out = append(out, b)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────
// Group helpers
// ─────────────────────────────────────────────────────────────────

// GroupIndexOf returns the display position of group id, or -1.
func (s *State) GroupIndexOf(id string) int {
	for i, g := range s.Groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// Group returns the live group for id.
func (s *State) Group(id string) (*domain.Group, bool) {
	if i := s.GroupIndexOf(id); i >= 0 {
		return s.Groups[i], true
	}
	return nil, false
}

// GroupByName finds a group by normalized name, ignoring excludeID.
func (s *State) GroupByName(name, excludeID string) (*domain.Group, bool) {
	key := domain.NormalizeGroupName(name)
	for _, g := range s.Groups {
		if g.ID != excludeID && domain.NormalizeGroupName(g.Name) == key {
			return g, true
		}
	}
	return nil, false
}

// InsertGroupAt places g at min(pos, len) without re-sorting.
func (s *State) InsertGroupAt(pos int, g *domain.Group) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.Groups) {
		pos = len(s.Groups)
	}
	s.Groups = append(s.Groups, nil)
	copy(s.Groups[pos+1:], s.Groups[pos:])
	s.Groups[pos] = g
}

// RemoveGroup deletes group id and returns it with its position.
func (s *State) RemoveGroup(id string) (*domain.Group, int, bool) {
	i := s.GroupIndexOf(id)
	if i < 0 {
		return nil, -1, false
	}
	g := s.Groups[i]
	s.Groups = append(s.Groups[:i], s.Groups[i+1:]...)
	return g, i, true
}

// UpsertGroup replaces or appends g, then re-sorts the groups.
func (s *State) UpsertGroup(g *domain.Group) {
	if i := s.GroupIndexOf(g.ID); i >= 0 {
		s.Groups[i] = g
	} else {
		s.Groups = append(s.Groups, g)
	}
	domain.SortGroups(s.Groups)
}

// GroupIndices returns the order index of every group.
func (s *State) GroupIndices() []*int64 {
	out := make([]*int64, len(s.Groups))
	for i, g := range s.Groups {
		out[i] = g.OrderIndex
	}
	return out
}

// GroupNames maps group ids to names.
func (s *State) GroupNames() map[string]string {
	out := make(map[string]string, len(s.Groups))
	for _, g := range s.Groups {
		out[g.ID] = g.Name
	}
	return out
}

// ─────────────────────────────────────────────────────────────────
// Tombstones
// ─────────────────────────────────────────────────────────────────

// Bury marks ids as locally deleted at the given time.
func (s *State) Bury(at time.Time, ids ...string) {
	if s.tombstones == nil {
		s.tombstones = make(map[string]time.Time)
	}
	for _, id := range ids {
		if id != "" {
			s.tombstones[id] = at
		}
	}
}

// Buried reports whether id was deleted locally.
func (s *State) Buried(id string) bool {
	_, ok := s.tombstones[id]
	return ok
}

// Unbury forgets ids, e.g. when a delete is undone or rolled back.
func (s *State) Unbury(ids ...string) {
	for _, id := range ids {
		delete(s.tombstones, id)
	}
}

// PruneTombstones forgets tombstones older than before.
func (s *State) PruneTombstones(before time.Time) int {
	n := 0
	for id, at := range s.tombstones {
		if at.Before(before) {
			delete(s.tombstones, id)
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the state.
func (s *State) Clone() State {
	out := State{
		Bookmarks: make([]*domain.Bookmark, len(s.Bookmarks)),
		Groups:    make([]*domain.Group, len(s.Groups)),
	}
	for i, b := range s.Bookmarks {
		out.Bookmarks[i] = b.Clone()
	}
	for i, g := range s.Groups {
		out.Groups[i] = g.Clone()
	}
	return out
}
