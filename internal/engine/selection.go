package engine

import (
	"context"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

// Selection is the bulk-selection set shared by every surface. Ids that
// leave the collection are dropped from it automatically, and a temporary
// id follows its record once the server id is adopted.
func (e *Engine) Selection() *index.Selection { return e.sel }

func (e *Engine) pruneSelection() {
	if e.sel.Len() == 0 {
		return
	}
	live := make(map[string]string)
	e.coll.View(func(s *index.State) {
		for _, b := range s.Bookmarks {
			live[b.ID] = b.ID
			if b.ClientRef != "" {
				live[b.ClientRef] = b.ID
			}
		}
	})
	e.sel.Prune(live)
}

// ResolveBookmarks maps each reference (id or client ref) to the current
// id of the bookmark it names.
func (e *Engine) ResolveBookmarks(refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	var missing string
	e.coll.View(func(s *index.State) {
		for _, ref := range refs {
			b, _ := s.FindByRef(ref)
			if b == nil {
				missing = ref
				return
			}
			out = append(out, b.ID)
		}
	})
	if missing != "" || len(out) != len(refs) {
		return nil, &domain.NotFoundError{Entity: "bookmark", ID: missing}
	}
	return out, nil
}

func (e *Engine) selected() ([]string, error) {
	ids := e.sel.IDs()
	if len(ids) == 0 {
		return nil, &domain.ValidationError{Field: "selection", Reason: "nothing selected"}
	}
	return ids, nil
}

// DeleteSelected deletes every selected bookmark as one undo-able entry and
// clears the selection.
func (e *Engine) DeleteSelected(ctx context.Context) (undo.Entry, *Op, error) {
	ids, err := e.selected()
	if err != nil {
		return undo.Entry{}, nil, err
	}
	entry, op, err := e.DeleteBookmarks(ctx, ids)
	if err != nil {
		return entry, op, err
	}
	e.sel.Clear()
	return entry, op, nil
}

// MoveSelected assigns every selected bookmark to groupID ("" ungroups).
// The selection is kept so the user can act on it again.
func (e *Engine) MoveSelected(ctx context.Context, groupID string) (*Op, error) {
	ids, err := e.selected()
	if err != nil {
		return nil, err
	}
	return e.MoveBookmarks(ctx, ids, groupID)
}
