package engine

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

// Undo reverses a recorded delete. Records come back locally at
// min(original position, current length) right away; the remote restore
// runs in the background. A failed restore is reported but the record
// stays visible.
func (e *Engine) Undo(ctx context.Context, entryID string) (*Op, error) {
	entry, ok := e.ledger.Take(entryID)
	if !ok {
		return nil, &domain.NotFoundError{Entity: "undo entry", ID: entryID}
	}

	switch entry.Kind {
	case undo.KindBookmarks:
		return e.undoBookmarks(entry), nil
	case undo.KindGroup:
		return e.undoGroup(entry), nil
	default:
		return nil, &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("cannot undo %q", entry.Kind)}
	}
}

func (e *Engine) undoBookmarks(entry undo.Entry) *Op {
	restored := e.putBack(entry.Bookmarks, nil)
	byID := make(map[string]domain.Bookmark, len(restored))
	ids := make([]string, 0, len(restored))
	for _, b := range restored {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	e.mu.Lock()
	deleting := e.deletes[entry.ID]
	e.mu.Unlock()

	return e.run("undo", func(ctx context.Context) error {
		if deleting != nil {
			// Restore only after the delete it reverses has reached the store.
			_ = deleting.Wait(ctx)
		}
		failures := e.forEach(ctx, ids, func(ctx context.Context, id string) error {
			sid, persisted, err := e.resolveID(ctx, id)
			if err != nil || !persisted {
				return err
			}
			b := byID[id]
			b.ID = sid
			return e.call(ctx, func(ctx context.Context) error {
				_, err := e.store.RestoreBookmark(ctx, e.owner, b)
				return err
			})
		})
		if err := domain.NewBatchError("restore", len(ids), failures); err != nil {
			e.notify("undo", err, failedIDs(failures)...)
			return err
		}
		events.Inform(e.bus, "undo", fmt.Sprintf("restored %d bookmark(s)", len(ids)), ids...)
		return nil
	})
}

func (e *Engine) undoGroup(entry undo.Entry) *Op {
	group := entry.Group
	reattached := e.regroup(group, entry.Reassigned)

	return e.run("undo", func(ctx context.Context) error {
		err := e.call(ctx, func(ctx context.Context) error {
			_, err := e.store.RestoreGroup(ctx, e.owner, group.Group)
			return err
		})
		if err != nil {
			e.notify("undo", err, group.Group.ID)
			return fmt.Errorf("restore group %s: %w", group.Group.ID, err)
		}

		regroup := domain.BookmarkPatch{GroupID: domain.String(group.Group.ID)}
		failures := e.forEach(ctx, reattached, func(ctx context.Context, id string) error {
			return e.pushPatch(ctx, id, regroup)
		})
		if err := domain.NewBatchError("regroup", len(reattached), failures); err != nil {
			e.notify("undo", err, failedIDs(failures)...)
			return err
		}
		events.Inform(e.bus, "undo", fmt.Sprintf("restored group %q", group.Group.Name), group.Group.ID)
		return nil
	})
}
