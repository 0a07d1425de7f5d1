package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/dedup"
	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/metadata"
	"github.com/MrSnakeDoc/shelf/internal/ordering"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

// AddRequest is a URL submitted by the user.
type AddRequest struct {
	URL         string  `json:"url"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	GroupID     *string `json:"groupId,omitempty"`
	// AllowDuplicate adds the bookmark even when its URL already exists.
	AllowDuplicate bool `json:"allowDuplicate,omitempty"`
}

// ─────────────────────────────────────────────────────────────────
// Add
// ─────────────────────────────────────────────────────────────────

// AddBookmark inserts a pending bookmark at the top of the collection and
// returns it immediately. The Op finishes once the insert is persisted and
// metadata enrichment has run. A URL that already exists is rejected with
// a *domain.DuplicateURLError unless req.AllowDuplicate is set.
func (e *Engine) AddBookmark(ctx context.Context, req AddRequest) (domain.Bookmark, *Op, error) {
	u, err := domain.PrepareURL(req.URL)
	if err != nil {
		return domain.Bookmark{}, nil, err
	}
	if req.GroupID != nil && *req.GroupID == "" {
		req.GroupID = nil
	}

	now := e.now()
	temp := uuid.NewString()
	b := &domain.Bookmark{
		ID:          temp,
		ClientRef:   temp,
		URL:         strings.TrimSpace(req.URL),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      domain.StatusPending,
		CreatedAt:   now,
	}
	if req.GroupID != nil {
		b.GroupID = domain.String(*req.GroupID)
	}
	b.Fill(now)

	var out domain.Bookmark
	err = e.coll.Update(events.SourceLocal, func(s *index.State) error {
		if b.GroupID != nil {
			if _, ok := s.Group(*b.GroupID); !ok {
				return &domain.NotFoundError{Entity: "group", ID: *b.GroupID}
			}
		}
		if !req.AllowDuplicate {
			if c := dedup.Check(s.Bookmarks, u); c != nil {
				return c.Err()
			}
		}
		b.OrderIndex = domain.Int64(ordering.Prepend(s.Indices()))
		s.Upsert(b)
		out = *b.Clone()
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, nil, err
	}

	op := e.startInsert("add", out, req.Title != "")
	return out, op, nil
}

// startInsert persists a local-only bookmark and chains enrichment.
func (e *Engine) startInsert(name string, local domain.Bookmark, keepTitle bool) *Op {
	temp := local.ClientRef
	inserted := newOp("insert")

	e.mu.Lock()
	e.inserts[temp] = &pendingInsert{op: inserted}
	e.mu.Unlock()

	return e.run(name, func(ctx context.Context) error {
		serverID, err := e.persistNew(ctx, local, inserted)
		if err != nil || serverID == "" {
			return err
		}
		return e.enrich(ctx, serverID, local.Href(), keepTitle)
	})
}

// persistNew inserts local remotely and merges the authoritative fields
// into the local record by identity. It returns "" when the record was
// deleted locally while the insert was in flight.
func (e *Engine) persistNew(ctx context.Context, local domain.Bookmark, inserted *Op) (string, error) {
	temp := local.ClientRef
	payload := *local.Clone()
	payload.ID = ""

	var saved domain.Bookmark
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		saved, err = e.store.InsertBookmark(ctx, e.owner, payload)
		return err
	})
	if err != nil {
		inserted.finish(err)
		e.markFailed(temp, fmt.Sprintf("save failed: %v", err))
		e.notify("add", err, temp)
		return "", fmt.Errorf("insert bookmark: %w", err)
	}

	e.mu.Lock()
	e.inserts[temp].serverID = saved.ID
	e.mu.Unlock()
	inserted.finish(nil)

	present := false
	_ = e.coll.Update(events.SourceRemote, func(s *index.State) error {
		cur, _ := s.FindByRef(temp)
		if cur == nil {
			return nil
		}
		if s.Buried(saved.ID) {
			// Deleted elsewhere before this callback ran.
			s.Remove(cur.ID)
			s.Bury(e.now(), temp)
			return nil
		}
		present = true
		cur.ID = saved.ID
		if saved.OrderIndex != nil {
			cur.OrderIndex = domain.Int64(*saved.OrderIndex)
		}
		if !saved.CreatedAt.IsZero() {
			cur.CreatedAt = saved.CreatedAt
		}
		s.Sort()
		return nil
	})
	if !present {
		e.log.Debug("Bookmark deleted before its insert was confirmed", logger.String("id", saved.ID))
		return "", nil
	}
	return saved.ID, nil
}

// enrich runs metadata extraction for a persisted bookmark.
func (e *Engine) enrich(ctx context.Context, id, rawURL string, keepTitle bool) error {
	var (
		md  metadata.Metadata
		err error
	)
	if e.extractor != nil {
		md, err = e.extractor.Extract(ctx, rawURL)
	}
	if err != nil {
		reason := fmt.Sprintf("metadata: %v", err)
		e.markFailed(id, reason)
		e.persistStatus(ctx, id, reason)
		e.notify("enrich", err, id)
		return fmt.Errorf("enrich bookmark: %w", err)
	}

	patch := md.Patch()
	if keepTitle {
		patch.Title = nil
	}
	if !e.applyLocal(id, patch) {
		return nil
	}

	err = e.call(ctx, func(ctx context.Context) error {
		_, err := e.store.UpdateBookmark(ctx, e.owner, id, patch)
		return err
	})
	if err != nil {
		e.markFailed(id, fmt.Sprintf("save metadata: %v", err))
		e.notify("enrich", err, id)
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// persistStatus records an enrichment failure remotely, best effort.
func (e *Engine) persistStatus(ctx context.Context, id, reason string) {
	failed := domain.StatusFailed
	patch := domain.BookmarkPatch{Status: &failed, ErrorReason: domain.String(reason)}
	err := e.call(ctx, func(ctx context.Context) error {
		_, err := e.store.UpdateBookmark(ctx, e.owner, id, patch)
		return err
	})
	if err != nil {
		e.log.Warn("Failed to persist bookmark status", logger.String("id", id), logger.Error(err))
	}
}

func (e *Engine) markFailed(ref, reason string) {
	_ = e.coll.Update(events.SourceLocal, func(s *index.State) error {
		if cur, _ := s.FindByRef(ref); cur != nil {
			cur.MarkFailed(reason)
		}
		return nil
	})
}

// applyLocal patches the record matching ref and reports whether it exists.
func (e *Engine) applyLocal(ref string, patch domain.BookmarkPatch) bool {
	found := false
	_ = e.coll.Update(events.SourceLocal, func(s *index.State) error {
		cur, _ := s.FindByRef(ref)
		if cur == nil {
			return nil
		}
		found = true
		patch.Apply(cur)
		s.Sort()
		return nil
	})
	return found
}

// restoreLocal puts a pre-mutation snapshot back in place of the current
// record, keeping the id the record has now.
func (e *Engine) restoreLocal(before *domain.Bookmark) {
	_ = e.coll.Update(events.SourceRollback, func(s *index.State) error {
		cur, i := s.FindByRef(before.ID)
		if cur == nil && before.ClientRef != "" {
			cur, i = s.FindByRef(before.ClientRef)
		}
		if cur == nil {
			return nil
		}
		restored := before.Clone()
		restored.ID = cur.ID
		s.Bookmarks[i] = restored
		s.Sort()
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────
// Update / move
// ─────────────────────────────────────────────────────────────────

// UpdateBookmark patches a bookmark locally and persists the patch. A
// remote failure rolls the record back to its previous state.
func (e *Engine) UpdateBookmark(ctx context.Context, id string, patch domain.BookmarkPatch) (domain.Bookmark, *Op, error) {
	if patch.Empty() {
		return domain.Bookmark{}, nil, &domain.ValidationError{Field: "patch", Reason: "nothing to update"}
	}

	var (
		before *domain.Bookmark
		out    domain.Bookmark
	)
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		cur, _ := s.FindByRef(id)
		if cur == nil {
			return &domain.NotFoundError{Entity: "bookmark", ID: id}
		}
		if patch.GroupID != nil && *patch.GroupID != "" {
			if _, ok := s.Group(*patch.GroupID); !ok {
				return &domain.NotFoundError{Entity: "group", ID: *patch.GroupID}
			}
		}
		before = cur.Clone()
		patch.Apply(cur)
		s.Sort()
		out = *cur.Clone()
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, nil, err
	}

	op := e.run("update", func(ctx context.Context) error {
		if err := e.pushPatch(ctx, before.ID, patch); err != nil {
			e.restoreLocal(before)
			e.notify("update", err, before.ID)
			return fmt.Errorf("update bookmark %s: %w", before.ID, err)
		}
		return nil
	})
	return out, op, nil
}

// pushPatch sends patch for the record known locally as id.
func (e *Engine) pushPatch(ctx context.Context, id string, patch domain.BookmarkPatch) error {
	sid, persisted, err := e.resolveID(ctx, id)
	if err != nil {
		return err
	}
	if !persisted {
		// Local-only record: the patch travels with the next insert attempt.
		return nil
	}
	return e.call(ctx, func(ctx context.Context) error {
		_, err := e.store.UpdateBookmark(ctx, e.owner, sid, patch)
		return err
	})
}

// MoveBookmarks assigns every id to groupID ("" ungroups them). Each item
// is persisted independently; failed items roll back and are reported in
// a *domain.BatchError.
func (e *Engine) MoveBookmarks(ctx context.Context, ids []string, groupID string) (*Op, error) {
	if len(ids) == 0 {
		return nil, &domain.ValidationError{Field: "ids", Reason: "nothing selected"}
	}

	befores := make(map[string]*domain.Bookmark, len(ids))
	var order []string
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		if groupID != "" {
			if _, ok := s.Group(groupID); !ok {
				return &domain.NotFoundError{Entity: "group", ID: groupID}
			}
		}
		for _, id := range ids {
			cur, _ := s.FindByRef(id)
			if cur == nil || befores[cur.ID] != nil {
				continue
			}
			befores[cur.ID] = cur.Clone()
			order = append(order, cur.ID)
		}
		if len(order) == 0 {
			return &domain.NotFoundError{Entity: "bookmark", ID: ids[0]}
		}
		for _, id := range order {
			cur, _ := s.Bookmark(id)
			if groupID == "" {
				cur.GroupID = nil
			} else {
				cur.GroupID = domain.String(groupID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	patch := domain.BookmarkPatch{GroupID: domain.String(groupID)}
	return e.run("move", func(ctx context.Context) error {
		failures := e.forEach(ctx, order, func(ctx context.Context, id string) error {
			return e.pushPatch(ctx, id, patch)
		})
		for id := range failures {
			e.restoreLocal(befores[id])
		}
		if err := domain.NewBatchError("move", len(order), failures); err != nil {
			e.notify("move", err, failedIDs(failures)...)
			return err
		}
		return nil
	}), nil
}

// ─────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────

// DeleteBookmarks removes one or more bookmarks and records an undo entry
// holding each record with its display position. Remote deletes are
// independent; items whose delete fails are put back where they were.
func (e *Engine) DeleteBookmarks(ctx context.Context, ids []string) (undo.Entry, *Op, error) {
	if len(ids) == 0 {
		return undo.Entry{}, nil, &domain.ValidationError{Field: "ids", Reason: "nothing selected"}
	}

	var snaps []undo.Snapshot
	now := e.now()
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		taken := make(map[string]bool, len(ids))
		for _, id := range ids {
			cur, pos := s.FindByRef(id)
			if cur == nil || taken[cur.ID] {
				continue
			}
			taken[cur.ID] = true
			snaps = append(snaps, undo.Snapshot{Bookmark: *cur.Clone(), Position: pos})
		}
		if len(snaps) == 0 {
			return &domain.NotFoundError{Entity: "bookmark", ID: ids[0]}
		}
		for _, snap := range snaps {
			s.Remove(snap.Bookmark.ID)
			s.Bury(now, snap.Bookmark.ID, snap.Bookmark.ClientRef)
		}
		return nil
	})
	if err != nil {
		return undo.Entry{}, nil, err
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Position < snaps[j].Position })
	entry := e.ledger.Record(undo.Entry{Kind: undo.KindBookmarks, Bookmarks: snaps})
	events.Publish(e.bus, events.Notifications, events.Notification{
		Level:   events.LevelInfo,
		Op:      "delete",
		Message: fmt.Sprintf("%d bookmark(s) deleted", len(snaps)),
		IDs:     entry.IDs(),
		UndoID:  entry.ID,
		At:      now,
	})

	op := newOp("delete")
	e.mu.Lock()
	e.deletes[entry.ID] = op
	e.mu.Unlock()

	e.start(op, func(ctx context.Context) error {
		defer func() {
			e.mu.Lock()
			delete(e.deletes, entry.ID)
			e.mu.Unlock()
		}()

		targets := make([]string, len(snaps))
		for i, snap := range snaps {
			targets[i] = snap.Bookmark.ID
		}

		failures := e.forEach(ctx, targets, func(ctx context.Context, id string) error {
			sid, persisted, err := e.resolveID(ctx, id)
			if err != nil || !persisted {
				return err
			}
			err = e.call(ctx, func(ctx context.Context) error {
				return e.store.DeleteBookmark(ctx, e.owner, sid)
			})
			if isGone(err) {
				return nil
			}
			return err
		})
		if len(failures) == 0 {
			return nil
		}

		e.putBack(snaps, failures)
		if len(failures) == len(snaps) {
			e.ledger.Invalidate(entry.ID)
		}
		err := domain.NewBatchError("delete", len(snaps), failures)
		e.notify("delete", err, failedIDs(failures)...)
		return err
	})
	return entry, op, nil
}

// putBack re-inserts the snapshots whose id is in only (all when nil) at
// their original position, ascending, skipping ids already present.
func (e *Engine) putBack(snaps []undo.Snapshot, only map[string]error) []domain.Bookmark {
	var restored []domain.Bookmark
	_ = e.coll.Update(events.SourceRollback, func(s *index.State) error {
		for _, snap := range snaps {
			b := snap.Bookmark
			if only != nil {
				if _, ok := only[b.ID]; !ok {
					continue
				}
			}
			s.Unbury(b.ID, b.ClientRef)
			if cur, _ := s.FindByRef(b.ID); cur != nil {
				continue
			}
			if b.ClientRef != "" {
				if cur, _ := s.FindByRef(b.ClientRef); cur != nil {
					continue
				}
			}
			s.InsertAt(snap.Position, b.Clone())
			restored = append(restored, *b.Clone())
		}
		return nil
	})
	return restored
}

// DeleteDuplicates deletes the default cleanup selection: every duplicate
// except the oldest of each set.
func (e *Engine) DeleteDuplicates(ctx context.Context) (undo.Entry, *Op, error) {
	ids := dedup.DefaultSelection(e.Duplicates())
	if len(ids) == 0 {
		return undo.Entry{}, completedOp("delete-duplicates", nil), nil
	}
	return e.DeleteBookmarks(ctx, ids)
}

// Duplicates returns the duplicate sets of the live collection.
func (e *Engine) Duplicates() []dedup.Set {
	return dedup.Find(e.coll.Bookmarks())
}

// CheckDuplicate reports the existing bookmark rawURL would duplicate.
func (e *Engine) CheckDuplicate(rawURL string) *dedup.Conflict {
	var c *dedup.Conflict
	e.coll.View(func(s *index.State) {
		c = dedup.Check(s.Bookmarks, rawURL)
	})
	return c
}

// ─────────────────────────────────────────────────────────────────
// Reorder / retry
// ─────────────────────────────────────────────────────────────────

// ReorderBookmarks assigns 0..n-1 following sequence and persists only
// the changed positions in one batch. A remote failure keeps the local
// order and notifies.
func (e *Engine) ReorderBookmarks(ctx context.Context, sequence []string) (*Op, error) {
	var changed []domain.Position
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		current := make(map[string]*int64, len(s.Bookmarks))
		for _, b := range s.Bookmarks {
			current[b.ID] = b.OrderIndex
		}
		resolved := make([]string, len(sequence))
		for i, ref := range sequence {
			resolved[i] = ref
			if cur, _ := s.FindByRef(ref); cur != nil {
				resolved[i] = cur.ID
			}
		}

		var err error
		changed, err = ordering.Reorder(current, resolved)
		if err != nil {
			return err
		}
		for _, p := range changed {
			cur, _ := s.Bookmark(p.ID)
			cur.OrderIndex = domain.Int64(p.Index)
		}
		s.Sort()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return completedOp("reorder", nil), nil
	}

	return e.run("reorder", func(ctx context.Context) error {
		positions := make([]domain.Position, 0, len(changed))
		for _, p := range changed {
			sid, persisted, err := e.resolveID(ctx, p.ID)
			if err != nil {
				return err
			}
			if persisted {
				positions = append(positions, domain.Position{ID: sid, Index: p.Index})
			}
		}
		if len(positions) == 0 {
			return nil
		}
		err := e.call(ctx, func(ctx context.Context) error {
			return e.store.ReorderBookmarks(ctx, e.owner, positions)
		})
		if err != nil {
			e.notify("reorder", err)
			return fmt.Errorf("reorder bookmarks: %w", err)
		}
		return nil
	}), nil
}

// RetryEnrichment re-runs a failed bookmark. A bookmark whose insert never
// succeeded is inserted again; otherwise only metadata extraction reruns.
func (e *Engine) RetryEnrichment(ctx context.Context, id string) (domain.Bookmark, *Op, error) {
	var out domain.Bookmark
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		cur, _ := s.FindByRef(id)
		if cur == nil {
			return &domain.NotFoundError{Entity: "bookmark", ID: id}
		}
		if cur.Status != domain.StatusFailed {
			return &domain.ValidationError{Field: "status", Reason: "only failed bookmarks can be retried"}
		}
		cur.Status = domain.StatusPending
		cur.ErrorReason = ""
		out = *cur.Clone()
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, nil, err
	}

	keepTitle := out.Title != out.NormalizedURL
	if e.neverPersisted(out.ID) {
		return out, e.startInsert("retry", out, keepTitle), nil
	}
	return out, e.run("retry", func(ctx context.Context) error {
		return e.enrich(ctx, out.ID, out.Href(), keepTitle)
	}), nil
}

// neverPersisted reports whether id is a temporary id whose insert failed.
func (e *Engine) neverPersisted(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.inserts[id]
	if !ok || p.serverID != "" {
		return false
	}
	select {
	case <-p.op.Done():
		return p.op.Err() != nil
	default:
		return false
	}
}

func failedIDs(failures map[string]error) []string {
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
