package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/ordering"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

// GroupInput describes a new group.
type GroupInput struct {
	Name  string  `json:"name"`
	Icon  string  `json:"icon,omitempty"`
	Color *string `json:"color,omitempty"`
}

// CreateGroup persists a group and adds it last. Group ids are assigned by
// the store, so the call waits for the remote insert.
func (e *Engine) CreateGroup(ctx context.Context, in GroupInput) (domain.Group, error) {
	if err := domain.ValidateGroupName(in.Name); err != nil {
		return domain.Group{}, err
	}
	g := domain.Group{Name: strings.TrimSpace(in.Name), Icon: in.Icon, Color: in.Color}
	g.Fill()

	var conflict error
	e.coll.View(func(s *index.State) {
		if existing, ok := s.GroupByName(g.Name, ""); ok {
			conflict = &domain.DuplicateGroupError{ExistingID: existing.ID, Name: existing.Name}
			return
		}
		g.OrderIndex = domain.Int64(ordering.Append(s.GroupIndices()))
	})
	if conflict != nil {
		return domain.Group{}, conflict
	}

	var saved domain.Group
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		saved, err = e.store.InsertGroup(ctx, e.owner, g)
		return err
	})
	if err != nil {
		e.notify("create-group", err)
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}

	saved.Fill()
	_ = e.coll.Update(events.SourceLocal, func(s *index.State) error {
		s.UpsertGroup(saved.Clone())
		return nil
	})
	return saved, nil
}

// UpdateGroup renames or restyles a group and waits for the remote call.
// A failure restores the previous values.
func (e *Engine) UpdateGroup(ctx context.Context, id string, patch domain.GroupPatch) (domain.Group, error) {
	if patch.Name != nil {
		if err := domain.ValidateGroupName(*patch.Name); err != nil {
			return domain.Group{}, err
		}
	}

	var before, out *domain.Group
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		cur, ok := s.Group(id)
		if !ok {
			return &domain.NotFoundError{Entity: "group", ID: id}
		}
		if patch.Name != nil {
			if existing, dup := s.GroupByName(*patch.Name, id); dup {
				return &domain.DuplicateGroupError{ExistingID: existing.ID, Name: existing.Name}
			}
		}
		before = cur.Clone()
		patch.Apply(cur)
		domain.SortGroups(s.Groups)
		out = cur.Clone()
		return nil
	})
	if err != nil {
		return domain.Group{}, err
	}

	err = e.call(ctx, func(ctx context.Context) error {
		_, err := e.store.UpdateGroup(ctx, e.owner, id, patch)
		return err
	})
	if err != nil {
		_ = e.coll.Update(events.SourceRollback, func(s *index.State) error {
			if i := s.GroupIndexOf(id); i >= 0 {
				s.Groups[i] = before.Clone()
				domain.SortGroups(s.Groups)
			}
			return nil
		})
		e.notify("update-group", err, id)
		return domain.Group{}, fmt.Errorf("update group %s: %w", id, err)
	}
	return *out, nil
}

// DeleteGroup removes a group and ungroups its members; the bookmarks
// themselves stay. The returned undo entry restores both the group and
// every member's group. Member updates are independent calls; their
// failures come back as a *domain.BatchError next to a valid entry.
func (e *Engine) DeleteGroup(ctx context.Context, id string) (undo.Entry, error) {
	var (
		group   *undo.GroupSnapshot
		members []undo.Snapshot
	)
	now := e.now()
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		g, pos, ok := s.RemoveGroup(id)
		if !ok {
			return &domain.NotFoundError{Entity: "group", ID: id}
		}
		group = &undo.GroupSnapshot{Group: *g.Clone(), Position: pos}
		for i, b := range s.Bookmarks {
			if !b.InGroup(id) {
				continue
			}
			members = append(members, undo.Snapshot{Bookmark: *b.Clone(), Position: i})
			b.GroupID = nil
		}
		s.Bury(now, id)
		return nil
	})
	if err != nil {
		return undo.Entry{}, err
	}

	entry := e.ledger.Record(undo.Entry{Kind: undo.KindGroup, Group: group, Reassigned: members})

	err = e.call(ctx, func(ctx context.Context) error {
		return e.store.DeleteGroup(ctx, e.owner, id)
	})
	if err != nil && !isGone(err) {
		e.ledger.Invalidate(entry.ID)
		e.regroup(group, members)
		e.notify("delete-group", err, id)
		return undo.Entry{}, fmt.Errorf("delete group %s: %w", id, err)
	}

	events.Publish(e.bus, events.Notifications, events.Notification{
		Level:   events.LevelInfo,
		Op:      "delete-group",
		Message: fmt.Sprintf("group %q deleted, %d bookmark(s) ungrouped", group.Group.Name, len(members)),
		IDs:     []string{id},
		UndoID:  entry.ID,
		At:      now,
	})

	ungroup := domain.BookmarkPatch{GroupID: domain.String("")}
	failures := e.forEach(ctx, memberIDs(members), func(ctx context.Context, mid string) error {
		return e.pushPatch(ctx, mid, ungroup)
	})
	if err := domain.NewBatchError("ungroup", len(members), failures); err != nil {
		e.notify("delete-group", err, failedIDs(failures)...)
		return entry, err
	}
	return entry, nil
}

// regroup puts a deleted group back and re-attaches the members that are
// still ungrouped. It returns the ids that were re-attached.
func (e *Engine) regroup(group *undo.GroupSnapshot, members []undo.Snapshot) []string {
	var reattached []string
	_ = e.coll.Update(events.SourceRollback, func(s *index.State) error {
		s.Unbury(group.Group.ID)
		if s.GroupIndexOf(group.Group.ID) < 0 {
			s.InsertGroupAt(group.Position, group.Group.Clone())
		}
		for _, m := range members {
			cur, _ := s.FindByRef(m.Bookmark.ID)
			if cur == nil || cur.GroupID != nil {
				continue
			}
			cur.GroupID = domain.String(group.Group.ID)
			reattached = append(reattached, cur.ID)
		}
		return nil
	})
	return reattached
}

// ReorderGroups assigns 0..n-1 following sequence. Like bookmark reorder,
// a remote failure keeps the local order.
func (e *Engine) ReorderGroups(ctx context.Context, sequence []string) (*Op, error) {
	var changed []domain.Position
	err := e.coll.Update(events.SourceLocal, func(s *index.State) error {
		current := make(map[string]*int64, len(s.Groups))
		for _, g := range s.Groups {
			current[g.ID] = g.OrderIndex
		}
		var err error
		changed, err = ordering.Reorder(current, sequence)
		if err != nil {
			return err
		}
		for _, p := range changed {
			g, _ := s.Group(p.ID)
			g.OrderIndex = domain.Int64(p.Index)
		}
		domain.SortGroups(s.Groups)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return completedOp("reorder-groups", nil), nil
	}

	return e.run("reorder-groups", func(ctx context.Context) error {
		err := e.call(ctx, func(ctx context.Context) error {
			return e.store.ReorderGroups(ctx, e.owner, changed)
		})
		if err != nil {
			e.notify("reorder-groups", err)
			return fmt.Errorf("reorder groups: %w", err)
		}
		return nil
	}), nil
}

func memberIDs(members []undo.Snapshot) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Bookmark.ID
	}
	return ids
}
