package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

const entityGroup = "group"

// nameOwner returns the id holding the normalized name, or "" when free.
func nameOwner(ctx context.Context, tx *redis.Tx, owner, name string) (string, error) {
	id, err := tx.HGet(ctx, GroupNamesKey(owner), domain.NormalizeGroupName(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// InsertGroup stores a new group. Names are unique per owner.
func (s *Store) InsertGroup(ctx context.Context, owner string, g domain.Group) (domain.Group, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Group{}, err
	}
	if err := domain.ValidateGroupName(g.Name); err != nil {
		return domain.Group{}, err
	}
	g = *g.Clone()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.Fill()

	data, err := json.Marshal(g)
	if err != nil {
		return domain.Group{}, fmt.Errorf("failed to marshal group: %w", err)
	}

	names := GroupNamesKey(owner)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		existing, err := nameOwner(ctx, tx, owner, g.Name)
		if err != nil {
			return err
		}
		if existing != "" {
			return &domain.DuplicateGroupError{ExistingID: existing, Name: g.Name}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, GroupKey(owner, g.ID), data, 0)
			pipe.SAdd(ctx, GroupsKey(owner), g.ID)
			pipe.HSet(ctx, names, domain.NormalizeGroupName(g.Name), g.ID)
			return nil
		})
		return err
	}, names)
	if err != nil {
		return domain.Group{}, failure("save group", entityGroup, g.ID, err)
	}

	s.publish(ctx, owner, remote.KindInsert, remote.EntityGroups, g)
	return g, nil
}

// UpdateGroup applies patch, moving the name reservation on a rename.
func (s *Store) UpdateGroup(ctx context.Context, owner, id string, patch domain.GroupPatch) (domain.Group, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Group{}, err
	}
	if patch.Name != nil {
		if err := domain.ValidateGroupName(*patch.Name); err != nil {
			return domain.Group{}, err
		}
	}
	key, names := GroupKey(owner, id), GroupNamesKey(owner)

	var out domain.Group
	err := s.watch(ctx, func(tx *redis.Tx) error {
		g, err := load[domain.Group](ctx, tx, key)
		if err != nil {
			return err
		}
		oldName := domain.NormalizeGroupName(g.Name)
		if patch.Name != nil {
			existing, err := nameOwner(ctx, tx, owner, *patch.Name)
			if err != nil {
				return err
			}
			if existing != "" && existing != id {
				return &domain.DuplicateGroupError{ExistingID: existing, Name: *patch.Name}
			}
		}
		patch.Apply(&g)
		data, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("failed to marshal group: %w", err)
		}
		newName := domain.NormalizeGroupName(g.Name)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if newName != oldName {
				pipe.HDel(ctx, names, oldName)
				pipe.HSet(ctx, names, newName, id)
			}
			return nil
		})
		out = g
		return err
	}, key, names)
	if err != nil {
		return domain.Group{}, failure("update group", entityGroup, id, err)
	}

	s.publish(ctx, owner, remote.KindUpdate, remote.EntityGroups, out)
	return out, nil
}

// DeleteGroup removes a group and frees its name. Member bookmarks are
// not touched.
func (s *Store) DeleteGroup(ctx context.Context, owner, id string) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	key, names := GroupKey(owner, id), GroupNamesKey(owner)

	err := s.watch(ctx, func(tx *redis.Tx) error {
		g, err := load[domain.Group](ctx, tx, key)
		if err != nil {
			return err
		}
		name := domain.NormalizeGroupName(g.Name)
		holder, err := nameOwner(ctx, tx, owner, g.Name)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, GroupsKey(owner), id)
			if holder == id {
				pipe.HDel(ctx, names, name)
			}
			return nil
		})
		return err
	}, key, names)
	if err != nil {
		return failure("delete group", entityGroup, id, err)
	}

	s.publish(ctx, owner, remote.KindDelete, remote.EntityGroups, remote.DeletePayload{ID: id})
	return nil
}

// RestoreGroup writes g back under its original id. It fails with a
// conflict when another group took the name in the meantime.
func (s *Store) RestoreGroup(ctx context.Context, owner string, g domain.Group) (domain.Group, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Group{}, err
	}
	if g.ID == "" {
		return domain.Group{}, &domain.ValidationError{Field: "id", Reason: "restore needs the original id"}
	}
	g = *g.Clone()
	g.Fill()

	data, err := json.Marshal(g)
	if err != nil {
		return domain.Group{}, fmt.Errorf("failed to marshal group: %w", err)
	}

	names := GroupNamesKey(owner)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		existing, err := nameOwner(ctx, tx, owner, g.Name)
		if err != nil {
			return err
		}
		if existing != "" && existing != g.ID {
			return &domain.DuplicateGroupError{ExistingID: existing, Name: g.Name}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, GroupKey(owner, g.ID), data, 0)
			pipe.SAdd(ctx, GroupsKey(owner), g.ID)
			pipe.HSet(ctx, names, domain.NormalizeGroupName(g.Name), g.ID)
			return nil
		})
		return err
	}, names)
	if err != nil {
		return domain.Group{}, failure("restore group", entityGroup, g.ID, err)
	}

	s.publish(ctx, owner, remote.KindInsert, remote.EntityGroups, g)
	return g, nil
}

// ReorderGroups writes every position in one transaction.
func (s *Store) ReorderGroups(ctx context.Context, owner string, positions []domain.Position) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	keyOf := func(id string) string { return GroupKey(owner, id) }
	updated, err := reorder(ctx, s, entityGroup, keyOf, positions, func(g *domain.Group, index int64) {
		g.OrderIndex = domain.Int64(index)
	})
	if err != nil {
		return failure("reorder groups", entityGroup, "", err)
	}

	for _, g := range updated {
		s.publish(ctx, owner, remote.KindUpdate, remote.EntityGroups, g)
	}
	return nil
}

// ListGroups returns every group of owner in display order.
func (s *Store) ListGroups(ctx context.Context, owner string) ([]domain.Group, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	keyOf := func(id string) string { return GroupKey(owner, id) }
	items, err := loadAll[domain.Group](ctx, s, GroupsKey(owner), keyOf)
	if err != nil {
		return nil, failure("list groups", entityGroup, "", err)
	}
	sortGroups(items)
	return items, nil
}
