package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/remote"
	"github.com/MrSnakeDoc/shelf/internal/utils"
)

const entityGroup = "group"

const groupColumns = `id, name, icon, color, order_index`

func scanGroup(row scanner) (domain.Group, error) {
	var (
		g     domain.Group
		color sql.NullString
		index sql.NullInt64
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Icon, &color, &index); err != nil {
		return domain.Group{}, err
	}
	g.Color = fromNullString(color)
	g.OrderIndex = fromNullInt64(index)
	return g, nil
}

const upsertGroup = `INSERT INTO bookmark_groups (owner, id, name, name_key, icon, color, order_index)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner, id) DO UPDATE SET
		name = excluded.name,
		name_key = excluded.name_key,
		icon = excluded.icon,
		color = excluded.color,
		order_index = excluded.order_index`

func groupArgs(owner string, g domain.Group) []any {
	return []any{owner, g.ID, g.Name, domain.NormalizeGroupName(g.Name), g.Icon, nullString(g.Color), nullInt64(g.OrderIndex)}
}

func getGroup(ctx context.Context, tx *sql.Tx, owner, id string) (domain.Group, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM bookmark_groups WHERE owner = ? AND id = ?`, owner, id)
	return scanGroup(row)
}

// nameTaken returns a conflict when another group of owner holds name.
func nameTaken(ctx context.Context, tx *sql.Tx, owner, name, exceptID string) error {
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM bookmark_groups WHERE owner = ? AND name_key = ? AND id <> ?`,
		owner, domain.NormalizeGroupName(name), exceptID,
	).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return err
	default:
		return &domain.DuplicateGroupError{ExistingID: existing, Name: name}
	}
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

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := nameTaken(ctx, tx, owner, g.Name, g.ID); err != nil {
			return err
		}
		if _, err := getGroup(ctx, tx, owner, g.ID); err == nil {
			return &domain.ValidationError{Field: "id", Reason: "already exists"}
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err := tx.ExecContext(ctx, upsertGroup, groupArgs(owner, g)...)
		return err
	})
	if err != nil {
		return domain.Group{}, failure("save group", entityGroup, g.ID, err)
	}

	s.publish(owner, remote.KindInsert, remote.EntityGroups, g)
	return g, nil
}

// UpdateGroup applies patch to the stored group.
func (s *Store) UpdateGroup(ctx context.Context, owner, id string, patch domain.GroupPatch) (domain.Group, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Group{}, err
	}
	if patch.Name != nil {
		if err := domain.ValidateGroupName(*patch.Name); err != nil {
			return domain.Group{}, err
		}
	}

	var out domain.Group
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		g, err := getGroup(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			if err := nameTaken(ctx, tx, owner, *patch.Name, id); err != nil {
				return err
			}
		}
		patch.Apply(&g)
		if _, err := tx.ExecContext(ctx, upsertGroup, groupArgs(owner, g)...); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return domain.Group{}, failure("update group", entityGroup, id, err)
	}

	s.publish(owner, remote.KindUpdate, remote.EntityGroups, out)
	return out, nil
}

// DeleteGroup removes a group. Member bookmarks are not touched.
func (s *Store) DeleteGroup(ctx context.Context, owner, id string) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmark_groups WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return failure("delete group", entityGroup, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: entityGroup, ID: id}
	}

	s.publish(owner, remote.KindDelete, remote.EntityGroups, remote.DeletePayload{ID: id})
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

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := nameTaken(ctx, tx, owner, g.Name, g.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, upsertGroup, groupArgs(owner, g)...)
		return err
	})
	if err != nil {
		return domain.Group{}, failure("restore group", entityGroup, g.ID, err)
	}

	s.publish(owner, remote.KindInsert, remote.EntityGroups, g)
	return g, nil
}

// ReorderGroups writes every position in one transaction.
func (s *Store) ReorderGroups(ctx context.Context, owner string, positions []domain.Position) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	var updated []domain.Group
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range positions {
			res, err := tx.ExecContext(ctx, `UPDATE bookmark_groups SET order_index = ? WHERE owner = ? AND id = ?`, p.Index, owner, p.ID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return &domain.NotFoundError{Entity: entityGroup, ID: p.ID}
			}
			g, err := getGroup(ctx, tx, owner, p.ID)
			if err != nil {
				return err
			}
			updated = append(updated, g)
		}
		return nil
	})
	if err != nil {
		return failure("reorder groups", entityGroup, "", err)
	}

	for _, g := range updated {
		s.publish(owner, remote.KindUpdate, remote.EntityGroups, g)
	}
	return nil
}

// ListGroups returns every group of owner in display order.
func (s *Store) ListGroups(ctx context.Context, owner string) ([]domain.Group, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM bookmark_groups WHERE owner = ?`, owner)
	if err != nil {
		return nil, failure("list groups", entityGroup, "", err)
	}
	defer utils.Close(rows)

	out := []domain.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, failure("list groups", entityGroup, "", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list groups", entityGroup, "", err)
	}
	sortGroups(out)
	return out, nil
}
