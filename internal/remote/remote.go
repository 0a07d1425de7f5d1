// Package remote defines the contract of the authoritative store the engine
// synchronizes against, and the change events it pushes back.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// ErrUnavailable wraps transport failures (network, connection refused).
var ErrUnavailable = errors.New("remote store unavailable")

// Entity names a record type.
type Entity string

const (
	EntityBookmarks Entity = "bookmarks"
	EntityGroups    Entity = "groups"
)

// Kind is the change type carried by an Event.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is one remote-confirmed change. Payload is the raw record (or
// {"id": ...} for deletes) and is validated by the consumer before use.
type Event struct {
	Kind    Kind            `json:"kind"`
	Entity  Entity          `json:"entity"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is the pub/sub channel name of one user's entity stream.
func Channel(owner string, entity Entity) string {
	return fmt.Sprintf("user:%s:%s", owner, entity)
}

// NewEvent marshals v as the payload of an event.
func NewEvent(kind Kind, entity Entity, v any) (Event, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s %s payload: %w", entity, kind, err)
	}
	return Event{Kind: kind, Entity: entity, Payload: raw}, nil
}

// DeletePayload is the body of a delete event.
type DeletePayload struct {
	ID string `json:"id"`
}

// BookmarkStore persists bookmarks. Every call is scoped to owner and
// must never touch another owner's records.
type BookmarkStore interface {
	// InsertBookmark stores b. An empty ID is assigned by the store;
	// ClientRef is stored and echoed back unchanged.
	InsertBookmark(ctx context.Context, owner string, b domain.Bookmark) (domain.Bookmark, error)
	UpdateBookmark(ctx context.Context, owner, id string, patch domain.BookmarkPatch) (domain.Bookmark, error)
	DeleteBookmark(ctx context.Context, owner, id string) error
	// RestoreBookmark re-creates a deleted bookmark with its original id.
	RestoreBookmark(ctx context.Context, owner string, b domain.Bookmark) (domain.Bookmark, error)
	ReorderBookmarks(ctx context.Context, owner string, positions []domain.Position) error
	ListBookmarks(ctx context.Context, owner string) ([]domain.Bookmark, error)
}

// GroupStore persists groups with the same owner scoping.
type GroupStore interface {
	InsertGroup(ctx context.Context, owner string, g domain.Group) (domain.Group, error)
	UpdateGroup(ctx context.Context, owner, id string, patch domain.GroupPatch) (domain.Group, error)
	DeleteGroup(ctx context.Context, owner, id string) error
	RestoreGroup(ctx context.Context, owner string, g domain.Group) (domain.Group, error)
	ReorderGroups(ctx context.Context, owner string, positions []domain.Position) error
	ListGroups(ctx context.Context, owner string) ([]domain.Group, error)
}

// Store is the full persistence contract.
type Store interface {
	BookmarkStore
	GroupStore
	Ping(ctx context.Context) error
}

// Subscriber streams change events for one user's entity. The channel is
// closed when ctx ends or the stream breaks.
type Subscriber interface {
	Subscribe(ctx context.Context, owner string, entity Entity) (<-chan Event, error)
}

// Backend is a store that also pushes events.
type Backend interface {
	Store
	Subscriber
	Close() error
}
