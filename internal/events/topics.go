package events

import (
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// Level grades a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a transient user-visible message.
type Notification struct {
	Level   Level     `json:"level"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	IDs     []string  `json:"ids,omitempty"`
	UndoID  string    `json:"undoId,omitempty"`
	At      time.Time `json:"at"`
}

// Change is published after every state transition of the collection.
type Change struct {
	Version uint64 `json:"version"`
	Source  string `json:"source"`
}

// Change sources.
const (
	SourceLocal    = "local"
	SourceRemote   = "remote"
	SourceSnapshot = "snapshot"
	SourceRollback = "rollback"
)

// MenuRequest asks a surface to open a context menu on an item.
type MenuRequest struct {
	ItemID string `json:"itemId"`
}

// TourRequest asks a surface to start the onboarding tour.
type TourRequest struct {
	Step string `json:"step,omitempty"`
}

var (
	Notifications     = NewTopic[Notification]("notifications")
	CollectionChanged = NewTopic[Change]("collection.changed")
	BookmarkBroadcast = NewTopic[domain.Bookmark]("bookmark.broadcast")
	OpenMenu          = NewTopic[MenuRequest]("menu.open")
	StartTour         = NewTopic[TourRequest]("tour.start")
)

// Notify publishes an error notification for op.
func Notify(b *Bus, op string, err error, ids ...string) {
	if b == nil || err == nil {
		return
	}
	Publish(b, Notifications, Notification{
		Level:   LevelError,
		Op:      op,
		Message: err.Error(),
		IDs:     ids,
		At:      time.Now(),
	})
}

// Inform publishes an info notification for op.
func Inform(b *Bus, op, msg string, ids ...string) {
	if b == nil {
		return
	}
	Publish(b, Notifications, Notification{
		Level:   LevelInfo,
		Op:      op,
		Message: msg,
		IDs:     ids,
		At:      time.Now(),
	})
}
