package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

const subscriptionBuffer = 64

// publish sends a change event on the owner's channel. A failed publish
// is logged only: the write itself succeeded and the next snapshot
// reload repairs listeners that missed it.
func (s *Store) publish(ctx context.Context, owner string, kind remote.Kind, entity remote.Entity, v any) {
	ev, err := remote.NewEvent(kind, entity, v)
	if err != nil {
		s.log.Warn("Failed to build change event", logger.String("entity", string(entity)), logger.Error(err))
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("Failed to marshal change event", logger.String("entity", string(entity)), logger.Error(err))
		return
	}

	channel := remote.Channel(owner, entity)
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		s.log.Warn("Failed to publish change event",
			logger.String("channel", channel),
			logger.String("kind", string(kind)),
			logger.Error(err),
		)
	}
}

// Subscribe streams the owner's change events for entity. The returned
// channel closes when ctx ends or the client is closed.
func (s *Store) Subscribe(ctx context.Context, owner string, entity remote.Entity) (<-chan remote.Event, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	channel := remote.Channel(owner, entity)

	ps := s.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w: %w", channel, remote.ErrUnavailable, err)
	}

	out := make(chan remote.Event, subscriptionBuffer)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					s.log.Warn("Change stream closed", logger.String("channel", channel))
					return
				}
				var ev remote.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.log.Warn("Dropping unreadable change event",
						logger.String("channel", channel),
						logger.Error(err),
					)
					continue
				}
				if ev.Entity == "" {
					ev.Entity = entity
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.log.Debug("Subscribed to change stream", logger.String("channel", channel))
	return out, nil
}
