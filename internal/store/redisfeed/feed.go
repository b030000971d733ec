// Package redisfeed carries store changes between service instances over Redis pub/sub.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/travelquiz/internal/store"
)

const subscriberBuffer = 16

var _ store.Feed = (*Feed)(nil)

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Feed struct {
	redis  Redis
	prefix string
}

func NewFeed(r Redis, prefix string) *Feed {
	return &Feed{redis: r, prefix: prefix}
}

func (f *Feed) Publish(ctx context.Context, c store.Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redisfeed: marshal change: %v", err)
	}

	if err := f.redis.Publish(ctx, f.channel(c.RoomID), b).Err(); err != nil {
		return fmt.Errorf("redisfeed: publish: %w", err)
	}

	return nil
}

// Subscribe returns once Redis confirmed the subscription, so no change published after it
// returns is missed. A subscriber that falls behind drops changes.
func (f *Feed) Subscribe(ctx context.Context, roomID string) (<-chan store.Change, func(), error) {
	ps := f.redis.Subscribe(ctx, f.channel(roomID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redisfeed: subscribe %s: %w", roomID, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan store.Change, subscriberBuffer)

	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return

			case m, ok := <-msgs:
				if !ok {
					return
				}

				var c store.Change
				if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
					slog.WarnContext(ctx, "redisfeed: discard malformed change", "channel", m.Channel, "error", err)
					continue
				}

				select {
				case out <- c:
				default:
					slog.DebugContext(ctx, "redisfeed: subscriber behind, change dropped", "room_id", roomID)
				}
			}
		}
	}()

	return out, cancel, nil
}

func (f *Feed) channel(roomID string) string {
	return fmt.Sprintf("%s:room:%s:changes", f.prefix, roomID)
}
