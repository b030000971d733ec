package event_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/travelquiz/internal/event"
)

func TestBus_Dispatch(t *testing.T) {
	type subscriber struct {
		name   string
		events []string
	}

	tests := map[string]struct {
		subscribers []subscriber
		published   []string
		want        map[string][]string
	}{
		"should deliver only the subscribed events": {
			subscribers: []subscriber{{name: "leaderboard", events: []string{"answer.recorded"}}},
			published:   []string{"answer.recorded", "player.joined", "answer.recorded"},
			want:        map[string][]string{"leaderboard": {"answer.recorded", "answer.recorded"}},
		},

		"should deliver one event to every subscriber": {
			subscribers: []subscriber{
				{name: "leaderboard", events: []string{"round.advanced"}},
				{name: "sync", events: []string{"round.advanced"}},
			},
			published: []string{"round.advanced"},
			want: map[string][]string{
				"leaderboard": {"round.advanced"},
				"sync":        {"round.advanced"},
			},
		},

		"should run one handler for each of its events": {
			subscribers: []subscriber{{name: "sync", events: []string{"player.joined", "room.started", "round.advanced"}}},
			published:   []string{"room.started", "player.joined", "leaderboard.updated", "round.advanced"},
			want:        map[string][]string{"sync": {"player.joined", "room.started", "round.advanced"}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var (
				mu  sync.Mutex
				got = make(map[string][]string)
			)

			b := event.NewBus()
			for _, s := range tt.subscribers {
				b.Subscribe(func(ctx context.Context, e event.Event) error {
					mu.Lock()
					defer mu.Unlock()
					got[s.name] = append(got[s.name], e.Name())
					return nil
				}, s.events...)
			}

			for _, e := range tt.published {
				b.Publish(context.Background(), named(e))
			}
			b.Stop()

			require.Len(t, got, len(tt.want))
			for s, want := range tt.want {
				assert.ElementsMatch(t, want, got[s], s)
			}
		})
	}
}

func TestBus_SlowHandlerIsIsolated(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(1))

	release := make(chan struct{})
	b.Subscribe(func(ctx context.Context, e event.Event) error {
		<-release
		return nil
	}, "slow")

	var fast atomic.Int32
	b.Subscribe(func(ctx context.Context, e event.Event) error {
		fast.Add(1)
		return nil
	}, "fast")

	b.Publish(context.Background(), named("slow"))
	for i := 0; i < 10; i++ {
		b.Publish(context.Background(), named("fast"))
	}

	require.Eventually(t, func() bool { return fast.Load() == 10 }, time.Second, 5*time.Millisecond)

	close(release)
	b.Stop()
}

func TestBus_HandlerContext(t *testing.T) {
	b := event.NewBus(event.WithTimeout(50 * time.Millisecond))

	var (
		panicked = make(chan struct{})
		ctxErr   = make(chan error, 1)
	)
	b.Subscribe(func(ctx context.Context, e event.Event) error {
		close(panicked)
		panic("boom")
	}, "panic")
	b.Subscribe(func(ctx context.Context, e event.Event) error {
		<-ctx.Done()
		ctxErr <- ctx.Err()
		return ctx.Err()
	}, "wait")

	ctx, cancel := context.WithCancel(context.Background())
	b.Publish(ctx, named("panic"))
	b.Publish(ctx, named("wait"))
	cancel()

	b.Stop()

	<-panicked
	require.ErrorIs(t, <-ctxErr, context.DeadlineExceeded, "handlers should outlive the publisher and stop at the timeout")
}

type named string

func (e named) Name() string {
	return string(e)
}
