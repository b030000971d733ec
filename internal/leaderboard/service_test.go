package leaderboard_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/leaderboard"
	"github.com/victornm/travelquiz/internal/store/memory"
)

var t0 = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func TestRank(t *testing.T) {
	tests := map[string]struct {
		players []domain.Player
		viewer  string
		want    []domain.LeaderboardEntry
	}{
		"should give tied players distinct ranks in join order": {
			players: []domain.Player{
				{ID: "a", Name: "A", Score: 100, CreatedAt: t0},
				{ID: "b", Name: "B", Score: 300, CreatedAt: t0.Add(time.Second)},
				{ID: "c", Name: "C", Score: 300, CreatedAt: t0.Add(2 * time.Second)},
			},
			viewer: "c",
			want: []domain.LeaderboardEntry{
				{Rank: 1, PlayerID: "b", PlayerName: "B", Score: 300},
				{Rank: 2, PlayerID: "c", PlayerName: "C", Score: 300, IsMe: true},
				{Rank: 3, PlayerID: "a", PlayerName: "A", Score: 100},
			},
		},

		"should break equal join times by id": {
			players: []domain.Player{
				{ID: "z", Name: "Z", CreatedAt: t0},
				{ID: "y", Name: "Y", CreatedAt: t0},
			},
			want: []domain.LeaderboardEntry{
				{Rank: 1, PlayerID: "y", PlayerName: "Y"},
				{Rank: 2, PlayerID: "z", PlayerName: "Z"},
			},
		},

		"should return an empty board for no players": {
			want: []domain.LeaderboardEntry{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.want, leaderboard.Rank(tt.players, tt.viewer))
		})
	}
}

func TestService_GetLeaderboard(t *testing.T) {
	st := newStore(t)
	s := makeService(t, withStore(st))

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		RoomID:   "r1",
		ViewerID: "p2",
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		RoomID: "r1",
		Entries: []domain.LeaderboardEntry{
			{Rank: 1, PlayerID: "p2", PlayerName: "Bob", Score: 900, IsMe: true},
			{Rank: 2, PlayerID: "p1", PlayerName: "Alice", Score: 0},
		},
	}
	require.Equal(t, want, resp)

	_, err = s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{RoomID: "nope"})
	require.True(t, stderrors.Is(err, domain.ErrRoomNotFound))
}

func TestServer_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []event.Event
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	answered := func(room string) event.Event {
		return domain.EventAnswerRecorded{
			Answer: domain.AnswerRecord{RoomID: room, PlayerID: "p2", CreatedAt: time.Now()},
		}
	}

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish correct event leaderboard.updated after receiving answer.recorded": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []event.Event{answered("r1")},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				l := out.publishedEvents[0].Leaderboard
				require.Equal(t, "r1", l.RoomID)
				require.Equal(t, "p2", l.Entries[0].PlayerID)
				require.False(t, l.Entries[0].IsMe, "broadcast boards have no viewer")
			},
		},

		"should publish 2 events leaderboard.updated after receiving events answer.recorded for 2 different rooms": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []event.Event{answered("r1"), answered("r2")},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated event")
			},
		},

		"should publish at the start and at the end of a burst of answer.recorded for the same room": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []event.Event{answered("r1"), answered("r1"), answered("r1")},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive a leading and a trailing leaderboard updated event")
			},
		},

		"should publish final standings regardless of the publish interval": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []event.Event{
						answered("r1"),
						domain.EventRoundAdvanced{Room: domain.Room{ID: "r1", Status: domain.StatusFinished}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2)
			},
		},

		"should publish the standings when a round advances to another question": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []event.Event{
						domain.EventRoundAdvanced{Room: domain.Room{ID: "r1", Status: domain.StatusActive}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1)
				require.Equal(t, "r1", out.publishedEvents[0].Leaderboard.RoomID)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			}, domain.EventNameLeaderboardUpdated)

			st := newStore(t)
			require.NoError(t, st.CreateRoom(context.Background(),
				domain.Room{ID: "r2", Pin: "222222", Status: domain.StatusLobby},
				domain.Player{ID: "q1", RoomID: "r2", Name: "Dan", IsHost: true},
			))

			makeService(t,
				withEventBus(eb),
				withStore(st),
			)

			// Publish one at a time so the throttle sees them in order.
			for _, e := range in.receivedEvents {
				eb.Publish(context.Background(), e)
				time.Sleep(20 * time.Millisecond)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_PublishesStandingsThatClosedTheRound(t *testing.T) {
	ctx := context.Background()
	eb := event.NewBus()

	var (
		mu        sync.Mutex
		published []domain.Leaderboard
	)
	eb.Subscribe(func(ctx context.Context, e event.Event) error {
		mu.Lock()
		published = append(published, e.(domain.EventLeaderboardUpdated).Leaderboard)
		mu.Unlock()
		return nil
	}, domain.EventNameLeaderboardUpdated)

	st := newStore(t)
	makeService(t, withEventBus(eb), withStore(st), withPublishInterval(time.Minute))

	eb.Publish(ctx, domain.EventAnswerRecorded{Answer: domain.AnswerRecord{RoomID: "r1", PlayerID: "p2", CreatedAt: time.Now()}})
	time.Sleep(20 * time.Millisecond)

	rec := domain.AnswerRecord{ID: "a2", RoomID: "r1", PlayerID: "p1", QuestionID: 101, ChoiceID: 1, IsCorrect: true, PointsEarned: 950}
	_, _, err := st.RecordAnswer(ctx, rec)
	require.NoError(t, err)
	eb.Publish(ctx, domain.EventAnswerRecorded{Answer: rec})

	r, _, err := st.AdvanceRoom(ctx, "r1", 0, t0.Add(time.Minute))
	require.NoError(t, err)
	eb.Publish(ctx, domain.EventRoundAdvanced{Room: r})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		for _, l := range published {
			if l.Entries[0].PlayerID == "p1" && l.Entries[0].Score == 950 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "the answer that closed the round should be broadcast")
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus:        event.NewBus(),
		Store:           memory.NewStore(),
		Redis:           rc,
		Prefix:          "test",
		PublishInterval: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()

	st := memory.NewStore()
	require.NoError(t, st.CreateRoom(ctx,
		domain.Room{ID: "r1", Pin: "111111", SubtopicID: 10, Status: domain.StatusLobby, CreatedAt: t0},
		domain.Player{ID: "p1", RoomID: "r1", Name: "Alice", IsHost: true, CreatedAt: t0},
	))
	require.NoError(t, st.AddPlayer(ctx, domain.Player{ID: "p2", RoomID: "r1", Name: "Bob", CreatedAt: t0.Add(time.Second)}))

	_, _, err := st.StartRoom(ctx, "r1", []int64{101}, t0)
	require.NoError(t, err)
	_, _, err = st.RecordAnswer(ctx, domain.AnswerRecord{ID: "a1", RoomID: "r1", PlayerID: "p2", QuestionID: 101, ChoiceID: 1, IsCorrect: true, PointsEarned: 900})
	require.NoError(t, err)

	return st
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func withPublishInterval(d time.Duration) options {
	return func(c *leaderboard.Config) {
		c.PublishInterval = d
	}
}

func withStore(st *memory.Store) options {
	return func(c *leaderboard.Config) {
		c.Store = st
	}
}
