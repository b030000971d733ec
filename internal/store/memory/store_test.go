package memory_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/store"
	"github.com/victornm/travelquiz/internal/store/memory"
)

var t0 = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func TestStore_AddPlayer(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, s *memory.Store) domain.Player
		wantErr error
	}{
		"should add a player to a lobby room": {
			arrange: func(t *testing.T, s *memory.Store) domain.Player {
				return domain.Player{ID: "p2", RoomID: "r1", Name: "Bob", CreatedAt: t0.Add(time.Second)}
			},
		},

		"should reject a name that differs only by case": {
			arrange: func(t *testing.T, s *memory.Store) domain.Player {
				return domain.Player{ID: "p2", RoomID: "r1", Name: "ALICE"}
			},
			wantErr: domain.ErrNameTaken,
		},

		"should reject joining a started room": {
			arrange: func(t *testing.T, s *memory.Store) domain.Player {
				_, ok, err := s.StartRoom(context.Background(), "r1", []int64{1}, t0)
				require.NoError(t, err)
				require.True(t, ok)
				return domain.Player{ID: "p2", RoomID: "r1", Name: "Bob"}
			},
			wantErr: domain.ErrRoomAlreadyStarted,
		},

		"should reject an unknown room": {
			arrange: func(t *testing.T, s *memory.Store) domain.Player {
				return domain.Player{ID: "p2", RoomID: "nope", Name: "Bob"}
			},
			wantErr: domain.ErrRoomNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := newStoreWithRoom(t)

			err := s.AddPlayer(context.Background(), tt.arrange(t, s))
			if tt.wantErr != nil {
				require.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)

			players, err := s.ListPlayers(context.Background(), "r1")
			require.NoError(t, err)
			require.Len(t, players, 2)
			require.Equal(t, "p1", players[0].ID, "players should be in join order")
		})
	}
}

func TestStore_FindRoomByPin(t *testing.T) {
	s := newStoreWithRoom(t)
	ctx := context.Background()

	r, err := s.FindRoomByPin(ctx, "123456")
	require.NoError(t, err)
	require.Equal(t, "r1", r.ID)

	err = s.CreateRoom(ctx, domain.Room{ID: "r2", Pin: "123456", Status: domain.StatusLobby}, domain.Player{ID: "h2", RoomID: "r2"})
	require.True(t, stderrors.Is(err, domain.ErrPinTaken))

	_, _, err = s.StartRoom(ctx, "r1", []int64{1}, t0)
	require.NoError(t, err)
	_, _, err = s.AdvanceRoom(ctx, "r1", 0, t0)
	require.NoError(t, err)

	_, err = s.FindRoomByPin(ctx, "123456")
	require.True(t, stderrors.Is(err, domain.ErrRoomNotFound), "finished rooms release their pin")

	err = s.CreateRoom(ctx, domain.Room{ID: "r2", Pin: "123456", Status: domain.StatusLobby}, domain.Player{ID: "h2", RoomID: "r2"})
	require.NoError(t, err)
}

func TestStore_AdvanceRoom(t *testing.T) {
	s := newStoreWithRoom(t)
	ctx := context.Background()

	r, ok, err := s.StartRoom(ctx, "r1", []int64{10, 20}, t0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.RoomState{Status: domain.StatusActive, QuestionIndex: 0}, r.State())

	_, ok, err = s.StartRoom(ctx, "r1", []int64{10, 20}, t0)
	require.NoError(t, err)
	require.False(t, ok, "a started room should not start again")

	_, inserted, err := s.RecordAnswer(ctx, domain.AnswerRecord{RoomID: "r1", PlayerID: "p1", QuestionID: 10, ChoiceID: 1, PointsEarned: 900, AnswerTime: 2})
	require.NoError(t, err)
	require.True(t, inserted)

	r, ok, err = s.AdvanceRoom(ctx, "r1", 0, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, *r.CurrentQuestionIndex)
	require.Equal(t, t0.Add(time.Minute), *r.RoundStartedAt)

	p, err := s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	require.False(t, p.HasAnswered, "round state should be cleared by the advance")
	require.Nil(t, p.AnswerTime)
	require.Equal(t, 900, p.Score)

	_, ok, err = s.AdvanceRoom(ctx, "r1", 0, t0)
	require.NoError(t, err)
	require.False(t, ok, "a stale advance should be a no-op")

	r, ok, err = s.AdvanceRoom(ctx, "r1", 1, t0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusFinished, r.Status)
	require.Nil(t, r.CurrentQuestionIndex)
}

func TestStore_AdvanceRoom_Concurrent(t *testing.T) {
	s := newStoreWithRoom(t)
	ctx := context.Background()

	_, _, err := s.StartRoom(ctx, "r1", []int64{10, 20, 30}, t0)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := s.AdvanceRoom(ctx, "r1", 0, t0); err == nil && ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), applied.Load())

	r, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 1, *r.CurrentQuestionIndex)
}

func TestStore_RecordAnswer(t *testing.T) {
	s := newStoreWithRoom(t)
	ctx := context.Background()

	_, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)

	_, _, err = s.RecordAnswer(ctx, domain.AnswerRecord{RoomID: "r1", PlayerID: "p1", QuestionID: 10})
	require.True(t, stderrors.Is(err, domain.ErrRoomNotActive))

	_, _, err = s.StartRoom(ctx, "r1", []int64{10, 20}, t0)
	require.NoError(t, err)

	_, _, err = s.RecordAnswer(ctx, domain.AnswerRecord{RoomID: "r1", PlayerID: "p1", QuestionID: 20})
	require.True(t, stderrors.Is(err, domain.ErrStaleSubmission))

	first, inserted, err := s.RecordAnswer(ctx, domain.AnswerRecord{ID: "a1", RoomID: "r1", PlayerID: "p1", QuestionID: 10, ChoiceID: 1, IsCorrect: true, PointsEarned: 800})
	require.NoError(t, err)
	require.True(t, inserted)

	again, inserted, err := s.RecordAnswer(ctx, domain.AnswerRecord{ID: "a2", RoomID: "r1", PlayerID: "p1", QuestionID: 10, ChoiceID: 2, PointsEarned: 0})
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, first, again, "a duplicate should return the first record")

	p, err := s.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 800, p.Score, "a duplicate should not add points")

	answers, err := s.ListAnswers(ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, answers, 1)
}

func TestFeed(t *testing.T) {
	f := memory.NewFeed()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsubscribe, err := f.Subscribe(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, f.Publish(ctx, store.Change{RoomID: "r2", Table: store.TableRooms}))
	require.NoError(t, f.Publish(ctx, store.Change{RoomID: "r1", Table: store.TablePlayers}))

	select {
	case c := <-ch:
		require.Equal(t, "r1", c.RoomID)
		require.Equal(t, store.TablePlayers, c.Table)
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}

	for i := 0; i < 100; i++ {
		require.NoError(t, f.Publish(ctx, store.Change{RoomID: "r1", Table: store.TableRooms}), "a slow subscriber should not block publishers")
	}

	unsubscribe()
	unsubscribe()

	n := 0
	for range ch {
		n++
	}
	require.LessOrEqual(t, n, 16)
}

func newStoreWithRoom(t *testing.T) *memory.Store {
	t.Helper()

	s := memory.NewStore()
	err := s.CreateRoom(context.Background(),
		domain.Room{ID: "r1", Pin: "123456", SubtopicID: 1, Status: domain.StatusLobby, CreatedAt: t0},
		domain.Player{ID: "p1", RoomID: "r1", Name: "Alice", IsHost: true, CreatedAt: t0},
	)
	require.NoError(t, err)

	return s
}
