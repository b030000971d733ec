package room_test

import (
	"context"
	stderrors "errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/travelquiz/internal/content"
	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/room"
	"github.com/victornm/travelquiz/internal/store/memory"
)

func TestService_CreateRoom(t *testing.T) {
	type (
		inputs struct {
			req  room.CreateRoomRequest
			pins []string
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, res *room.CreateRoomResponse, err error)
	}{
		"should create a lobby room with its host": {
			arrange: func() inputs {
				return inputs{req: room.CreateRoomRequest{SubtopicID: 10, HostName: "  Alice "}}
			},

			assert: func(t *testing.T, res *room.CreateRoomResponse, err error) {
				require.NoError(t, err)
				require.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), res.Room.Pin)
				require.Equal(t, domain.StatusLobby, res.Room.Status)
				require.Nil(t, res.Room.CurrentQuestionIndex)
				require.Equal(t, int64(1), res.TopicID)
				require.Equal(t, "Alice", res.Host.Name)
				require.True(t, res.Host.IsHost)
				require.Zero(t, res.Host.Score)
			},
		},

		"should keep leading zeros of the pin": {
			arrange: func() inputs {
				return inputs{req: room.CreateRoomRequest{SubtopicID: 10, HostName: "Alice"}, pins: []string{"000042"}}
			},

			assert: func(t *testing.T, res *room.CreateRoomResponse, err error) {
				require.NoError(t, err)
				require.Equal(t, "000042", res.Room.Pin)
			},
		},

		"should retry when the pin is bound to another room": {
			arrange: func() inputs {
				return inputs{req: room.CreateRoomRequest{SubtopicID: 10, HostName: "Alice"}, pins: []string{"111111", "222222"}}
			},

			assert: func(t *testing.T, res *room.CreateRoomResponse, err error) {
				require.NoError(t, err)
				require.Equal(t, "222222", res.Room.Pin)
			},
		},

		"should fail when no pin is free": {
			arrange: func() inputs {
				pins := make([]string, 10)
				for i := range pins {
					pins[i] = "111111"
				}
				return inputs{req: room.CreateRoomRequest{SubtopicID: 10, HostName: "Alice"}, pins: pins}
			},

			assert: func(t *testing.T, _ *room.CreateRoomResponse, err error) {
				require.True(t, errors.IsCode(err, errors.CodeInternal), "got %v", err)
			},
		},

		"should fail when the subtopic has no questions": {
			arrange: func() inputs {
				return inputs{req: room.CreateRoomRequest{SubtopicID: 20, HostName: "Alice"}}
			},

			assert: func(t *testing.T, _ *room.CreateRoomResponse, err error) {
				require.True(t, stderrors.Is(err, domain.ErrContentNotFound), "got %v", err)
			},
		},

		"should fail when the subtopic does not exist": {
			arrange: func() inputs {
				return inputs{req: room.CreateRoomRequest{SubtopicID: 99, HostName: "Alice"}}
			},

			assert: func(t *testing.T, _ *room.CreateRoomResponse, err error) {
				require.True(t, stderrors.Is(err, domain.ErrContentNotFound), "got %v", err)
			},
		},

		"should reject an empty host name": {
			arrange: func() inputs {
				return inputs{req: room.CreateRoomRequest{SubtopicID: 10, HostName: "   "}}
			},

			assert: func(t *testing.T, _ *room.CreateRoomResponse, err error) {
				require.True(t, stderrors.Is(err, domain.ErrInvalidName), "got %v", err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			in := tt.arrange()

			st := memory.NewStore()
			existing := makeService(t, st, []string{"111111"})
			_, err := existing.CreateRoom(context.Background(), room.CreateRoomRequest{SubtopicID: 10, HostName: "Other"})
			require.NoError(t, err)

			s := makeService(t, st, in.pins)
			res, err := s.CreateRoom(context.Background(), in.req)
			tt.assert(t, res, err)
		})
	}
}

func TestService_JoinRoom(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, s *room.Service, created *room.CreateRoomResponse) room.JoinRoomRequest
		wantErr error
	}{
		"should join a lobby room": {
			arrange: func(t *testing.T, _ *room.Service, created *room.CreateRoomResponse) room.JoinRoomRequest {
				return room.JoinRoomRequest{Pin: created.Room.Pin, PlayerName: "Bob"}
			},
		},

		"should reject a name used in the room regardless of case": {
			arrange: func(t *testing.T, _ *room.Service, created *room.CreateRoomResponse) room.JoinRoomRequest {
				return room.JoinRoomRequest{Pin: created.Room.Pin, PlayerName: "aLiCe"}
			},
			wantErr: domain.ErrNameTaken,
		},

		"should reject an unknown pin": {
			arrange: func(t *testing.T, _ *room.Service, _ *room.CreateRoomResponse) room.JoinRoomRequest {
				return room.JoinRoomRequest{Pin: "999999", PlayerName: "Bob"}
			},
			wantErr: domain.ErrRoomNotFound,
		},

		"should reject a malformed pin": {
			arrange: func(t *testing.T, _ *room.Service, _ *room.CreateRoomResponse) room.JoinRoomRequest {
				return room.JoinRoomRequest{Pin: "12a456", PlayerName: "Bob"}
			},
			wantErr: domain.ErrInvalidPin,
		},

		"should reject a name that is too long": {
			arrange: func(t *testing.T, _ *room.Service, created *room.CreateRoomResponse) room.JoinRoomRequest {
				return room.JoinRoomRequest{Pin: created.Room.Pin, PlayerName: "abcdefghijklmnopqrstuvwxyz"}
			},
			wantErr: domain.ErrInvalidName,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			eb := event.NewBus()

			var (
				mu     sync.Mutex
				joined []domain.EventPlayerJoined
			)
			eb.Subscribe(func(_ context.Context, e event.Event) error {
				mu.Lock()
				joined = append(joined, e.(domain.EventPlayerJoined))
				mu.Unlock()
				return nil
			}, domain.EventNamePlayerJoined)

			s := room.NewService(room.Config{
				Store:    memory.NewStore(),
				Content:  newContent(),
				EventBus: eb,
			})

			created, err := s.CreateRoom(ctx, room.CreateRoomRequest{SubtopicID: 10, HostName: "Alice"})
			require.NoError(t, err)

			res, err := s.JoinRoom(ctx, tt.arrange(t, s, created))
			eb.Stop()

			if tt.wantErr != nil {
				require.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
				require.Empty(t, joined)
				return
			}

			require.NoError(t, err)
			require.Equal(t, created.Room.ID, res.Room.ID)
			require.False(t, res.Player.IsHost)
			require.Equal(t, int64(1), res.TopicID)
			require.Len(t, joined, 1)
			require.Equal(t, res.Player.ID, joined[0].Player.ID)

			players, err := s.ListPlayers(ctx, room.ListPlayersRequest{RoomID: created.Room.ID})
			require.NoError(t, err)
			require.Len(t, players, 2)
			require.Equal(t, created.Host.ID, players[0].ID)
			require.Equal(t, res.Player.ID, players[1].ID)
		})
	}
}

func TestService_JoinRoom_Started(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := makeService(t, st, nil)

	created, err := s.CreateRoom(ctx, room.CreateRoomRequest{SubtopicID: 10, HostName: "Alice"})
	require.NoError(t, err)

	_, _, err = st.StartRoom(ctx, created.Room.ID, []int64{101}, time.Now())
	require.NoError(t, err)

	_, err = s.JoinRoom(ctx, room.JoinRoomRequest{Pin: created.Room.Pin, PlayerName: "Bob"})
	require.True(t, stderrors.Is(err, domain.ErrRoomAlreadyStarted), "got %v", err)
}

func TestService_ListPlayers_UnknownRoom(t *testing.T) {
	s := makeService(t, memory.NewStore(), nil)

	_, err := s.ListPlayers(context.Background(), room.ListPlayersRequest{RoomID: "nope"})
	require.True(t, stderrors.Is(err, domain.ErrRoomNotFound))

	_, err = s.GetRoom(context.Background(), room.GetRoomRequest{RoomID: "nope"})
	require.True(t, stderrors.Is(err, domain.ErrRoomNotFound))
}

func makeService(t *testing.T, st *memory.Store, pins []string) *room.Service {
	t.Helper()

	c := room.Config{
		Store:    st,
		Content:  newContent(),
		EventBus: event.NewBus(),
	}

	if len(pins) > 0 {
		var mu sync.Mutex
		c.NewPin = func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(pins) == 0 {
				return "999999", nil
			}
			p := pins[0]
			pins = pins[1:]
			return p, nil
		}
	}

	return room.NewService(c)
}

func newContent() *content.Static {
	return content.NewStatic(
		[]domain.Topic{{ID: 1, City: "Paris", Country: "France", Subtopics: []domain.Subtopic{
			{ID: 10, TopicID: 1, Name: "Landmarks"},
			{ID: 20, TopicID: 1, Name: "Food"},
		}}},
		map[int64][]domain.Question{
			10: {{ID: 101, SubtopicID: 10, Prompt: "Which river crosses Paris?", TimeLimitSec: 20}},
		},
	)
}
