// Package store defines the durable record storage behind rooms and the change feed it emits.
//
// All coordination state lives behind Store so any number of stateless service instances can
// serve the same room: the only mutations are single-row atomic updates and conditional updates
// guarded by the expected previous value.
package store

import (
	"context"
	"time"

	"github.com/victornm/travelquiz/internal/domain"
)

type Store interface {
	// CreateRoom inserts a room together with its host player.
	// It fails with domain.ErrPinTaken when the pin is bound to a room that is not finished.
	CreateRoom(ctx context.Context, room domain.Room, host domain.Player) error
	// GetRoom fails with domain.ErrRoomNotFound.
	GetRoom(ctx context.Context, id string) (domain.Room, error)
	// FindRoomByPin resolves a pin among rooms that are not finished.
	FindRoomByPin(ctx context.Context, pin string) (domain.Room, error)
	// ListActiveRooms returns the rooms whose status is active.
	ListActiveRooms(ctx context.Context) ([]domain.Room, error)

	// AddPlayer inserts a player while the room is still in the lobby. It fails with
	// domain.ErrRoomAlreadyStarted, or domain.ErrNameTaken when the name collides case-insensitively.
	AddPlayer(ctx context.Context, p domain.Player) error
	// GetPlayer fails with domain.ErrPlayerNotFound.
	GetPlayer(ctx context.Context, id string) (domain.Player, error)
	// ListPlayers returns the players of a room in join order.
	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)

	// StartRoom moves a lobby room to active(0) with the given question sequence and clears
	// every player's round state in the same transaction. The boolean is false, and the room is
	// returned as found, when the room had already left the lobby.
	StartRoom(ctx context.Context, roomID string, questionIDs []int64, at time.Time) (domain.Room, bool, error)
	// AdvanceRoom moves active(from) to active(from+1), or to finished when from is the last index,
	// and clears every player's round state in the same transaction. Only the first of concurrent
	// callers with the same from applies it, the others get false and the room as it is now.
	AdvanceRoom(ctx context.Context, roomID string, from int, at time.Time) (domain.Room, bool, error)

	// RecordAnswer stores the answer unless one exists for (room, player, question), adds its points
	// to the player's score and marks the player as answered, all at once. The room must be active on
	// that question: domain.ErrRoomNotActive for a lobby room, domain.ErrStaleSubmission when the
	// round has moved on or the room finished.
	// It returns the stored record, which is the earlier one when the answer was a duplicate,
	// and whether this call inserted it.
	RecordAnswer(ctx context.Context, a domain.AnswerRecord) (domain.AnswerRecord, bool, error)
	// ListAnswers returns the answers recorded for a question of a room.
	ListAnswers(ctx context.Context, roomID string, questionID int64) ([]domain.AnswerRecord, error)
}

type Table string

const (
	TableRooms   Table = "rooms"
	TablePlayers Table = "players"
)

// Change tells subscribers that rows of a table changed for a room. It carries no row data,
// subscribers re-fetch.
type Change struct {
	RoomID string    `json:"room_id"`
	Table  Table     `json:"table"`
	At     time.Time `json:"at"`
}

// Feed is a best-effort change notification feed keyed by room. Deliveries may be dropped.
type Feed interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe returns the changes of a room until cancel is called or ctx is done.
	Subscribe(ctx context.Context, roomID string) (changes <-chan Change, cancel func(), err error)
}
