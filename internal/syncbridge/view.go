package syncbridge

import (
	"sync"

	"github.com/victornm/travelquiz/internal/domain"
)

// Snapshot is the state of a room as one client sees it.
type Snapshot struct {
	Room    domain.Room
	Players []domain.Player
}

// View holds the latest snapshot of a room for one client. Snapshots may arrive late, twice or out
// of order from the push and poll paths, Apply merges them so the view never moves backward.
type View struct {
	mu      sync.Mutex
	has     bool
	room    domain.Room
	order   []string
	players map[string]domain.Player
}

func NewView() *View {
	return &View{
		players: make(map[string]domain.Player),
	}
}

// Apply merges s into the view and reports whether the view changed.
//
// A snapshot whose room state is behind the view is ignored. One that is ahead replaces the room
// and the round state of every player it lists. One at the same state keeps the highest score of
// each player and any answered flag already seen. Players are never removed.
func (v *View) Apply(s Snapshot) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	cmp := 1
	if v.has {
		cmp = s.Room.State().Compare(v.room.State())
	}

	if cmp < 0 {
		return false
	}

	changed := false
	if !v.has || cmp > 0 || s.Room.UpdatedAt.After(v.room.UpdatedAt) {
		changed = !v.has || !sameRoom(v.room, s.Room)
		v.room = s.Room
		v.has = true
	}

	for _, p := range s.Players {
		old, ok := v.players[p.ID]
		if !ok {
			v.order = append(v.order, p.ID)
			v.players[p.ID] = p
			changed = true
			continue
		}

		merged := p
		if old.Score > merged.Score {
			merged.Score = old.Score
		}
		if cmp == 0 && old.HasAnswered && !merged.HasAnswered {
			merged.HasAnswered = true
			merged.AnswerTime = old.AnswerTime
		}

		if !samePlayer(old, merged) {
			v.players[p.ID] = merged
			changed = true
		}
	}

	return changed
}

// State returns the room state of the view, and false before the first snapshot.
func (v *View) State() (domain.RoomState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.room.State(), v.has
}

// Snapshot returns a copy of the view, players in join order.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		Room:    v.room,
		Players: make([]domain.Player, 0, len(v.order)),
	}
	for _, id := range v.order {
		s.Players = append(s.Players, v.players[id])
	}

	return s
}

func sameRoom(a, b domain.Room) bool {
	return a.State() == b.State() && a.Status == b.Status && a.UpdatedAt.Equal(b.UpdatedAt)
}

func samePlayer(a, b domain.Player) bool {
	return a.Score == b.Score && a.HasAnswered == b.HasAnswered && a.Name == b.Name &&
		((a.AnswerTime == nil) == (b.AnswerTime == nil)) &&
		(a.AnswerTime == nil || *a.AnswerTime == *b.AnswerTime)
}
