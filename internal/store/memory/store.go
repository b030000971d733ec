// Package memory implements store.Store and store.Feed inside the process. One mutex stands in for
// the row locks of a database, which makes it suitable for tests and single-node development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
	"github.com/victornm/travelquiz/internal/store"
)

var _ store.Store = (*Store)(nil)

type answerKey struct {
	roomID     string
	playerID   string
	questionID int64
}

type Store struct {
	mu      sync.Mutex
	rooms   map[string]domain.Room
	players map[string]domain.Player
	roster  map[string][]string
	answers map[answerKey]domain.AnswerRecord
}

func NewStore() *Store {
	return &Store{
		rooms:   make(map[string]domain.Room),
		players: make(map[string]domain.Player),
		roster:  make(map[string][]string),
		answers: make(map[answerKey]domain.AnswerRecord),
	}
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room, host domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.Pin == room.Pin && r.Status != domain.StatusFinished {
			return domain.ErrPinTaken.With(errors.WithMessagef("pin bound to another room: %s", room.Pin))
		}
	}

	s.rooms[room.ID] = cloneRoom(room)
	s.players[host.ID] = host
	s.roster[room.ID] = append(s.roster[room.ID], host.ID)

	return nil
}

func (s *Store) GetRoom(_ context.Context, id string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roomLocked(id)
}

func (s *Store) FindRoomByPin(_ context.Context, pin string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.Pin == pin && r.Status != domain.StatusFinished {
			return cloneRoom(r), nil
		}
	}

	return domain.Room{}, domain.ErrRoomNotFound.With(errors.WithMessagef("room not found: pin=%s", pin))
}

func (s *Store) ListActiveRooms(_ context.Context) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rooms []domain.Room
	for _, r := range s.rooms {
		if r.Status == domain.StatusActive {
			rooms = append(rooms, cloneRoom(r))
		}
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms, nil
}

func (s *Store) AddPlayer(_ context.Context, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.roomLocked(p.RoomID)
	if err != nil {
		return err
	}

	if r.Status != domain.StatusLobby {
		return domain.ErrRoomAlreadyStarted
	}

	for _, id := range s.roster[p.RoomID] {
		if strings.EqualFold(s.players[id].Name, p.Name) {
			return domain.ErrNameTaken.With(errors.WithMessagef("player name already taken: %s", p.Name))
		}
	}

	s.players[p.ID] = p
	s.roster[p.RoomID] = append(s.roster[p.RoomID], p.ID)

	return nil
}

func (s *Store) GetPlayer(_ context.Context, id string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound.With(errors.WithMessagef("player not found: %s", id))
	}

	return clonePlayer(p), nil
}

func (s *Store) ListPlayers(_ context.Context, roomID string) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.roster[roomID]
	players := make([]domain.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, clonePlayer(s.players[id]))
	}

	sort.SliceStable(players, func(i, j int) bool { return players[i].CreatedAt.Before(players[j].CreatedAt) })
	return players, nil
}

func (s *Store) StartRoom(_ context.Context, roomID string, questionIDs []int64, at time.Time) (domain.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return r, false, err
	}

	if r.Status != domain.StatusLobby {
		return r, false, nil
	}

	first := 0
	r.Status = domain.StatusActive
	r.CurrentQuestionIndex = &first
	r.QuestionIDs = append([]int64(nil), questionIDs...)
	r.RoundStartedAt = &at
	r.UpdatedAt = at

	s.rooms[roomID] = r
	s.clearRoundLocked(roomID)

	return cloneRoom(r), true, nil
}

func (s *Store) AdvanceRoom(_ context.Context, roomID string, from int, at time.Time) (domain.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return r, false, err
	}

	if r.Status != domain.StatusActive || r.CurrentQuestionIndex == nil || *r.CurrentQuestionIndex != from {
		return r, false, nil
	}

	if from >= len(r.QuestionIDs)-1 {
		r.Status = domain.StatusFinished
		r.CurrentQuestionIndex = nil
		r.RoundStartedAt = nil
	} else {
		next := from + 1
		r.CurrentQuestionIndex = &next
		r.RoundStartedAt = &at
	}
	r.UpdatedAt = at

	s.rooms[roomID] = r
	s.clearRoundLocked(roomID)

	return cloneRoom(r), true, nil
}

func (s *Store) RecordAnswer(_ context.Context, a domain.AnswerRecord) (domain.AnswerRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := answerKey{roomID: a.RoomID, playerID: a.PlayerID, questionID: a.QuestionID}
	if prev, ok := s.answers[k]; ok {
		return prev, false, nil
	}

	r, err := s.roomLocked(a.RoomID)
	if err != nil {
		return a, false, err
	}

	p, ok := s.players[a.PlayerID]
	if !ok || p.RoomID != a.RoomID {
		return a, false, domain.ErrPlayerNotFound.With(errors.WithMessagef("player not found: room=%s player=%s", a.RoomID, a.PlayerID))
	}

	if r.Status == domain.StatusLobby {
		return a, false, domain.ErrRoomNotActive
	}

	if qid, ok := r.CurrentQuestionID(); !ok || qid != a.QuestionID {
		return a, false, domain.ErrStaleSubmission
	}

	s.answers[k] = a

	elapsed := a.AnswerTime
	p.Score += a.PointsEarned
	p.HasAnswered = true
	p.AnswerTime = &elapsed
	s.players[p.ID] = p

	return a, true, nil
}

func (s *Store) ListAnswers(_ context.Context, roomID string, questionID int64) ([]domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var answers []domain.AnswerRecord
	for _, id := range s.roster[roomID] {
		if a, ok := s.answers[answerKey{roomID: roomID, playerID: id, questionID: questionID}]; ok {
			answers = append(answers, a)
		}
	}

	return answers, nil
}

func (s *Store) roomLocked(id string) (domain.Room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound.With(errors.WithMessagef("room not found: %s", id))
	}

	return cloneRoom(r), nil
}

func (s *Store) clearRoundLocked(roomID string) {
	for _, id := range s.roster[roomID] {
		p := s.players[id]
		p.HasAnswered = false
		p.AnswerTime = nil
		s.players[id] = p
	}
}

func cloneRoom(r domain.Room) domain.Room {
	if r.CurrentQuestionIndex != nil {
		i := *r.CurrentQuestionIndex
		r.CurrentQuestionIndex = &i
	}
	if r.RoundStartedAt != nil {
		t := *r.RoundStartedAt
		r.RoundStartedAt = &t
	}
	r.QuestionIDs = append([]int64(nil), r.QuestionIDs...)
	return r
}

func clonePlayer(p domain.Player) domain.Player {
	if p.AnswerTime != nil {
		t := *p.AnswerTime
		p.AnswerTime = &t
	}
	return p
}
