// Package room creates rooms and lets players into them.
package room

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/victornm/travelquiz/internal/content"
	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/store"
)

const (
	maxPinAttempts = 10
	maxNameLength  = 24
)

var pinPattern = regexp.MustCompile(`^[0-9]{6}$`)

type Config struct {
	Store    store.Store
	Content  content.Repository
	EventBus *event.Bus
	// NewPin overrides the pin generator, used in tests.
	NewPin func() (string, error)
	Now    func() time.Time
}

type Service struct {
	store   store.Store
	content content.Repository
	eb      *event.Bus
	newPin  func() (string, error)
	now     func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		content: c.Content,
		eb:      c.EventBus,
		newPin:  c.NewPin,
		now:     c.Now,
	}

	if s.newPin == nil {
		s.newPin = randomPin
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type CreateRoomRequest struct {
	SubtopicID int64
	HostName   string
}

type CreateRoomResponse struct {
	Room    domain.Room
	Host    domain.Player
	TopicID int64
}

// CreateRoom opens a lobby room for the subtopic with its host as the first player.
// The subtopic must have at least one question.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreateRoomResponse, error) {
	name, err := normalizeName(req.HostName)
	if err != nil {
		return nil, err
	}

	st, err := s.content.Subtopic(ctx, req.SubtopicID)
	if err != nil {
		return nil, err
	}

	qs, err := s.content.Questions(ctx, req.SubtopicID)
	if err != nil {
		return nil, err
	}

	if len(qs) == 0 {
		return nil, domain.ErrContentNotFound.With(errors.WithMessagef("subtopic has no questions: %d", req.SubtopicID))
	}

	roomID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate room ID: %w", err)
	}

	hostID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	now := s.now()
	host := domain.Player{
		ID:        hostID.String(),
		RoomID:    roomID.String(),
		Name:      name,
		IsHost:    true,
		CreatedAt: now,
	}

	for attempt := 1; attempt <= maxPinAttempts; attempt++ {
		pin, err := s.newPin()
		if err != nil {
			return nil, fmt.Errorf("generate pin: %w", err)
		}

		r := domain.Room{
			ID:         roomID.String(),
			Pin:        pin,
			SubtopicID: st.ID,
			Status:     domain.StatusLobby,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		err = s.store.CreateRoom(ctx, r, host)
		if stderrors.Is(err, domain.ErrPinTaken) {
			slog.DebugContext(ctx, "room: pin collision", "pin", pin, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}

		slog.InfoContext(ctx, "room: created", "room", r.ID, "pin", r.Pin, "subtopic", r.SubtopicID)

		return &CreateRoomResponse{
			Room:    r,
			Host:    host,
			TopicID: st.TopicID,
		}, nil
	}

	return nil, errors.New(errors.CodeInternal, errors.WithMessagef("no free pin after %d attempts", maxPinAttempts))
}

type JoinRoomRequest struct {
	Pin        string
	PlayerName string
}

type JoinRoomResponse struct {
	Room    domain.Room
	Player  domain.Player
	TopicID int64
}

// JoinRoom adds a player to the lobby room bound to the pin.
func (s *Service) JoinRoom(ctx context.Context, req JoinRoomRequest) (*JoinRoomResponse, error) {
	pin := strings.TrimSpace(req.Pin)
	if !pinPattern.MatchString(pin) {
		return nil, domain.ErrInvalidPin.With(errors.WithMessagef("pin must be 6 digits: %q", req.Pin))
	}

	name, err := normalizeName(req.PlayerName)
	if err != nil {
		return nil, err
	}

	r, err := s.store.FindRoomByPin(ctx, pin)
	if err != nil {
		return nil, err
	}

	if r.Status != domain.StatusLobby {
		return nil, domain.ErrRoomAlreadyStarted
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	p := domain.Player{
		ID:        id.String(),
		RoomID:    r.ID,
		Name:      name,
		CreatedAt: s.now(),
	}

	if err := s.store.AddPlayer(ctx, p); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventPlayerJoined{
		Player: p,
	})

	var topicID int64
	if st, err := s.content.Subtopic(ctx, r.SubtopicID); err == nil {
		topicID = st.TopicID
	}

	return &JoinRoomResponse{
		Room:    r,
		Player:  p,
		TopicID: topicID,
	}, nil
}

type GetRoomRequest struct {
	RoomID string
}

// GetRoom returns the room with its status and current question index.
func (s *Service) GetRoom(ctx context.Context, req GetRoomRequest) (*domain.Room, error) {
	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

type ListPlayersRequest struct {
	RoomID string
}

// ListPlayers returns the players of the room in join order.
func (s *Service) ListPlayers(ctx context.Context, req ListPlayersRequest) ([]domain.Player, error) {
	if _, err := s.store.GetRoom(ctx, req.RoomID); err != nil {
		return nil, err
	}

	return s.store.ListPlayers(ctx, req.RoomID)
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return "", domain.ErrInvalidName.With(errors.WithMessagef("player name must be 1 to %d characters", maxNameLength))
	}

	return name, nil
}

func randomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}
