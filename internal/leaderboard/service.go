package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/store"
)

const (
	defaultPublishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Store    store.Store
	// Redis throttles broadcasts across instances. Without it every change is broadcast.
	Redis           redis.UniversalClient
	Prefix          string
	PublishInterval time.Duration
}

type Service struct {
	eb       *event.Bus
	store    store.Store
	redis    redis.UniversalClient
	prefix   string
	interval time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		store:    c.Store,
		redis:    c.Redis,
		prefix:   c.Prefix,
		interval: c.PublishInterval,
	}

	if s.interval <= 0 {
		s.interval = defaultPublishInterval
	}

	s.eb.Subscribe(func(ctx context.Context, e event.Event) error {
		a := e.(domain.EventAnswerRecorded).Answer
		return s.schedulePublishLeaderboard(ctx, a.RoomID, a.CreatedAt)
	}, domain.EventNameAnswerRecorded)

	// Standings between rounds and the final ones skip the throttle.
	s.eb.Subscribe(func(ctx context.Context, e event.Event) error {
		return s.publishLeaderboard(ctx, e.(domain.EventRoundAdvanced).Room.ID)
	}, domain.EventNameRoundAdvanced)

	return s
}

type GetLeaderboardRequest struct {
	RoomID string
	// ViewerID marks the entry of the player asking, it may be empty.
	ViewerID string
}

// GetLeaderboard returns the standings of a room, computed from the current player scores.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	if _, err := s.store.GetRoom(ctx, req.RoomID); err != nil {
		return nil, err
	}

	players, err := s.store.ListPlayers(ctx, req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	return &domain.Leaderboard{
		RoomID:  req.RoomID,
		Entries: Rank(players, req.ViewerID),
	}, nil
}

// Rank orders players by score, highest first. Equal scores keep join order and every entry gets
// its own rank, so scores 300, 300, 100 rank 1, 2, 3.
func Rank(players []domain.Player, viewerID string) []domain.LeaderboardEntry {
	sorted := make([]domain.Player, len(players))
	copy(sorted, players)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:       i + 1,
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Score:      p.Score,
			IsMe:       viewerID != "" && p.ID == viewerID,
		})
	}

	return entries
}

// schedulePublishLeaderboard publishes the leaderboard at most once per interval and room, at the
// start of a burst of answers and once more when the interval ends.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, roomID string, at time.Time) error {
	if s.redis == nil {
		return s.publishLeaderboard(ctx, roomID)
	}

	// Instances race for the key, the one that sets it publishes.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(roomID), at.UnixMilli(), s.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if ok {
		return s.publishLeaderboard(ctx, roomID)
	}

	return s.publishTrailingLeaderboard(ctx, roomID, at)
}

// publishTrailingLeaderboard publishes once the current interval ends, so the answers that were
// throttled are broadcast too. Only one caller per room and interval waits.
func (s *Service) publishTrailingLeaderboard(ctx context.Context, roomID string, at time.Time) error {
	pendingKey := s.getLeaderboardPendingKey(roomID)

	ok, err := s.redis.SetNX(ctx, pendingKey, at.UnixMilli(), 2*s.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	wait, err := s.redis.PTTL(ctx, s.getLeaderboardTimeKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("pttl: %w", err)
	}

	wait = min(max(wait, 0), s.interval)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	// Answers recorded after this point schedule their own publish.
	if err := s.redis.Del(ctx, pendingKey).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}

	return s.publishLeaderboard(ctx, roomID)
}

func (s *Service) publishLeaderboard(ctx context.Context, roomID string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		RoomID: roomID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: room=%s: %w", roomID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardTimeKey(room string) string {
	return fmt.Sprintf("%s:%s:leaderboard:time", s.prefix, room)
}

func (s *Service) getLeaderboardPendingKey(room string) string {
	return fmt.Sprintf("%s:%s:leaderboard:pending", s.prefix, room)
}
