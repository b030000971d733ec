// Package session drives a room through its rounds: lobby, one active round per question, finished.
//
// Every transition is a conditional update in the store, so hosts, the round watcher and the last
// answer of a round may all try to close the same round and exactly one of them applies it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/travelquiz/internal/answer"
	"github.com/victornm/travelquiz/internal/content"
	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/store"
	"github.com/victornm/travelquiz/internal/telemetry"
)

const defaultWatchInterval = 500 * time.Millisecond

type Config struct {
	Store    store.Store
	Content  content.Repository
	Answer   *answer.Service
	EventBus *event.Bus
	// MinPlayers is the number of players besides the host needed to start.
	MinPlayers int
	// AutoAdvance moves to the next question as soon as a round closes, instead of waiting for the host.
	AutoAdvance   bool
	WatchInterval time.Duration
	Now           func() time.Time
}

type Service struct {
	store       store.Store
	content     content.Repository
	answer      *answer.Service
	eb          *event.Bus
	minPlayers  int
	autoAdvance bool
	interval    time.Duration
	now         func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:       c.Store,
		content:     c.Content,
		answer:      c.Answer,
		eb:          c.EventBus,
		minPlayers:  c.MinPlayers,
		autoAdvance: c.AutoAdvance,
		interval:    c.WatchInterval,
		now:         c.Now,
	}

	if s.interval <= 0 {
		s.interval = defaultWatchInterval
	}
	if s.now == nil {
		s.now = time.Now
	}

	if s.autoAdvance {
		s.eb.Subscribe(func(ctx context.Context, e event.Event) error {
			return s.handleAnswerRecorded(ctx, e.(domain.EventAnswerRecorded))
		}, domain.EventNameAnswerRecorded)
	}

	return s
}

type StartQuizRequest struct {
	RoomID   string
	PlayerID string
}

// StartQuiz snapshots the questions of the room's subtopic, ordered by id, and opens the first round.
func (s *Service) StartQuiz(ctx context.Context, req StartQuizRequest) (*domain.Room, error) {
	if err := s.authorizeHost(ctx, req.RoomID, req.PlayerID); err != nil {
		return nil, err
	}

	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	if r.Status != domain.StatusLobby {
		return nil, domain.ErrRoomAlreadyStarted
	}

	players, err := s.store.ListPlayers(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	if guests := len(players) - 1; guests < s.minPlayers {
		return nil, domain.ErrNotEnoughPlayers.With(errors.WithMessagef("need %d players besides the host, have %d", s.minPlayers, guests))
	}

	qs, err := s.content.Questions(ctx, r.SubtopicID)
	if err != nil {
		return nil, err
	}

	if len(qs) == 0 {
		return nil, domain.ErrContentNotFound.With(errors.WithMessagef("subtopic has no questions: %d", r.SubtopicID))
	}

	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
	}

	started, ok, err := s.store.StartRoom(ctx, r.ID, ids, s.now())
	if err != nil {
		return nil, fmt.Errorf("start room: %w", err)
	}

	if !ok {
		return nil, domain.ErrRoomAlreadyStarted
	}

	slog.InfoContext(ctx, "session: quiz started", "room", started.ID, "questions", len(ids))

	s.eb.Publish(ctx, domain.EventRoomStarted{
		Room: started,
	})

	return &started, nil
}

type AdvanceQuestionRequest struct {
	RoomID   string
	PlayerID string
	// FromIndex is the round the caller wants to close, as last observed by the caller. When that
	// round already closed the call succeeds without changing anything, so retries are safe.
	FromIndex int
}

type AdvanceQuestionResponse struct {
	Room domain.Room
	// Advanced is false when another caller closed the round first.
	Advanced bool
}

// AdvanceQuestion closes the current round and opens the next one, or finishes the quiz after the
// last question. The round must be complete: everyone answered or its time limit elapsed.
// Players who have not answered when the time is up get a zero point answer.
func (s *Service) AdvanceQuestion(ctx context.Context, req AdvanceQuestionRequest) (*AdvanceQuestionResponse, error) {
	if req.FromIndex < 0 {
		return nil, domain.ErrInvalidIndex
	}

	if err := s.authorizeHost(ctx, req.RoomID, req.PlayerID); err != nil {
		return nil, err
	}

	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	want := domain.RoomState{Status: domain.StatusActive, QuestionIndex: req.FromIndex}
	if r.State().Compare(want) > 0 {
		telemetry.RoundAdvanced(false)
		return &AdvanceQuestionResponse{Room: r}, nil
	}

	if r.Status != domain.StatusActive {
		return nil, domain.ErrRoomNotActive
	}

	if req.FromIndex > *r.CurrentQuestionIndex {
		return nil, domain.ErrNotReady.With(errors.WithMessagef("round %d has not started", req.FromIndex))
	}

	next, ok, err := s.closeRound(ctx, r, true)
	if err != nil {
		return nil, err
	}

	return &AdvanceQuestionResponse{Room: next, Advanced: ok}, nil
}

type GetQuestionRequest struct {
	RoomID string
}

type GetQuestionResponse struct {
	Index    int
	Total    int
	Question domain.Question
	// Deadline is when the round closes by time, clients use it for display only.
	Deadline time.Time
}

// GetQuestion returns the question of the running round.
func (s *Service) GetQuestion(ctx context.Context, req GetQuestionRequest) (*GetQuestionResponse, error) {
	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	q, err := s.currentQuestion(ctx, r)
	if err != nil {
		return nil, err
	}

	res := &GetQuestionResponse{
		Index:    *r.CurrentQuestionIndex,
		Total:    len(r.QuestionIDs),
		Question: q,
	}
	if r.RoundStartedAt != nil {
		res.Deadline = r.RoundStartedAt.Add(q.TimeLimit())
	}

	return res, nil
}

// Run watches active rooms and closes the rounds whose time is up, until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "session: round watcher started", "interval", s.interval, "auto_advance", s.autoAdvance)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.CloseExpiredRounds(ctx); err != nil {
				slog.ErrorContext(ctx, "session: close expired rounds failed", "error", err)
			}
		}
	}
}

// CloseExpiredRounds closes every round whose time limit elapsed. With auto advance it also
// moves those rooms on, otherwise it only records the missing answers and leaves that to the host.
func (s *Service) CloseExpiredRounds(ctx context.Context) error {
	rooms, err := s.store.ListActiveRooms(ctx)
	if err != nil {
		return fmt.Errorf("list active rooms: %w", err)
	}

	for _, r := range rooms {
		q, err := s.currentQuestion(ctx, r)
		if err != nil {
			slog.ErrorContext(ctx, "session: load question failed", "room", r.ID, "error", err)
			continue
		}

		if !s.expired(r, q) {
			continue
		}

		if !s.autoAdvance {
			if _, err := s.answer.AutoSubmit(ctx, r, q); err != nil {
				slog.ErrorContext(ctx, "session: record missing answers failed", "room", r.ID, "error", err)
			}
			continue
		}

		if _, _, err := s.closeRound(ctx, r, false); err != nil {
			slog.ErrorContext(ctx, "session: close round failed", "room", r.ID, "error", err)
		}
	}

	return nil
}

func (s *Service) handleAnswerRecorded(ctx context.Context, e domain.EventAnswerRecorded) error {
	r, err := s.store.GetRoom(ctx, e.Answer.RoomID)
	if err != nil {
		return err
	}

	if qid, ok := r.CurrentQuestionID(); !ok || qid != e.Answer.QuestionID {
		return nil
	}

	_, _, err = s.closeRound(ctx, r, false)
	if errors.IsCode(err, errors.CodeFailedPrecondition) {
		return nil
	}

	return err
}

// closeRound advances r from its current round if the round is complete. A round that is not
// complete fails with domain.ErrNotReady when strict, and is left alone otherwise.
func (s *Service) closeRound(ctx context.Context, r domain.Room, strict bool) (domain.Room, bool, error) {
	q, err := s.currentQuestion(ctx, r)
	if err != nil {
		return r, false, err
	}

	players, err := s.store.ListPlayers(ctx, r.ID)
	if err != nil {
		return r, false, fmt.Errorf("list players: %w", err)
	}

	answered := true
	for _, p := range players {
		answered = answered && p.HasAnswered
	}

	if !answered {
		if !s.expired(r, q) {
			if !strict {
				return r, false, nil
			}

			// The flags may already belong to the next round.
			if cur, err := s.store.GetRoom(ctx, r.ID); err == nil && cur.State().Compare(r.State()) > 0 {
				return cur, false, nil
			}
			return r, false, domain.ErrNotReady
		}

		if _, err := s.answer.AutoSubmit(ctx, r, q); err != nil {
			return r, false, fmt.Errorf("record missing answers: %w", err)
		}
	}

	from := *r.CurrentQuestionIndex
	next, ok, err := s.store.AdvanceRoom(ctx, r.ID, from, s.now())
	if err != nil {
		return r, false, fmt.Errorf("advance room: %w", err)
	}

	telemetry.RoundAdvanced(ok)

	if !ok {
		return next, false, nil
	}

	slog.InfoContext(ctx, "session: round closed", "room", next.ID, "from", from, "status", next.Status)

	s.eb.Publish(ctx, domain.EventRoundAdvanced{
		Room: next,
	})

	return next, true, nil
}

func (s *Service) expired(r domain.Room, q domain.Question) bool {
	if r.RoundStartedAt == nil || q.TimeLimitSec <= 0 {
		return false
	}

	return !s.now().Before(r.RoundStartedAt.Add(q.TimeLimit()))
}

func (s *Service) currentQuestion(ctx context.Context, r domain.Room) (domain.Question, error) {
	qid, ok := r.CurrentQuestionID()
	if !ok {
		return domain.Question{}, domain.ErrRoomNotActive
	}

	return content.FindQuestion(ctx, s.content, r.SubtopicID, qid)
}

func (s *Service) authorizeHost(ctx context.Context, roomID, playerID string) error {
	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}

	if p.RoomID != roomID {
		return domain.ErrPlayerNotFound.With(errors.WithMessagef("player %s is not in room %s", playerID, roomID))
	}

	if !p.IsHost {
		return domain.ErrNotHost
	}

	return nil
}
