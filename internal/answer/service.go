// Package answer records answers and the points they earn.
package answer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/travelquiz/internal/content"
	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/scoring"
	"github.com/victornm/travelquiz/internal/store"
	"github.com/victornm/travelquiz/internal/telemetry"
)

type Config struct {
	Store    store.Store
	Content  content.Repository
	Scoring  *scoring.Policy
	EventBus *event.Bus
	Now      func() time.Time
}

type Service struct {
	store   store.Store
	content content.Repository
	policy  *scoring.Policy
	eb      *event.Bus
	now     func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		content: c.Content,
		policy:  c.Scoring,
		eb:      c.EventBus,
		now:     c.Now,
	}

	if s.policy == nil {
		s.policy = scoring.NewPolicy(scoring.Config{})
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type SubmitAnswerRequest struct {
	RoomID     string
	PlayerID   string
	QuestionID int64
	ChoiceID   int64
	// ElapsedSeconds is measured by the client from the start of the round, values past the
	// time limit are clamped to it.
	ElapsedSeconds float64
}

type SubmitAnswerResponse struct {
	Result domain.ScoreResult
	// Replayed is true when an answer had already been recorded and its result was returned.
	Replayed bool
}

// SubmitAnswer scores the answer of a player to the current question and records it.
// Submitting again for the same question returns the first result and changes nothing.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if req.ElapsedSeconds < 0 || math.IsNaN(req.ElapsedSeconds) {
		return nil, domain.ErrInvalidTime
	}

	r, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	if qid, ok := r.CurrentQuestionID(); !ok || qid != req.QuestionID {
		return s.replay(ctx, r, req)
	}

	q, err := content.FindQuestion(ctx, s.content, r.SubtopicID, req.QuestionID)
	if err != nil {
		return nil, err
	}

	c, ok := q.Choice(req.ChoiceID)
	if !ok {
		return nil, domain.ErrInvalidChoice.With(errors.WithMessagef("choice %d does not belong to question %d", req.ChoiceID, q.ID))
	}

	elapsed := math.Min(req.ElapsedSeconds, q.TimeLimit().Seconds())
	if q.TimeLimitSec <= 0 {
		elapsed = req.ElapsedSeconds
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate answer ID: %w", err)
	}

	a := domain.AnswerRecord{
		ID:           id.String(),
		RoomID:       r.ID,
		PlayerID:     req.PlayerID,
		QuestionID:   q.ID,
		ChoiceID:     c.ID,
		IsCorrect:    c.IsCorrect,
		AnswerTime:   elapsed,
		PointsEarned: s.policy.Points(c.IsCorrect, elapsed, q.TimeLimit()),
		CreatedAt:    s.now(),
	}

	// The round clock decides, whatever the client measured. A late answer counts as a timeout.
	if s.pastDeadline(r, q) {
		a.ChoiceID = 0
		a.IsCorrect = false
		a.AnswerTime = q.TimeLimit().Seconds()
		a.PointsEarned = 0
	}

	rec, inserted, err := s.store.RecordAnswer(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	if !inserted {
		telemetry.AnswerSubmitted("replayed")
		return &SubmitAnswerResponse{Result: rec.Result(), Replayed: true}, nil
	}

	telemetry.AnswerSubmitted(outcome(rec))

	s.eb.Publish(ctx, domain.EventAnswerRecorded{
		Answer: rec,
	})

	return &SubmitAnswerResponse{Result: rec.Result()}, nil
}

// replay answers a submission for a question that is not the current one. It succeeds only when the
// player already has an answer for it, which happens when a retry arrives after the round moved on.
func (s *Service) replay(ctx context.Context, r domain.Room, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if r.Status == domain.StatusLobby {
		return nil, domain.ErrRoomNotActive
	}

	answers, err := s.store.ListAnswers(ctx, r.ID, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	for _, a := range answers {
		if a.PlayerID == req.PlayerID {
			telemetry.AnswerSubmitted("replayed")
			return &SubmitAnswerResponse{Result: a.Result(), Replayed: true}, nil
		}
	}

	return nil, domain.ErrStaleSubmission.With(errors.WithMessagef("question %d is not the current one of room %s", req.QuestionID, r.ID))
}

// AutoSubmit records a zero point answer, at the time limit, for every player who has not answered
// the current question of the room. It returns how many answers were recorded. A round that moved on
// meanwhile stops it without error.
func (s *Service) AutoSubmit(ctx context.Context, r domain.Room, q domain.Question) (int, error) {
	players, err := s.store.ListPlayers(ctx, r.ID)
	if err != nil {
		return 0, fmt.Errorf("list players: %w", err)
	}

	var n int
	for _, p := range players {
		if p.HasAnswered {
			continue
		}

		id, err := uuid.NewV7()
		if err != nil {
			return n, fmt.Errorf("generate answer ID: %w", err)
		}

		rec, inserted, err := s.store.RecordAnswer(ctx, domain.AnswerRecord{
			ID:         id.String(),
			RoomID:     r.ID,
			PlayerID:   p.ID,
			QuestionID: q.ID,
			AnswerTime: q.TimeLimit().Seconds(),
			CreatedAt:  s.now(),
		})
		if stderrors.Is(err, domain.ErrStaleSubmission) || stderrors.Is(err, domain.ErrRoomNotActive) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("record answer: %w", err)
		}

		if !inserted {
			continue
		}

		n++
		telemetry.AnswerSubmitted(outcome(rec))

		s.eb.Publish(ctx, domain.EventAnswerRecorded{
			Answer: rec,
		})
	}

	if n > 0 {
		slog.InfoContext(ctx, "answer: recorded missing answers", "room", r.ID, "question", q.ID, "count", n)
	}

	return n, nil
}

func (s *Service) pastDeadline(r domain.Room, q domain.Question) bool {
	if r.RoundStartedAt == nil || q.TimeLimitSec <= 0 {
		return false
	}

	return !s.now().Before(r.RoundStartedAt.Add(q.TimeLimit()))
}

func outcome(a domain.AnswerRecord) string {
	switch {
	case a.TimedOut():
		return "timeout"
	case a.IsCorrect:
		return "correct"
	default:
		return "incorrect"
	}
}
