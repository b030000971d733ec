package domain

import (
	"time"
)

// Topic is a quiz theme, a city with its categories.
type Topic struct {
	ID        int64
	City      string
	Country   string
	Subtopics []Subtopic
}

type Subtopic struct {
	ID          int64
	TopicID     int64
	Name        string
	Description string
}

type Question struct {
	ID           int64
	SubtopicID   int64
	Prompt       string
	TimeLimitSec int
	Choices      []Choice
}

// TimeLimit returns the round duration of the question.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSec) * time.Second
}

// Choice returns the choice with the given id.
func (q Question) Choice(id int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}

	return Choice{}, false
}

type Choice struct {
	ID         int64
	QuestionID int64
	Label      string
	IsCorrect  bool
}

type Status string

const (
	StatusLobby    Status = "lobby"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

func (s Status) Valid() bool {
	switch s {
	case StatusLobby, StatusActive, StatusFinished:
		return true
	}
	return false
}

func (s Status) rank() int {
	switch s {
	case StatusLobby:
		return 0
	case StatusActive:
		return 1
	case StatusFinished:
		return 2
	}
	return -1
}

// RoomState is the progress of a room: lobby < active(0) < active(1) < ... < finished.
type RoomState struct {
	Status        Status
	QuestionIndex int
}

// Compare returns -1, 0 or +1 depending on whether s is behind, equal to or ahead of o.
func (s RoomState) Compare(o RoomState) int {
	if s.Status.rank() != o.Status.rank() {
		if s.Status.rank() < o.Status.rank() {
			return -1
		}
		return 1
	}

	if s.Status != StatusActive || s.QuestionIndex == o.QuestionIndex {
		return 0
	}

	if s.QuestionIndex < o.QuestionIndex {
		return -1
	}
	return 1
}

// Room represents a quiz session.
type Room struct {
	ID         string
	Pin        string
	SubtopicID int64
	Status     Status
	// CurrentQuestionIndex is set only while the room is active.
	CurrentQuestionIndex *int
	// QuestionIDs is the question sequence snapshotted when the quiz started.
	QuestionIDs []int64
	// RoundStartedAt is the authoritative start of the current round.
	RoundStartedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r Room) State() RoomState {
	s := RoomState{Status: r.Status}
	if r.Status == StatusActive && r.CurrentQuestionIndex != nil {
		s.QuestionIndex = *r.CurrentQuestionIndex
	}
	return s
}

// CurrentQuestionID returns the question of the running round.
func (r Room) CurrentQuestionID() (int64, bool) {
	if r.Status != StatusActive || r.CurrentQuestionIndex == nil {
		return 0, false
	}

	i := *r.CurrentQuestionIndex
	if i < 0 || i >= len(r.QuestionIDs) {
		return 0, false
	}

	return r.QuestionIDs[i], true
}

func (r Room) IsLastQuestion() bool {
	return r.CurrentQuestionIndex != nil && *r.CurrentQuestionIndex == len(r.QuestionIDs)-1
}

// Player belongs to exactly one room.
type Player struct {
	ID     string
	RoomID string
	Name   string
	Score  int
	IsHost bool
	// HasAnswered tells whether the player answered the current question.
	HasAnswered bool
	// AnswerTime is the elapsed seconds of the answer to the current question.
	AnswerTime *float64
	CreatedAt  time.Time
}

// AnswerRecord is written once per (room, player, question).
// A ChoiceID of zero marks an answer recorded on behalf of a player who ran out of time.
type AnswerRecord struct {
	ID           string
	RoomID       string
	PlayerID     string
	QuestionID   int64
	ChoiceID     int64
	IsCorrect    bool
	AnswerTime   float64
	PointsEarned int
	CreatedAt    time.Time
}

func (a AnswerRecord) TimedOut() bool {
	return a.ChoiceID == 0
}

func (a AnswerRecord) Result() ScoreResult {
	return ScoreResult{
		Correct: a.IsCorrect,
		Points:  a.PointsEarned,
	}
}

type ScoreResult struct {
	Correct bool
	Points  int
}

// Leaderboard represents the standings of a room, sorted by rank.
type Leaderboard struct {
	RoomID  string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank       int
	PlayerID   string
	PlayerName string
	Score      int
	IsMe       bool
}
