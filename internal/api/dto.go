package api

import (
	"time"

	"github.com/victornm/travelquiz/internal/domain"
)

type (
	Topic struct {
		ID        int64      `json:"id"`
		City      string     `json:"city"`
		Country   string     `json:"country"`
		Subtopics []Subtopic `json:"subtopics"`
	}

	Subtopic struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}

	Room struct {
		RoomID               string     `json:"roomId"`
		Pin                  string     `json:"pin"`
		SubtopicID           int64      `json:"subtopicId"`
		Status               string     `json:"status"`
		CurrentQuestionIndex *int       `json:"currentQuestionIndex"`
		TotalQuestions       int        `json:"totalQuestions"`
		RoundStartedAt       *time.Time `json:"roundStartedAt,omitempty"`
	}

	Player struct {
		PlayerID    string   `json:"playerId"`
		Name        string   `json:"name"`
		Score       int      `json:"score"`
		IsHost      bool     `json:"isHost"`
		HasAnswered bool     `json:"hasAnswered"`
		AnswerTime  *float64 `json:"answerTime,omitempty"`
		IsMe        bool     `json:"isMe"`
	}

	Question struct {
		ID           int64    `json:"id"`
		Prompt       string   `json:"prompt"`
		TimeLimitSec int      `json:"timeLimitSec"`
		Choices      []Choice `json:"choices"`
	}

	// Choice never carries correctness, clients learn it from the answer result.
	Choice struct {
		ID    int64  `json:"id"`
		Label string `json:"label"`
	}

	Leaderboard struct {
		RoomID  string             `json:"roomId"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Rank       int    `json:"rank"`
		PlayerID   string `json:"playerId"`
		PlayerName string `json:"playerName"`
		Score      int    `json:"score"`
		IsMe       bool   `json:"isMe"`
	}
)

func toTopics(ts []domain.Topic) []Topic {
	res := make([]Topic, 0, len(ts))
	for _, t := range ts {
		subs := make([]Subtopic, 0, len(t.Subtopics))
		for _, s := range t.Subtopics {
			subs = append(subs, Subtopic{ID: s.ID, Name: s.Name, Description: s.Description})
		}

		res = append(res, Topic{ID: t.ID, City: t.City, Country: t.Country, Subtopics: subs})
	}

	return res
}

func toRoom(r domain.Room) Room {
	return Room{
		RoomID:               r.ID,
		Pin:                  r.Pin,
		SubtopicID:           r.SubtopicID,
		Status:               string(r.Status),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		TotalQuestions:       len(r.QuestionIDs),
		RoundStartedAt:       r.RoundStartedAt,
	}
}

func toPlayers(ps []domain.Player, viewerID string) []Player {
	res := make([]Player, 0, len(ps))
	for _, p := range ps {
		res = append(res, Player{
			PlayerID:    p.ID,
			Name:        p.Name,
			Score:       p.Score,
			IsHost:      p.IsHost,
			HasAnswered: p.HasAnswered,
			AnswerTime:  p.AnswerTime,
			IsMe:        viewerID != "" && p.ID == viewerID,
		})
	}

	return res
}

func toQuestion(q domain.Question) Question {
	choices := make([]Choice, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, Choice{ID: c.ID, Label: c.Label})
	}

	return Question{ID: q.ID, Prompt: q.Prompt, TimeLimitSec: q.TimeLimitSec, Choices: choices}
}

func toLeaderboard(l domain.Leaderboard, viewerID string) Leaderboard {
	res := Leaderboard{
		RoomID:  l.RoomID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, e := range l.Entries {
		res.Entries = append(res.Entries, LeaderboardEntry{
			Rank:       e.Rank,
			PlayerID:   e.PlayerID,
			PlayerName: e.PlayerName,
			Score:      e.Score,
			IsMe:       viewerID != "" && e.PlayerID == viewerID,
		})
	}

	return res
}
