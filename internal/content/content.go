// Package content serves the read-only quiz catalogue: topics, subtopics, questions and choices.
package content

import (
	"context"
	"sort"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
)

// Repository loads quiz content. Content never changes while a session runs.
type Repository interface {
	// ListTopics returns every topic with its subtopics, ordered by city.
	ListTopics(ctx context.Context) ([]domain.Topic, error)
	// Subtopic returns domain.ErrContentNotFound for an unknown id.
	Subtopic(ctx context.Context, id int64) (domain.Subtopic, error)
	// Questions returns the questions of a subtopic with their choices, ordered by id.
	Questions(ctx context.Context, subtopicID int64) ([]domain.Question, error)
}

// FindQuestion looks a question up by id within a subtopic.
func FindQuestion(ctx context.Context, r Repository, subtopicID, questionID int64) (domain.Question, error) {
	qs, err := r.Questions(ctx, subtopicID)
	if err != nil {
		return domain.Question{}, err
	}

	for _, q := range qs {
		if q.ID == questionID {
			return q, nil
		}
	}

	return domain.Question{}, domain.ErrContentNotFound.With(
		errors.WithMessagef("question not found: subtopic=%d question=%d", subtopicID, questionID),
	)
}

func sortQuestions(qs []domain.Question) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
	for i := range qs {
		sort.Slice(qs[i].Choices, func(a, b int) bool { return qs[i].Choices[a].ID < qs[i].Choices[b].ID })
	}
}
