package content

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
)

// Postgres reads content from the topics, subtopics, questions and choices tables.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	const stmt = `
SELECT t.id, t.city, t.country, s.id, s.name, COALESCE(s.description, '')
FROM topics t
LEFT JOIN subtopics s ON s.topic_id = t.id
ORDER BY t.city, t.id, s.id;`

	rows, err := p.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("content: list topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var (
			t    domain.Topic
			sid  *int64
			name *string
			desc string
		)
		if err := rows.Scan(&t.ID, &t.City, &t.Country, &sid, &name, &desc); err != nil {
			return nil, fmt.Errorf("content: scan topic: %w", err)
		}

		if n := len(topics); n == 0 || topics[n-1].ID != t.ID {
			topics = append(topics, t)
		}

		if sid != nil {
			last := &topics[len(topics)-1]
			last.Subtopics = append(last.Subtopics, domain.Subtopic{
				ID:          *sid,
				TopicID:     t.ID,
				Name:        *name,
				Description: desc,
			})
		}
	}

	return topics, rows.Err()
}

func (p *Postgres) Subtopic(ctx context.Context, id int64) (domain.Subtopic, error) {
	const stmt = `SELECT id, topic_id, name, COALESCE(description, '') FROM subtopics WHERE id = $1;`

	var st domain.Subtopic
	err := p.db.QueryRow(ctx, stmt, id).Scan(&st.ID, &st.TopicID, &st.Name, &st.Description)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return st, domain.ErrContentNotFound.With(errors.WithMessagef("subtopic not found: %d", id))
	}
	if err != nil {
		return st, fmt.Errorf("content: get subtopic: %w", err)
	}

	return st, nil
}

func (p *Postgres) Questions(ctx context.Context, subtopicID int64) ([]domain.Question, error) {
	if _, err := p.Subtopic(ctx, subtopicID); err != nil {
		return nil, err
	}

	const stmt = `
SELECT q.id, q.prompt, q.time_limit_sec, c.id, c.label, c.is_correct
FROM questions q
JOIN choices c ON c.question_id = q.id
WHERE q.subtopic_id = $1
ORDER BY q.id, c.id;`

	rows, err := p.db.Query(ctx, stmt, subtopicID)
	if err != nil {
		return nil, fmt.Errorf("content: list questions: %w", err)
	}
	defer rows.Close()

	var qs []domain.Question
	for rows.Next() {
		var (
			q domain.Question
			c domain.Choice
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &q.TimeLimitSec, &c.ID, &c.Label, &c.IsCorrect); err != nil {
			return nil, fmt.Errorf("content: scan question: %w", err)
		}

		if n := len(qs); n == 0 || qs[n-1].ID != q.ID {
			q.SubtopicID = subtopicID
			qs = append(qs, q)
		}

		c.QuestionID = q.ID
		last := &qs[len(qs)-1]
		last.Choices = append(last.Choices, c)
	}

	return qs, rows.Err()
}
