package content

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
)

// Catalogue is the YAML layout of a content file.
type Catalogue struct {
	Topics []struct {
		ID        int64  `yaml:"id"`
		City      string `yaml:"city"`
		Country   string `yaml:"country"`
		Subtopics []struct {
			ID          int64  `yaml:"id"`
			Name        string `yaml:"name"`
			Description string `yaml:"description"`
			Questions   []struct {
				ID           int64  `yaml:"id"`
				Prompt       string `yaml:"prompt"`
				TimeLimitSec int    `yaml:"timeLimitSec"`
				Choices      []struct {
					ID      int64  `yaml:"id"`
					Label   string `yaml:"label"`
					Correct bool   `yaml:"correct"`
				} `yaml:"choices"`
			} `yaml:"questions"`
		} `yaml:"subtopics"`
	} `yaml:"topics"`
}

// Static is a Repository backed by memory, seeded from a YAML file or built in tests.
type Static struct {
	topics    []domain.Topic
	subtopics map[int64]domain.Subtopic
	questions map[int64][]domain.Question
}

func NewStatic(topics []domain.Topic, questions map[int64][]domain.Question) *Static {
	s := &Static{
		topics:    topics,
		subtopics: make(map[int64]domain.Subtopic),
		questions: questions,
	}

	sort.Slice(s.topics, func(i, j int) bool { return s.topics[i].City < s.topics[j].City })
	for _, t := range topics {
		for _, st := range t.Subtopics {
			s.subtopics[st.ID] = st
		}
	}

	for _, qs := range s.questions {
		sortQuestions(qs)
	}

	return s
}

// LoadFile reads a YAML catalogue.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}

	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("content: parse %s: %w", path, err)
	}

	return FromCatalogue(c), nil
}

func FromCatalogue(c Catalogue) *Static {
	var (
		topics    = make([]domain.Topic, 0, len(c.Topics))
		questions = make(map[int64][]domain.Question)
	)

	for _, t := range c.Topics {
		topic := domain.Topic{ID: t.ID, City: t.City, Country: t.Country}

		for _, st := range t.Subtopics {
			topic.Subtopics = append(topic.Subtopics, domain.Subtopic{
				ID:          st.ID,
				TopicID:     t.ID,
				Name:        st.Name,
				Description: st.Description,
			})

			for _, q := range st.Questions {
				question := domain.Question{
					ID:           q.ID,
					SubtopicID:   st.ID,
					Prompt:       q.Prompt,
					TimeLimitSec: q.TimeLimitSec,
				}
				for _, ch := range q.Choices {
					question.Choices = append(question.Choices, domain.Choice{
						ID:         ch.ID,
						QuestionID: q.ID,
						Label:      ch.Label,
						IsCorrect:  ch.Correct,
					})
				}
				questions[st.ID] = append(questions[st.ID], question)
			}
		}

		topics = append(topics, topic)
	}

	return NewStatic(topics, questions)
}

func (s *Static) ListTopics(_ context.Context) ([]domain.Topic, error) {
	return s.topics, nil
}

func (s *Static) Subtopic(_ context.Context, id int64) (domain.Subtopic, error) {
	st, ok := s.subtopics[id]
	if !ok {
		return domain.Subtopic{}, domain.ErrContentNotFound.With(errors.WithMessagef("subtopic not found: %d", id))
	}

	return st, nil
}

func (s *Static) Questions(_ context.Context, subtopicID int64) ([]domain.Question, error) {
	if _, ok := s.subtopics[subtopicID]; !ok {
		return nil, domain.ErrContentNotFound.With(errors.WithMessagef("subtopic not found: %d", subtopicID))
	}

	return s.questions[subtopicID], nil
}
