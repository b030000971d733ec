// Package postgres implements store.Store on PostgreSQL with pgx.
//
// Conditional transitions are single UPDATE statements guarded by the expected previous state.
// Writes that must not race a transition take a FOR SHARE lock on the room row.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
	"github.com/victornm/travelquiz/internal/store"
)

const codeUniqueViolation = "23505"

const roomColumns = `id, pin, subtopic_id, status, current_question_index, question_ids, round_started_at, created_at, updated_at`

const playerColumns = `id, room_id, name, score, is_host, has_answered, answer_time, created_at`

const answerColumns = `a.id, a.room_id, a.player_id, a.question_id, COALESCE(a.choice_id, 0), a.is_correct, a.answer_time, a.points_earned, a.created_at`

var _ store.Store = (*Store)(nil)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room, host domain.Player) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		const insRoomStmt = `
INSERT INTO rooms (id, pin, subtopic_id, status, question_ids, created_at, updated_at)
VALUES ($1, $2, $3, $4, '{}', $5, $6);`

		_, err := tx.Exec(ctx, insRoomStmt, room.ID, room.Pin, room.SubtopicID, string(room.Status), room.CreatedAt, room.UpdatedAt)
		if isUniqueViolation(err) {
			return domain.ErrPinTaken.With(errors.WithMessagef("pin bound to another room: %s", room.Pin), errors.WithCause(err))
		}
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}

		if err := insertPlayer(ctx, tx, host); err != nil {
			return fmt.Errorf("insert host: %w", err)
		}

		return nil
	})
}

func (s *Store) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	return getRoom(ctx, s.db, `SELECT `+roomColumns+` FROM rooms WHERE id = $1;`, id)
}

func (s *Store) FindRoomByPin(ctx context.Context, pin string) (domain.Room, error) {
	r, err := getRoom(ctx, s.db, `SELECT `+roomColumns+` FROM rooms WHERE pin = $1 AND status <> 'finished';`, pin)
	if stderrors.Is(err, domain.ErrRoomNotFound) {
		return r, domain.ErrRoomNotFound.With(errors.WithMessagef("room not found: pin=%s", pin))
	}

	return r, err
}

func (s *Store) ListActiveRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.db.Query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE status = 'active' ORDER BY created_at;`)
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Room, error) {
		return scanRoom(r)
	})
}

func (s *Store) AddPlayer(ctx context.Context, p domain.Player) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := getRoom(ctx, tx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR SHARE;`, p.RoomID)
		if err != nil {
			return err
		}

		if r.Status != domain.StatusLobby {
			return domain.ErrRoomAlreadyStarted
		}

		err = insertPlayer(ctx, tx, p)
		if isUniqueViolation(err) {
			return domain.ErrNameTaken.With(errors.WithMessagef("player name already taken: %s", p.Name), errors.WithCause(err))
		}
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}

		return nil
	})
}

func (s *Store) GetPlayer(ctx context.Context, id string) (domain.Player, error) {
	rows, err := s.db.Query(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1;`, id)
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}

	p, err := pgx.CollectOneRow(rows, scanPlayer)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrPlayerNotFound.With(errors.WithMessagef("player not found: %s", id))
	}
	if err != nil {
		return p, fmt.Errorf("get player: %w", err)
	}

	return p, nil
}

func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	rows, err := s.db.Query(ctx, `SELECT `+playerColumns+` FROM players WHERE room_id = $1 ORDER BY created_at, id;`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	return pgx.CollectRows(rows, scanPlayer)
}

func (s *Store) StartRoom(ctx context.Context, roomID string, questionIDs []int64, at time.Time) (domain.Room, bool, error) {
	const stmt = `
UPDATE rooms
SET status = 'active', current_question_index = 0, question_ids = $2::bigint[], round_started_at = $3::timestamptz, updated_at = $3::timestamptz
WHERE id = $1 AND status = 'lobby'
RETURNING ` + roomColumns + `;`

	return s.transition(ctx, roomID, stmt, roomID, questionIDs, at)
}

func (s *Store) AdvanceRoom(ctx context.Context, roomID string, from int, at time.Time) (domain.Room, bool, error) {
	const stmt = `
UPDATE rooms
SET status                 = CASE WHEN $2 >= cardinality(question_ids) - 1 THEN 'finished' ELSE 'active' END,
    current_question_index = CASE WHEN $2 >= cardinality(question_ids) - 1 THEN NULL ELSE $2 + 1 END,
    round_started_at       = CASE WHEN $2 >= cardinality(question_ids) - 1 THEN NULL ELSE $3::timestamptz END,
    updated_at             = $3
WHERE id = $1 AND status = 'active' AND current_question_index = $2
RETURNING ` + roomColumns + `;`

	return s.transition(ctx, roomID, stmt, roomID, int32(from), at)
}

// transition runs a conditional room update and clears the round state of every player in the same
// transaction. When the update matches no row the room is returned as it is.
func (s *Store) transition(ctx context.Context, roomID, stmt string, args ...any) (domain.Room, bool, error) {
	var (
		r       domain.Room
		applied bool
	)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		r, err = getRoom(ctx, tx, stmt, args...)
		if stderrors.Is(err, domain.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("update room: %w", err)
		}

		const resetStmt = `UPDATE players SET has_answered = FALSE, answer_time = NULL WHERE room_id = $1;`
		if _, err := tx.Exec(ctx, resetStmt, roomID); err != nil {
			return fmt.Errorf("reset players: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return r, false, err
	}

	if !applied {
		r, err = s.GetRoom(ctx, roomID)
		return r, false, err
	}

	return r, true, nil
}

func (s *Store) RecordAnswer(ctx context.Context, a domain.AnswerRecord) (domain.AnswerRecord, bool, error) {
	prev, found, err := s.findAnswer(ctx, s.db, a.RoomID, a.PlayerID, a.QuestionID)
	if err != nil {
		return a, false, err
	}
	if found {
		return prev, false, nil
	}

	var inserted bool
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := getRoom(ctx, tx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR SHARE;`, a.RoomID)
		if err != nil {
			return err
		}

		if r.Status == domain.StatusLobby {
			return domain.ErrRoomNotActive
		}

		if qid, ok := r.CurrentQuestionID(); !ok || qid != a.QuestionID {
			return domain.ErrStaleSubmission
		}

		const insStmt = `
INSERT INTO answers (id, room_id, player_id, question_id, choice_id, is_correct, answer_time, points_earned, created_at)
SELECT $1::text, $2::text, p.id, $4::bigint, NULLIF($5::bigint, 0), $6::boolean, $7::double precision, $8::int, $9::timestamptz
FROM players p
WHERE p.id = $3::text AND p.room_id = $2::text
ON CONFLICT (room_id, player_id, question_id) DO NOTHING;`

		tag, err := tx.Exec(ctx, insStmt, a.ID, a.RoomID, a.PlayerID, a.QuestionID, a.ChoiceID, a.IsCorrect, a.AnswerTime, a.PointsEarned, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return nil
		}

		const updStmt = `UPDATE players SET score = score + $2, has_answered = TRUE, answer_time = $3 WHERE id = $1;`
		if _, err := tx.Exec(ctx, updStmt, a.PlayerID, a.PointsEarned, a.AnswerTime); err != nil {
			return fmt.Errorf("update player: %w", err)
		}

		inserted = true
		return nil
	})
	if err != nil {
		return a, false, err
	}

	if inserted {
		return a, true, nil
	}

	// Nothing was inserted: a concurrent duplicate won, or the player is not in the room.
	prev, found, err = s.findAnswer(ctx, s.db, a.RoomID, a.PlayerID, a.QuestionID)
	if err != nil {
		return a, false, err
	}
	if !found {
		return a, false, domain.ErrPlayerNotFound.With(errors.WithMessagef("player not found: room=%s player=%s", a.RoomID, a.PlayerID))
	}

	return prev, false, nil
}

func (s *Store) ListAnswers(ctx context.Context, roomID string, questionID int64) ([]domain.AnswerRecord, error) {
	const stmt = `
SELECT ` + answerColumns + `
FROM answers a
JOIN players p ON p.id = a.player_id
WHERE a.room_id = $1 AND a.question_id = $2
ORDER BY p.created_at, p.id;`

	rows, err := s.db.Query(ctx, stmt, roomID, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return pgx.CollectRows(rows, scanAnswer)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) findAnswer(ctx context.Context, q querier, roomID, playerID string, questionID int64) (domain.AnswerRecord, bool, error) {
	const stmt = `
SELECT ` + answerColumns + `
FROM answers a
WHERE a.room_id = $1 AND a.player_id = $2 AND a.question_id = $3;`

	rows, err := q.Query(ctx, stmt, roomID, playerID, questionID)
	if err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("find answer: %w", err)
	}

	a, err := pgx.CollectOneRow(rows, scanAnswer)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return a, false, nil
	}
	if err != nil {
		return a, false, fmt.Errorf("find answer: %w", err)
	}

	return a, true, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertPlayer(ctx context.Context, tx pgx.Tx, p domain.Player) error {
	const stmt = `
INSERT INTO players (id, room_id, name, score, is_host, has_answered, answer_time, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := tx.Exec(ctx, stmt, p.ID, p.RoomID, p.Name, p.Score, p.IsHost, p.HasAnswered, p.AnswerTime, p.CreatedAt)
	return err
}

func getRoom(ctx context.Context, q querier, stmt string, args ...any) (domain.Room, error) {
	rows, err := q.Query(ctx, stmt, args...)
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room: %w", err)
	}

	r, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (domain.Room, error) {
		return scanRoom(row)
	})
	if stderrors.Is(err, pgx.ErrNoRows) {
		return r, domain.ErrRoomNotFound
	}
	if err != nil {
		return r, fmt.Errorf("get room: %w", err)
	}

	return r, nil
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var (
		r      domain.Room
		status string
		index  *int32
	)

	if err := row.Scan(&r.ID, &r.Pin, &r.SubtopicID, &status, &index, &r.QuestionIDs, &r.RoundStartedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}

	r.Status = domain.Status(status)
	if index != nil {
		i := int(*index)
		r.CurrentQuestionIndex = &i
	}

	return r, nil
}

func scanPlayer(row pgx.CollectableRow) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.RoomID, &p.Name, &p.Score, &p.IsHost, &p.HasAnswered, &p.AnswerTime, &p.CreatedAt)
	return p, err
}

func scanAnswer(row pgx.CollectableRow) (domain.AnswerRecord, error) {
	var a domain.AnswerRecord
	err := row.Scan(&a.ID, &a.RoomID, &a.PlayerID, &a.QuestionID, &a.ChoiceID, &a.IsCorrect, &a.AnswerTime, &a.PointsEarned, &a.CreatedAt)
	return a, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
