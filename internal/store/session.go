package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
)

// SessionStore persists quiz sessions across three tables: sessions,
// session_participants (one score row per participant) and session_questions
// (ordered by pos). There is no delete path; sessions only ever move from
// ongoing to completed.
type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts the session and fills in its generated ID and timestamps.
func (s *SessionStore) Create(ctx context.Context, ss *domain.QuizSession) (err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate session ID: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insSessionStmt     = `INSERT INTO sessions (session_id, status, create_time, update_time) VALUES ($1, $2, $3, $3);`
		insParticipantStmt = `INSERT INTO session_participants (session_id, user_id, score, pos) VALUES ($1, $2, $3, $4);`
		insQuestionStmt    = `INSERT INTO session_questions (session_id, question_id, pos) VALUES ($1, $2, $3);`
	)

	now := time.Now()

	_, err = tx.Exec(ctx, insSessionStmt, id, ss.Status, now)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	for i, sc := range ss.Scores {
		_, err = tx.Exec(ctx, insParticipantStmt, id, sc.UserID, sc.Score, i)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	for i, q := range ss.QuestionIDs {
		_, err = tx.Exec(ctx, insQuestionStmt, id, q, i)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	ss.SessionID = id.String()
	ss.CreateTime = now
	ss.UpdateTime = now
	return nil
}

func (s *SessionStore) FindByID(ctx context.Context, sessionID string) (*domain.QuizSession, error) {
	const (
		selSessionStmt     = `SELECT status, winner_id, create_time, update_time FROM sessions WHERE session_id = $1;`
		selParticipantStmt = `SELECT user_id, score FROM session_participants WHERE session_id = $1 ORDER BY pos;`
		selQuestionStmt    = `SELECT question_id FROM session_questions WHERE session_id = $1 ORDER BY pos;`
	)

	ss := domain.QuizSession{SessionID: sessionID}

	var winner *string
	err := s.db.QueryRow(ctx, selSessionStmt, sessionID).
		Scan(&ss.Status, &winner, &ss.CreateTime, &ss.UpdateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if winner != nil {
		ss.WinnerID = *winner
	}

	rows, err := s.db.Query(ctx, selParticipantStmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session participants: %w", err)
	}
	ss.Scores, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Score, error) {
		var sc domain.Score
		if err := r.Scan(&sc.UserID, &sc.Score); err != nil {
			return domain.Score{}, err
		}
		return sc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("find session participants: %w", err)
	}
	for _, sc := range ss.Scores {
		ss.Participants = append(ss.Participants, sc.UserID)
	}

	rows, err = s.db.Query(ctx, selQuestionStmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session questions: %w", err)
	}
	ss.QuestionIDs, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (string, error) {
		var id string
		err := r.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("find session questions: %w", err)
	}

	return &ss, nil
}

// IncrementScore adds one point to the participant's score. A participant row
// that does not exist is a consistency fault, not a silent miss: it means the
// submission reached a session the user is not part of.
func (s *SessionStore) IncrementScore(ctx context.Context, sessionID, userID string) error {
	const stmt = `UPDATE session_participants SET score = score + 1 WHERE session_id = $1 AND user_id = $2;`

	tag, err := s.db.Exec(ctx, stmt, sessionID, userID)
	if err != nil {
		return fmt.Errorf("increment score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("participant not found in session: session=%s user=%s", sessionID, userID))
	}

	const touchStmt = `UPDATE sessions SET update_time = $2 WHERE session_id = $1;`
	if _, err := s.db.Exec(ctx, touchStmt, sessionID, time.Now()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// Complete finalizes the session. winnerID may be empty for a tie. The status
// guard makes completion a one-way transition.
func (s *SessionStore) Complete(ctx context.Context, sessionID, winnerID string) error {
	const stmt = `
UPDATE sessions
SET status = $2, winner_id = NULLIF($3, ''), update_time = $4
WHERE session_id = $1 AND status = $5;`

	_, err := s.db.Exec(ctx, stmt, sessionID, domain.SessionCompleted, winnerID, time.Now(), domain.SessionOngoing)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}

	return nil
}

// CountRecentBetween counts sessions created since the given time whose
// participants include both users.
func (s *SessionStore) CountRecentBetween(ctx context.Context, userID, otherID string, since time.Time) (int, error) {
	const stmt = `
SELECT COUNT(*)
FROM sessions s
JOIN session_participants p1 ON p1.session_id = s.session_id AND p1.user_id = $1
JOIN session_participants p2 ON p2.session_id = s.session_id AND p2.user_id = $2
WHERE s.create_time >= $3;`

	var n int
	if err := s.db.QueryRow(ctx, stmt, userID, otherID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recent sessions: %w", err)
	}

	return n, nil
}
