package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
)

// QuestionStore reads quiz questions. Questions are authored and seeded
// elsewhere and immutable once created; choices live in a jsonb column.
type QuestionStore struct {
	db *pgxpool.Pool
}

func NewQuestionStore(db *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{db: db}
}

func (s *QuestionStore) FindByID(ctx context.Context, questionID string) (*domain.Question, error) {
	const stmt = `
SELECT question_id, text, type, choices, correct_choice_id, tags, create_time
FROM questions
WHERE question_id = $1;`

	var q domain.Question
	err := s.db.QueryRow(ctx, stmt, questionID).
		Scan(&q.QuestionID, &q.Text, &q.Type, &q.Choices, &q.CorrectChoiceID, &q.Tags, &q.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: %s", questionID))
	}
	if err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}

	return &q, nil
}

// FindByInterests returns up to limit questions sharing a tag with the given
// interests, most overlapping first, newest first among equals.
func (s *QuestionStore) FindByInterests(ctx context.Context, interests []string, limit int) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, text, type, choices, correct_choice_id, tags, create_time
FROM questions
WHERE tags && $1
ORDER BY cardinality(ARRAY(SELECT UNNEST(tags) INTERSECT SELECT UNNEST($1::text[]))) DESC,
         create_time DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, interests, limit)
	if err != nil {
		return nil, fmt.Errorf("find questions by interests: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		if err := r.Scan(&q.QuestionID, &q.Text, &q.Type, &q.Choices, &q.CorrectChoiceID, &q.Tags, &q.CreateTime); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("find questions by interests: %w", err)
	}

	return questions, nil
}
