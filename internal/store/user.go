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

// UserStore reads user accounts. Users are registered elsewhere; nothing in
// this service writes them.
type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	const stmt = `
SELECT user_id, first_name, interests, create_time, update_time
FROM users
WHERE user_id = $1;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, userID).
		Scan(&u.UserID, &u.FirstName, &u.Interests, &u.CreateTime, &u.UpdateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	return &u, nil
}

// FindEligible returns users that can be matched against the requester:
// members of activeIDs, not members of occupiedIDs, not the requester, sharing
// at least one interest. Ranking happens in the matchmaker, not here.
func (s *UserStore) FindEligible(ctx context.Context, requesterID string, interests, activeIDs, occupiedIDs []string) ([]domain.User, error) {
	const stmt = `
SELECT user_id, first_name, interests, create_time, update_time
FROM users
WHERE user_id = ANY($1)
  AND NOT (user_id = ANY($2))
  AND user_id <> $3
  AND interests && $4;`

	rows, err := s.db.Query(ctx, stmt, activeIDs, occupiedIDs, requesterID, interests)
	if err != nil {
		return nil, fmt.Errorf("find eligible users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.User, error) {
		var u domain.User
		if err := r.Scan(&u.UserID, &u.FirstName, &u.Interests, &u.CreateTime, &u.UpdateTime); err != nil {
			return domain.User{}, err
		}
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("find eligible users: %w", err)
	}

	return users, nil
}
