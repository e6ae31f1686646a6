package match

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/presence"
)

// recentWindow bounds how far back shared sessions count against a candidate.
const recentWindow = 24 * time.Hour

type UserRepo interface {
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	FindEligible(ctx context.Context, requesterID string, interests, activeIDs, occupiedIDs []string) ([]domain.User, error)
}

type SessionRepo interface {
	CountRecentBetween(ctx context.Context, userID, otherID string, since time.Time) (int, error)
}

type Config struct {
	Presence *presence.Registry
	Users    UserRepo
	Sessions SessionRepo
}

// Service selects opponents for users requesting a game.
type Service struct {
	presence *presence.Registry
	users    UserRepo
	sessions SessionRepo
}

func NewService(c Config) *Service {
	return &Service{
		presence: c.Presence,
		users:    c.Users,
		sessions: c.Sessions,
	}
}

type FindMatchRequest struct {
	RequesterID string
}

// FindMatch picks the best opponent for the requester among users that are
// online, not in a game, and share at least one interest. Candidates are
// ranked by how rarely they were paired with the requester in the last 24
// hours, and among equals by interest overlap, so fresh pairings win but
// rematches stay thematically close. Returns nil when nobody is eligible;
// that is an outcome, not an error. Candidates tied on both keys are picked
// arbitrarily.
func (s *Service) FindMatch(ctx context.Context, req FindMatchRequest) (*domain.MatchCandidate, error) {
	user, err := s.users.FindByID(ctx, req.RequesterID)
	if err != nil {
		return nil, err
	}

	if len(user.Interests) == 0 {
		return nil, nil
	}

	active, err := s.presence.List(ctx, presence.SetActive)
	if err != nil {
		return nil, fmt.Errorf("match: list active: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}

	occupied, err := s.presence.List(ctx, presence.SetOccupied)
	if err != nil {
		return nil, fmt.Errorf("match: list occupied: %w", err)
	}

	eligible, err := s.users.FindEligible(ctx, user.UserID, user.Interests, active, occupied)
	if err != nil {
		return nil, fmt.Errorf("match: find eligible: %w", err)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	since := time.Now().Add(-recentWindow)
	candidates := make([]domain.MatchCandidate, 0, len(eligible))
	for _, c := range eligible {
		recent, err := s.sessions.CountRecentBetween(ctx, user.UserID, c.UserID, since)
		if err != nil {
			return nil, fmt.Errorf("match: count recent sessions: %w", err)
		}

		candidates = append(candidates, domain.MatchCandidate{
			User:              c,
			MatchingInterests: intersectCount(user.Interests, c.Interests),
			RecentSessions:    recent,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RecentSessions != candidates[j].RecentSessions {
			return candidates[i].RecentSessions < candidates[j].RecentSessions
		}
		return candidates[i].MatchingInterests > candidates[j].MatchingInterests
	})

	return &candidates[0], nil
}

// IsAvailable reports whether the user is free to start a game, i.e. not in
// the occupied set. Used as an admission check before matchmaking so an
// occupied user fails fast instead of wasting a match search.
func (s *Service) IsAvailable(ctx context.Context, userID string) (bool, error) {
	occupied, err := s.presence.Contains(ctx, presence.SetOccupied, userID)
	if err != nil {
		return false, err
	}

	return !occupied, nil
}

func intersectCount(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}

	n := 0
	for _, s := range b {
		if _, ok := set[s]; ok {
			n++
		}
	}

	return n
}
