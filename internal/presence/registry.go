package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// setTTL guards against orphaned sets: a crash between occupying participants
// and finishing (or persisting) a session leaves no compensation path, so the
// whole set eventually expires instead. Refreshed on every write.
const setTTL = 7 * 24 * time.Hour

// Set names one of the two presence ranked sets.
type Set string

const (
	// SetActive holds every user with a live connection.
	SetActive Set = "active"
	// SetOccupied holds users currently bound to exactly one live session.
	SetOccupied Set = "occupied"
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Registry tracks online users in redis ranked sets, ranked by a caller-given
// timestamp. It is the sole writer of presence membership.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRegistry(c Config) *Registry {
	return &Registry{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// Add puts userID into the set with rank as its score. Re-adding an existing
// member only refreshes its rank, so the write is idempotent under retry.
func (r *Registry) Add(ctx context.Context, set Set, userID string, rank time.Time) error {
	key := r.key(set)

	_, err := r.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{
			Score:  float64(rank.UnixMilli()),
			Member: userID,
		})
		p.Expire(ctx, key, setTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence: add to %s: %w", set, err)
	}

	return nil
}

// Remove deletes the given userIDs from the set. Removing absent members is a
// no-op. Unlike Add, Remove does not refresh the set TTL; only additions keep
// a set alive, so an idle set still expires after a week.
func (r *Registry) Remove(ctx context.Context, set Set, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	members := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, id)
	}

	if err := r.redis.ZRem(ctx, r.key(set), members...).Err(); err != nil {
		return fmt.Errorf("presence: remove from %s: %w", set, err)
	}

	return nil
}

// List returns every member of the set in rank order. Rank ties come back in
// an order the caller must not rely on.
func (r *Registry) List(ctx context.Context, set Set) ([]string, error) {
	ids, err := r.redis.ZRange(ctx, r.key(set), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list %s: %w", set, err)
	}

	return ids, nil
}

// Contains reports whether userID is a member of the set.
func (r *Registry) Contains(ctx context.Context, set Set, userID string) (bool, error) {
	err := r.redis.ZScore(ctx, r.key(set), userID).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("presence: check %s: %w", set, err)
	}

	return true, nil
}

func (r *Registry) key(set Set) string {
	return fmt.Sprintf("%s:presence:%s", r.prefix, set)
}
