package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/presence"
)

func TestRegistry_AddRemoveList(t *testing.T) {
	ctx := context.Background()
	reg, _ := makeRegistry(t)

	now := time.Now()
	require.NoError(t, reg.Add(ctx, presence.SetActive, "u1", now))
	require.NoError(t, reg.Add(ctx, presence.SetActive, "u2", now.Add(time.Second)))

	ids, err := reg.List(ctx, presence.SetActive)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, ids)

	require.NoError(t, reg.Remove(ctx, presence.SetActive, "u1"))

	ids, err = reg.List(ctx, presence.SetActive)
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, ids)

	// removing an absent member is a no-op
	require.NoError(t, reg.Remove(ctx, presence.SetActive, "u1"))

	ids, err = reg.List(ctx, presence.SetActive)
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, ids)
}

func TestRegistry_ReAddRefreshesRank(t *testing.T) {
	ctx := context.Background()
	reg, _ := makeRegistry(t)

	now := time.Now()
	require.NoError(t, reg.Add(ctx, presence.SetActive, "u1", now))
	require.NoError(t, reg.Add(ctx, presence.SetActive, "u2", now.Add(time.Second)))
	require.NoError(t, reg.Add(ctx, presence.SetActive, "u1", now.Add(2*time.Second)))

	ids, err := reg.List(ctx, presence.SetActive)
	require.NoError(t, err)
	require.Equal(t, []string{"u2", "u1"}, ids, "re-add should refresh the rank, not duplicate the member")
}

func TestRegistry_Contains(t *testing.T) {
	ctx := context.Background()
	reg, _ := makeRegistry(t)

	ok, err := reg.Contains(ctx, presence.SetOccupied, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, reg.Add(ctx, presence.SetOccupied, "u1", time.Now()))

	ok, err = reg.Contains(ctx, presence.SetOccupied, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, reg.Remove(ctx, presence.SetOccupied, "u1"))

	ok, err = reg.Contains(ctx, presence.SetOccupied, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistry_WriteRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	reg, rs := makeRegistry(t)

	require.NoError(t, reg.Add(ctx, presence.SetActive, "u1", time.Now()))

	ttl := rs.TTL("quizduel:presence:active")
	require.Equal(t, 7*24*time.Hour, ttl)

	rs.FastForward(time.Hour)
	require.NoError(t, reg.Add(ctx, presence.SetActive, "u2", time.Now()))

	ttl = rs.TTL("quizduel:presence:active")
	require.Equal(t, 7*24*time.Hour, ttl, "every write should refresh the set expiry")
}

func makeRegistry(t *testing.T) (*presence.Registry, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return presence.NewRegistry(presence.Config{
		Redis:  rc,
		Prefix: "quizduel",
	}), rs
}
