package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/workflow"
)

func sampleStats() workflow.Stats {
	return workflow.Stats{
		ByStatus:          map[domain.ApplicationStatus]int{domain.StatusPending: 2},
		ByType:            map[string]int{"Car": 2},
		ByApplicationType: map[domain.ApplicationType]int{domain.TypeTransfer: 2},
		TotalCount:        2,
		TotalRevenue:      400,
	}
}

func exerciseCache(t *testing.T, c StatsCache) {
	ctx := context.Background()
	kind := domain.KindVehicle

	gen, err := c.Generation(ctx, kind)
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, kind, gen)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, kind, gen, sampleStats()))
	got, ok, err := c.Get(ctx, kind, gen)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleStats(), *got)

	require.NoError(t, c.Invalidate(ctx, kind))
	next, err := c.Generation(ctx, kind)
	require.NoError(t, err)
	require.Greater(t, next, gen)

	_, ok, err = c.Get(ctx, kind, next)
	require.NoError(t, err)
	require.False(t, ok, "a bumped generation must miss")

	require.NoError(t, c.Set(ctx, kind, next, sampleStats()))
	require.NoError(t, c.Evict(ctx, kind, next))
	_, ok, err = c.Get(ctx, kind, next)
	require.NoError(t, err)
	require.False(t, ok, "an evicted entry must miss")

	otherGen, err := c.Generation(ctx, domain.KindRoute)
	require.NoError(t, err)
	_, ok, err = c.Get(ctx, domain.KindRoute, otherGen)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStatsCache(t *testing.T) {
	exerciseCache(t, NewMemoryStatsCache())
}

func TestRedisStatsCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	require.NoError(t, client.FlushDB(context.Background()).Err())

	exerciseCache(t, NewRedisStatsCache(client, time.Minute))
}
