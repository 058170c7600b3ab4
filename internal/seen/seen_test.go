package seen_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/seedbed/internal/seen"
)

func setupTest(t *testing.T) *seen.Cache {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return seen.New(client, 24*time.Hour)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMarkAndRecent(t *testing.T) {
	cache := setupTest(t)
	ctx := t.Context()

	require.NoError(t, cache.Mark(ctx, "viewer", []string{"a", "b"}, t0))

	ids, err := cache.Recent(ctx, "viewer", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	other, err := cache.Recent(ctx, "someone-else", t0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecentHonorsWindow(t *testing.T) {
	cache := setupTest(t)
	ctx := t.Context()

	require.NoError(t, cache.Mark(ctx, "viewer", []string{"old"}, t0))
	require.NoError(t, cache.Mark(ctx, "viewer", []string{"new"}, t0.Add(20*time.Hour)))

	ids, err := cache.Recent(ctx, "viewer", t0.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)
}

func TestMarkTrimsExpiredEntries(t *testing.T) {
	cache := setupTest(t)
	ctx := t.Context()

	require.NoError(t, cache.Mark(ctx, "viewer", []string{"old"}, t0))
	require.NoError(t, cache.Mark(ctx, "viewer", []string{"new"}, t0.Add(48*time.Hour)))

	// Query far in the past: only trimmed entries would show up.
	ids, err := cache.Recent(ctx, "viewer", t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)
}

func TestRemarkRefreshesScore(t *testing.T) {
	cache := setupTest(t)
	ctx := t.Context()

	require.NoError(t, cache.Mark(ctx, "viewer", []string{"a"}, t0))
	require.NoError(t, cache.Mark(ctx, "viewer", []string{"a"}, t0.Add(23*time.Hour)))

	ids, err := cache.Recent(ctx, "viewer", t0.Add(30*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestForget(t *testing.T) {
	cache := setupTest(t)
	ctx := t.Context()

	require.NoError(t, cache.Mark(ctx, "viewer", []string{"a"}, t0))
	require.NoError(t, cache.Forget(ctx, "viewer"))

	ids, err := cache.Recent(ctx, "viewer", t0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMarkEmptyIsNoop(t *testing.T) {
	cache := setupTest(t)
	assert.NoError(t, cache.Mark(t.Context(), "viewer", nil, t0))
}
