package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/seedbed/internal/garden"
	"github.com/lazypower/seedbed/internal/store"
)

func TestLifecyclePassSproutsAfterAnHour(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()
	u := plant(t, e, "alice")

	clock.Set(t0.Add(59 * time.Minute))
	s, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Transitions())

	clock.Set(t0.Add(time.Hour))
	s, err = e.RunLifecyclePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Sprouted)
	assert.NoError(t, s.Err())

	got := reload(t, e, u.ID)
	assert.Equal(t, garden.Sprouting, got.State)
	assert.True(t, got.WiltsAt.Equal(t0.Add(168*time.Hour)), "wilts at %v", got.WiltsAt)
}

func TestLifecyclePassIsIdempotent(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()
	for range 5 {
		plant(t, e, "alice")
	}
	clock.Set(t0.Add(300 * time.Hour))

	first, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Composted)

	before, err := e.DB.QueryUnits(ctx, store.UnitFilter{})
	require.NoError(t, err)

	second, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Transitions())
	assert.Equal(t, 0, second.Evaluated, "composted units are not re-evaluated")

	after, err := e.DB.QueryUnits(ctx, store.UnitFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLifecyclePassSecondRunNoChange(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()
	plant(t, e, "alice")
	clock.Set(t0.Add(2 * time.Hour))

	_, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err)
	s, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Evaluated)
	assert.Equal(t, 0, s.Transitions())
}

func TestLifecyclePassBloomsAfterVotes(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()
	u := plant(t, e, "alice")
	c := comment(t, e, u.ID, "bob")

	clock.Set(t0.Add(time.Hour))
	_, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err)

	// Each positive vote adds the comment's running net score: 1+2+...+6 = 21.
	for _, voter := range []string{"v1", "v2", "v3", "v4", "v5", "v6"} {
		_, err := e.ApplyVote(ctx, c.ID, voter, garden.Positive)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(21), reload(t, e, u.ID).NetVoteScore)

	clock.Advance(5 * time.Minute)
	s, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Bloomed)
	assert.Equal(t, garden.Blooming, reload(t, e, u.ID).State)
}

func TestLifecyclePassWiltsAndComposts(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()
	u := plant(t, e, "alice")
	_, err := e.ForceTransition(ctx, u.ID, garden.Sprouting)
	require.NoError(t, err)
	_, err = e.ForceTransition(ctx, u.ID, garden.Blooming)
	require.NoError(t, err)

	wilts := t0.Add(garden.DefaultLifespan)

	clock.Set(wilts.Add(-23 * time.Hour))
	s, _ := e.RunLifecyclePass(ctx)
	assert.Equal(t, 1, s.Wilted)

	clock.Set(wilts)
	s, _ = e.RunLifecyclePass(ctx)
	assert.Equal(t, 1, s.Composted)

	got := reload(t, e, u.ID)
	assert.Equal(t, garden.Composted, got.State)
	assert.True(t, got.ComposedAt.Equal(wilts))
}

func TestLifecyclePassContinuesPastFailures(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()

	good := plant(t, e, "alice")
	bad := plant(t, e, "alice")
	_, err := e.DB.Exec(`
		CREATE TRIGGER reject_bad BEFORE UPDATE ON content_units
		WHEN OLD.id = '` + bad.ID + `'
		BEGIN SELECT RAISE(ABORT, 'storage failure'); END`)
	require.NoError(t, err)

	clock.Set(t0.Add(2 * time.Hour))
	s, err := e.RunLifecyclePass(ctx)
	require.NoError(t, err, "per-unit failures do not fail the pass")

	assert.Equal(t, 2, s.Evaluated)
	assert.Equal(t, 1, s.Sprouted)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, bad.ID, s.Errors[0].UnitID)

	var ue UnitError
	require.ErrorAs(t, s.Err(), &ue)
	assert.Equal(t, bad.ID, ue.UnitID)

	assert.Equal(t, garden.Sprouting, reload(t, e, good.ID).State)
	assert.Equal(t, garden.Planted, reload(t, e, bad.ID).State, "failed unit is left untouched")
}

func TestLifecyclePassRejectsOverlap(t *testing.T) {
	e, _ := testEngine(t)

	require.True(t, e.lifecycleSem.TryAcquire(1))
	_, err := e.RunLifecyclePass(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)
	e.lifecycleSem.Release(1)

	_, err = e.RunLifecyclePass(context.Background())
	assert.NoError(t, err)
}

func TestForceTransition(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()
	u := plant(t, e, "alice")

	_, err := e.ForceTransition(ctx, u.ID, garden.Blooming)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, garden.Planted, reload(t, e, u.ID).State, "rejected transition leaves unit unchanged")

	got, err := e.ForceTransition(ctx, u.ID, garden.Sprouting)
	require.NoError(t, err)
	assert.True(t, got.WiltsAt.Equal(t0.Add(garden.DefaultLifespan)))

	clock.Advance(time.Hour)
	got, err = e.ForceTransition(ctx, u.ID, garden.Composted)
	require.NoError(t, err)
	assert.True(t, got.ComposedAt.Equal(t0.Add(time.Hour)))

	_, err = e.ForceTransition(ctx, u.ID, garden.Composted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.ForceTransition(ctx, "ghost", garden.Sprouting)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRetryConflict(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	calls := 0
	err := e.retryConflict(ctx, func(attempt int) error {
		calls++
		if attempt == 0 {
			return store.ErrConcurrentModification
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = e.retryConflict(ctx, func(int) error {
		calls++
		return store.ErrConcurrentModification
	})
	assert.ErrorIs(t, err, store.ErrConcurrentModification)
	assert.Equal(t, 2, calls, "retried exactly once")

	calls = 0
	boom := errors.New("boom")
	err = e.retryConflict(ctx, func(int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "other errors are not retried")
}

func TestArchivePass(t *testing.T) {
	e, clock := testEngine(t)
	ctx := context.Background()

	live := plant(t, e, "alice")
	dead := plant(t, e, "alice")
	_, err := e.ForceTransition(ctx, dead.ID, garden.Composted)
	require.NoError(t, err)

	require.NoError(t, e.DB.AddMarkers(ctx, "viewer", "discovery", []string{live.ID}, t0))
	require.NoError(t, e.DB.AddMarkers(ctx, "viewer", "discovery", []string{live.ID}, t0.Add(29*24*time.Hour)))

	clock.Set(t0.Add(31 * 24 * time.Hour))
	s, err := e.RunArchivePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Archived)
	assert.Equal(t, int64(1), s.MarkersPruned)

	got := reload(t, e, dead.ID)
	assert.False(t, got.ArchivedAt.IsZero(), "archived, not deleted")

	s, err = e.RunArchivePass(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Archived)
}
