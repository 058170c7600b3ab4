package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lazypower/seedbed/internal/garden"
	"github.com/lazypower/seedbed/internal/moderation"
	"github.com/lazypower/seedbed/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable clock for engine tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(testDB(t), nil, zaptest.NewLogger(t), opts...), clock
}

func plant(t *testing.T, e *Engine, author string) *garden.Unit {
	t.Helper()
	u, err := e.Plant(context.Background(), PlantRequest{AuthorID: author, Body: "seedlings on the windowsill"})
	require.NoError(t, err)
	return u
}

func comment(t *testing.T, e *Engine, unitID, author string) *garden.Comment {
	t.Helper()
	c, err := e.AddComment(context.Background(), unitID, author, "looks healthy")
	require.NoError(t, err)
	return c
}

func reload(t *testing.T, e *Engine, id string) *garden.Unit {
	t.Helper()
	u, err := e.DB.GetUnit(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestPlant(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	u := plant(t, e, "alice")
	assert.Equal(t, garden.Planted, u.State)
	assert.Equal(t, garden.Public, u.Privacy)
	assert.True(t, u.WiltsAt.IsZero())
	assert.True(t, u.CreatedAt.Equal(t0))
	assert.Equal(t, 1.0, u.ReputationMultiplier)

	require.NoError(t, e.DB.AdjustReputation(ctx, "bob", 0.5))
	b, err := e.Plant(ctx, PlantRequest{AuthorID: "bob", MediaRef: "s3://clips/1.mp4", Privacy: garden.Private})
	require.NoError(t, err)
	assert.Equal(t, 1.5, b.ReputationMultiplier)
	assert.Equal(t, garden.Private, b.Privacy)
}

func TestPlantValidation(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	_, err := e.Plant(ctx, PlantRequest{AuthorID: "alice", Body: "   "})
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = e.Plant(ctx, PlantRequest{Body: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Plant(ctx, PlantRequest{AuthorID: "alice", Body: "hi", Privacy: "friends"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordViewAndShare(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	u := plant(t, e, "alice")

	require.NoError(t, e.RecordView(ctx, u.ID))
	require.NoError(t, e.RecordShare(ctx, u.ID, 3))
	assert.ErrorIs(t, e.RecordShare(ctx, u.ID, -1), ErrInvalidInput)
	assert.ErrorIs(t, e.RecordView(ctx, "ghost"), store.ErrNotFound)

	got := reload(t, e, u.ID)
	assert.Equal(t, int64(1), got.ViewCount)
	assert.Equal(t, 3.0, got.ShareHours)
}

func TestAddCommentModeration(t *testing.T) {
	mod := &moderation.MockClient{Decision: &moderation.Decision{Verdict: moderation.Block, Reason: "spam"}}
	clock := &fakeClock{now: t0}
	e := New(testDB(t), mod, zaptest.NewLogger(t), WithClock(clock.Now))
	ctx := context.Background()
	u := plant(t, e, "alice")

	_, err := e.AddComment(ctx, u.ID, "bob", "buy now")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, []string{"buy now"}, mod.Calls)

	mod.Decision = nil
	mod.Err = errors.New("moderator down")
	c, err := e.AddComment(ctx, u.ID, "bob", "lovely")
	require.NoError(t, err, "moderation outage fails open")

	list, err := e.ListComments(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)
}

func TestAddCommentRules(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	u := plant(t, e, "alice")

	_, err := e.AddComment(ctx, u.ID, "bob", "  ")
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = e.AddComment(ctx, "ghost", "bob", "hi")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.ForceTransition(ctx, u.ID, garden.Composted)
	require.NoError(t, err)
	_, err = e.AddComment(ctx, u.ID, "bob", "too late")
	assert.ErrorIs(t, err, ErrComposted)
}

func TestStartStop(t *testing.T) {
	e, clock := testEngine(t)
	u := plant(t, e, "alice")
	clock.Advance(2 * time.Hour)

	e.Start(time.Hour, time.Hour)
	require.Eventually(t, func() bool {
		got, err := e.DB.GetUnit(context.Background(), u.ID)
		return err == nil && got.State == garden.Sprouting
	}, 2*time.Second, 10*time.Millisecond)

	e.Stop()
	e.Stop() // idempotent
}
