// Package seen keeps a short-lived per-viewer record of surfaced units in
// Redis so discovery reads can skip the marker table.
package seen

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
)

const keyPrefix = "seedbed:seen:"

// Cache stores recently surfaced unit IDs per viewer in a sorted set scored
// by unix millis.
type Cache struct {
	client rueidis.Client
	window time.Duration
}

// Dial connects to Redis at addr.
func Dial(addr string) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// New creates a Cache that remembers entries for window.
func New(client rueidis.Client, window time.Duration) *Cache {
	return &Cache{client: client, window: window}
}

func key(viewerID string) string { return keyPrefix + viewerID }

// Mark records unitIDs as shown to viewerID at at, and drops entries that
// have aged out of the window.
func (c *Cache) Mark(ctx context.Context, viewerID string, unitIDs []string, at time.Time) error {
	if len(unitIDs) == 0 {
		return nil
	}
	k := key(viewerID)
	score := float64(at.UnixMilli())

	zadd := c.client.B().Zadd().Key(k).ScoreMember()
	for _, id := range unitIDs {
		zadd = zadd.ScoreMember(score, id)
	}

	cutoff := strconv.FormatInt(at.Add(-c.window).UnixMilli(), 10)
	results := c.client.DoMulti(ctx,
		zadd.Build(),
		c.client.B().Zremrangebyscore().Key(k).Min("-inf").Max("("+cutoff).Build(),
		c.client.B().Expire().Key(k).Seconds(int64(c.window.Seconds())+1).Build(),
	)
	for _, r := range results {
		if err := r.Error(); err != nil {
			return fmt.Errorf("mark seen: %w", err)
		}
	}
	return nil
}

// Recent returns the unit IDs shown to viewerID within the window ending at now.
func (c *Cache) Recent(ctx context.Context, viewerID string, now time.Time) ([]string, error) {
	since := strconv.FormatInt(now.Add(-c.window).UnixMilli(), 10)
	ids, err := c.client.Do(ctx,
		c.client.B().Zrangebyscore().Key(key(viewerID)).Min(since).Max("+inf").Build(),
	).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("recent seen: %w", err)
	}
	return ids, nil
}

// Forget clears everything recorded for viewerID.
func (c *Cache) Forget(ctx context.Context, viewerID string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(key(viewerID)).Build()).Error(); err != nil {
		return fmt.Errorf("forget seen: %w", err)
	}
	return nil
}
