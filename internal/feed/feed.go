// Package feed builds the read views over content units: discovery,
// following, private, search, and single-item fetch with a privacy check.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/seedbed/internal/garden"
	"github.com/lazypower/seedbed/internal/store"
)

// Pathway tags recorded on discovery markers.
const (
	PathwayDiscovery = "discovery"
	PathwayFollowing = "following"
	PathwaySearch    = "search"
)

// Page size limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	// ErrNotFound is returned for missing units and for units the viewer may not see.
	ErrNotFound = store.ErrNotFound
	// ErrViewerRequired is returned by feeds that only make sense for a known viewer.
	ErrViewerRequired = errors.New("viewer required")
	// ErrEmptyQuery is returned for a blank search.
	ErrEmptyQuery = errors.New("empty search query")
)

// Recents is a fast lookup of units recently shown to a viewer. When set,
// discovery consults it before falling back to the marker table.
type Recents interface {
	Recent(ctx context.Context, viewerID string, now time.Time) ([]string, error)
	Mark(ctx context.Context, viewerID string, unitIDs []string, at time.Time) error
}

// Builder assembles feeds from the content store.
type Builder struct {
	db      *store.DB
	recents Recents
	logger  *zap.Logger
	now     func() time.Time

	// markFailed holds, per viewer, the last time a cache write was lost.
	// Until the discovery window has passed since then, the cache is
	// incomplete for that viewer and the marker table is used instead.
	mu         sync.Mutex
	markFailed map[string]time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithRecents enables the recently-seen cache.
func WithRecents(r Recents) Option {
	return func(b *Builder) { b.recents = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New creates a Builder.
func New(db *store.DB, logger *zap.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		db:         db,
		logger:     logger.Named("feed"),
		now:        time.Now,
		markFailed: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Discovery returns public blooming units ranked by weighted growth, skipping
// anything shown to the viewer in the last 24 hours. Every returned unit is
// marked as seen, so consecutive calls walk further down the ranking.
func (b *Builder) Discovery(ctx context.Context, viewerID string, limit int) ([]garden.Unit, error) {
	now := b.now()
	f := store.UnitFilter{
		States:    []garden.State{garden.Blooming},
		Privacies: []garden.Privacy{garden.Public},
		Order:     store.OrderGrowth,
		Limit:     clampLimit(limit),
	}
	if viewerID != "" {
		b.excludeRecent(ctx, &f, viewerID, now)
	}

	units, err := b.db.QueryUnits(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("discovery feed: %w", err)
	}
	b.record(ctx, viewerID, PathwayDiscovery, units, now)
	return units, nil
}

// excludeRecent fills the seen-exclusion of f from the cache, or from the
// marker table if the cache is absent, failing, or missing recent writes.
func (b *Builder) excludeRecent(ctx context.Context, f *store.UnitFilter, viewerID string, now time.Time) {
	since := now.Add(-garden.DiscoveryWindow)
	if b.recents != nil && b.cacheComplete(viewerID, since) {
		ids, err := b.recents.Recent(ctx, viewerID, now)
		if err == nil {
			f.ExcludeIDs = ids
			return
		}
		b.logger.Warn("recents lookup failed, using marker table",
			zap.String("viewer_id", viewerID),
			zap.Error(err))
	}
	f.SeenBy = viewerID
	f.SeenSince = since
}

// Following returns units by actors in the viewer's circles, newest first.
// Connections-scoped units are kept only when the author has the viewer in
// their own connections circle.
func (b *Builder) Following(ctx context.Context, viewerID string, limit int) ([]garden.Unit, error) {
	if viewerID == "" {
		return nil, ErrViewerRequired
	}
	now := b.now()

	authors, err := b.db.Connections(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("following feed: %w", err)
	}
	if len(authors) == 0 {
		return []garden.Unit{}, nil
	}

	units, err := b.db.QueryUnits(ctx, store.UnitFilter{
		States:    []garden.State{garden.Blooming, garden.Sprouting},
		Privacies: []garden.Privacy{garden.Public, garden.Connections},
		AuthorIDs: authors,
		VisibleTo: viewerID,
		Order:     store.OrderNewest,
		Limit:     clampLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("following feed: %w", err)
	}

	b.record(ctx, viewerID, PathwayFollowing, units, now)
	return units, nil
}

// Private returns the viewer's own units that have not composted, newest first.
// No markers are written.
func (b *Builder) Private(ctx context.Context, viewerID string, limit int) ([]garden.Unit, error) {
	if viewerID == "" {
		return nil, ErrViewerRequired
	}
	units, err := b.db.QueryUnits(ctx, store.UnitFilter{
		AuthorIDs: []string{viewerID},
		NotStates: []garden.State{garden.Composted},
		Order:     store.OrderNewest,
		Limit:     clampLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("private feed: %w", err)
	}
	return units, nil
}

// Search matches public sprouting or blooming units whose body contains query.
func (b *Builder) Search(ctx context.Context, viewerID, query string, limit int) ([]garden.Unit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	now := b.now()

	units, err := b.db.QueryUnits(ctx, store.UnitFilter{
		States:    []garden.State{garden.Blooming, garden.Sprouting},
		Privacies: []garden.Privacy{garden.Public},
		Text:      query,
		Order:     store.OrderNewest,
		Limit:     clampLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	b.record(ctx, viewerID, PathwaySearch, units, now)
	return units, nil
}

// Get returns one unit if the viewer may see it. Missing, archived and
// invisible units all return ErrNotFound.
func (b *Builder) Get(ctx context.Context, viewerID, unitID string) (*garden.Unit, error) {
	u, err := b.db.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !u.ArchivedAt.IsZero() {
		return nil, ErrNotFound
	}
	ok, err := b.visible(ctx, *u, viewerID)
	if err != nil {
		return nil, fmt.Errorf("privacy check: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

// cacheComplete reports whether every cache write for viewerID since the
// given instant succeeded.
func (b *Builder) cacheComplete(viewerID string, since time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	failed, ok := b.markFailed[viewerID]
	if !ok {
		return true
	}
	if failed.Before(since) {
		delete(b.markFailed, viewerID)
		return true
	}
	return false
}

func (b *Builder) visible(ctx context.Context, u garden.Unit, viewerID string) (bool, error) {
	return garden.IsVisible(u, viewerID, func(scope garden.Privacy) (bool, error) {
		return b.db.InCircle(ctx, u.AuthorID, viewerID, scope)
	})
}

// record writes discovery markers after a read. Failures are logged, not returned.
func (b *Builder) record(ctx context.Context, viewerID, pathway string, units []garden.Unit, at time.Time) {
	if viewerID == "" || len(units) == 0 {
		return
	}
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}

	ctx = context.WithoutCancel(ctx)
	if err := b.db.AddMarkers(ctx, viewerID, pathway, ids, at); err != nil {
		b.logger.Warn("record markers failed",
			zap.String("viewer_id", viewerID),
			zap.String("pathway", pathway),
			zap.Error(err))
	}
	if b.recents != nil {
		if err := b.recents.Mark(ctx, viewerID, ids, at); err != nil {
			b.logger.Warn("mark recents failed",
				zap.String("viewer_id", viewerID),
				zap.Error(err))
			b.mu.Lock()
			b.markFailed[viewerID] = at
			b.mu.Unlock()
		}
	}
}
