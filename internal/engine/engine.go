package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lazypower/seedbed/internal/moderation"
	"github.com/lazypower/seedbed/internal/store"
)

var (
	// ErrInvalidTransition is returned when a forced state change is not allowed.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrRejected is returned when moderation blocks a comment.
	ErrRejected = errors.New("rejected by moderation")
	// ErrEmptyBody is returned when content has nothing to show.
	ErrEmptyBody = errors.New("empty body")
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrComposted is returned when writing to a unit that has reached its terminal state.
	ErrComposted = errors.New("unit is composted")
	// ErrPassInProgress is returned when a periodic pass is already running.
	ErrPassInProgress = errors.New("pass already in progress")
)

// ReputationSink adjusts an actor's community standing.
type ReputationSink interface {
	AdjustReputation(ctx context.Context, actorID string, delta float64) error
}

// Reputation deltas.
const (
	upvoteReputation = 0.01
	toxicReputation  = -0.1
)

// Engine runs the content lifecycle: vote effects, stage transitions and archival.
type Engine struct {
	DB         *store.DB
	Moderator  moderation.Client
	Reputation ReputationSink

	logger          *zap.Logger
	now             func() time.Time
	workers         int
	markerRetention time.Duration

	lifecycleSem *semaphore.Weighted
	archiveSem   *semaphore.Weighted

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithWorkers bounds how many units a lifecycle pass evaluates at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMarkerRetention sets how long discovery markers survive archival.
func WithMarkerRetention(d time.Duration) Option {
	return func(e *Engine) { e.markerRetention = d }
}

// WithReputationSink routes reputation deltas somewhere other than the store.
func WithReputationSink(sink ReputationSink) Option {
	return func(e *Engine) { e.Reputation = sink }
}

// New creates a new Engine. A nil moderator approves everything.
func New(db *store.DB, mod moderation.Client, logger *zap.Logger, opts ...Option) *Engine {
	if mod == nil {
		mod = moderation.AllowAll{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		DB:              db,
		Moderator:       mod,
		Reputation:      db,
		logger:          logger.Named("engine"),
		now:             time.Now,
		workers:         4,
		markerRetention: 30 * 24 * time.Hour,
		lifecycleSem:    semaphore.NewWeighted(1),
		archiveSem:      semaphore.NewWeighted(1),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs a lifecycle pass and an archive pass immediately, then repeats
// them every lifecycleEvery and archiveEvery until Stop is called. A tick that
// fires while the previous pass of the same kind is still running is skipped.
func (e *Engine) Start(lifecycleEvery, archiveEvery time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-e.stopCh
		cancel()
	}()

	e.every(ctx, "lifecycle", lifecycleEvery, func(ctx context.Context) {
		if _, err := e.RunLifecyclePass(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
			e.logger.Error("lifecycle pass failed", zap.Error(err))
		}
	})
	e.every(ctx, "archive", archiveEvery, func(ctx context.Context) {
		if _, err := e.RunArchivePass(ctx); err != nil && !errors.Is(err, ErrPassInProgress) {
			e.logger.Error("archive pass failed", zap.Error(err))
		}
	})
}

func (e *Engine) every(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logger.Info("periodic pass scheduled",
			zap.String("pass", name),
			zap.Duration("interval", interval))

		run(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts down the periodic driver and waits for in-flight passes to return.
func (e *Engine) Stop() {
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
	e.wg.Wait()
}

// retryConflict runs op, retrying exactly once with backoff when the store
// reports a lost optimistic update. op must re-read whatever it writes.
func (e *Engine) retryConflict(ctx context.Context, op func(attempt int) error) error {
	attempt := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(5*time.Millisecond),
				backoff.WithMaxInterval(50*time.Millisecond),
			),
			1,
		),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op(attempt)
		attempt++
		if err == nil || errors.Is(err, store.ErrConcurrentModification) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}
