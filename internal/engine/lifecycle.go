package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/lazypower/seedbed/internal/garden"
)

// UnitError records a unit that could not be evaluated during a pass.
type UnitError struct {
	UnitID string
	Err    error
}

func (u UnitError) Error() string { return fmt.Sprintf("unit %s: %v", u.UnitID, u.Err) }

func (u UnitError) Unwrap() error { return u.Err }

// Summary reports what a lifecycle pass did. Counts are transitions, so a
// unit that moved through two stages in one pass counts in both.
type Summary struct {
	Evaluated int
	Sprouted  int
	Bloomed   int
	Wilted    int
	Composted int
	Errors    []UnitError
	Duration  time.Duration
}

// Transitions is the total number of stage changes.
func (s Summary) Transitions() int {
	return s.Sprouted + s.Bloomed + s.Wilted + s.Composted
}

// Err joins per-unit failures, or returns nil when every unit succeeded.
func (s Summary) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(s.Errors))
	for i, ue := range s.Errors {
		errs[i] = ue
	}
	return errors.Join(errs...)
}

func (s *Summary) count(steps []garden.State) {
	for _, st := range steps {
		switch st {
		case garden.Sprouting:
			s.Sprouted++
		case garden.Blooming:
			s.Bloomed++
		case garden.Wilting:
			s.Wilted++
		case garden.Composted:
			s.Composted++
		}
	}
}

// RunLifecyclePass evaluates every live unit and applies whatever stage
// transitions are due. Each unit is settled and written on its own; a failing
// unit is recorded in the summary and the rest continue. The returned error is
// non-nil only when the pass could not start.
func (e *Engine) RunLifecyclePass(ctx context.Context) (Summary, error) {
	if !e.lifecycleSem.TryAcquire(1) {
		return Summary{}, ErrPassInProgress
	}
	defer e.lifecycleSem.Release(1)

	start := time.Now()
	now := e.now()

	live, err := e.DB.ListLive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list live units: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Evaluated: len(live)}
	)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(e.workers)
	for i := range live {
		u := live[i]
		p.Go(func(ctx context.Context) error {
			steps, err := e.settleUnit(ctx, u, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Errors = append(summary.Errors, UnitError{UnitID: u.ID, Err: err})
				e.logger.Warn("lifecycle: unit failed",
					zap.String("unit_id", u.ID),
					zap.Error(err))
				return nil
			}
			summary.count(steps)
			return nil
		})
	}
	_ = p.Wait()

	summary.Duration = time.Since(start)
	e.logger.Info("lifecycle pass complete",
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("sprouted", summary.Sprouted),
		zap.Int("bloomed", summary.Bloomed),
		zap.Int("wilted", summary.Wilted),
		zap.Int("composted", summary.Composted),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// settleUnit moves one unit as far as its rules allow at now. The first
// attempt uses the listed copy; a retry after a lost update re-reads it.
func (e *Engine) settleUnit(ctx context.Context, listed garden.Unit, now time.Time) ([]garden.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var steps []garden.State
	err := e.retryConflict(ctx, func(attempt int) error {
		u := listed
		if attempt > 0 {
			fresh, err := e.DB.GetUnit(ctx, listed.ID)
			if err != nil {
				return err
			}
			u = *fresh
		}

		steps = garden.Settle(&u, now)
		if len(steps) == 0 {
			return nil
		}
		return e.DB.SaveLifecycle(ctx, &u)
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// ForceTransition moves a unit by operator request. Only the next stage, or
// Composted from any live stage, is allowed.
func (e *Engine) ForceTransition(ctx context.Context, unitID string, to garden.State) (*garden.Unit, error) {
	now := e.now()

	var out *garden.Unit
	err := e.retryConflict(ctx, func(int) error {
		u, err := e.DB.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if !garden.CanForce(u.State, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, u.State, to)
		}
		garden.Enter(u, to, now)
		if err := e.DB.SaveLifecycle(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("forced transition",
		zap.String("unit_id", unitID),
		zap.String("state", string(to)))
	return out, nil
}
