package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/seedbed/internal/garden"
	"github.com/lazypower/seedbed/internal/store"
)

// VoteResult reports what a vote did.
type VoteResult struct {
	Comment garden.Comment
	// Changed is false when the vote repeated the voter's existing polarity.
	Changed bool
	// Toxic is true when this vote retired the comment and composted its parent.
	Toxic bool
	// Unit is the parent after the vote's effect, nil when nothing changed.
	Unit *garden.Unit
}

// ApplyVote records a vote on a comment and cascades its effect. The steps run
// in order and each commits on its own:
//
//  1. tally: insert or flip the vote and update the comment counts
//  2. parent: compost on toxicity, otherwise extend or reduce the wilt instant
//  3. reputation: nudge the comment author's standing, best effort
//
// Repeating an existing vote stops after step 1 with Changed false.
func (e *Engine) ApplyVote(ctx context.Context, commentID, voterID string, p garden.Polarity) (*VoteResult, error) {
	if voterID == "" {
		return nil, fmt.Errorf("%w: voter required", ErrInvalidInput)
	}
	if _, err := garden.ParsePolarity(string(p)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := e.now()

	out, err := e.DB.CastVote(ctx, commentID, voterID, p, now)
	if err != nil {
		return nil, fmt.Errorf("cast vote: %w", err)
	}
	res := &VoteResult{Comment: out.Comment, Changed: out.Changed, Toxic: out.BecameToxic}
	if !out.Changed {
		return res, nil
	}

	unit, err := e.applyParentEffect(ctx, out, p, now)
	if err != nil {
		return nil, fmt.Errorf("apply vote to unit %s: %w", out.Comment.UnitID, err)
	}
	res.Unit = unit

	e.applyReputation(ctx, out, p)
	return res, nil
}

func (e *Engine) applyParentEffect(ctx context.Context, out store.VoteOutcome, p garden.Polarity, now time.Time) (*garden.Unit, error) {
	unitID := out.Comment.UnitID

	// A toxic comment always composts its parent. Repeating the write is a no-op.
	if out.Comment.IsToxic() {
		composted, err := e.DB.CompostUnit(ctx, unitID, now)
		if err != nil {
			return nil, err
		}
		if composted {
			e.logger.Info("comment is toxic, unit composted",
				zap.String("comment_id", out.Comment.ID),
				zap.String("unit_id", unitID))
		}
		return e.DB.GetUnit(ctx, unitID)
	}

	var unit *garden.Unit
	err := e.retryConflict(ctx, func(int) error {
		u, err := e.DB.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		unit = u
		if u.State.Terminal() {
			return nil
		}

		switch p {
		case garden.Positive:
			wilts := garden.ExtendWilt(*u, garden.VoteAdjustment, now)
			return e.DB.AdjustLifespan(ctx, u, wilts, out.Comment.NetScore())
		case garden.Negative:
			if u.WiltsAt.IsZero() {
				return nil
			}
			return e.DB.AdjustLifespan(ctx, u, garden.ReduceWilt(*u, garden.VoteAdjustment, now), 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// applyReputation never fails the vote; errors are logged.
func (e *Engine) applyReputation(ctx context.Context, out store.VoteOutcome, p garden.Polarity) {
	if e.Reputation == nil {
		return
	}
	var delta float64
	switch {
	case p == garden.Negative && out.Comment.IsToxic():
		delta = toxicReputation
	case p == garden.Positive:
		delta = upvoteReputation
	default:
		return
	}
	if err := e.Reputation.AdjustReputation(ctx, out.Comment.AuthorID, delta); err != nil {
		e.logger.Warn("reputation adjustment failed",
			zap.String("actor_id", out.Comment.AuthorID),
			zap.Float64("delta", delta),
			zap.Error(err))
	}
}

// RetractVote removes a vote and reverses its tally. Lifespan changes the vote
// already made to the parent stay in place, and a composted parent stays composted.
func (e *Engine) RetractVote(ctx context.Context, commentID, voterID string) (*garden.Comment, error) {
	removed, c, err := e.DB.RetractVote(ctx, commentID, voterID, e.now())
	if err != nil {
		return nil, fmt.Errorf("retract vote: %w", err)
	}
	e.logger.Debug("vote retracted",
		zap.String("comment_id", commentID),
		zap.String("polarity", string(removed)))
	return c, nil
}
