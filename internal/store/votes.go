package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/lazypower/seedbed/internal/garden"
)

// VoteOutcome describes what CastVote did to a comment's tallies.
type VoteOutcome struct {
	Comment garden.Comment
	// Previous is the voter's earlier polarity, empty for a first vote.
	Previous garden.Polarity
	// Changed is false when the vote repeated the existing polarity.
	Changed bool
	// BecameToxic is true when this vote pushed the comment over the toxic threshold.
	BecameToxic bool
}

// CastVote records a vote, or flips an existing one, and updates the comment
// tallies in the same transaction. Repeating the current polarity is a no-op.
// A comment that turns toxic is retired.
func (db *DB) CastVote(ctx context.Context, commentID, voterID string, p garden.Polarity, now time.Time) (VoteOutcome, error) {
	var out VoteOutcome
	err := db.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		before, err := commentTx(ctx, tx, commentID)
		if err != nil {
			return err
		}

		var existing voteRow
		err = tx.NewSelect().Model(&existing).
			Where("v.comment_id = ?", commentID).
			Where("v.voter_id = ?", voterID).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			row := voteRow{
				CommentID: commentID,
				VoterID:   voterID,
				Polarity:  string(p),
				CreatedAt: millis(now),
				UpdatedAt: millis(now),
			}
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return fmt.Errorf("insert vote: %w", err)
			}
			if err := bumpTally(ctx, tx, commentID, p, 1); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("find vote: %w", err)
		case garden.Polarity(existing.Polarity) == p:
			out = VoteOutcome{Comment: *before, Previous: p}
			return nil
		default:
			out.Previous = garden.Polarity(existing.Polarity)
			if _, err := tx.NewUpdate().Model((*voteRow)(nil)).
				Set("polarity = ?", string(p)).
				Set("updated_at = ?", millis(now)).
				Where("comment_id = ?", commentID).
				Where("voter_id = ?", voterID).
				Exec(ctx); err != nil {
				return fmt.Errorf("flip vote: %w", err)
			}
			if err := bumpTally(ctx, tx, commentID, out.Previous, -1); err != nil {
				return err
			}
			if err := bumpTally(ctx, tx, commentID, p, 1); err != nil {
				return err
			}
		}

		after, err := commentTx(ctx, tx, commentID)
		if err != nil {
			return err
		}
		out.Changed = true
		out.BecameToxic = !before.IsToxic() && after.IsToxic()
		if err := syncRetired(ctx, tx, after, now); err != nil {
			return err
		}
		out.Comment = *after
		return nil
	})
	if err != nil {
		return VoteOutcome{}, err
	}
	return out, nil
}

// RetractVote removes a voter's vote and reverses its tally increment.
// A retired comment that is no longer toxic is restored. Returns the removed
// polarity and the updated comment.
func (db *DB) RetractVote(ctx context.Context, commentID, voterID string, now time.Time) (garden.Polarity, *garden.Comment, error) {
	var (
		removed garden.Polarity
		updated *garden.Comment
	)
	err := db.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing voteRow
		err := tx.NewSelect().Model(&existing).
			Where("v.comment_id = ?", commentID).
			Where("v.voter_id = ?", voterID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find vote: %w", err)
		}
		removed = garden.Polarity(existing.Polarity)

		if _, err := tx.NewDelete().Model((*voteRow)(nil)).
			Where("comment_id = ?", commentID).
			Where("voter_id = ?", voterID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete vote: %w", err)
		}
		if err := bumpTally(ctx, tx, commentID, removed, -1); err != nil {
			return err
		}

		c, err := commentTx(ctx, tx, commentID)
		if err != nil {
			return err
		}
		if err := syncRetired(ctx, tx, c, now); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return removed, updated, nil
}

// GetVote returns the voter's polarity on a comment, or ErrNotFound.
func (db *DB) GetVote(ctx context.Context, commentID, voterID string) (garden.Polarity, error) {
	var row voteRow
	err := db.Bun.NewSelect().Model(&row).
		Where("v.comment_id = ?", commentID).
		Where("v.voter_id = ?", voterID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get vote: %w", err)
	}
	return garden.Polarity(row.Polarity), nil
}

func commentTx(ctx context.Context, tx bun.Tx, id string) (*garden.Comment, error) {
	var row commentRow
	err := tx.NewSelect().Model(&row).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	c := row.comment()
	return &c, nil
}

// bumpTally adjusts one tally in place. Decrements stop at zero.
func bumpTally(ctx context.Context, tx bun.Tx, commentID string, p garden.Polarity, delta int) error {
	col := "positive_count"
	if p == garden.Negative {
		col = "negative_count"
	}
	_, err := tx.NewUpdate().Model((*commentRow)(nil)).
		Set("? = MAX(? + ?, 0)", bun.Ident(col), bun.Ident(col), delta).
		Where("id = ?", commentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update %s: %w", col, err)
	}
	return nil
}

// syncRetired makes retired_at agree with the comment's toxicity.
func syncRetired(ctx context.Context, tx bun.Tx, c *garden.Comment, now time.Time) error {
	switch {
	case c.IsToxic() && c.RetiredAt.IsZero():
		c.RetiredAt = now
	case !c.IsToxic() && !c.RetiredAt.IsZero():
		c.RetiredAt = time.Time{}
	default:
		return nil
	}
	_, err := tx.NewUpdate().Model((*commentRow)(nil)).
		Set("retired_at = ?", nullMillis(c.RetiredAt)).
		Where("id = ?", c.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update retired_at: %w", err)
	}
	return nil
}
