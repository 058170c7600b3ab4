package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lazypower/seedbed/internal/garden"
)

// CreateComment inserts a comment. The parent unit must exist.
func (db *DB) CreateComment(ctx context.Context, c *garden.Comment) error {
	row := commentRow{
		ID:        c.ID,
		UnitID:    c.UnitID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: millis(c.CreatedAt),
	}
	if _, err := db.Bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetComment returns a comment by ID, retired or not, or ErrNotFound.
func (db *DB) GetComment(ctx context.Context, id string) (*garden.Comment, error) {
	var row commentRow
	err := db.Bun.NewSelect().Model(&row).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	c := row.comment()
	return &c, nil
}

// ListComments returns the readable comments on a unit, oldest first.
// Retired comments are excluded.
func (db *DB) ListComments(ctx context.Context, unitID string) ([]garden.Comment, error) {
	var rows []commentRow
	err := db.Bun.NewSelect().Model(&rows).
		Where("c.unit_id = ?", unitID).
		Where("c.retired_at IS NULL").
		OrderExpr("c.created_at ASC, c.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	out := make([]garden.Comment, len(rows))
	for i, r := range rows {
		out[i] = r.comment()
	}
	return out, nil
}
