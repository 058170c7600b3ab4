package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/seedbed/internal/garden"
)

// AddToCircle places member in owner's circle for scope. Adding twice is a no-op.
func (db *DB) AddToCircle(ctx context.Context, ownerID, memberID string, scope garden.Privacy) error {
	if !circleScope(scope) {
		return fmt.Errorf("scope %q has no circle", scope)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO circles (owner_id, member_id, scope, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, member_id, scope) DO NOTHING`,
		ownerID, memberID, string(scope), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("add to circle: %w", err)
	}
	return nil
}

// RemoveFromCircle drops member from owner's circle for scope.
func (db *DB) RemoveFromCircle(ctx context.Context, ownerID, memberID string, scope garden.Privacy) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM circles WHERE owner_id = ? AND member_id = ? AND scope = ?",
		ownerID, memberID, string(scope))
	if err != nil {
		return fmt.Errorf("remove from circle: %w", err)
	}
	return nil
}

// InCircle reports whether member is in owner's circle for exactly scope.
func (db *DB) InCircle(ctx context.Context, ownerID, memberID string, scope garden.Privacy) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM circles WHERE owner_id = ? AND member_id = ? AND scope = ?",
		ownerID, memberID, string(scope)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check circle: %w", err)
	}
	return n > 0, nil
}

// Connections returns every actor the owner has placed in any circle.
func (db *DB) Connections(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT DISTINCT member_id FROM circles WHERE owner_id = ? ORDER BY member_id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var circleScopes = []string{
	string(garden.Connections), string(garden.InnerCircle), string(garden.Community),
}

func circleScope(p garden.Privacy) bool {
	switch p {
	case garden.Connections, garden.InnerCircle, garden.Community:
		return true
	}
	return false
}
