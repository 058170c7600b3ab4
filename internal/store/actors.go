package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultReputation is the standing of an actor with no history.
const DefaultReputation = 1.0

// Reputation returns an actor's standing in [0, 2]. Unknown actors have
// DefaultReputation.
func (db *DB) Reputation(ctx context.Context, actorID string) (float64, error) {
	var rep float64
	err := db.QueryRowContext(ctx, "SELECT reputation FROM actors WHERE id = ?", actorID).Scan(&rep)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultReputation, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get reputation: %w", err)
	}
	return rep, nil
}

// AdjustReputation adds delta to an actor's standing, creating the actor at
// DefaultReputation first if needed. The result is clamped to [0, 2].
func (db *DB) AdjustReputation(ctx context.Context, actorID string, delta float64) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO actors (id, reputation, created_at, updated_at)
		VALUES (?, MIN(MAX(? + ?, 0.0), 2.0), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reputation = MIN(MAX(actors.reputation + ?, 0.0), 2.0),
			updated_at = excluded.updated_at`,
		actorID, DefaultReputation, delta, now, now, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust reputation: %w", err)
	}
	return nil
}
