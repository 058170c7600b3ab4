package store

import (
	"context"
	"fmt"
	"time"
)

// AddMarkers records that viewer was shown each unit via pathway at at.
func (db *DB) AddMarkers(ctx context.Context, viewerID, pathway string, unitIDs []string, at time.Time) error {
	if len(unitIDs) == 0 {
		return nil
	}
	rows := make([]markerRow, len(unitIDs))
	for i, id := range unitIDs {
		rows[i] = markerRow{UnitID: id, ViewerID: viewerID, Pathway: pathway, CreatedAt: millis(at)}
	}
	if _, err := db.Bun.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert markers: %w", err)
	}
	return nil
}

// CountMarkers returns how many markers viewer has, across all pathways.
func (db *DB) CountMarkers(ctx context.Context, viewerID string) (int, error) {
	n, err := db.Bun.NewSelect().Model((*markerRow)(nil)).Where("m.viewer_id = ?", viewerID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count markers: %w", err)
	}
	return n, nil
}

// PruneMarkers deletes markers recorded before cutoff.
func (db *DB) PruneMarkers(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM discovery_markers WHERE created_at < ?", millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune markers: %w", err)
	}
	return res.RowsAffected()
}
