package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ArchiveSummary reports what an archive pass did.
type ArchiveSummary struct {
	Archived      int64
	MarkersPruned int64
}

// RunArchivePass stamps composted units as archived and prunes discovery
// markers older than the retention window. Both steps run even if the first
// fails.
func (e *Engine) RunArchivePass(ctx context.Context) (ArchiveSummary, error) {
	if !e.archiveSem.TryAcquire(1) {
		return ArchiveSummary{}, ErrPassInProgress
	}
	defer e.archiveSem.Release(1)

	now := e.now()
	var (
		summary ArchiveSummary
		errs    []error
	)

	n, err := e.DB.ArchiveComposted(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("archive composted: %w", err))
	}
	summary.Archived = n

	pruned, err := e.DB.PruneMarkers(ctx, now.Add(-e.markerRetention))
	if err != nil {
		errs = append(errs, fmt.Errorf("prune markers: %w", err))
	}
	summary.MarkersPruned = pruned

	e.logger.Info("archive pass complete",
		zap.Int64("archived", summary.Archived),
		zap.Int64("markers_pruned", summary.MarkersPruned),
		zap.Int("errors", len(errs)))
	return summary, errors.Join(errs...)
}
