package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/lazypower/seedbed/internal/garden"
)

// CreateUnit inserts a new content unit. Version starts at 1.
func (db *DB) CreateUnit(ctx context.Context, u *garden.Unit) error {
	if u.Version == 0 {
		u.Version = 1
	}
	row := unitRow{
		ID:                   u.ID,
		AuthorID:             u.AuthorID,
		Body:                 u.Body,
		MediaRef:             u.MediaRef,
		State:                string(u.State),
		Privacy:              string(u.Privacy),
		CreatedAt:            millis(u.CreatedAt),
		WiltsAt:              nullMillis(u.WiltsAt),
		ComposedAt:           nullMillis(u.ComposedAt),
		ArchivedAt:           nullMillis(u.ArchivedAt),
		ViewCount:            u.ViewCount,
		NetVoteScore:         u.NetVoteScore,
		ShareHours:           u.ShareHours,
		ReputationMultiplier: u.ReputationMultiplier,
		Version:              u.Version,
	}
	if _, err := db.Bun.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

// GetUnit returns a unit by ID, or ErrNotFound.
func (db *DB) GetUnit(ctx context.Context, id string) (*garden.Unit, error) {
	var row unitRow
	err := db.Bun.NewSelect().Model(&row).Where("u.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	u := row.unit()
	return &u, nil
}

// ListLive returns every unit that can still change state: not composted and
// not archived. Uses the (state, wilts_at) index.
func (db *DB) ListLive(ctx context.Context) ([]garden.Unit, error) {
	var rows []unitRow
	err := db.Bun.NewSelect().Model(&rows).
		Where("u.state IN (?)", bun.In([]string{
			string(garden.Planted), string(garden.Sprouting),
			string(garden.Blooming), string(garden.Wilting),
		})).
		Where("u.archived_at IS NULL").
		OrderExpr("u.wilts_at ASC NULLS FIRST, u.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live units: %w", err)
	}
	return units(rows), nil
}

// SaveLifecycle writes u's state, wilt instant and compost instant if the
// stored version still matches u.Version. On success u.Version is advanced.
func (db *DB) SaveLifecycle(ctx context.Context, u *garden.Unit) error {
	res, err := db.ExecContext(ctx, `
		UPDATE content_units
		SET state = ?, wilts_at = ?, composted_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(u.State), nullMillis(u.WiltsAt), nullMillis(u.ComposedAt), u.ID, u.Version,
	)
	if err != nil {
		return fmt.Errorf("save lifecycle: %w", err)
	}
	if err := db.checkVersioned(ctx, res, u.ID); err != nil {
		return err
	}
	u.Version++
	return nil
}

// AdjustLifespan sets the wilt instant and adds netDelta to the net vote score,
// guarded by version. Composted units are never touched.
func (db *DB) AdjustLifespan(ctx context.Context, u *garden.Unit, wiltsAt time.Time, netDelta int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE content_units
		SET wilts_at = ?, net_vote_score = net_vote_score + ?, version = version + 1
		WHERE id = ? AND version = ? AND state != 'composted'`,
		nullMillis(wiltsAt), netDelta, u.ID, u.Version,
	)
	if err != nil {
		return fmt.Errorf("adjust lifespan: %w", err)
	}
	if err := db.checkVersioned(ctx, res, u.ID); err != nil {
		return err
	}
	u.WiltsAt = wiltsAt
	u.NetVoteScore += netDelta
	u.Version++
	return nil
}

// CompostUnit forces a unit into the terminal state at now, expiring it.
// Returns false if the unit was already composted.
func (db *DB) CompostUnit(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE content_units
		SET state = 'composted', composted_at = ?, wilts_at = ?, version = version + 1
		WHERE id = ? AND state != 'composted'`,
		millis(now), millis(now), id,
	)
	if err != nil {
		return false, fmt.Errorf("compost unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compost unit: %w", err)
	}
	if n == 0 {
		if _, err := db.GetUnit(ctx, id); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

// IncrementViews bumps the view counter in place.
func (db *DB) IncrementViews(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE content_units SET view_count = view_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return requireRow(res)
}

// AddShareHours adds share weight to a unit in place.
func (db *DB) AddShareHours(ctx context.Context, id string, hours float64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE content_units SET share_hours = share_hours + ? WHERE id = ?", hours, id)
	if err != nil {
		return fmt.Errorf("add share hours: %w", err)
	}
	return requireRow(res)
}

// ArchiveComposted stamps archived_at on composted units that are not yet
// archived. Rows are kept.
func (db *DB) ArchiveComposted(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE content_units SET archived_at = ?
		WHERE state = 'composted' AND archived_at IS NULL`,
		millis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("archive composted: %w", err)
	}
	return res.RowsAffected()
}

// Order selects how QueryUnits sorts results.
type Order int

const (
	// OrderNewest sorts by creation time, newest first.
	OrderNewest Order = iota
	// OrderGrowth sorts by reputation-weighted growth score, then recency.
	OrderGrowth
)

// UnitFilter narrows QueryUnits. Empty slices mean no restriction.
// Archived units are always excluded.
type UnitFilter struct {
	States     []garden.State
	NotStates  []garden.State
	Privacies  []garden.Privacy
	AuthorIDs  []string
	ExcludeIDs []string

	// SeenBy excludes units with a discovery marker for this viewer at or
	// after SeenSince.
	SeenBy    string
	SeenSince time.Time

	// VisibleTo keeps only units this viewer may see: their own, public ones,
	// and circle-scoped ones whose author has the viewer in that exact circle.
	VisibleTo string

	// Text matches a substring of the body, case-insensitively for ASCII.
	Text string

	Order  Order
	Limit  int
	Offset int
}

// QueryUnits returns units matching f.
func (db *DB) QueryUnits(ctx context.Context, f UnitFilter) ([]garden.Unit, error) {
	var rows []unitRow
	q := db.Bun.NewSelect().Model(&rows).Where("u.archived_at IS NULL")

	if len(f.States) > 0 {
		q = q.Where("u.state IN (?)", bun.In(stateStrings(f.States)))
	}
	if len(f.NotStates) > 0 {
		q = q.Where("u.state NOT IN (?)", bun.In(stateStrings(f.NotStates)))
	}
	if len(f.Privacies) > 0 {
		ps := make([]string, len(f.Privacies))
		for i, p := range f.Privacies {
			ps[i] = string(p)
		}
		q = q.Where("u.privacy IN (?)", bun.In(ps))
	}
	if len(f.AuthorIDs) > 0 {
		q = q.Where("u.author_id IN (?)", bun.In(f.AuthorIDs))
	}
	if len(f.ExcludeIDs) > 0 {
		q = q.Where("u.id NOT IN (?)", bun.In(f.ExcludeIDs))
	}
	if f.SeenBy != "" {
		seen := db.Bun.NewSelect().
			Table("discovery_markers").
			Column("unit_id").
			Where("viewer_id = ?", f.SeenBy).
			Where("created_at >= ?", millis(f.SeenSince))
		q = q.Where("u.id NOT IN (?)", seen)
	}
	if f.VisibleTo != "" {
		q = q.Where(`(u.author_id = ? OR u.privacy = ? OR (u.privacy IN (?) AND EXISTS (
			SELECT 1 FROM circles AS ci
			WHERE ci.owner_id = u.author_id AND ci.member_id = ? AND ci.scope = u.privacy)))`,
			f.VisibleTo, string(garden.Public), bun.In(circleScopes), f.VisibleTo)
	}
	if f.Text != "" {
		q = q.Where("u.body LIKE ? ESCAPE '!'", "%"+escapeLike(f.Text)+"%")
	}

	switch f.Order {
	case OrderGrowth:
		q = q.OrderExpr("(0.3 * u.view_count + 0.5 * u.net_vote_score + 0.2 * u.share_hours) * u.reputation_multiplier DESC").
			OrderExpr("u.created_at DESC, u.id ASC")
	default:
		q = q.OrderExpr("u.created_at DESC, u.id ASC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	return units(rows), nil
}

func stateStrings(states []garden.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// checkVersioned turns a zero-row versioned update into ErrNotFound or
// ErrConcurrentModification.
func (db *DB) checkVersioned(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM content_units WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check unit: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConcurrentModification
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
