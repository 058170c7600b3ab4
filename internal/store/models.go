package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/lazypower/seedbed/internal/garden"
)

type unitRow struct {
	bun.BaseModel `bun:"table:content_units,alias:u"`

	ID                   string  `bun:"id,pk"`
	AuthorID             string  `bun:"author_id"`
	Body                 string  `bun:"body"`
	MediaRef             string  `bun:"media_ref"`
	State                string  `bun:"state"`
	Privacy              string  `bun:"privacy"`
	CreatedAt            int64   `bun:"created_at"`
	WiltsAt              *int64  `bun:"wilts_at"`
	ComposedAt           *int64  `bun:"composted_at"`
	ArchivedAt           *int64  `bun:"archived_at"`
	ViewCount            int64   `bun:"view_count"`
	NetVoteScore         int64   `bun:"net_vote_score"`
	ShareHours           float64 `bun:"share_hours"`
	ReputationMultiplier float64 `bun:"reputation_multiplier"`
	Version              int64   `bun:"version"`
}

func (r unitRow) unit() garden.Unit {
	return garden.Unit{
		ID:                   r.ID,
		AuthorID:             r.AuthorID,
		Body:                 r.Body,
		MediaRef:             r.MediaRef,
		State:                garden.State(r.State),
		Privacy:              garden.Privacy(r.Privacy),
		CreatedAt:            fromMillis(r.CreatedAt),
		WiltsAt:              fromNullMillis(r.WiltsAt),
		ComposedAt:           fromNullMillis(r.ComposedAt),
		ArchivedAt:           fromNullMillis(r.ArchivedAt),
		ViewCount:            r.ViewCount,
		NetVoteScore:         r.NetVoteScore,
		ShareHours:           r.ShareHours,
		ReputationMultiplier: r.ReputationMultiplier,
		Version:              r.Version,
	}
}

func units(rows []unitRow) []garden.Unit {
	out := make([]garden.Unit, len(rows))
	for i, r := range rows {
		out[i] = r.unit()
	}
	return out
}

type commentRow struct {
	bun.BaseModel `bun:"table:comments,alias:c"`

	ID            string `bun:"id,pk"`
	UnitID        string `bun:"unit_id"`
	AuthorID      string `bun:"author_id"`
	Body          string `bun:"body"`
	PositiveCount int64  `bun:"positive_count"`
	NegativeCount int64  `bun:"negative_count"`
	RetiredAt     *int64 `bun:"retired_at"`
	CreatedAt     int64  `bun:"created_at"`
}

func (r commentRow) comment() garden.Comment {
	return garden.Comment{
		ID:            r.ID,
		UnitID:        r.UnitID,
		AuthorID:      r.AuthorID,
		Body:          r.Body,
		PositiveCount: r.PositiveCount,
		NegativeCount: r.NegativeCount,
		RetiredAt:     fromNullMillis(r.RetiredAt),
		CreatedAt:     fromMillis(r.CreatedAt),
	}
}

type voteRow struct {
	bun.BaseModel `bun:"table:votes,alias:v"`

	CommentID string `bun:"comment_id,pk"`
	VoterID   string `bun:"voter_id,pk"`
	Polarity  string `bun:"polarity"`
	CreatedAt int64  `bun:"created_at"`
	UpdatedAt int64  `bun:"updated_at"`
}

type markerRow struct {
	bun.BaseModel `bun:"table:discovery_markers,alias:m"`

	ID        int64  `bun:"id,pk,autoincrement"`
	UnitID    string `bun:"unit_id"`
	ViewerID  string `bun:"viewer_id"`
	Pathway   string `bun:"pathway"`
	CreatedAt int64  `bun:"created_at"`
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func fromNullMillis(v *int64) time.Time {
	if v == nil {
		return time.Time{}
	}
	return fromMillis(*v)
}
