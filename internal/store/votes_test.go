package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lazypower/seedbed/internal/garden"
)

func seedComment(t *testing.T, db *DB) {
	t.Helper()
	seedUnit(t, db, "u1", "alice", nil)
	c := &garden.Comment{ID: "c1", UnitID: "u1", AuthorID: "bob", Body: "nice", CreatedAt: t0}
	if err := db.CreateComment(context.Background(), c); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
}

func TestCastVoteNew(t *testing.T) {
	db := testDB(t)
	seedComment(t, db)

	out, err := db.CastVote(context.Background(), "c1", "v1", garden.Positive, t0)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if !out.Changed || out.Previous != "" || out.Comment.PositiveCount != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestCastVoteRepeatIsNoop(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedComment(t, db)

	db.CastVote(ctx, "c1", "v1", garden.Positive, t0)
	out, err := db.CastVote(ctx, "c1", "v1", garden.Positive, t0)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if out.Changed {
		t.Error("repeat vote should not change anything")
	}
	if out.Comment.PositiveCount != 1 {
		t.Errorf("PositiveCount = %d, want 1", out.Comment.PositiveCount)
	}
}

func TestCastVoteFlipIsSelfInverse(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedComment(t, db)

	db.CastVote(ctx, "c1", "v1", garden.Positive, t0)
	out, err := db.CastVote(ctx, "c1", "v1", garden.Negative, t0)
	if err != nil {
		t.Fatalf("flip: %v", err)
	}
	if out.Previous != garden.Positive || out.Comment.PositiveCount != 0 || out.Comment.NegativeCount != 1 {
		t.Errorf("after flip: %+v", out)
	}

	out, _ = db.CastVote(ctx, "c1", "v1", garden.Positive, t0)
	if out.Comment.PositiveCount != 1 || out.Comment.NegativeCount != 0 {
		t.Errorf("after flip back: %+v", out.Comment)
	}

	p, err := db.GetVote(ctx, "c1", "v1")
	if err != nil || p != garden.Positive {
		t.Errorf("GetVote = %q, %v", p, err)
	}
}

func TestCastVoteToxicRetires(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedComment(t, db)

	var out VoteOutcome
	for i := range garden.ToxicThreshold {
		var err error
		out, err = db.CastVote(ctx, "c1", fmt.Sprintf("v%d", i), garden.Negative, t0)
		if err != nil {
			t.Fatalf("CastVote %d: %v", i, err)
		}
		if i < garden.ToxicThreshold-1 && out.BecameToxic {
			t.Fatalf("vote %d reported toxic early", i)
		}
	}
	if !out.BecameToxic {
		t.Fatal("fifth negative vote should report BecameToxic")
	}
	if out.Comment.RetiredAt.IsZero() {
		t.Error("toxic comment should be retired")
	}

	more, _ := db.CastVote(ctx, "c1", "v-extra", garden.Negative, t0)
	if more.BecameToxic {
		t.Error("BecameToxic should fire only on the crossing vote")
	}

	list, _ := db.ListComments(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("retired comment still listed: %+v", list)
	}
}

func TestCastVoteMissingComment(t *testing.T) {
	db := testDB(t)

	_, err := db.CastVote(context.Background(), "ghost", "v1", garden.Positive, t0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRetractVote(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedComment(t, db)

	for i := range garden.ToxicThreshold {
		db.CastVote(ctx, "c1", fmt.Sprintf("v%d", i), garden.Negative, t0)
	}

	removed, c, err := db.RetractVote(ctx, "c1", "v0", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("RetractVote: %v", err)
	}
	if removed != garden.Negative || c.NegativeCount != 4 {
		t.Errorf("removed=%s negatives=%d", removed, c.NegativeCount)
	}
	if !c.RetiredAt.IsZero() {
		t.Error("comment below the toxic threshold should be restored")
	}

	list, _ := db.ListComments(ctx, "u1")
	if len(list) != 1 {
		t.Errorf("restored comment not listed: %+v", list)
	}

	if _, _, err := db.RetractVote(ctx, "c1", "v0", t0); !errors.Is(err, ErrNotFound) {
		t.Errorf("second retract err = %v, want ErrNotFound", err)
	}
}
