package store

import (
	"context"
	"testing"
	"time"

	"github.com/lazypower/seedbed/internal/garden"
)

func TestReputationDefaultsAndClamps(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rep, err := db.Reputation(ctx, "newcomer")
	if err != nil || rep != DefaultReputation {
		t.Fatalf("Reputation = %f, %v", rep, err)
	}

	if err := db.AdjustReputation(ctx, "bob", 0.25); err != nil {
		t.Fatalf("AdjustReputation: %v", err)
	}
	rep, _ = db.Reputation(ctx, "bob")
	if rep != 1.25 {
		t.Errorf("rep = %f, want 1.25", rep)
	}

	db.AdjustReputation(ctx, "bob", 5)
	rep, _ = db.Reputation(ctx, "bob")
	if rep != 2 {
		t.Errorf("rep = %f, want clamp to 2", rep)
	}

	db.AdjustReputation(ctx, "bob", -10)
	rep, _ = db.Reputation(ctx, "bob")
	if rep != 0 {
		t.Errorf("rep = %f, want clamp to 0", rep)
	}
}

func TestCircles(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.AddToCircle(ctx, "alice", "bob", garden.InnerCircle); err != nil {
		t.Fatalf("AddToCircle: %v", err)
	}
	if err := db.AddToCircle(ctx, "alice", "bob", garden.InnerCircle); err != nil {
		t.Fatalf("AddToCircle twice: %v", err)
	}
	db.AddToCircle(ctx, "alice", "carol", garden.Connections)

	if err := db.AddToCircle(ctx, "alice", "dave", garden.Public); err == nil {
		t.Error("public is not a circle scope")
	}

	in, _ := db.InCircle(ctx, "alice", "bob", garden.InnerCircle)
	if !in {
		t.Error("bob should be in alice's inner circle")
	}
	in, _ = db.InCircle(ctx, "alice", "bob", garden.Connections)
	if in {
		t.Error("membership is scope-exact")
	}

	ids, err := db.Connections(ctx, "alice")
	if err != nil || len(ids) != 2 || ids[0] != "bob" || ids[1] != "carol" {
		t.Errorf("Connections = %v, %v", ids, err)
	}

	db.RemoveFromCircle(ctx, "alice", "bob", garden.InnerCircle)
	in, _ = db.InCircle(ctx, "alice", "bob", garden.InnerCircle)
	if in {
		t.Error("bob should be removed")
	}
}

func TestMarkersPrune(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.AddMarkers(ctx, "v", "discovery", []string{"a", "b"}, t0); err != nil {
		t.Fatalf("AddMarkers: %v", err)
	}
	if err := db.AddMarkers(ctx, "v", "search", []string{"c"}, t0.Add(48*time.Hour)); err != nil {
		t.Fatalf("AddMarkers: %v", err)
	}
	if err := db.AddMarkers(ctx, "v", "search", nil, t0); err != nil {
		t.Fatalf("AddMarkers empty: %v", err)
	}

	n, err := db.PruneMarkers(ctx, t0.Add(time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PruneMarkers = %d, %v; want 2", n, err)
	}
	left, _ := db.CountMarkers(ctx, "v")
	if left != 1 {
		t.Errorf("markers left = %d, want 1", left)
	}
}
