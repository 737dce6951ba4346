package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/clanforge/internal/persistence"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func testEntry(n int, playerID string, at time.Time) Entry {
	return Entry{
		AssignmentID: fmt.Sprintf("assign-%03d", n),
		PlayerID:     playerID,
		ClanID:       "nara",
		Weights:      map[string]float64{"nara": 0.7, "uchiha": 0.3},
		Population:   map[string]int64{"nara": int64(n)},
		CreatedAt:    at,
	}
}

// TestAppendRoundTrip ensures an appended entry reads back intact, including
// the serialized weight and population maps.
func TestAppendRoundTrip(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	in := Entry{
		AssignmentID:  "assign-001",
		PlayerID:      "p1",
		ClanID:        "uchiha",
		Personality:   "Ruthless",
		BoostedClanID: "uchiha",
		BoostStrength: 0.25,
		RerollOf:      "assign-000",
		Weights:       map[string]float64{"uchiha": 0.1, "civilian": 0.9},
		Population:    map[string]int64{"uchiha": 3, "civilian": 40},
		CreatedAt:     now,
	}
	if err := log.Append(ctx, in); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	got, err := log.LatestForPlayer(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("appended entry not found")
	}
	if got.AssignmentID != in.AssignmentID || got.ClanID != in.ClanID ||
		got.Personality != in.Personality || got.BoostedClanID != in.BoostedClanID ||
		got.BoostStrength != in.BoostStrength || got.RerollOf != in.RerollOf {
		t.Errorf("entry fields changed across round trip: got %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}
	if got.Weights["civilian"] != 0.9 || got.Population["uchiha"] != 3 {
		t.Errorf("serialized maps changed: weights %v, population %v", got.Weights, got.Population)
	}
}

// TestByPlayerOrdering ensures per-player queries come back newest first and
// honor the limit.
func TestByPlayerOrdering(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := log.Append(ctx, testEntry(i, "p1", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}
	if err := log.Append(ctx, testEntry(99, "p2", base)); err != nil {
		t.Fatal(err)
	}

	entries, err := log.ByPlayer(ctx, "p1", 3)
	if err != nil {
		t.Fatalf("ByPlayer returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"assign-004", "assign-003", "assign-002"} {
		if entries[i].AssignmentID != want {
			t.Errorf("entry %d = %q, want %q", i, entries[i].AssignmentID, want)
		}
	}

	// Zero limit falls back to the default rather than returning nothing.
	all, err := log.ByPlayer(ctx, "p1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Errorf("default limit returned %d entries, want 5", len(all))
	}
}

// TestByTimeRange ensures the range is inclusive of from, exclusive of to,
// and ordered oldest first.
func TestByTimeRange(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if err := log.Append(ctx, testEntry(i, "p1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := log.ByTimeRange(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("ByTimeRange returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].AssignmentID != "assign-001" || entries[1].AssignmentID != "assign-002" {
		t.Errorf("range returned %q, %q; want assign-001, assign-002",
			entries[0].AssignmentID, entries[1].AssignmentID)
	}
}

// TestSameTimestampOrdering ensures entries sharing a timestamp come back
// in append order: newest appended first for player queries, oldest first
// for range queries.
func TestSameTimestampOrdering(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := log.Append(ctx, testEntry(i, "p1", at)); err != nil {
			t.Fatal(err)
		}
	}

	byPlayer, err := log.ByPlayer(ctx, "p1", 10)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"assign-002", "assign-001", "assign-000"} {
		if byPlayer[i].AssignmentID != want {
			t.Errorf("player entry %d = %q, want %q", i, byPlayer[i].AssignmentID, want)
		}
	}

	latest, err := log.LatestForPlayer(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.AssignmentID != "assign-002" {
		t.Errorf("latest = %q, want the last appended", latest.AssignmentID)
	}

	ranged, err := log.ByTimeRange(ctx, at, at.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"assign-000", "assign-001", "assign-002"} {
		if ranged[i].AssignmentID != want {
			t.Errorf("range entry %d = %q, want %q", i, ranged[i].AssignmentID, want)
		}
	}
}

// TestLatestForPlayerMissing ensures unknown players yield nil, not an error.
func TestLatestForPlayerMissing(t *testing.T) {
	log := openTestLog(t)

	got, err := log.LatestForPlayer(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("LatestForPlayer returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}
