// Package ledger owns the per-clan population counts. It is the single
// mutable shared resource in the engine: every Assign and Decrement is
// serialized through one mutex here, and every mutation is committed to
// SQLite before the call returns.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/clanforge/internal/clans"
)

// Record holds the population counters for one clan. LivingCount never
// exceeds TotalAssigned.
type Record struct {
	LivingCount   int64 `db:"living_count" json:"living_count"`
	TotalAssigned int64 `db:"total_ever_assigned" json:"total_ever_assigned"`
}

// Snapshot is a consistent copy of all population counts.
type Snapshot struct {
	Counts      map[string]Record
	TotalLiving int64
}

// Living returns the living count for a clan, zero if unknown.
func (s Snapshot) Living(clanID string) int64 {
	return s.Counts[clanID].LivingCount
}

// TotalAssigned sums total_ever_assigned across all clans.
func (s Snapshot) TotalAssigned() int64 {
	var total int64
	for _, r := range s.Counts {
		total += r.TotalAssigned
	}
	return total
}

// TxFn runs extra writes inside the same transaction as a ledger commit.
type TxFn func(tx *sqlx.Tx) error

// DecideFn inspects a consistent population snapshot and returns the clan
// to assign, plus any extra writes (such as the history entry) to commit
// atomically with the increment.
type DecideFn func(snap Snapshot) (clanID string, extra TxFn, err error)

// Ledger is the durable population store. All methods are safe for
// concurrent use.
type Ledger struct {
	db *sqlx.DB

	mu     sync.Mutex
	counts map[string]Record
}

type popRow struct {
	ClanID string `db:"clan_id"`
	Record
}

// Open loads the ledger from the database, seeding a zero record for any
// catalog clan not yet present.
func Open(db *sqlx.DB, catalog *clans.Catalog) (*Ledger, error) {
	var rows []popRow
	if err := db.Select(&rows, "SELECT clan_id, living_count, total_ever_assigned FROM clan_populations"); err != nil {
		return nil, &clans.PersistenceError{Op: "load populations", Err: err}
	}

	counts := make(map[string]Record, catalog.Len())
	for _, r := range rows {
		counts[r.ClanID] = r.Record
	}

	seeded := 0
	for _, c := range catalog.Clans() {
		if _, ok := counts[c.ID]; ok {
			continue
		}
		if _, err := db.Exec(
			"INSERT INTO clan_populations (clan_id, living_count, total_ever_assigned) VALUES (?, 0, 0)",
			c.ID,
		); err != nil {
			return nil, &clans.PersistenceError{Op: "seed population", Err: err}
		}
		counts[c.ID] = Record{}
		seeded++
	}
	if seeded > 0 {
		slog.Info("seeded population records", "clans", seeded)
	}

	return &Ledger{db: db, counts: counts}, nil
}

// Snapshot returns a consistent copy of all counts. Two calls with no
// intervening mutation return identical results.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	counts := make(map[string]Record, len(l.counts))
	var living int64
	for id, r := range l.counts {
		counts[id] = r
		living += r.LivingCount
	}
	return Snapshot{Counts: counts, TotalLiving: living}
}

// CommitAssignment runs decide inside the ledger's critical section and, on
// success, durably increments the chosen clan together with decide's extra
// writes in one transaction. It returns the post-commit snapshot. If the
// caller's context is cancelled mid-commit the assignment still stands;
// callers treating a timeout as "did not happen" must check the history log.
func (l *Ledger) CommitAssignment(ctx context.Context, decide DecideFn) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	clanID, extra, err := decide(l.snapshotLocked())
	if err != nil {
		return Snapshot{}, err
	}

	rec, ok := l.counts[clanID]
	if !ok {
		return Snapshot{}, &clans.InvariantViolationError{ClanID: clanID, Msg: "assignment committed for clan absent from ledger"}
	}

	// The commit must survive caller cancellation once we start writing.
	commitCtx := context.WithoutCancel(ctx)

	tx, err := l.db.BeginTxx(commitCtx, nil)
	if err != nil {
		return Snapshot{}, &clans.PersistenceError{Op: "begin assignment commit", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE clan_populations SET living_count = living_count + 1, total_ever_assigned = total_ever_assigned + 1 WHERE clan_id = ?",
		clanID,
	); err != nil {
		return Snapshot{}, &clans.PersistenceError{Op: "increment population", Err: err}
	}

	if extra != nil {
		if err := extra(tx); err != nil {
			return Snapshot{}, &clans.PersistenceError{Op: "assignment commit", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, &clans.PersistenceError{Op: "commit assignment", Err: err}
	}

	rec.LivingCount++
	rec.TotalAssigned++
	l.counts[clanID] = rec

	return l.snapshotLocked(), nil
}

// Decrement durably reduces a clan's living count by one. Used when a
// player is permanently removed from the population. Decrementing a clan
// already at zero is a caller bug and returns InvariantViolationError with
// state unchanged.
func (l *Ledger) Decrement(ctx context.Context, clanID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.counts[clanID]
	if !ok {
		return &clans.ValidationError{Field: "clan_id", Msg: "unknown clan " + clanID}
	}
	if rec.LivingCount <= 0 {
		err := &clans.InvariantViolationError{ClanID: clanID, Msg: "decrement below zero living count"}
		slog.Error("population decrement rejected", "clan", clanID, "error", err)
		return err
	}

	commitCtx := context.WithoutCancel(ctx)
	if _, err := l.db.ExecContext(commitCtx,
		"UPDATE clan_populations SET living_count = living_count - 1 WHERE clan_id = ?",
		clanID,
	); err != nil {
		perr := &clans.PersistenceError{Op: "decrement population", Err: err}
		slog.Error("population decrement failed", "clan", clanID, "error", perr)
		return perr
	}

	rec.LivingCount--
	l.counts[clanID] = rec
	return nil
}
