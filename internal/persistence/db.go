// Package persistence opens the SQLite store shared by the population
// ledger and the assignment history log. WAL journaling keeps every commit
// atomic, so a crash can never expose a half-written state.
package persistence

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Open opens or creates the SQLite database at the given path and applies
// the schema.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// under concurrent assignment commits.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func migrate(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clan_populations (
		clan_id             TEXT PRIMARY KEY,
		living_count        INTEGER NOT NULL,
		total_ever_assigned INTEGER NOT NULL,
		CHECK (living_count >= 0),
		CHECK (living_count <= total_ever_assigned)
	);

	CREATE TABLE IF NOT EXISTS assignments (
		assignment_id   TEXT PRIMARY KEY,
		player_id       TEXT NOT NULL,
		clan_id         TEXT NOT NULL,
		personality     TEXT NOT NULL DEFAULT '',
		boosted_clan_id TEXT NOT NULL DEFAULT '',
		boost_strength  REAL NOT NULL DEFAULT 0,
		reroll_of       TEXT NOT NULL DEFAULT '',
		weights_json    TEXT NOT NULL,
		population_json TEXT NOT NULL,
		created_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_player ON assignments(player_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_assignments_created ON assignments(created_at);
	`
	_, err := db.Exec(schema)
	return err
}
