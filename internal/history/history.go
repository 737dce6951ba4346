// Package history is the append-only audit trail of assignment decisions.
// Entries are written once — inside the same transaction as the population
// commit — and never mutated or deleted afterwards.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/clanforge/internal/clans"
)

// Entry records one assignment decision, including the exact distribution
// used and the post-commit living counts, so the draw is reproducible from
// the audit trail alone.
type Entry struct {
	AssignmentID  string             `json:"assignment_id"`
	PlayerID      string             `json:"player_id"`
	ClanID        string             `json:"clan_id"`
	Personality   string             `json:"personality,omitempty"`
	BoostedClanID string             `json:"boosted_clan_id,omitempty"`
	BoostStrength float64            `json:"boost_strength,omitempty"`
	RerollOf      string             `json:"reroll_of,omitempty"`
	Weights       map[string]float64 `json:"weights"`
	Population    map[string]int64   `json:"population"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Log reads and appends assignment history entries.
type Log struct {
	db *sqlx.DB
}

// New creates a history log over the shared database.
func New(db *sqlx.DB) *Log {
	return &Log{db: db}
}

// AppendTx inserts an entry inside an existing transaction. Used by the
// ledger commit so the audit order always matches the commit order.
func (l *Log) AppendTx(tx *sqlx.Tx, e Entry) error {
	weightsJSON, err := json.Marshal(e.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	populationJSON, err := json.Marshal(e.Population)
	if err != nil {
		return fmt.Errorf("marshal population: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO assignments
		(assignment_id, player_id, clan_id, personality, boosted_clan_id,
		 boost_strength, reroll_of, weights_json, population_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AssignmentID, e.PlayerID, e.ClanID, e.Personality, e.BoostedClanID,
		e.BoostStrength, e.RerollOf, string(weightsJSON), string(populationJSON),
		e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert assignment %s: %w", e.AssignmentID, err)
	}
	return nil
}

// Append inserts an entry in its own transaction.
func (l *Log) Append(ctx context.Context, e Entry) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return &clans.PersistenceError{Op: "begin history append", Err: err}
	}
	defer tx.Rollback()

	if err := l.AppendTx(tx, e); err != nil {
		return &clans.PersistenceError{Op: "history append", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &clans.PersistenceError{Op: "commit history append", Err: err}
	}
	return nil
}

type entryRow struct {
	AssignmentID   string  `db:"assignment_id"`
	PlayerID       string  `db:"player_id"`
	ClanID         string  `db:"clan_id"`
	Personality    string  `db:"personality"`
	BoostedClanID  string  `db:"boosted_clan_id"`
	BoostStrength  float64 `db:"boost_strength"`
	RerollOf       string  `db:"reroll_of"`
	WeightsJSON    string  `db:"weights_json"`
	PopulationJSON string  `db:"population_json"`
	CreatedAt      int64   `db:"created_at"`
}

func (r entryRow) entry() (Entry, error) {
	e := Entry{
		AssignmentID:  r.AssignmentID,
		PlayerID:      r.PlayerID,
		ClanID:        r.ClanID,
		Personality:   r.Personality,
		BoostedClanID: r.BoostedClanID,
		BoostStrength: r.BoostStrength,
		RerollOf:      r.RerollOf,
		CreatedAt:     time.Unix(0, r.CreatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(r.WeightsJSON), &e.Weights); err != nil {
		return Entry{}, fmt.Errorf("decode weights for %s: %w", r.AssignmentID, err)
	}
	if err := json.Unmarshal([]byte(r.PopulationJSON), &e.Population); err != nil {
		return Entry{}, fmt.Errorf("decode population for %s: %w", r.AssignmentID, err)
	}
	return e, nil
}

const selectColumns = `SELECT assignment_id, player_id, clan_id, personality,
	boosted_clan_id, boost_strength, reroll_of, weights_json, population_json,
	created_at FROM assignments`

// ByPlayer returns a player's assignments, newest first, up to limit.
func (l *Log) ByPlayer(ctx context.Context, playerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []entryRow
	err := l.db.SelectContext(ctx, &rows,
		selectColumns+" WHERE player_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		playerID, limit,
	)
	if err != nil {
		return nil, &clans.PersistenceError{Op: "query history by player", Err: err}
	}
	return decodeRows(rows)
}

// ByTimeRange returns all assignments in [from, to), oldest first.
func (l *Log) ByTimeRange(ctx context.Context, from, to time.Time) ([]Entry, error) {
	var rows []entryRow
	err := l.db.SelectContext(ctx, &rows,
		selectColumns+" WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC, rowid ASC",
		from.UnixNano(), to.UnixNano(),
	)
	if err != nil {
		return nil, &clans.PersistenceError{Op: "query history by time range", Err: err}
	}
	return decodeRows(rows)
}

// LatestForPlayer returns a player's most recent assignment, or nil if the
// player has never been assigned.
func (l *Log) LatestForPlayer(ctx context.Context, playerID string) (*Entry, error) {
	var row entryRow
	err := l.db.GetContext(ctx, &row,
		selectColumns+" WHERE player_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		playerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &clans.PersistenceError{Op: "query latest assignment", Err: err}
	}
	e, err := row.entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func decodeRows(rows []entryRow) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
