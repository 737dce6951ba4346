// Package engine orchestrates clan assignment end to end: validate the
// request, compute the distribution under the ledger's critical section,
// draw, commit, and record the audit entry.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/talgya/clanforge/internal/clans"
	"github.com/talgya/clanforge/internal/entropy"
	"github.com/talgya/clanforge/internal/history"
	"github.com/talgya/clanforge/internal/ledger"
	"github.com/talgya/clanforge/internal/metrics"
)

// Request asks for one clan assignment. BoostStrength arrives pre-validated
// and pre-debited from the token subsystem; the engine never reinterprets
// token counts.
type Request struct {
	PlayerID      string  `json:"player_id"`
	Personality   string  `json:"personality,omitempty"`
	BoostedClanID string  `json:"boosted_clan_id,omitempty"`
	BoostStrength float64 `json:"boost_strength,omitempty"`
	RerollOf      string  `json:"reroll_of,omitempty"`
}

// Result is a committed assignment decision, carrying the distribution that
// was actually used and the post-commit living counts.
type Result struct {
	AssignmentID string           `json:"assignment_id"`
	PlayerID     string           `json:"player_id"`
	Clan         clans.Clan       `json:"clan"`
	Weights      Distribution     `json:"weights"`
	Population   map[string]int64 `json:"population"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Engine executes assignment requests against a shared ledger.
type Engine struct {
	catalog *clans.Catalog
	calc    *Calculator
	ledger  *ledger.Ledger
	history *history.Log
	rng     entropy.Source
}

// New wires an assignment engine. rng must be unpredictable in production;
// pass a seeded source only for simulation.
func New(catalog *clans.Catalog, modifiers *clans.ModifierTable, led *ledger.Ledger, hist *history.Log, rng entropy.Source, params WeightParams) *Engine {
	return &Engine{
		catalog: catalog,
		calc:    NewCalculator(catalog, modifiers, params),
		ledger:  led,
		history: hist,
		rng:     rng,
	}
}

func (e *Engine) validate(req Request) error {
	if req.PlayerID == "" {
		return &clans.ValidationError{Field: "player_id", Msg: "must not be empty"}
	}
	if req.BoostStrength < 0 {
		return &clans.ValidationError{Field: "boost_strength", Msg: "must not be negative"}
	}
	if req.BoostStrength > 0 && req.BoostedClanID == "" {
		return &clans.ValidationError{Field: "boosted_clan_id", Msg: "required when boost_strength is set"}
	}
	if req.BoostedClanID != "" {
		if _, ok := e.catalog.Get(req.BoostedClanID); !ok {
			return &clans.ValidationError{Field: "boosted_clan_id", Msg: "unknown clan " + req.BoostedClanID}
		}
	}
	return nil
}

// Assign executes one assignment. The compute → draw → commit sequence is
// serialized against all other Assign and Decrement calls; on success the
// chosen clan's counts and the history entry are committed atomically.
func (e *Engine) Assign(ctx context.Context, req Request) (*Result, error) {
	if err := e.validate(req); err != nil {
		metrics.AssignmentErrors.WithLabelValues("validation").Inc()
		return nil, err
	}

	id := uuid.NewString()

	var result Result
	_, err := e.ledger.CommitAssignment(ctx, func(snap ledger.Snapshot) (string, ledger.TxFn, error) {
		dist, err := e.calc.Distribution(snap, req.Personality, req.BoostedClanID, req.BoostStrength)
		if err != nil {
			return "", nil, err
		}

		clanID := dist.Pick(e.rng.Float())

		// Stamped inside the critical section so created_at order agrees
		// with commit order.
		now := time.Now().UTC()

		// Post-commit living counts, embedded in the audit entry so append
		// order is reconstructible even if readers race the next commit.
		population := make(map[string]int64, len(snap.Counts))
		for cid, rec := range snap.Counts {
			population[cid] = rec.LivingCount
		}
		population[clanID]++

		clan, _ := e.catalog.Get(clanID)
		result = Result{
			AssignmentID: id,
			PlayerID:     req.PlayerID,
			Clan:         clan,
			Weights:      dist,
			Population:   population,
			CreatedAt:    now,
		}

		entry := history.Entry{
			AssignmentID:  id,
			PlayerID:      req.PlayerID,
			ClanID:        clanID,
			Personality:   req.Personality,
			BoostedClanID: req.BoostedClanID,
			BoostStrength: req.BoostStrength,
			RerollOf:      req.RerollOf,
			Weights:       dist.Probabilities(),
			Population:    population,
			CreatedAt:     now,
		}

		return clanID, func(tx *sqlx.Tx) error {
			return e.history.AppendTx(tx, entry)
		}, nil
	})
	if err != nil {
		switch err.(type) {
		case *clans.PersistenceError:
			metrics.AssignmentErrors.WithLabelValues("persistence").Inc()
			slog.Error("assignment commit failed", "player", req.PlayerID, "error", err)
		case *clans.NoEligibleClanError:
			metrics.AssignmentErrors.WithLabelValues("no_eligible_clan").Inc()
		default:
			metrics.AssignmentErrors.WithLabelValues("validation").Inc()
		}
		return nil, err
	}

	metrics.Assignments.WithLabelValues(result.Clan.ID, result.Clan.Rarity.String()).Inc()
	slog.Info("clan assigned",
		"assignment_id", id,
		"player", req.PlayerID,
		"clan", result.Clan.ID,
		"rarity", result.Clan.Rarity.String(),
		"personality", req.Personality,
		"boosted_clan", req.BoostedClanID,
		"boost_strength", req.BoostStrength,
		"reroll_of", req.RerollOf,
	)

	return &result, nil
}

// Preview computes a distribution and draws against it without committing
// anything. Useful for showing a player their odds before spending tokens.
func (e *Engine) Preview(req Request) (*Result, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	snap := e.ledger.Snapshot()
	dist, err := e.calc.Distribution(snap, req.Personality, req.BoostedClanID, req.BoostStrength)
	if err != nil {
		return nil, err
	}

	clanID := dist.Pick(e.rng.Float())
	clan, _ := e.catalog.Get(clanID)

	population := make(map[string]int64, len(snap.Counts))
	for cid, rec := range snap.Counts {
		population[cid] = rec.LivingCount
	}

	return &Result{
		PlayerID:   req.PlayerID,
		Clan:       clan,
		Weights:    dist,
		Population: population,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// PlayerClan returns the player's current clan from the history log, or nil
// if the player has never been assigned.
func (e *Engine) PlayerClan(ctx context.Context, playerID string) (*history.Entry, error) {
	return e.history.LatestForPlayer(ctx, playerID)
}
