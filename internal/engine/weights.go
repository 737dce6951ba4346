// Weight calculation — composes rarity weights, population feedback,
// personality modifiers, and boosts into a normalized distribution.
// Pure and deterministic: no I/O, no randomness.
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/talgya/clanforge/internal/clans"
	"github.com/talgya/clanforge/internal/ledger"
)

// WeightParams bounds the population-feedback correction.
type WeightParams struct {
	// AdjMin/AdjMax clamp the per-draw correction so no clan's effective
	// rate swings more than this factor in either direction.
	AdjMin float64
	AdjMax float64
	// Epsilon guards the division for clans with zero living members.
	Epsilon float64
}

// DefaultWeightParams returns the production correction bounds. Setting
// AdjMin = AdjMax = 1 disables population feedback entirely.
func DefaultWeightParams() WeightParams {
	return WeightParams{AdjMin: 0.5, AdjMax: 2.0, Epsilon: 1e-9}
}

// ClanWeight is one clan's slot in a computed distribution. Cumulative is
// the running probability total used for the draw, so the exact decision is
// reproducible from the recorded weights.
type ClanWeight struct {
	ClanID      string  `json:"clan_id"`
	Probability float64 `json:"probability"`
	Cumulative  float64 `json:"cumulative"`
}

// Distribution is a normalized probability distribution over eligible
// clans, in catalog order.
type Distribution struct {
	Weights []ClanWeight `json:"weights"`
}

// Pick maps a uniform roll in [0, 1) onto the cumulative distribution and
// returns the selected clan: the first clan whose cumulative probability
// exceeds the roll.
func (d Distribution) Pick(roll float64) string {
	i := sort.Search(len(d.Weights), func(i int) bool {
		return d.Weights[i].Cumulative > roll
	})
	if i >= len(d.Weights) {
		// roll landed in the float rounding gap past the last cumulative.
		i = len(d.Weights) - 1
	}
	return d.Weights[i].ClanID
}

// Probability returns a clan's normalized probability, zero if ineligible.
func (d Distribution) Probability(clanID string) float64 {
	for _, w := range d.Weights {
		if w.ClanID == clanID {
			return w.Probability
		}
	}
	return 0
}

// Probabilities returns the distribution as a clanID → probability map.
func (d Distribution) Probabilities() map[string]float64 {
	out := make(map[string]float64, len(d.Weights))
	for _, w := range d.Weights {
		out[w.ClanID] = w.Probability
	}
	return out
}

// Calculator derives assignment distributions from the catalog, the
// modifier table, and a population snapshot.
type Calculator struct {
	catalog   *clans.Catalog
	modifiers *clans.ModifierTable
	params    WeightParams
}

// NewCalculator creates a weight calculator.
func NewCalculator(catalog *clans.Catalog, modifiers *clans.ModifierTable, params WeightParams) *Calculator {
	return &Calculator{catalog: catalog, modifiers: modifiers, params: params}
}

// Distribution computes the normalized distribution for one request.
// trait may be empty (no personality influence); boostStrength applies a
// ×(1+boostStrength) multiplier to boostedClanID when positive.
func (c *Calculator) Distribution(snap ledger.Snapshot, trait, boostedClanID string, boostStrength float64) (Distribution, error) {
	all := c.catalog.Clans()
	totalBase := c.catalog.TotalBaseWeight()

	type candidate struct {
		id     string
		weight float64
	}
	candidates := make([]candidate, 0, len(all))

	for _, clan := range all {
		if trait != "" && c.modifiers.Excluded(trait, clan.ID) {
			continue
		}

		w := clan.BaseWeight

		// Population feedback: pull each clan's rate toward the share its
		// rarity implies. Skipped when nobody is alive yet.
		if snap.TotalLiving > 0 {
			target := clan.BaseWeight / totalBase
			share := float64(snap.Living(clan.ID)) / float64(snap.TotalLiving)
			adj := target / math.Max(share, c.params.Epsilon)
			adj = math.Min(math.Max(adj, c.params.AdjMin), c.params.AdjMax)
			w *= adj
		}

		if trait != "" {
			w *= c.modifiers.Multiplier(trait, clan.ID)
		}

		if boostStrength > 0 && clan.ID == boostedClanID {
			w *= 1 + boostStrength
		}

		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return Distribution{}, &clans.ValidationError{
				Field: "weight",
				Msg:   fmt.Sprintf("clan %q produced invalid weight %g", clan.ID, w),
			}
		}

		candidates = append(candidates, candidate{id: clan.ID, weight: w})
	}

	if len(candidates) == 0 {
		return Distribution{}, &clans.NoEligibleClanError{Reason: fmt.Sprintf("all clans excluded for trait %q", trait)}
	}

	sum := 0.0
	for _, cand := range candidates {
		sum += cand.weight
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return Distribution{}, &clans.NoEligibleClanError{Reason: fmt.Sprintf("weights collapsed, sum %g", sum)}
	}

	weights := make([]ClanWeight, len(candidates))
	cumulative := 0.0
	for i, cand := range candidates {
		p := cand.weight / sum
		cumulative += p
		weights[i] = ClanWeight{ClanID: cand.id, Probability: p, Cumulative: cumulative}
	}
	// Pin the tail so a roll of 0.999… can never fall off the end.
	weights[len(weights)-1].Cumulative = 1.0

	return Distribution{Weights: weights}, nil
}
