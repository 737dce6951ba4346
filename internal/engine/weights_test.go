package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/talgya/clanforge/internal/clans"
	"github.com/talgya/clanforge/internal/entropy"
	"github.com/talgya/clanforge/internal/ledger"
)

func mustCatalog(t *testing.T, list []clans.Clan) *clans.Catalog {
	t.Helper()
	cat, err := clans.NewCatalog(list)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func emptyModifiers(t *testing.T) *clans.ModifierTable {
	t.Helper()
	table, err := clans.NewModifierTable(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func emptySnapshot(cat *clans.Catalog) ledger.Snapshot {
	counts := make(map[string]ledger.Record)
	for _, c := range cat.Clans() {
		counts[c.ID] = ledger.Record{}
	}
	return ledger.Snapshot{Counts: counts}
}

// TestDistributionNormalized ensures probabilities are non-negative and sum
// to 1 within floating-point tolerance, for the full seed catalog.
func TestDistributionNormalized(t *testing.T) {
	cat := clans.SeedCatalog()
	calc := NewCalculator(cat, clans.SeedModifiers(), DefaultWeightParams())

	dist, err := calc.Distribution(emptySnapshot(cat), "Calm", "uchiha", 0.9)
	if err != nil {
		t.Fatalf("Distribution returned error: %v", err)
	}

	sum := 0.0
	for _, w := range dist.Weights {
		if w.Probability < 0 {
			t.Errorf("clan %q has negative probability %g", w.ClanID, w.Probability)
		}
		sum += w.Probability
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("probabilities sum to %g, want 1", sum)
	}
	if last := dist.Weights[len(dist.Weights)-1].Cumulative; last != 1.0 {
		t.Errorf("final cumulative = %g, want exactly 1", last)
	}
}

// TestDistributionWorkedExample checks the two-clan example: weights 100
// and 20 give probabilities 5/6 and 1/6.
func TestDistributionWorkedExample(t *testing.T) {
	cat := mustCatalog(t, []clans.Clan{
		{ID: "common", Rarity: clans.RarityCommon},
		{ID: "rare", Rarity: clans.RarityRare},
	})
	calc := NewCalculator(cat, emptyModifiers(t), DefaultWeightParams())

	dist, err := calc.Distribution(emptySnapshot(cat), "", "", 0)
	if err != nil {
		t.Fatalf("Distribution returned error: %v", err)
	}

	if got, want := dist.Probability("common"), 100.0/120.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("common probability = %g, want %g", got, want)
	}
	if got, want := dist.Probability("rare"), 20.0/120.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("rare probability = %g, want %g", got, want)
	}
}

// TestPopulationAdjustment ensures an empty clan is boosted to the AdjMax
// clamp while a fully-populated one is suppressed to AdjMin.
func TestPopulationAdjustment(t *testing.T) {
	cat := mustCatalog(t, []clans.Clan{
		{ID: "a", Rarity: clans.RarityCommon},
		{ID: "b", Rarity: clans.RarityCommon},
	})
	calc := NewCalculator(cat, emptyModifiers(t), DefaultWeightParams())

	snap := ledger.Snapshot{
		Counts: map[string]ledger.Record{
			"a": {LivingCount: 10, TotalAssigned: 10},
			"b": {LivingCount: 0, TotalAssigned: 0},
		},
		TotalLiving: 10,
	}

	dist, err := calc.Distribution(snap, "", "", 0)
	if err != nil {
		t.Fatalf("Distribution returned error: %v", err)
	}

	// a: target 0.5, share 1.0 → adj 0.5 → weight 50.
	// b: target 0.5, share ~0 → adj clamped at 2.0 → weight 200.
	if got, want := dist.Probability("b"), 200.0/250.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("under-represented clan probability = %g, want %g", got, want)
	}
	if got, want := dist.Probability("a"), 50.0/250.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("over-represented clan probability = %g, want %g", got, want)
	}
}

// TestPopulationAdjustmentSkippedWhenEmpty ensures base weights are used
// unmodified when nobody is alive.
func TestPopulationAdjustmentSkippedWhenEmpty(t *testing.T) {
	cat := mustCatalog(t, []clans.Clan{
		{ID: "a", Rarity: clans.RarityCommon},
		{ID: "b", Rarity: clans.RarityRare},
	})
	calc := NewCalculator(cat, emptyModifiers(t), DefaultWeightParams())

	dist, err := calc.Distribution(emptySnapshot(cat), "", "", 0)
	if err != nil {
		t.Fatalf("Distribution returned error: %v", err)
	}
	if got, want := dist.Probability("a"), 100.0/120.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("probability with empty ledger = %g, want base-weight share %g", got, want)
	}
}

// TestDisabledAdjustmentParams ensures AdjMin = AdjMax = 1 turns population
// feedback off entirely.
func TestDisabledAdjustmentParams(t *testing.T) {
	cat := mustCatalog(t, []clans.Clan{
		{ID: "a", Rarity: clans.RarityCommon},
		{ID: "b", Rarity: clans.RarityCommon},
	})
	calc := NewCalculator(cat, emptyModifiers(t), WeightParams{AdjMin: 1, AdjMax: 1, Epsilon: 1e-9})

	snap := ledger.Snapshot{
		Counts: map[string]ledger.Record{
			"a": {LivingCount: 100, TotalAssigned: 100},
			"b": {LivingCount: 0, TotalAssigned: 0},
		},
		TotalLiving: 100,
	}

	dist, err := calc.Distribution(snap, "", "", 0)
	if err != nil {
		t.Fatalf("Distribution returned error: %v", err)
	}
	if got := dist.Probability("a"); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("probability with feedback disabled = %g, want 0.5", got)
	}
}

// TestBoostIncreasesProbability ensures a positive boost strictly raises
// the target's normalized probability relative to no boost.
func TestBoostIncreasesProbability(t *testing.T) {
	cat := clans.SeedCatalog()
	calc := NewCalculator(cat, clans.SeedModifiers(), DefaultWeightParams())
	snap := emptySnapshot(cat)

	plain, err := calc.Distribution(snap, "", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	boosted, err := calc.Distribution(snap, "", "uchiha", 0.9)
	if err != nil {
		t.Fatal(err)
	}

	if boosted.Probability("uchiha") <= plain.Probability("uchiha") {
		t.Errorf("boost did not raise probability: %g vs %g",
			boosted.Probability("uchiha"), plain.Probability("uchiha"))
	}
}

// TestPersonalityModifiers ensures trait multipliers tilt the distribution
// and exclusions remove clans entirely.
func TestPersonalityModifiers(t *testing.T) {
	cat := mustCatalog(t, []clans.Clan{
		{ID: "a", Rarity: clans.RarityCommon},
		{ID: "b", Rarity: clans.RarityCommon},
		{ID: "c", Rarity: clans.RarityCommon},
	})
	table, err := clans.NewModifierTable(
		map[string]map[string]float64{"Calm": {"a": 2.0}},
		map[string][]string{"Calm": {"c"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	calc := NewCalculator(cat, table, DefaultWeightParams())

	dist, err := calc.Distribution(emptySnapshot(cat), "Calm", "", 0)
	if err != nil {
		t.Fatalf("Distribution returned error: %v", err)
	}

	if got := dist.Probability("c"); got != 0 {
		t.Errorf("excluded clan has probability %g, want 0", got)
	}
	// a: 200, b: 100 → 2/3 vs 1/3.
	if got, want := dist.Probability("a"), 2.0/3.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("modified clan probability = %g, want %g", got, want)
	}
}

// TestNoEligibleClan ensures a trait excluding every clan fails with
// NoEligibleClanError instead of assigning arbitrarily.
func TestNoEligibleClan(t *testing.T) {
	cat := mustCatalog(t, []clans.Clan{
		{ID: "a", Rarity: clans.RarityCommon},
		{ID: "b", Rarity: clans.RarityCommon},
	})
	table, err := clans.NewModifierTable(nil, map[string][]string{"Outcast": {"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	calc := NewCalculator(cat, table, DefaultWeightParams())

	_, err = calc.Distribution(emptySnapshot(cat), "Outcast", "", 0)
	var noClan *clans.NoEligibleClanError
	if !errors.As(err, &noClan) {
		t.Fatalf("error = %v, want *NoEligibleClanError", err)
	}
}

// TestPickBoundaries ensures the cumulative mapping selects the first clan
// whose cumulative probability exceeds the roll, at both edges.
func TestPickBoundaries(t *testing.T) {
	dist := Distribution{Weights: []ClanWeight{
		{ClanID: "a", Probability: 0.5, Cumulative: 0.5},
		{ClanID: "b", Probability: 0.3, Cumulative: 0.8},
		{ClanID: "c", Probability: 0.2, Cumulative: 1.0},
	}}

	cases := []struct {
		roll float64
		want string
	}{
		{0, "a"},
		{0.499999, "a"},
		{0.5, "b"},
		{0.799999, "b"},
		{0.8, "c"},
		{0.999999999, "c"},
	}
	for _, tc := range cases {
		if got := dist.Pick(tc.roll); got != tc.want {
			t.Errorf("Pick(%g) = %q, want %q", tc.roll, got, tc.want)
		}
	}
}

// TestConvergence runs 100k seeded draws with population feedback and
// checks each clan's empirical frequency lands near its rarity-implied
// target share.
func TestConvergence(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}

	cat := clans.SeedCatalog()
	calc := NewCalculator(cat, clans.SeedModifiers(), DefaultWeightParams())
	rng := entropy.Seeded(7)

	const draws = 100000
	counts := make(map[string]ledger.Record)
	for _, c := range cat.Clans() {
		counts[c.ID] = ledger.Record{}
	}
	assigned := make(map[string]int)
	var living int64

	for i := 0; i < draws; i++ {
		snap := ledger.Snapshot{Counts: counts, TotalLiving: living}
		dist, err := calc.Distribution(snap, "", "", 0)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		clanID := dist.Pick(rng.Float())
		assigned[clanID]++
		rec := counts[clanID]
		rec.LivingCount++
		rec.TotalAssigned++
		counts[clanID] = rec
		living++
	}

	totalBase := cat.TotalBaseWeight()
	for _, c := range cat.Clans() {
		target := c.BaseWeight / totalBase
		empirical := float64(assigned[c.ID]) / draws
		// The feedback loop keeps long-run shares tight; allow 15% relative
		// drift plus a small absolute floor for the rarest tiers.
		tolerance := 0.15*target + 0.002
		if math.Abs(empirical-target) > tolerance {
			t.Errorf("clan %q: empirical %.5f vs target %.5f (tolerance %.5f)",
				c.ID, empirical, target, tolerance)
		}
	}
}

// TestConvergenceRatio checks a two-clan world: the running Common:Rare
// assignment ratio stays near 5:1 over a long run with deaths.
func TestConvergenceRatio(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}

	cat := mustCatalog(t, []clans.Clan{
		{ID: "common", Rarity: clans.RarityCommon},
		{ID: "rare", Rarity: clans.RarityRare},
	})
	calc := NewCalculator(cat, emptyModifiers(t), DefaultWeightParams())
	rng := entropy.Seeded(11)

	counts := map[string]ledger.Record{"common": {}, "rare": {}}
	var living int64
	assigned := map[string]int{}

	for i := 0; i < 20000; i++ {
		snap := ledger.Snapshot{Counts: counts, TotalLiving: living}
		dist, err := calc.Distribution(snap, "", "", 0)
		if err != nil {
			t.Fatal(err)
		}
		clanID := dist.Pick(rng.Float())
		assigned[clanID]++
		rec := counts[clanID]
		rec.LivingCount++
		rec.TotalAssigned++
		counts[clanID] = rec
		living++

		// Periodic deaths keep the populations from just accumulating.
		if i%3 == 0 && living > 10 {
			victim := "common"
			if rng.Float() < float64(counts["rare"].LivingCount)/float64(living) {
				victim = "rare"
			}
			rec := counts[victim]
			rec.LivingCount--
			counts[victim] = rec
			living--
		}
	}

	ratio := float64(assigned["common"]) / float64(assigned["rare"])
	if ratio < 4.5 || ratio > 5.5 {
		t.Errorf("Common:Rare assignment ratio = %.2f, want within ±10%% of 5", ratio)
	}
}
