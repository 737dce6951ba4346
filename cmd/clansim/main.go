// Command clansim runs seeded assignment draws against a throwaway ledger
// and reports how far the empirical clan shares drift from the shares their
// rarity weights imply. Deaths are simulated so the population feedback
// loop actually engages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/talgya/clanforge/internal/clans"
	"github.com/talgya/clanforge/internal/engine"
	"github.com/talgya/clanforge/internal/entropy"
	"github.com/talgya/clanforge/internal/history"
	"github.com/talgya/clanforge/internal/ledger"
	"github.com/talgya/clanforge/internal/persistence"
)

func main() {
	var (
		draws     = flag.Int("n", 10000, "number of assignment draws")
		seed      = flag.Uint64("seed", 42, "RNG seed")
		deathRate = flag.Float64("death-rate", 0.3, "probability a draw is followed by a random death")
		trait     = flag.String("trait", "", "personality trait applied to every draw")
		boostClan = flag.String("boost-clan", "", "clan to boost on every draw")
		boost     = flag.Float64("boost", 0, "boost strength applied to boost-clan")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	tmp, err := os.MkdirTemp("", "clansim")
	if err != nil {
		fmt.Fprintln(os.Stderr, "temp dir:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmp)

	db, err := persistence.Open(filepath.Join(tmp, "sim.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	defer db.Close()

	catalog := clans.SeedCatalog()
	led, err := ledger.Open(db, catalog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open ledger:", err)
		os.Exit(1)
	}

	eng := engine.New(catalog, clans.SeedModifiers(), led, history.New(db),
		entropy.Seeded(*seed), engine.DefaultWeightParams())

	deaths := rand.New(rand.NewPCG(*seed, 1))
	ctx := context.Background()
	assigned := make(map[string]int64)

	for i := 0; i < *draws; i++ {
		result, err := eng.Assign(ctx, engine.Request{
			PlayerID:      fmt.Sprintf("sim-%06d", i),
			Personality:   *trait,
			BoostedClanID: *boostClan,
			BoostStrength: *boost,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "assign:", err)
			os.Exit(1)
		}
		assigned[result.Clan.ID]++

		// Kill a random living member so long runs reach a steady state
		// instead of accumulating population forever.
		if deaths.Float64() < *deathRate {
			if clanID := randomLiving(led.Snapshot(), deaths); clanID != "" {
				if err := led.Decrement(ctx, clanID); err != nil {
					fmt.Fprintln(os.Stderr, "decrement:", err)
					os.Exit(1)
				}
			}
		}
	}

	printReport(catalog, led.Snapshot(), assigned, int64(*draws))
}

// randomLiving picks a clan with probability proportional to its living count.
func randomLiving(snap ledger.Snapshot, rng *rand.Rand) string {
	if snap.TotalLiving == 0 {
		return ""
	}
	ids := make([]string, 0, len(snap.Counts))
	for id := range snap.Counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pick := rng.Int64N(snap.TotalLiving)
	for _, id := range ids {
		pick -= snap.Counts[id].LivingCount
		if pick < 0 {
			return id
		}
	}
	return ids[len(ids)-1]
}

func printReport(catalog *clans.Catalog, snap ledger.Snapshot, assigned map[string]int64, draws int64) {
	totalBase := catalog.TotalBaseWeight()

	fmt.Printf("draws: %s   living: %s\n\n", humanize.Comma(draws), humanize.Comma(snap.TotalLiving))
	fmt.Printf("%-12s %-10s %10s %10s %10s %8s\n", "clan", "rarity", "assigned", "empirical", "target", "delta")
	for _, c := range catalog.Clans() {
		target := c.BaseWeight / totalBase
		empirical := float64(assigned[c.ID]) / float64(draws)
		fmt.Printf("%-12s %-10s %10s %9.4f%% %9.4f%% %+7.3f%%\n",
			c.ID, c.Rarity.String(), humanize.Comma(assigned[c.ID]),
			empirical*100, target*100, (empirical-target)*100)
	}

	fmt.Println()
	for _, stat := range engine.RarityStatistics(catalog, snap) {
		fmt.Printf("%-10s living %6s  target %6.2f%%  actual %6.2f%%\n",
			stat.Tier, humanize.Comma(stat.Living), stat.TargetShare*100, stat.ActualShare*100)
	}
}
