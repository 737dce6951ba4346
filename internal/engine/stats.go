// Rarity statistics — per-tier population against the shares the rarity
// weights imply. Served by the API and printed by the draw simulator.
package engine

import (
	"github.com/talgya/clanforge/internal/clans"
	"github.com/talgya/clanforge/internal/ledger"
)

// RarityStat aggregates one rarity tier's population state.
type RarityStat struct {
	Tier          string   `json:"tier"`
	Clans         []string `json:"clans"`
	Living        int64    `json:"living"`
	TotalAssigned int64    `json:"total_assigned"`
	TargetShare   float64  `json:"target_share"`
	ActualShare   float64  `json:"actual_share"`
}

// RarityStatistics groups the snapshot's counts by rarity tier, ordered
// most to least probable.
func RarityStatistics(catalog *clans.Catalog, snap ledger.Snapshot) []RarityStat {
	tiers := []clans.RarityTier{
		clans.RarityCommon, clans.RarityUncommon, clans.RarityRare,
		clans.RarityEpic, clans.RarityLegendary,
	}

	totalBase := catalog.TotalBaseWeight()
	byTier := make(map[clans.RarityTier]*RarityStat, len(tiers))
	out := make([]RarityStat, len(tiers))
	for i, t := range tiers {
		out[i] = RarityStat{Tier: t.String(), Clans: []string{}}
		byTier[t] = &out[i]
	}

	for _, clan := range catalog.Clans() {
		stat := byTier[clan.Rarity]
		rec := snap.Counts[clan.ID]
		stat.Clans = append(stat.Clans, clan.ID)
		stat.Living += rec.LivingCount
		stat.TotalAssigned += rec.TotalAssigned
		stat.TargetShare += clan.BaseWeight / totalBase
	}

	if snap.TotalLiving > 0 {
		for i := range out {
			out[i].ActualShare = float64(out[i].Living) / float64(snap.TotalLiving)
		}
	}

	return out
}
