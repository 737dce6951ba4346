// Package clans defines the clan catalog and the personality modifier
// table the assignment engine draws from. Both are loaded once at startup
// and are read-only afterwards, so they may be shared without locking.
package clans

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// RarityTier orders clans from most to least probable.
type RarityTier uint8

const (
	RarityCommon RarityTier = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
)

// rarityNames maps tiers to their canonical display strings.
var rarityNames = [...]string{"Common", "Uncommon", "Rare", "Epic", "Legendary"}

// rarityWeights maps tiers to their base selection weights.
var rarityWeights = [...]float64{100, 50, 20, 8, 2}

func (t RarityTier) String() string {
	if int(t) < len(rarityNames) {
		return rarityNames[t]
	}
	return fmt.Sprintf("RarityTier(%d)", uint8(t))
}

// BaseWeight returns the selection weight implied by the tier.
func (t RarityTier) BaseWeight() float64 {
	if int(t) < len(rarityWeights) {
		return rarityWeights[t]
	}
	return 0
}

// ParseRarity converts a tier name ("Common" … "Legendary") to a RarityTier.
func ParseRarity(s string) (RarityTier, error) {
	for i, name := range rarityNames {
		if name == s {
			return RarityTier(i), nil
		}
	}
	return 0, &ValidationError{Field: "rarity", Msg: fmt.Sprintf("unknown rarity tier %q", s)}
}

// Clan is a faction a player can be assigned to. Immutable after load.
type Clan struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Rarity      RarityTier `json:"-"`
	BaseWeight  float64    `json:"base_weight,omitempty"`
}

// Catalog is the registry of all assignable clans, ordered by rarity then id.
type Catalog struct {
	clans []Clan
	index map[string]int
}

// NewCatalog validates the given clans and builds a catalog. A clan with a
// zero BaseWeight gets the weight implied by its rarity tier.
func NewCatalog(list []Clan) (*Catalog, error) {
	if len(list) == 0 {
		return nil, &ValidationError{Field: "clans", Msg: "catalog must contain at least one clan"}
	}

	clans := make([]Clan, len(list))
	copy(clans, list)

	seen := make(map[string]bool, len(clans))
	for i := range clans {
		c := &clans[i]
		if c.ID == "" {
			return nil, &ValidationError{Field: "id", Msg: "clan id must not be empty"}
		}
		if seen[c.ID] {
			return nil, &ValidationError{Field: "id", Msg: fmt.Sprintf("duplicate clan id %q", c.ID)}
		}
		seen[c.ID] = true

		if c.DisplayName == "" {
			c.DisplayName = c.ID
		}
		if int(c.Rarity) >= len(rarityNames) {
			return nil, &ValidationError{Field: "rarity", Msg: fmt.Sprintf("clan %q has unknown rarity tier %d", c.ID, c.Rarity)}
		}
		if c.BaseWeight == 0 {
			c.BaseWeight = c.Rarity.BaseWeight()
		}
		if c.BaseWeight <= 0 {
			return nil, &ValidationError{Field: "base_weight", Msg: fmt.Sprintf("clan %q has non-positive base weight %g", c.ID, c.BaseWeight)}
		}
	}

	// Stable order: most probable tiers first, ids alphabetical within a tier.
	sort.Slice(clans, func(i, j int) bool {
		if clans[i].Rarity != clans[j].Rarity {
			return clans[i].Rarity < clans[j].Rarity
		}
		return clans[i].ID < clans[j].ID
	})

	index := make(map[string]int, len(clans))
	for i, c := range clans {
		index[c.ID] = i
	}

	return &Catalog{clans: clans, index: index}, nil
}

// clanFile is the on-disk JSON shape for a single clan definition.
type clanFile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Rarity      string  `json:"rarity"`
	BaseWeight  float64 `json:"base_weight,omitempty"`
}

// LoadCatalog reads clan definitions from a JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clan catalog: %w", err)
	}

	var defs []clanFile
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse clan catalog %s: %w", path, err)
	}

	list := make([]Clan, 0, len(defs))
	for _, d := range defs {
		tier, err := ParseRarity(d.Rarity)
		if err != nil {
			return nil, fmt.Errorf("clan catalog %s, clan %q: %w", path, d.ID, err)
		}
		list = append(list, Clan{
			ID:          d.ID,
			DisplayName: d.DisplayName,
			Rarity:      tier,
			BaseWeight:  d.BaseWeight,
		})
	}

	return NewCatalog(list)
}

// Get returns the clan with the given id.
func (c *Catalog) Get(id string) (Clan, bool) {
	i, ok := c.index[id]
	if !ok {
		return Clan{}, false
	}
	return c.clans[i], true
}

// Clans returns all clans in catalog order. The slice is a copy.
func (c *Catalog) Clans() []Clan {
	out := make([]Clan, len(c.clans))
	copy(out, c.clans)
	return out
}

// Len returns the number of clans in the catalog.
func (c *Catalog) Len() int {
	return len(c.clans)
}

// TotalBaseWeight returns the sum of all base weights.
func (c *Catalog) TotalBaseWeight() float64 {
	total := 0.0
	for _, clan := range c.clans {
		total += clan.BaseWeight
	}
	return total
}

// SeedCatalog creates the default clan set used when no catalog file is
// configured.
func SeedCatalog() *Catalog {
	seed := []struct {
		id, name string
		rarity   RarityTier
	}{
		{"uchiha", "Uchiha", RarityLegendary},
		{"senju", "Senju", RarityLegendary},
		{"uzumaki", "Uzumaki", RarityLegendary},
		{"hyuga", "Hyūga", RarityEpic},
		{"aburame", "Aburame", RarityEpic},
		{"inuzuka", "Inuzuka", RarityEpic},
		{"nara", "Nara", RarityEpic},
		{"yamanaka", "Yamanaka", RarityEpic},
		{"akimichi", "Akimichi", RarityEpic},
		{"sarutobi", "Sarutobi", RarityRare},
		{"hatake", "Hatake", RarityRare},
		{"kaguya", "Kaguya", RarityRare},
		{"hozuki", "Hōzuki", RarityRare},
		{"kazekage", "Kazekage", RarityUncommon},
		{"mizukage", "Mizukage", RarityUncommon},
		{"raikage", "Raikage", RarityUncommon},
		{"tsuchikage", "Tsuchikage", RarityUncommon},
		{"hokage", "Hokage", RarityUncommon},
		{"civilian", "Civilian", RarityCommon},
		{"merchant", "Merchant", RarityCommon},
		{"farmer", "Farmer", RarityCommon},
		{"blacksmith", "Blacksmith", RarityCommon},
		{"scholar", "Scholar", RarityCommon},
	}

	list := make([]Clan, 0, len(seed))
	for _, s := range seed {
		list = append(list, Clan{ID: s.id, DisplayName: s.name, Rarity: s.rarity})
	}

	cat, err := NewCatalog(list)
	if err != nil {
		// The seed set is static and validated by tests.
		panic(err)
	}
	return cat
}
