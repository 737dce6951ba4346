// Personality modifier table — how a player's chosen trait tilts the clan
// distribution. Multipliers live in (0, 5]; a clan a trait should never
// roll is listed in the trait's exclusion set instead of being weighted to
// near-zero.
package clans

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// MaxModifier bounds personality multipliers. Anything above this is a
// configuration mistake, not a tuning choice.
const MaxModifier = 5.0

// ModifierTable maps (trait, clan) pairs to weight multipliers.
type ModifierTable struct {
	multipliers map[string]map[string]float64
	exclusions  map[string]map[string]bool
}

// NewModifierTable validates multipliers and exclusions and builds a table.
// A clan may not appear both as a multiplier and an exclusion for the same
// trait.
func NewModifierTable(multipliers map[string]map[string]float64, exclusions map[string][]string) (*ModifierTable, error) {
	mult := make(map[string]map[string]float64, len(multipliers))
	for trait, mods := range multipliers {
		if trait == "" {
			return nil, &ValidationError{Field: "trait", Msg: "trait name must not be empty"}
		}
		entry := make(map[string]float64, len(mods))
		for clanID, m := range mods {
			if m <= 0 || m > MaxModifier {
				return nil, &ValidationError{
					Field: "modifier",
					Msg:   fmt.Sprintf("trait %q clan %q: multiplier %g outside (0, %g]", trait, clanID, m, MaxModifier),
				}
			}
			entry[clanID] = m
		}
		mult[trait] = entry
	}

	excl := make(map[string]map[string]bool, len(exclusions))
	for trait, clanIDs := range exclusions {
		set := make(map[string]bool, len(clanIDs))
		for _, clanID := range clanIDs {
			if mult[trait] != nil && mult[trait][clanID] != 0 {
				return nil, &ValidationError{
					Field: "exclusion",
					Msg:   fmt.Sprintf("trait %q clan %q is both modified and excluded", trait, clanID),
				}
			}
			set[clanID] = true
		}
		excl[trait] = set
	}

	return &ModifierTable{multipliers: mult, exclusions: excl}, nil
}

// modifierFile is the on-disk JSON shape of the modifier table.
type modifierFile struct {
	Multipliers map[string]map[string]float64 `json:"multipliers"`
	Exclusions  map[string][]string           `json:"exclusions,omitempty"`
}

// LoadModifierTable reads a modifier table from a JSON file.
func LoadModifierTable(path string) (*ModifierTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read modifier table: %w", err)
	}

	var f modifierFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse modifier table %s: %w", path, err)
	}

	return NewModifierTable(f.Multipliers, f.Exclusions)
}

// Multiplier returns the weight multiplier for (trait, clan), defaulting to
// 1.0 when no entry exists.
func (t *ModifierTable) Multiplier(trait, clanID string) float64 {
	if mods, ok := t.multipliers[trait]; ok {
		if m, ok := mods[clanID]; ok {
			return m
		}
	}
	return 1.0
}

// Excluded reports whether the trait removes the clan from eligibility.
func (t *ModifierTable) Excluded(trait, clanID string) bool {
	return t.exclusions[trait][clanID]
}

// HasTrait reports whether the table knows the trait at all.
func (t *ModifierTable) HasTrait(trait string) bool {
	_, m := t.multipliers[trait]
	_, e := t.exclusions[trait]
	return m || e
}

// Traits returns all known trait names, sorted.
func (t *ModifierTable) Traits() []string {
	set := make(map[string]bool, len(t.multipliers))
	for trait := range t.multipliers {
		set[trait] = true
	}
	for trait := range t.exclusions {
		set[trait] = true
	}
	out := make([]string, 0, len(set))
	for trait := range set {
		out = append(out, trait)
	}
	sort.Strings(out)
	return out
}

// SeedModifiers creates the default personality table used when no modifier
// file is configured. Values above 1 favor a clan, below 1 suppress it.
func SeedModifiers() *ModifierTable {
	table, err := NewModifierTable(map[string]map[string]float64{
		"Intelligent": {"nara": 1.5, "hatake": 1.3, "uchiha": 1.2, "inuzuka": 0.8},
		"Strategic":   {"nara": 1.8, "hatake": 1.3, "hyuga": 1.2, "sarutobi": 1.1, "akimichi": 0.8},
		"Aggressive":  {"kaguya": 1.7, "uchiha": 1.3, "inuzuka": 1.4, "aburame": 0.7, "nara": 0.6},
		"Loyal":       {"inuzuka": 1.6, "sarutobi": 1.4, "akimichi": 1.3, "uchiha": 0.9},
		"Kind":        {"akimichi": 1.5, "uzumaki": 1.3, "senju": 1.4, "yamanaka": 1.2, "kaguya": 0.6, "uchiha": 0.8},
		"Ambitious":   {"uchiha": 1.7, "hyuga": 1.3, "hokage": 1.2, "akimichi": 0.7, "nara": 0.6},
		"Calm":        {"aburame": 1.6, "nara": 1.3, "hyuga": 1.2, "hozuki": 1.3, "inuzuka": 0.7, "kaguya": 0.6},
		"Determined":  {"uzumaki": 1.7, "sarutobi": 1.2, "kaguya": 1.3, "aburame": 0.8},
		"Mysterious":  {"aburame": 1.4, "hozuki": 1.3, "akimichi": 0.7, "inuzuka": 0.7},
		"Protective":  {"inuzuka": 1.4, "akimichi": 1.3, "sarutobi": 1.5, "senju": 1.3, "uchiha": 0.9},
		"Ruthless":    {"kaguya": 1.8, "uchiha": 1.4, "akimichi": 0.5, "yamanaka": 0.7},
	}, nil)
	if err != nil {
		// The seed table is static and validated by tests.
		panic(err)
	}
	return table
}
