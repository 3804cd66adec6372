package engine

import (
	"sort"

	"warescan/internal/types"
)

// correlate cross-links flow and space findings: a pallet flagged both
// stagnant and part of an overcapacity excess gets each anomaly's ID listed
// in the other's CorrelatedIDs. No new anomalies are created.
func correlate(anoms []types.Anomaly) {
	stagnant := make(map[string][]int)
	over := make(map[string][]int)
	for i, a := range anoms {
		if a.PalletID == "" {
			continue
		}
		switch a.RuleType {
		case types.RuleStagnantPallets:
			stagnant[a.PalletID] = append(stagnant[a.PalletID], i)
		case types.RuleOvercapacity:
			over[a.PalletID] = append(over[a.PalletID], i)
		}
	}
	for pallet, si := range stagnant {
		oi, ok := over[pallet]
		if !ok {
			continue
		}
		for _, s := range si {
			for _, o := range oi {
				anoms[s].CorrelatedIDs = append(anoms[s].CorrelatedIDs, anoms[o].ID)
				anoms[o].CorrelatedIDs = append(anoms[o].CorrelatedIDs, anoms[s].ID)
			}
		}
	}
	for i := range anoms {
		sort.Strings(anoms[i].CorrelatedIDs)
	}
}

// dedupe collapses anomalies sharing (rule, pallet, location), keeping the
// first occurrence.
func dedupe(anoms []types.Anomaly) []types.Anomaly {
	type key struct {
		rule, pallet, loc string
	}
	seen := make(map[key]bool, len(anoms))
	out := anoms[:0]
	for _, a := range anoms {
		k := key{a.RuleID, a.PalletID, a.LocationCode}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}

// sortAnomalies orders the final slice deterministically: highest priority
// first, then rule precedence, category, rule id, pallet id.
func sortAnomalies(anoms []types.Anomaly) {
	sort.SliceStable(anoms, func(i, j int) bool {
		a, b := anoms[i], anoms[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if a.Precedence != b.Precedence {
			return a.Precedence < b.Precedence
		}
		if ca, cb := a.Category.Order(), b.Category.Order(); ca != cb {
			return ca < cb
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.PalletID < b.PalletID
	})
}
