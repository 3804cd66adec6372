package engine

import (
	"sort"

	"warescan/internal/types"
)

// OvercapacityEvaluator flags locations holding more pallets than their
// capacity. The excess rows are chosen deterministically: within a group,
// rows sort by creation_date descending then pallet_id ascending, and the
// first count-capacity of them are the excess.
type OvercapacityEvaluator struct{}

// Evaluate implements Evaluator.
func (OvercapacityEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	checkAll := ec.Payload.Bool("check_all_locations")
	watchedTypes := typeSet(ec, "location_types")
	watchedZones := make(map[string]bool)
	for _, z := range ec.Payload.StringList("zones") {
		watchedZones[z] = true
	}
	if !checkAll && len(watchedTypes) == 0 && len(watchedZones) == 0 {
		return nil, nil
	}

	groups := make(map[string][]Row)
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if row.Loc == nil {
			continue
		}
		if !checkAll && !watchedTypes[row.Loc.Type] && !watchedZones[row.Loc.Zone] {
			continue
		}
		groups[row.Loc.Code] = append(groups[row.Loc.Code], row)
	}

	codes := make([]string, 0, len(groups))
	for c := range groups {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	var out []types.Anomaly
	for _, code := range codes {
		group := groups[code]
		loc, ok := ec.Catalog.GetByCode(code)
		if !ok {
			continue
		}
		excess := len(group) - loc.Capacity
		if excess <= 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreationDate.Equal(group[j].CreationDate) {
				return group[i].CreationDate.After(group[j].CreationDate)
			}
			return group[i].PalletID < group[j].PalletID
		})
		for _, row := range group[:excess] {
			out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
				"capacity":  loc.Capacity,
				"occupancy": len(group),
				"excess":    excess,
			}))
		}
	}
	return out, nil
}
