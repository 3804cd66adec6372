package engine

import (
	"warescan/internal/catalog"
	"warescan/internal/normalize"
	"warescan/internal/types"
)

// InvalidLocationEvaluator flags rows whose codes resolve to nothing
// ("undefined") and, optionally, structured storage codes that decode to
// coordinates outside the warehouse config's bounds ("impossible"). A code
// that is both impossible and undefined reports only as impossible.
type InvalidLocationEvaluator struct{}

// Evaluate implements Evaluator.
func (InvalidLocationEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	checkUndefined := ec.Payload.Bool("check_undefined_locations")
	checkImpossible := ec.Payload.Bool("check_impossible_locations")
	if !checkUndefined && !checkImpossible {
		return nil, nil
	}

	var out []types.Anomaly
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if row.LocationCode == "" {
			// DATA_INTEGRITY owns missing fields.
			continue
		}
		if checkImpossible {
			if aisle, rack, pos, level, ok := normalize.ParseStorage(row.Canonical); ok {
				dim, limit, within := catalog.WithinBounds(ec.Catalog.Config(), aisle, rack, pos, level)
				if !within {
					out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
						"kind":      "impossible",
						"dimension": dim,
						"value":     dimensionValue(dim, aisle, rack, pos, level),
						"max":       limit,
					}))
					continue
				}
			}
		}
		if checkUndefined && row.Loc == nil {
			out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
				"kind": "undefined",
			}))
		}
	}
	return out, nil
}

func dimensionValue(dim string, aisle int, rack string, pos int, level string) any {
	switch dim {
	case "aisle":
		return aisle
	case "rack":
		return rack
	case "position":
		return pos
	case "level":
		return level
	}
	return nil
}
