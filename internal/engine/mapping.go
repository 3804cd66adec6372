package engine

import (
	"warescan/internal/normalize"
	"warescan/internal/types"
)

// LocationMappingEvaluator audits the catalog mapping itself: codes that
// decode as structured storage but are catalog-typed as something else, and
// catalog rows whose pattern cannot match their own canonical code.
type LocationMappingEvaluator struct{}

// Evaluate implements Evaluator.
func (LocationMappingEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	validateTypes := ec.Payload.Bool("validate_location_types")
	checkPatterns := ec.Payload.Bool("check_pattern_consistency")

	var out []types.Anomaly
	if validateTypes {
		seen := make(map[string]bool)
		for i, row := range ec.Rows {
			if err := checkCancel(ec, i); err != nil {
				return nil, err
			}
			if row.Loc == nil || seen[row.Canonical] {
				continue
			}
			if _, _, _, _, ok := normalize.ParseStorage(row.Canonical); !ok {
				continue
			}
			if row.Loc.Type == types.LocationStorage {
				continue
			}
			seen[row.Canonical] = true
			out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
				"kind":          "type_mismatch",
				"decoded_shape": "STORAGE",
				"catalog_type":  string(row.Loc.Type),
			}))
		}
	}

	if checkPatterns {
		for _, loc := range ec.Catalog.All() {
			if loc.Pattern == "" {
				continue
			}
			if normalize.Glob(loc.Pattern, loc.Code) {
				continue
			}
			// Catalog-level defect; there is no pallet to blame.
			out = append(out, newAnomaly(ec.Rule, "", loc.Code, map[string]any{
				"kind":    "pattern_mismatch",
				"pattern": loc.Pattern,
			}))
		}
	}
	return out, nil
}
