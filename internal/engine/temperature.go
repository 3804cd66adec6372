package engine

import (
	"strings"
	"time"

	"warescan/internal/normalize"
	"warescan/internal/types"
)

// TemperatureZoneEvaluator flags product/zone incompatibilities: rows whose
// description matches one of the product patterns while sitting in a
// prohibited zone. An optional minutes threshold gives freshly placed
// pallets a grace period before they count.
type TemperatureZoneEvaluator struct{}

// Evaluate implements Evaluator.
func (TemperatureZoneEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	patterns := ec.Payload.StringList("product_patterns")
	if len(patterns) == 0 {
		return nil, nil
	}
	prohibited := make(map[string]bool)
	for _, z := range ec.Payload.StringList("prohibited_zones") {
		prohibited[strings.ToUpper(z)] = true
	}
	if len(prohibited) == 0 {
		return nil, nil
	}
	minutes, hasDelay := ec.Payload.Float("time_threshold_minutes")
	grace := time.Duration(minutes * float64(time.Minute))

	var out []types.Anomaly
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if row.Loc == nil || !prohibited[strings.ToUpper(row.Loc.Zone)] {
			continue
		}
		matched := matchProduct(patterns, row.Description)
		if matched == "" {
			continue
		}
		if hasDelay && ec.Now.Sub(row.CreationDate) < grace {
			continue
		}
		if !passesConditions(ec, row, nil) {
			continue
		}
		out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
			"matched_pattern": matched,
			"zone":            row.Loc.Zone,
		}))
	}
	return out, nil
}

// matchProduct returns the first pattern matching the description,
// case-insensitively, or "".
func matchProduct(patterns []string, description string) string {
	desc := strings.ToUpper(description)
	for _, p := range patterns {
		if normalize.Glob(strings.ToUpper(p), desc) {
			return p
		}
	}
	return ""
}
