package engine

import (
	"time"

	"warescan/internal/types"
)

// StagnantEvaluator flags pallets that have sat in flow-through location
// types (receiving, transitional, ...) beyond the rule's time threshold.
// Rows with unresolved locations are skipped; INVALID_LOCATION owns those.
type StagnantEvaluator struct{}

// Evaluate implements Evaluator.
func (StagnantEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	hours, ok := ec.Payload.Float("time_threshold_hours")
	if !ok {
		return nil, nil
	}
	threshold := time.Duration(hours * float64(time.Hour))
	watched := typeSet(ec, "location_types")

	var out []types.Anomaly
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if row.Loc == nil || !watched[row.Loc.Type] {
			continue
		}
		age := ec.Now.Sub(row.CreationDate)
		if age <= threshold {
			continue
		}
		ageHours := roundTenth(age.Hours())
		if !passesConditions(ec, row, map[string]any{"age_hours": ageHours}) {
			continue
		}
		out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
			"age_hours":       ageHours,
			"threshold_hours": hours,
			"location_type":   string(row.Loc.Type),
		}))
	}
	return out, nil
}
