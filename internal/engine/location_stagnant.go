package engine

import (
	"time"

	"warescan/internal/normalize"
	"warescan/internal/types"
)

// LocationSpecificStagnantEvaluator is the pattern-gated variant of
// STAGNANT_PALLETS: instead of location types, a glob over the resolved
// location's code selects which rows are watched.
type LocationSpecificStagnantEvaluator struct{}

// Evaluate implements Evaluator.
func (LocationSpecificStagnantEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	pattern, ok := ec.Payload.String("location_pattern")
	if !ok || pattern == "" {
		return nil, nil
	}
	hours, ok := ec.Payload.Float("time_threshold_hours")
	if !ok {
		return nil, nil
	}
	threshold := time.Duration(hours * float64(time.Hour))

	var out []types.Anomaly
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if row.Loc == nil || !normalize.Glob(pattern, row.Loc.Code) {
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
			"age_hours":        ageHours,
			"threshold_hours":  hours,
			"location_pattern": pattern,
		}))
	}
	return out, nil
}
