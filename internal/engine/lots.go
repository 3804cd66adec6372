package engine

import (
	"math"
	"sort"

	"warescan/internal/types"
)

// UncoordinatedLotsEvaluator finds lot stragglers: receipts whose pallets
// have mostly migrated out of the source location types, with a few rows
// left behind. Lots that never started moving are not stragglers.
type UncoordinatedLotsEvaluator struct{}

// Evaluate implements Evaluator.
func (UncoordinatedLotsEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	theta, ok := ec.Payload.Float("completion_threshold")
	if !ok || theta <= 0 || theta > 1 {
		return nil, nil
	}
	sourceTypes := typeSet(ec, "location_types")

	type lot struct {
		src   []Row // rows still at a source type
		moved int
	}
	lots := make(map[string]*lot)
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if row.ReceiptNumber == "" || row.Loc == nil {
			// Unresolved rows participate in neither count.
			continue
		}
		l := lots[row.ReceiptNumber]
		if l == nil {
			l = &lot{}
			lots[row.ReceiptNumber] = l
		}
		if sourceTypes[row.Loc.Type] {
			l.src = append(l.src, row)
		} else {
			l.moved++
		}
	}

	receipts := make([]string, 0, len(lots))
	for r := range lots {
		receipts = append(receipts, r)
	}
	sort.Strings(receipts)

	var out []types.Anomaly
	for _, receipt := range receipts {
		l := lots[receipt]
		src := len(l.src)
		total := src + l.moved
		if total == 0 || src == 0 {
			continue
		}
		completion := float64(l.moved) / float64(total)
		if completion < theta {
			continue
		}
		// "Mostly moved, a few stragglers": the stragglers must fit inside
		// the incomplete fraction the threshold allows.
		if src > int(math.Ceil((1-theta)*float64(total))) {
			continue
		}
		for _, row := range l.src {
			out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
				"receipt_number":  receipt,
				"completion":      completion,
				"straggler_count": src,
				"lot_size":        total,
			}))
		}
	}
	return out, nil
}
