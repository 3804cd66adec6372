package engine

import (
	"sort"
	"strings"
	"unicode"

	"warescan/internal/types"
)

// DataIntegrityEvaluator flags defects in the snapshot itself: pallets
// scanned in two or more distinct resolved locations, and corrupt pallet
// identifiers (empty or non-printable).
type DataIntegrityEvaluator struct{}

// Evaluate implements Evaluator.
func (DataIntegrityEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	checkDuplicates := ec.Payload.Bool("check_duplicate_scans")

	var out []types.Anomaly

	// Pass 1: corrupt identifiers.
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if corruptID(row.PalletID) {
			out = append(out, newAnomaly(ec.Rule, row.PalletID, row.Canonical, map[string]any{
				"kind": "corrupt_identifier",
			}))
		}
	}

	if !checkDuplicates {
		return out, nil
	}

	// Pass 2: duplicate scans. Occurrences keep snapshot order; the first
	// resolved occurrence is taken as truth and each extra one is flagged.
	type occurrence struct {
		row  Row
		code string
	}
	occurrences := make(map[string][]occurrence)
	var palletOrder []string
	for i, row := range ec.Rows {
		if err := checkCancel(ec, i); err != nil {
			return nil, err
		}
		if corruptID(row.PalletID) || row.Loc == nil {
			continue
		}
		if _, seen := occurrences[row.PalletID]; !seen {
			palletOrder = append(palletOrder, row.PalletID)
		}
		occurrences[row.PalletID] = append(occurrences[row.PalletID], occurrence{row: row, code: row.Loc.Code})
	}

	for _, pallet := range palletOrder {
		occs := occurrences[pallet]
		distinct := make(map[string]bool)
		for _, o := range occs {
			distinct[o.code] = true
		}
		if len(distinct) < 2 {
			continue
		}
		codes := make([]string, 0, len(distinct))
		for c := range distinct {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		for _, o := range occs[1:] {
			out = append(out, newAnomaly(ec.Rule, pallet, o.row.Canonical, map[string]any{
				"kind":      "duplicate_scan",
				"locations": strings.Join(codes, ","),
			}))
		}
	}
	return out, nil
}

func corruptID(palletID string) bool {
	if strings.TrimSpace(palletID) == "" {
		return true
	}
	for _, r := range palletID {
		if !unicode.IsPrint(r) {
			return true
		}
	}
	return false
}
