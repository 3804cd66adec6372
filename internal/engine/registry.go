// Package engine runs configured rules over one inventory snapshot and
// produces the ordered anomaly report. The orchestrator resolves the
// warehouse context, snapshots the catalog and rule set, runs each
// evaluator with timing and error isolation, then correlates, deduplicates
// and sorts the results.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"warescan/internal/catalog"
	"warescan/internal/rules"
	"warescan/internal/types"
)

// Row is one snapshot row after canonicalization and resolution. Loc is nil
// when the code resolves to nothing in the tenant's catalog.
type Row struct {
	types.InventoryRow
	Canonical string
	Loc       *types.Location
}

// EvalContext is everything an evaluator may read. Evaluators are stateless
// and must not reach for ambient state beyond this.
type EvalContext struct {
	Ctx     context.Context
	Rule    types.Rule
	Payload rules.Payload
	Rows    []Row
	Catalog *catalog.View
	Now     time.Time
	// CancelEvery is the row stride at which evaluator loops poll Ctx.
	CancelEvery int
}

// Evaluator is one rule kind's implementation.
type Evaluator interface {
	Evaluate(ec *EvalContext) ([]types.Anomaly, error)
}

// Registry maps rule types to evaluators.
type Registry struct {
	evaluators map[types.RuleType]Evaluator
}

// NewRegistry returns a registry with all built-in evaluators installed.
func NewRegistry() *Registry {
	r := &Registry{evaluators: make(map[types.RuleType]Evaluator)}
	r.Register(types.RuleStagnantPallets, StagnantEvaluator{})
	r.Register(types.RuleUncoordinatedLots, UncoordinatedLotsEvaluator{})
	r.Register(types.RuleOvercapacity, OvercapacityEvaluator{})
	r.Register(types.RuleInvalidLocation, InvalidLocationEvaluator{})
	r.Register(types.RuleDataIntegrity, DataIntegrityEvaluator{})
	r.Register(types.RuleLocationSpecificStagnant, LocationSpecificStagnantEvaluator{})
	r.Register(types.RuleTemperatureZoneMismatch, TemperatureZoneEvaluator{})
	r.Register(types.RuleLocationMappingError, LocationMappingEvaluator{})
	return r
}

// Register installs (or replaces) the evaluator for a rule type.
func (r *Registry) Register(t types.RuleType, ev Evaluator) {
	r.evaluators[t] = ev
}

// Lookup returns the evaluator for a rule type. Unknown types get the null
// evaluator; the second return tells the orchestrator to warn once.
func (r *Registry) Lookup(t types.RuleType) (Evaluator, bool) {
	ev, ok := r.evaluators[t]
	if !ok {
		return NullEvaluator{}, false
	}
	return ev, true
}

// NullEvaluator handles unknown rule types by producing nothing.
type NullEvaluator struct{}

// Evaluate implements Evaluator.
func (NullEvaluator) Evaluate(*EvalContext) ([]types.Anomaly, error) {
	return nil, nil
}

// =============================================================================
// SHARED EVALUATOR HELPERS
// =============================================================================

// anomalyNamespace seeds deterministic anomaly IDs so the same inputs yield
// byte-identical reports across runs.
var anomalyNamespace = uuid.MustParse("8d6a2c6e-4b2f-4a4b-9a7d-55c0c5a40f11")

// newAnomaly builds an anomaly for a rule with a deterministic ID.
func newAnomaly(rule types.Rule, palletID, locationCode string, details map[string]any) types.Anomaly {
	key := rule.ID + "|" + palletID + "|" + locationCode
	return types.Anomaly{
		ID:           uuid.NewSHA1(anomalyNamespace, []byte(key)).String(),
		PalletID:     palletID,
		LocationCode: locationCode,
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		RuleType:     rule.Type,
		Priority:     rule.Priority,
		Category:     rule.Category,
		Precedence:   rule.Precedence,
		Details:      details,
	}
}

// checkCancel polls the context at the configured stride. i is the current
// row index.
func checkCancel(ec *EvalContext, i int) error {
	stride := ec.CancelEvery
	if stride < 1 {
		stride = 256
	}
	if i%stride != 0 {
		return nil
	}
	select {
	case <-ec.Ctx.Done():
		return ec.Ctx.Err()
	default:
		return nil
	}
}

// typeSet builds a membership set from a location_types payload key.
func typeSet(ec *EvalContext, key string) map[types.LocationType]bool {
	set := make(map[types.LocationType]bool)
	for _, t := range ec.Payload.LocationTypes(key) {
		set[t] = true
	}
	return set
}

// passesConditions applies the rule's optional generic condition list to a
// row. Rules without one always pass. Malformed lists were rejected at
// store time, so extraction errors here read as "no conditions".
func passesConditions(ec *EvalContext, row Row, extra map[string]any) bool {
	conds, err := ec.Payload.Conditions()
	if err != nil || len(conds) == 0 {
		return true
	}
	fields := map[string]any{
		"pallet_id":      row.PalletID,
		"location_code":  row.Canonical,
		"description":    row.Description,
		"receipt_number": row.ReceiptNumber,
	}
	if row.Loc != nil {
		fields["zone"] = row.Loc.Zone
		fields["location_type"] = string(row.Loc.Type)
	}
	for k, v := range extra {
		fields[k] = v
	}
	return rules.EvaluateConditions(conds, fields)
}

// roundTenth rounds to one decimal, the precision age_hours is reported at.
func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}
