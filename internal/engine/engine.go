package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warescan/internal/catalog"
	"warescan/internal/config"
	"warescan/internal/logging"
	"warescan/internal/normalize"
	"warescan/internal/resolver"
	"warescan/internal/rules"
	"warescan/internal/types"
)

// ErrCancelled reports that the evaluation was cancelled or ran over its
// total budget; no partial results are surfaced.
var ErrCancelled = errors.New("evaluation cancelled")

// state tracks where an evaluation is; used for logging and failure
// attribution.
type state string

const (
	stateReady            state = "READY"
	stateResolvingContext state = "RESOLVING_CONTEXT"
	stateLoading          state = "LOADING"
	stateRunningRules     state = "RUNNING_RULES"
	stateCorrelating      state = "CORRELATING"
	stateDone             state = "DONE"
	stateFailedFatal      state = "FAILED_FATAL"
)

// CatalogSource provides per-tenant views and activity; the store satisfies
// it.
type CatalogSource interface {
	ViewFor(tenant, userID string) (*catalog.View, error)
	LastActivity(tenant string) (time.Time, error)
}

// RuleSource provides the active rule set for a tenant.
type RuleSource interface {
	ActiveRules(tenant string) ([]types.Rule, error)
}

// Engine orchestrates one evaluation at a time. It is safe for concurrent
// use; every evaluation works on its own immutable catalog view and rule
// snapshot.
type Engine struct {
	ruleSource  RuleSource
	resolver    *resolver.Resolver
	registry    *Registry
	clock       types.Clock
	ruleTimeout time.Duration
	cancelEvery int
}

// New wires an engine from the stores and config.
func New(catalogs CatalogSource, ruleSource RuleSource, cfg *config.Config, clock types.Clock) *Engine {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Engine{
		ruleSource:  ruleSource,
		resolver:    resolver.New(catalogs, cfg.Resolver),
		registry:    NewRegistry(),
		clock:       clock,
		ruleTimeout: cfg.RuleTimeout(),
		cancelEvery: cfg.Engine.CancelCheckRows,
	}
}

// Registry exposes the evaluator registry for extension.
func (e *Engine) Registry() *Registry { return e.registry }

// Evaluate runs every active rule over the snapshot for the user's best
// matching tenant. Store failures are fatal; evaluator failures are
// isolated into per-rule stats. An unresolvable context yields a report
// with Tenant=NO_MATCH and no anomalies.
func (e *Engine) Evaluate(ctx context.Context, user types.UserContext, snapshot []types.InventoryRow) (types.Report, error) {
	timer := logging.StartTimer(logging.CategoryPerformance, "Evaluate")
	defer timer.StopWithThreshold(5 * time.Second)

	now := e.clock.Now()
	st := stateReady
	transition := func(next state) {
		logging.EngineDebug("state %s -> %s", st, next)
		st = next
	}

	// Resolve the warehouse context once per snapshot.
	transition(stateResolvingContext)
	rawCodes := make([]string, 0, len(snapshot))
	for _, row := range snapshot {
		rawCodes = append(rawCodes, row.LocationCode)
	}
	res, err := e.resolver.Resolve(user, rawCodes)
	if err != nil {
		if errors.Is(err, resolver.ErrNoMatch) {
			logging.Engine("context not identified for user %s; emitting empty report", user.UserID)
			return types.Report{
				Tenant:       types.NoMatch,
				Anomalies:    []types.Anomaly{},
				RulesUsed:    []string{},
				PerRuleStats: map[string]types.RuleStats{},
				Warnings:     []string{"warehouse context not identified"},
				CreatedAt:    now,
			}, nil
		}
		transition(stateFailedFatal)
		return types.Report{}, fmt.Errorf("context resolution failed: %w", err)
	}

	// Load the rule set; the catalog view inside res is already an
	// immutable snapshot, so later catalog edits cannot race with us.
	transition(stateLoading)
	ruleSet, err := e.ruleSource.ActiveRules(res.Tenant)
	if err != nil {
		transition(stateFailedFatal)
		return types.Report{}, fmt.Errorf("rule store unavailable: %w", err)
	}
	view := res.View

	rows, warnings := prepareRows(snapshot, view)

	transition(stateRunningRules)
	report := types.Report{
		Tenant:       res.Tenant,
		Anomalies:    []types.Anomaly{},
		RulesUsed:    make([]string, 0, len(ruleSet)),
		PerRuleStats: make(map[string]types.RuleStats, len(ruleSet)),
		Warnings:     warnings,
		CreatedAt:    now,
	}

	warnedTypes := make(map[types.RuleType]bool)
	for _, rule := range ruleSet {
		if ctx.Err() != nil {
			return types.Report{}, ErrCancelled
		}
		ev, known := e.registry.Lookup(rule.Type)
		if !known && !warnedTypes[rule.Type] {
			warnedTypes[rule.Type] = true
			logging.EngineWarn("no evaluator for rule type %s; rule %s skipped", rule.Type, rule.ID)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("no evaluator registered for rule type %s", rule.Type))
		}
		report.RulesUsed = append(report.RulesUsed, rule.ID)

		anoms, stats, err := e.runRule(ctx, ev, rule, rows, view, now)
		if err != nil {
			return types.Report{}, err
		}
		report.PerRuleStats[rule.ID] = stats
		report.Anomalies = append(report.Anomalies, anoms...)
	}

	transition(stateCorrelating)
	correlate(report.Anomalies)
	report.Anomalies = dedupe(report.Anomalies)
	sortAnomalies(report.Anomalies)

	transition(stateDone)
	logging.Engine("evaluation done: tenant=%s rules=%d anomalies=%d",
		res.Tenant, len(ruleSet), len(report.Anomalies))
	return report, nil
}

// runRule executes one evaluator under its per-rule budget with panic and
// error isolation. Only a cancellation of the whole evaluation escapes.
func (e *Engine) runRule(ctx context.Context, ev Evaluator, rule types.Rule, rows []Row, view *catalog.View, now time.Time) (anoms []types.Anomaly, stats types.RuleStats, fatal error) {
	ruleCtx, cancel := context.WithTimeout(ctx, e.ruleTimeout)
	defer cancel()

	start := time.Now()
	ec := &EvalContext{
		Ctx:         ruleCtx,
		Rule:        rule,
		Payload:     rules.Payload(rule.Conditions),
		Rows:        rows,
		Catalog:     view,
		Now:         now,
		CancelEvery: e.cancelEvery,
	}

	var evalErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				evalErr = fmt.Errorf("evaluator panic: %v", r)
			}
		}()
		anoms, evalErr = ev.Evaluate(ec)
	}()
	stats.DurationMS = time.Since(start).Milliseconds()

	if evalErr != nil {
		// The whole evaluation was cancelled; discard everything.
		if ctx.Err() != nil {
			return nil, stats, ErrCancelled
		}
		stats.Errored = true
		anoms = nil
		if errors.Is(evalErr, context.DeadlineExceeded) {
			stats.ErrorKind = types.ErrorKindTimeout
			logging.EngineWarn("rule %s timed out after %dms", rule.ID, stats.DurationMS)
		} else {
			stats.ErrorKind = types.ErrorKindRuntime
			logging.EngineError("rule %s failed: %v", rule.ID, evalErr)
		}
		return nil, stats, nil
	}

	stats.Count = len(anoms)
	logging.EngineDebug("rule %s (%s) produced %d anomalies in %dms",
		rule.ID, rule.Type, stats.Count, stats.DurationMS)
	return anoms, stats, nil
}

// prepareRows canonicalizes and resolves the snapshot once. Rows with
// missing required fields are kept (DATA_INTEGRITY flags them) but noted as
// warnings.
func prepareRows(snapshot []types.InventoryRow, view *catalog.View) ([]Row, []string) {
	rows := make([]Row, 0, len(snapshot))
	var warnings []string
	for i, in := range snapshot {
		if in.PalletID == "" {
			warnings = append(warnings, fmt.Sprintf("row %d: missing pallet_id", i+1))
		}
		if in.LocationCode == "" {
			warnings = append(warnings, fmt.Sprintf("row %d: missing location_code", i+1))
		}
		r := Row{InventoryRow: in, Canonical: normalize.Canonical(in.LocationCode)}
		if loc, ok := view.Resolve(r.Canonical); ok {
			r.Loc = &loc
		}
		rows = append(rows, r)
	}
	return rows, warnings
}
