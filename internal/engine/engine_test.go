package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warescan/internal/catalog"
	"warescan/internal/config"
	"warescan/internal/types"
)

var evalNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeStores backs the engine's catalog and rule sources in-memory.
type fakeStores struct {
	views    map[string]*catalog.View
	rules    map[string][]types.Rule
	activity map[string]time.Time
	rulesErr error
}

func (f *fakeStores) ViewFor(tenant, userID string) (*catalog.View, error) {
	if v, ok := f.views[tenant]; ok {
		return v, nil
	}
	return catalog.NewView(tenant, nil, nil), nil
}

func (f *fakeStores) LastActivity(tenant string) (time.Time, error) {
	return f.activity[tenant], nil
}

func (f *fakeStores) ActiveRules(tenant string) ([]types.Rule, error) {
	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	return f.rules[tenant], nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.RuleTimeout = "5s"
	cfg.Engine.TotalTimeout = "30s"
	cfg.Engine.CancelCheckRows = 1
	cfg.Resolver.MinMatchRatio = 0.1
	cfg.Resolver.MinMatched = 1
	return cfg
}

func newTestEngine(stores *fakeStores) *Engine {
	return New(stores, stores, testConfig(), types.FixedClock{T: evalNow})
}

func testLoc(tenant, code string, t types.LocationType, capacity int, zone string) types.Location {
	return types.Location{
		Code:        code,
		WarehouseID: tenant,
		Type:        t,
		Capacity:    capacity,
		Zone:        zone,
		IsActive:    true,
	}
}

func testRule(id string, t types.RuleType, cat types.Category, pr types.Priority, precedence int, conds map[string]any) types.Rule {
	return types.Rule{
		ID:         id,
		Name:       id,
		Type:       t,
		Category:   cat,
		Priority:   pr,
		IsActive:   true,
		Conditions: conds,
		Precedence: precedence,
		Version:    1,
	}
}

func singleTenantUser(tenant string) types.UserContext {
	return types.UserContext{
		UserID:            "u-1",
		AccessibleTenants: []string{tenant},
		DefaultTenant:     tenant,
	}
}

func row(pallet, code, desc, receipt string, created time.Time) types.InventoryRow {
	return types.InventoryRow{
		PalletID:      pallet,
		LocationCode:  code,
		Description:   desc,
		ReceiptNumber: receipt,
		CreationDate:  created,
	}
}

func TestStagnantInReceiving(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 10, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {testRule("r-stag", types.RuleStagnantPallets, types.CategoryFlowTime, types.PriorityVeryHigh, 1, map[string]any{
				"location_types":       []any{"RECEIVING"},
				"time_threshold_hours": 6,
			})},
		},
	}
	eng := newTestEngine(stores)

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "RECV-01", "GENERAL", "R1", time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)),
		row("P2", "RECV-01", "GENERAL", "R1", time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	require.Len(t, report.Anomalies, 1)
	a := report.Anomalies[0]
	assert.Equal(t, "P1", a.PalletID)
	assert.Equal(t, "RECV-01", a.LocationCode)
	assert.Equal(t, 10.0, a.Details["age_hours"])
	assert.Equal(t, types.PriorityVeryHigh, a.Priority)
	assert.Equal(t, 1, report.PerRuleStats["r-stag"].Count)
}

func TestOvercapacityExcessSelection(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "A-01-001-A", types.LocationStorage, 1, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {testRule("r-over", types.RuleOvercapacity, types.CategorySpace, types.PriorityHigh, 1, map[string]any{
				"check_all_locations": true,
			})},
		},
	}
	eng := newTestEngine(stores)

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "A-01-001-A", "", "R1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)),
		row("P2", "A-01-001-A", "", "R1", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)),
		row("P3", "A-01-001-A", "", "R1", time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	// Newest first, pallet ascending on ties: P2, P1, P3; the first two are
	// the excess. The final report sorts by pallet within the rule.
	require.Len(t, report.Anomalies, 2)
	assert.Equal(t, "P1", report.Anomalies[0].PalletID)
	assert.Equal(t, "P2", report.Anomalies[1].PalletID)
	for _, a := range report.Anomalies {
		assert.Equal(t, 1, a.Details["capacity"])
		assert.Equal(t, 3, a.Details["occupancy"])
		assert.Equal(t, 2, a.Details["excess"])
	}
}

func TestLotStragglers(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "A-01-001-A", types.LocationStorage, 100, "GENERAL"),
				testLoc("T", "RECV-01", types.LocationReceiving, 100, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {testRule("r-lots", types.RuleUncoordinatedLots, types.CategoryFlowTime, types.PriorityHigh, 1, map[string]any{
				"completion_threshold": 0.8,
				"location_types":       []any{"RECEIVING"},
			})},
		},
	}
	eng := newTestEngine(stores)

	created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	snapshot := make([]types.InventoryRow, 0, 10)
	for _, p := range []string{"M1", "M2", "M3", "M4", "M5", "M6", "M7", "M8"} {
		snapshot = append(snapshot, row(p, "A-01-001-A", "", "R1", created))
	}
	snapshot = append(snapshot,
		row("S1", "RECV-01", "", "R1", created),
		row("S2", "RECV-01", "", "R1", created))

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), snapshot)
	require.NoError(t, err)

	require.Len(t, report.Anomalies, 2)
	assert.Equal(t, "S1", report.Anomalies[0].PalletID)
	assert.Equal(t, "S2", report.Anomalies[1].PalletID)
	for _, a := range report.Anomalies {
		assert.Equal(t, 0.8, a.Details["completion"])
		assert.Equal(t, 2, a.Details["straggler_count"])
		assert.Equal(t, 10, a.Details["lot_size"])
	}
}

func TestInvalidVersusImpossible(t *testing.T) {
	cfg := types.WarehouseConfig{
		ID:          "cfg-1",
		WarehouseID: "T",
		Aisles:      2,
		Racks:       2,
		Positions:   35,
		Levels:      3,
	}
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", catalog.Expand(cfg), &cfg),
		},
		rules: map[string][]types.Rule{
			"T": {testRule("r-inv", types.RuleInvalidLocation, types.CategorySpace, types.PriorityHigh, 1, map[string]any{
				"check_undefined_locations":  true,
				"check_impossible_locations": true,
			})},
		},
	}
	eng := newTestEngine(stores)

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "03-A-001-A", "", "R1", evalNow),
		row("P2", "ZZZ", "", "R1", evalNow),
		row("P3", "01-A-001-A", "", "R1", evalNow),
	})
	require.NoError(t, err)

	require.Len(t, report.Anomalies, 2)
	impossible := report.Anomalies[0]
	assert.Equal(t, "P1", impossible.PalletID)
	assert.Equal(t, "impossible", impossible.Details["kind"])
	assert.Equal(t, "aisle", impossible.Details["dimension"])
	assert.Equal(t, 3, impossible.Details["value"])
	assert.Equal(t, 2, impossible.Details["max"])

	undefined := report.Anomalies[1]
	assert.Equal(t, "P2", undefined.PalletID)
	assert.Equal(t, "undefined", undefined.Details["kind"])
}

func TestTenantIsolation(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T1": catalog.NewView("T1", []types.Location{
				testLoc("T1", "W-01", types.LocationStorage, 1, "GENERAL"),
			}, nil),
			"T2": catalog.NewView("T2", []types.Location{
				testLoc("T2", "W-01", types.LocationStorage, 1, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T1": {testRule("r-over", types.RuleOvercapacity, types.CategorySpace, types.PriorityHigh, 1, map[string]any{
				"check_all_locations": true,
			})},
			"T2": {testRule("r-other", types.RuleOvercapacity, types.CategorySpace, types.PriorityHigh, 1, map[string]any{
				"check_all_locations": true,
			})},
		},
	}
	eng := newTestEngine(stores)

	user := singleTenantUser("T1")
	report, err := eng.Evaluate(context.Background(), user, []types.InventoryRow{
		row("P1", "W-01", "", "R1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)),
		row("P2", "W-01", "", "R1", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	assert.Equal(t, "T1", report.Tenant)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "r-over", report.Anomalies[0].RuleID)
	assert.Equal(t, "W-01", report.Anomalies[0].LocationCode)
}

func TestTemperatureMismatchDelay(t *testing.T) {
	newStores := func() *fakeStores {
		return &fakeStores{
			views: map[string]*catalog.View{
				"T": catalog.NewView("T", []types.Location{
					testLoc("T", "A-02-010-B", types.LocationStorage, 5, "AMBIENT"),
				}, nil),
			},
			rules: map[string][]types.Rule{
				"T": {testRule("r-temp", types.RuleTemperatureZoneMismatch, types.CategoryProduct, types.PriorityVeryHigh, 1, map[string]any{
					"product_patterns":       []any{"*FROZEN*"},
					"prohibited_zones":       []any{"AMBIENT", "GENERAL"},
					"time_threshold_minutes": 30,
				})},
			},
		}
	}

	t.Run("within grace period", func(t *testing.T) {
		eng := newTestEngine(newStores())
		report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
			row("P1", "A-02-010-B", "FROZEN CHICKEN", "R1", evalNow.Add(-20*time.Minute)),
		})
		require.NoError(t, err)
		assert.Empty(t, report.Anomalies)
	})

	t.Run("past grace period", func(t *testing.T) {
		eng := newTestEngine(newStores())
		report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
			row("P1", "A-02-010-B", "FROZEN CHICKEN", "R1", evalNow.Add(-45*time.Minute)),
		})
		require.NoError(t, err)
		require.Len(t, report.Anomalies, 1)
		assert.Equal(t, "*FROZEN*", report.Anomalies[0].Details["matched_pattern"])
		assert.Equal(t, "AMBIENT", report.Anomalies[0].Details["zone"])
	})
}

func TestCorrelationAndOrdering(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 1, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {
				testRule("r-stag", types.RuleStagnantPallets, types.CategoryFlowTime, types.PriorityVeryHigh, 1, map[string]any{
					"location_types":       []any{"RECEIVING"},
					"time_threshold_hours": 6,
				}),
				testRule("r-over", types.RuleOvercapacity, types.CategorySpace, types.PriorityHigh, 2, map[string]any{
					"check_all_locations": true,
				}),
			},
		},
	}
	eng := newTestEngine(stores)

	// Both pallets are stagnant; P1 is the newer arrival so it is the
	// overcapacity excess.
	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P2", "RECV-01", "", "R1", time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)),
		row("P1", "RECV-01", "", "R1", time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	require.Len(t, report.Anomalies, 3)
	// VERY_HIGH before HIGH; within a rule, pallet ascending.
	assert.Equal(t, "r-stag", report.Anomalies[0].RuleID)
	assert.Equal(t, "P1", report.Anomalies[0].PalletID)
	assert.Equal(t, "r-stag", report.Anomalies[1].RuleID)
	assert.Equal(t, "P2", report.Anomalies[1].PalletID)
	assert.Equal(t, "r-over", report.Anomalies[2].RuleID)
	assert.Equal(t, "P1", report.Anomalies[2].PalletID)

	stagP1, overP1, stagP2 := report.Anomalies[0], report.Anomalies[2], report.Anomalies[1]
	assert.Equal(t, []string{overP1.ID}, stagP1.CorrelatedIDs)
	assert.Equal(t, []string{stagP1.ID}, overP1.CorrelatedIDs)
	assert.Empty(t, stagP2.CorrelatedIDs)
}

func TestReportDeterminism(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 1, "GENERAL"),
				testLoc("T", "A-01-001-A", types.LocationStorage, 1, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {
				testRule("r-stag", types.RuleStagnantPallets, types.CategoryFlowTime, types.PriorityVeryHigh, 1, map[string]any{
					"location_types":       []any{"RECEIVING"},
					"time_threshold_hours": 6,
				}),
				testRule("r-over", types.RuleOvercapacity, types.CategorySpace, types.PriorityHigh, 2, map[string]any{
					"check_all_locations": true,
				}),
			},
		},
	}
	eng := newTestEngine(stores)

	snapshot := []types.InventoryRow{
		row("P1", "RECV-01", "", "R1", time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)),
		row("P2", "A-01-001-A", "", "R1", time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)),
		row("P3", "A-01-001-A", "", "R1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)),
	}
	user := singleTenantUser("T")

	first, err := eng.Evaluate(context.Background(), user, snapshot)
	require.NoError(t, err)
	second, err := eng.Evaluate(context.Background(), user, snapshot)
	require.NoError(t, err)

	// Durations vary run to run; everything else must be identical.
	for id, s := range second.PerRuleStats {
		s.DurationMS = first.PerRuleStats[id].DurationMS
		second.PerRuleStats[id] = s
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("reports differ between runs:\n%s", diff)
	}
}

func TestNoMatchShortCircuit(t *testing.T) {
	stores := &fakeStores{views: map[string]*catalog.View{}}
	eng := newTestEngine(stores)

	report, err := eng.Evaluate(context.Background(), types.UserContext{UserID: "u-1"}, []types.InventoryRow{
		row("P1", "NOWHERE-1", "", "R1", evalNow),
	})
	require.NoError(t, err)
	assert.Equal(t, types.NoMatch, report.Tenant)
	assert.Empty(t, report.Anomalies)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "not identified")
}

func TestRuleStoreFailureIsFatal(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 10, "GENERAL"),
			}, nil),
		},
		rulesErr: errors.New("disk gone"),
	}
	eng := newTestEngine(stores)

	_, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "RECV-01", "", "R1", evalNow),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule store")
}

type failingEvaluator struct{ err error }

func (f failingEvaluator) Evaluate(*EvalContext) ([]types.Anomaly, error) { return nil, f.err }

type panickyEvaluator struct{}

func (panickyEvaluator) Evaluate(*EvalContext) ([]types.Anomaly, error) { panic("boom") }

type blockingEvaluator struct{}

func (blockingEvaluator) Evaluate(ec *EvalContext) ([]types.Anomaly, error) {
	<-ec.Ctx.Done()
	return nil, ec.Ctx.Err()
}

func TestRuleErrorIsolation(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 10, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {
				testRule("r-bad", "CUSTOM_FAILING", types.CategorySpace, types.PriorityHigh, 1, map[string]any{}),
				testRule("r-panic", "CUSTOM_PANICKY", types.CategorySpace, types.PriorityHigh, 2, map[string]any{}),
				testRule("r-stag", types.RuleStagnantPallets, types.CategoryFlowTime, types.PriorityVeryHigh, 3, map[string]any{
					"location_types":       []any{"RECEIVING"},
					"time_threshold_hours": 6,
				}),
			},
		},
	}
	eng := newTestEngine(stores)
	eng.Registry().Register("CUSTOM_FAILING", failingEvaluator{err: errors.New("query exploded")})
	eng.Registry().Register("CUSTOM_PANICKY", panickyEvaluator{})

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "RECV-01", "", "R1", time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	assert.True(t, report.PerRuleStats["r-bad"].Errored)
	assert.Equal(t, types.ErrorKindRuntime, report.PerRuleStats["r-bad"].ErrorKind)
	assert.True(t, report.PerRuleStats["r-panic"].Errored)
	assert.Equal(t, types.ErrorKindRuntime, report.PerRuleStats["r-panic"].ErrorKind)

	// The healthy rule still ran.
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "r-stag", report.Anomalies[0].RuleID)
	assert.False(t, report.PerRuleStats["r-stag"].Errored)
	assert.Equal(t, []string{"r-bad", "r-panic", "r-stag"}, report.RulesUsed)
}

func TestRuleTimeoutRecorded(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 10, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {testRule("r-slow", "CUSTOM_SLOW", types.CategorySpace, types.PriorityHigh, 1, map[string]any{})},
		},
	}
	cfg := testConfig()
	cfg.Engine.RuleTimeout = "20ms"
	eng := New(stores, stores, cfg, types.FixedClock{T: evalNow})
	eng.Registry().Register("CUSTOM_SLOW", blockingEvaluator{})

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "RECV-01", "", "R1", evalNow),
	})
	require.NoError(t, err)
	assert.True(t, report.PerRuleStats["r-slow"].Errored)
	assert.Equal(t, types.ErrorKindTimeout, report.PerRuleStats["r-slow"].ErrorKind)
}

func TestUnknownRuleTypeWarnsOnce(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 10, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {
				testRule("r-a", "MYSTERY", types.CategorySpace, types.PriorityHigh, 1, map[string]any{}),
				testRule("r-b", "MYSTERY", types.CategorySpace, types.PriorityHigh, 2, map[string]any{}),
			},
		},
	}
	eng := newTestEngine(stores)

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "RECV-01", "", "R1", evalNow),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Anomalies)

	warned := 0
	for _, w := range report.Warnings {
		if w == "no evaluator registered for rule type MYSTERY" {
			warned++
		}
	}
	assert.Equal(t, 1, warned)
}

func TestCancellationDiscardsPartialResults(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 10, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {testRule("r-stag", types.RuleStagnantPallets, types.CategoryFlowTime, types.PriorityHigh, 1, map[string]any{
				"location_types":       []any{"RECEIVING"},
				"time_threshold_hours": 6,
			})},
		},
	}
	eng := newTestEngine(stores)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Evaluate(ctx, singleTenantUser("T"), []types.InventoryRow{
		row("P1", "RECV-01", "", "R1", time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)),
	})
	require.ErrorIs(t, err, ErrCancelled)
}

func TestMissingFieldsWarnButRowsRetained(t *testing.T) {
	stores := &fakeStores{
		views: map[string]*catalog.View{
			"T": catalog.NewView("T", []types.Location{
				testLoc("T", "RECV-01", types.LocationReceiving, 10, "GENERAL"),
			}, nil),
		},
		rules: map[string][]types.Rule{
			"T": {testRule("r-int", types.RuleDataIntegrity, types.CategorySpace, types.PriorityHigh, 1, map[string]any{})},
		},
	}
	eng := newTestEngine(stores)

	report, err := eng.Evaluate(context.Background(), singleTenantUser("T"), []types.InventoryRow{
		row("P1", "RECV-01", "", "R1", evalNow),
		row("", "RECV-01", "", "R1", evalNow),
		row("P3", "", "", "R1", evalNow),
	})
	require.NoError(t, err)

	assert.Contains(t, report.Warnings, "row 2: missing pallet_id")
	assert.Contains(t, report.Warnings, "row 3: missing location_code")
	// The corrupt-identifier row still produced a finding.
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "corrupt_identifier", report.Anomalies[0].Details["kind"])
}
