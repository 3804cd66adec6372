// Package types holds the shared domain model for warescan: locations,
// warehouse configs, rules, snapshot rows, anomalies and reports.
// It is a leaf package; everything else imports it.
package types

import (
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// LocationType classifies what a physical or virtual location is used for.
type LocationType string

const (
	LocationStorage      LocationType = "STORAGE"
	LocationReceiving    LocationType = "RECEIVING"
	LocationStaging      LocationType = "STAGING"
	LocationDock         LocationType = "DOCK"
	LocationTransitional LocationType = "TRANSITIONAL"
)

// ValidLocationType reports whether t is one of the known location types.
func ValidLocationType(t LocationType) bool {
	switch t {
	case LocationStorage, LocationReceiving, LocationStaging, LocationDock, LocationTransitional:
		return true
	}
	return false
}

// RuleType identifies which evaluator handles a rule.
type RuleType string

const (
	RuleStagnantPallets          RuleType = "STAGNANT_PALLETS"
	RuleUncoordinatedLots        RuleType = "UNCOORDINATED_LOTS"
	RuleOvercapacity             RuleType = "OVERCAPACITY"
	RuleInvalidLocation          RuleType = "INVALID_LOCATION"
	RuleDataIntegrity            RuleType = "DATA_INTEGRITY"
	RuleLocationSpecificStagnant RuleType = "LOCATION_SPECIFIC_STAGNANT"
	RuleTemperatureZoneMismatch  RuleType = "TEMPERATURE_ZONE_MISMATCH"
	RuleLocationMappingError     RuleType = "LOCATION_MAPPING_ERROR"
)

// Category groups rules by the kind of problem they surface.
type Category string

const (
	CategoryFlowTime Category = "FLOW_TIME"
	CategorySpace    Category = "SPACE"
	CategoryProduct  Category = "PRODUCT"
)

// Order returns the stable sort position of a category. Unknown categories
// sort last.
func (c Category) Order() int {
	switch c {
	case CategoryFlowTime:
		return 0
	case CategorySpace:
		return 1
	case CategoryProduct:
		return 2
	}
	return 3
}

// Priority is the severity assigned to a rule and inherited by its anomalies.
type Priority string

const (
	PriorityVeryHigh Priority = "VERY_HIGH"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Rank maps priority to a numeric rank (higher = more severe).
func (p Priority) Rank() int {
	switch p {
	case PriorityVeryHigh:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// =============================================================================
// LOCATIONS
// =============================================================================

// Structure is the decoded aisle/rack/position/level of a STORAGE code.
type Structure struct {
	Aisle    int    `json:"aisle"`
	Rack     string `json:"rack"`
	Position int    `json:"position"`
	Level    string `json:"level"`
}

// Location is one slot in a tenant's catalog. Uniqueness is always
// (WarehouseID, Code); two tenants may both own a "W-01".
type Location struct {
	Code        string       `json:"code"`
	WarehouseID string       `json:"warehouse_id"`
	// ConfigID binds the location to the warehouse config that generated it.
	// Empty means orphan: visible only when no active config filter applies.
	ConfigID            string            `json:"warehouse_config_id,omitempty"`
	Type                LocationType      `json:"location_type"`
	Capacity            int               `json:"capacity"`
	Zone                string            `json:"zone"`
	Pattern             string            `json:"pattern,omitempty"`
	AllowedProducts     []string          `json:"allowed_products,omitempty"`
	SpecialRequirements map[string]string `json:"special_requirements,omitempty"`
	Structure           *Structure        `json:"structure,omitempty"`
	IsActive            bool              `json:"is_active"`
}

// AllowsProduct checks a product description against the allowed_products
// globs. An empty list allows anything.
func (l Location) AllowsProduct(match func(pattern, s string) bool, description string) bool {
	if len(l.AllowedProducts) == 0 {
		return true
	}
	for _, p := range l.AllowedProducts {
		if match(p, description) {
			return true
		}
	}
	return false
}

// SpecialArea is a non-storage area declared on a warehouse config
// (receiving docks, staging lanes and so on).
type SpecialArea struct {
	Code     string       `json:"code"`
	Type     LocationType `json:"type"`
	Capacity int          `json:"capacity"`
	Zone     string       `json:"zone"`
}

// WarehouseConfig is one template-bound catalog version. At most one config
// is active per (warehouse, user); the active config selects which bound
// locations the engine sees for that user.
type WarehouseConfig struct {
	ID          string `json:"id"`
	WarehouseID string `json:"warehouse_id"`
	UserID      string `json:"user_id"`

	Aisles     int    `json:"aisles"`
	Racks      int    `json:"racks"`
	Positions  int    `json:"positions"`
	Levels     int    `json:"levels"`
	LevelNames string `json:"level_names"` // e.g. "ABCD"; empty falls back to A..

	DefaultCapacity int           `json:"default_capacity"`
	Bidimensional   bool          `json:"bidimensional"` // no vertical levels
	SpecialAreas    []SpecialArea `json:"special_areas,omitempty"`
	IsActive        bool          `json:"is_active"`
}

// LevelName returns the letter for a 1-based level index.
func (c WarehouseConfig) LevelName(i int) string {
	if i >= 1 && i <= len(c.LevelNames) {
		return string(c.LevelNames[i-1])
	}
	return string(rune('A' + i - 1))
}

// =============================================================================
// RULES
// =============================================================================

// Rule is one configured check. Conditions carry both structured keys
// (e.g. time_threshold_hours) and an optional generic condition list; the
// rules package interprets them.
type Rule struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       RuleType       `json:"rule_type"`
	Category   Category       `json:"category"`
	Priority   Priority       `json:"priority"`
	IsActive   bool           `json:"is_active"`
	Conditions map[string]any `json:"conditions"`
	// Precedence breaks ties among rules of equal priority; lower runs first.
	Precedence int `json:"precedence_level"`
	Version    int `json:"version"`
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// InventoryRow is one pallet record from an uploaded snapshot. LocationCode
// is raw as uploaded; the engine canonicalizes it once at ingest.
type InventoryRow struct {
	PalletID      string    `json:"pallet_id"`
	LocationCode  string    `json:"location_code"`
	Description   string    `json:"description"`
	ReceiptNumber string    `json:"receipt_number"`
	CreationDate  time.Time `json:"creation_date"`
}

// UserContext identifies the acting user and which tenants they may touch.
type UserContext struct {
	UserID            string   `json:"user_id"`
	AccessibleTenants []string `json:"accessible_tenants"`
	DefaultTenant     string   `json:"default_tenant,omitempty"`
}

// CanAccess reports whether tenant is in the user's accessible set.
func (u UserContext) CanAccess(tenant string) bool {
	for _, t := range u.AccessibleTenants {
		if t == tenant {
			return true
		}
	}
	return false
}

// =============================================================================
// ANOMALIES AND REPORTS
// =============================================================================

// Anomaly is one finding produced by a rule against a snapshot row or group.
type Anomaly struct {
	ID           string         `json:"id"`
	PalletID     string         `json:"pallet_id"`
	LocationCode string         `json:"location_code"`
	RuleID       string         `json:"rule_id"`
	RuleName     string         `json:"rule_name"`
	RuleType     RuleType       `json:"rule_type"`
	Priority     Priority       `json:"priority"`
	Category     Category       `json:"category"`
	Precedence   int            `json:"precedence_level"`
	Details      map[string]any `json:"details,omitempty"`
	// CorrelatedIDs links anomalies about the same pallet from different
	// rules; correlation never synthesizes new anomalies.
	CorrelatedIDs []string `json:"correlated_anomaly_ids,omitempty"`
}

// ErrorKind classifies a per-rule evaluation failure.
type ErrorKind string

const (
	ErrorKindNone    ErrorKind = ""
	ErrorKindRuntime ErrorKind = "runtime"
	ErrorKindTimeout ErrorKind = "timeout"
)

// RuleStats records what one rule did during an evaluation.
type RuleStats struct {
	Count      int       `json:"count"`
	DurationMS int64     `json:"duration_ms"`
	Errored    bool      `json:"errored"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
}

// NoMatch is the sentinel tenant value when context resolution fails.
const NoMatch = "NO_MATCH"

// Report is the result of evaluating one snapshot for one user.
type Report struct {
	ID           string               `json:"id"`
	Tenant       string               `json:"tenant"` // warehouse_id or NoMatch
	Anomalies    []Anomaly            `json:"anomalies"`
	RulesUsed    []string             `json:"rules_used"`
	PerRuleStats map[string]RuleStats `json:"per_rule_stats"`
	Warnings     []string             `json:"warnings,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Clock abstracts the evaluation timestamp so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock in UTC.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant; test helper.
type FixedClock struct{ T time.Time }

// Now implements Clock.
func (f FixedClock) Now() time.Time { return f.T }
