// Package catalog provides the per-tenant location view the engine reads
// during an evaluation. A View is an immutable snapshot: it is built once
// from the store (plus template-generated virtual locations) and never
// mutated, so later catalog edits cannot race with a running evaluation.
package catalog

import (
	"sort"

	"warescan/internal/logging"
	"warescan/internal/normalize"
	"warescan/internal/types"
)

// View is an immutable, resolve-capable index over one tenant's locations.
type View struct {
	tenant    string
	byCode    map[string]types.Location
	patterned []types.Location // locations carrying a resolve-time pattern
	counts    map[types.LocationType]int
	config    *types.WarehouseConfig // bounds for structured-code checks
}

// NewView indexes the given locations for a tenant. Codes are canonicalized
// on the way in; on a code collision the first location wins (stored
// physical locations are expected before virtual ones).
func NewView(tenant string, locs []types.Location, cfg *types.WarehouseConfig) *View {
	v := &View{
		tenant: tenant,
		byCode: make(map[string]types.Location, len(locs)),
		counts: make(map[types.LocationType]int),
		config: cfg,
	}
	for _, loc := range locs {
		code := normalize.Canonical(loc.Code)
		if _, exists := v.byCode[code]; exists {
			continue
		}
		loc.Code = code
		v.byCode[code] = loc
		v.counts[loc.Type]++
		if loc.Pattern != "" {
			v.patterned = append(v.patterned, loc)
		}
	}
	logging.CatalogDebug("view built for tenant %s: %d locations, %d patterned",
		tenant, len(v.byCode), len(v.patterned))
	return v
}

// Tenant returns the warehouse this view belongs to.
func (v *View) Tenant() string { return v.tenant }

// Config returns the active warehouse config backing this view, or nil.
func (v *View) Config() *types.WarehouseConfig { return v.config }

// Len returns the number of locations in the view.
func (v *View) Len() int { return len(v.byCode) }

// GetByCode finds a location by exact canonical code. It never scans
// patterns; INVALID_LOCATION depends on that.
func (v *View) GetByCode(code string) (types.Location, bool) {
	loc, ok := v.byCode[normalize.Canonical(code)]
	return loc, ok
}

// Resolve canonicalizes raw and finds its location: exact match first, then
// the best pattern match. Among several pattern hits the most specific
// pattern wins; ties prefer active locations, then the lexicographically
// smallest code. Resolve(raw) == Resolve(Canonical(raw)).
func (v *View) Resolve(raw string) (types.Location, bool) {
	c := normalize.Canonical(raw)
	if loc, ok := v.byCode[c]; ok {
		return loc, true
	}

	var hits []types.Location
	best := -1
	for _, loc := range v.patterned {
		if !normalize.Glob(loc.Pattern, c) {
			continue
		}
		spec := normalize.Specificity(loc.Pattern)
		switch {
		case spec > best:
			best = spec
			hits = hits[:0]
			hits = append(hits, loc)
		case spec == best:
			hits = append(hits, loc)
		}
	}
	if len(hits) == 0 {
		return types.Location{}, false
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].IsActive != hits[j].IsActive {
			return hits[i].IsActive
		}
		return hits[i].Code < hits[j].Code
	})
	return hits[0], true
}

// CountByType returns how many locations of the given type the view holds.
func (v *View) CountByType(t types.LocationType) int {
	return v.counts[t]
}

// Active returns the active locations sorted by code.
func (v *View) Active() []types.Location {
	out := make([]types.Location, 0, len(v.byCode))
	for _, loc := range v.byCode {
		if loc.IsActive {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// All returns every location sorted by code.
func (v *View) All() []types.Location {
	out := make([]types.Location, 0, len(v.byCode))
	for _, loc := range v.byCode {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
