// Package resolver picks which tenant's catalog applies to a snapshot when
// the uploaded codes are ambiguous. Uploads mix canonical storage codes,
// special-area codes and occasional junk, so selection uses a fractional
// match score with a minimum-coverage floor to avoid spurious lock-on to an
// empty tenant.
package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"warescan/internal/catalog"
	"warescan/internal/config"
	"warescan/internal/logging"
	"warescan/internal/normalize"
	"warescan/internal/types"
)

// ErrNoMatch reports that no accessible tenant cleared both policy floors.
var ErrNoMatch = errors.New("warehouse context not identified")

// Source supplies per-tenant catalog views and activity timestamps.
type Source interface {
	ViewFor(tenant, userID string) (*catalog.View, error)
	LastActivity(tenant string) (time.Time, error)
}

// Result describes a successful resolution.
type Result struct {
	Tenant  string
	Matched int
	Total   int
	Ratio   float64
	View    *catalog.View // the winning tenant's view, reused by the engine
}

// Resolver scores candidate tenants. Results are memoized per
// (user, distinct-code-set): the resolver is called once per snapshot.
type Resolver struct {
	source Source
	policy config.ResolverConfig

	mu   sync.Mutex
	memo map[string]Result
}

// New builds a resolver with the given policy constants.
func New(source Source, policy config.ResolverConfig) *Resolver {
	return &Resolver{
		source: source,
		policy: policy,
		memo:   make(map[string]Result),
	}
}

// Resolve selects the accessible tenant whose catalog best matches the
// snapshot's codes. Ties break on the user's default tenant, then most
// recent snapshot activity, then lexicographic warehouse ID.
func (r *Resolver) Resolve(user types.UserContext, rawCodes []string) (Result, error) {
	timer := logging.StartTimer(logging.CategoryResolver, "Resolve")
	defer timer.Stop()

	codes := distinctCanonical(rawCodes)
	if len(codes) == 0 || len(user.AccessibleTenants) == 0 {
		return Result{}, ErrNoMatch
	}

	key := memoKey(user.UserID, codes)
	r.mu.Lock()
	if cached, ok := r.memo[key]; ok {
		r.mu.Unlock()
		logging.ResolverDebug("memo hit for user %s (%d codes)", user.UserID, len(codes))
		return cached, nil
	}
	r.mu.Unlock()

	type candidate struct {
		tenant  string
		matched int
		view    *catalog.View
	}
	var candidates []candidate
	for _, tenant := range user.AccessibleTenants {
		view, err := r.source.ViewFor(tenant, user.UserID)
		if err != nil {
			return Result{}, err
		}
		matched := 0
		for _, c := range codes {
			if _, ok := view.Resolve(c); ok {
				matched++
			}
		}
		logging.ResolverDebug("tenant %s matched %d/%d", tenant, matched, len(codes))
		candidates = append(candidates, candidate{tenant: tenant, matched: matched, view: view})
	}

	total := len(codes)
	best := -1
	for i, c := range candidates {
		ratio := float64(c.matched) / float64(total)
		if ratio < r.policy.MinMatchRatio || c.matched < r.policy.MinMatched {
			continue
		}
		if best < 0 || c.matched > candidates[best].matched {
			best = i
			continue
		}
		if c.matched == candidates[best].matched && r.tieBreak(user, c.tenant, candidates[best].tenant) {
			best = i
		}
	}
	if best < 0 {
		logging.Resolver("no tenant cleared floors (ratio>=%.2f, matched>=%d) for user %s",
			r.policy.MinMatchRatio, r.policy.MinMatched, user.UserID)
		return Result{}, ErrNoMatch
	}

	win := candidates[best]
	result := Result{
		Tenant:  win.tenant,
		Matched: win.matched,
		Total:   total,
		Ratio:   float64(win.matched) / float64(total),
		View:    win.view,
	}
	r.mu.Lock()
	r.memo[key] = result
	r.mu.Unlock()

	logging.Resolver("resolved user %s to tenant %s (%d/%d = %.2f)",
		user.UserID, win.tenant, win.matched, total, result.Ratio)
	return result, nil
}

// tieBreak reports whether challenger beats incumbent at equal match count.
func (r *Resolver) tieBreak(user types.UserContext, challenger, incumbent string) bool {
	if incumbent == user.DefaultTenant {
		return false
	}
	if challenger == user.DefaultTenant {
		return true
	}
	ca, errA := r.source.LastActivity(challenger)
	ia, errB := r.source.LastActivity(incumbent)
	if errA == nil && errB == nil && !ca.Equal(ia) {
		return ca.After(ia)
	}
	return challenger < incumbent
}

func distinctCanonical(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, s := range raw {
		c := normalize.Canonical(s)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func memoKey(userID string, sortedCodes []string) string {
	h := sha256.Sum256([]byte(userID + "\x00" + strings.Join(sortedCodes, "\x00")))
	return hex.EncodeToString(h[:])
}
