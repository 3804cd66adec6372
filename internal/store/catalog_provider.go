package store

import (
	"fmt"

	"warescan/internal/catalog"
	"warescan/internal/logging"
)

// ViewFor builds the immutable catalog view the engine evaluates against:
// the user's active config (if any) selects the bound physical locations
// and contributes its template-generated virtual ones; without an active
// config only orphan locations are visible. Stored locations win code
// collisions against virtual ones.
func (s *Store) ViewFor(tenant, userID string) (*catalog.View, error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "ViewFor")
	defer timer.Stop()

	cfg, err := s.ActiveConfig(tenant, userID)
	if err != nil {
		return nil, fmt.Errorf("catalog unavailable: %w", err)
	}

	configID := ""
	if cfg != nil {
		configID = cfg.ID
	}
	locs, err := s.LocationsForConfig(tenant, configID)
	if err != nil {
		return nil, fmt.Errorf("catalog unavailable: %w", err)
	}
	if cfg != nil {
		locs = append(locs, catalog.Expand(*cfg)...)
	}
	return catalog.NewView(tenant, locs, cfg), nil
}
