package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"warescan/internal/logging"
	"warescan/internal/normalize"
	"warescan/internal/types"
)

// SaveLocation inserts or replaces a location. The code is canonicalized so
// the composite (warehouse_id, code) key always holds canonical form.
func (s *Store) SaveLocation(loc types.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := normalize.Canonical(loc.Code)
	if code == "" {
		return fmt.Errorf("location code required")
	}
	if loc.WarehouseID == "" {
		return fmt.Errorf("warehouse_id required")
	}
	if loc.Capacity < 1 {
		return fmt.Errorf("capacity must be >= 1, got %d", loc.Capacity)
	}

	products, err := marshalJSON(loc.AllowedProducts)
	if err != nil {
		return err
	}
	reqs, err := marshalJSON(loc.SpecialRequirements)
	if err != nil {
		return err
	}

	var aisle, position sql.NullInt64
	var rack, level sql.NullString
	if loc.Structure != nil {
		aisle = sql.NullInt64{Int64: int64(loc.Structure.Aisle), Valid: true}
		position = sql.NullInt64{Int64: int64(loc.Structure.Position), Valid: true}
		rack = sql.NullString{String: loc.Structure.Rack, Valid: true}
		level = sql.NullString{String: loc.Structure.Level, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO locations
		(warehouse_id, code, config_id, location_type, capacity, zone, pattern,
		 allowed_products, special_requirements, aisle, rack, position, level, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loc.WarehouseID, code, nullable(loc.ConfigID), string(loc.Type), loc.Capacity,
		loc.Zone, nullable(loc.Pattern), products, reqs, aisle, rack, position, level,
		boolInt(loc.IsActive))
	if err != nil {
		return fmt.Errorf("failed to save location %s/%s: %w", loc.WarehouseID, code, err)
	}
	logging.StoreDebug("saved location %s/%s", loc.WarehouseID, code)
	return nil
}

// GetLocation fetches one location by tenant and canonicalized code.
func (s *Store) GetLocation(tenant, code string) (*types.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(locationSelect+` WHERE warehouse_id = ? AND code = ?`,
		tenant, normalize.Canonical(code))
	loc, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return loc, nil
}

// LocationsForConfig returns the tenant's locations visible under the given
// config filter. With a config ID, only locations bound to that config are
// returned; with an empty one, only orphans (unbound locations) are.
func (s *Store) LocationsForConfig(tenant, configID string) ([]types.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if configID != "" {
		rows, err = s.db.Query(locationSelect+
			` WHERE warehouse_id = ? AND config_id = ? ORDER BY code`, tenant, configID)
	} else {
		rows, err = s.db.Query(locationSelect+
			` WHERE warehouse_id = ? AND config_id IS NULL ORDER BY code`, tenant)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var out []types.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}

// CountLocationsByType counts a tenant's locations of one type, regardless
// of config binding.
func (s *Store) CountLocationsByType(tenant string, t types.LocationType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM locations WHERE warehouse_id = ? AND location_type = ?`,
		tenant, string(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count locations: %w", err)
	}
	return n, nil
}

// DeleteLocation removes one location.
func (s *Store) DeleteLocation(tenant, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM locations WHERE warehouse_id = ? AND code = ?`,
		tenant, normalize.Canonical(code))
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

const locationSelect = `
	SELECT warehouse_id, code, config_id, location_type, capacity, zone, pattern,
	       allowed_products, special_requirements, aisle, rack, position, level, is_active
	FROM locations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(r rowScanner) (*types.Location, error) {
	var loc types.Location
	var configID, pattern, products, reqs sql.NullString
	var aisle, position sql.NullInt64
	var rack, level sql.NullString
	var active int

	err := r.Scan(&loc.WarehouseID, &loc.Code, &configID, (*string)(&loc.Type),
		&loc.Capacity, &loc.Zone, &pattern, &products, &reqs,
		&aisle, &rack, &position, &level, &active)
	if err != nil {
		return nil, err
	}

	loc.ConfigID = configID.String
	loc.Pattern = pattern.String
	loc.IsActive = active != 0
	if products.Valid && products.String != "" {
		if err := json.Unmarshal([]byte(products.String), &loc.AllowedProducts); err != nil {
			return nil, fmt.Errorf("corrupt allowed_products for %s: %w", loc.Code, err)
		}
	}
	if reqs.Valid && reqs.String != "" {
		if err := json.Unmarshal([]byte(reqs.String), &loc.SpecialRequirements); err != nil {
			return nil, fmt.Errorf("corrupt special_requirements for %s: %w", loc.Code, err)
		}
	}
	if aisle.Valid && rack.Valid && position.Valid && level.Valid {
		loc.Structure = &types.Structure{
			Aisle:    int(aisle.Int64),
			Rack:     rack.String,
			Position: int(position.Int64),
			Level:    level.String,
		}
	}
	return &loc, nil
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
