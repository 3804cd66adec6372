package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"warescan/internal/logging"
	"warescan/internal/types"
)

// SaveConfig inserts or updates a warehouse config. Activating a config
// deactivates any other config owned by the same (warehouse, user) pair so
// at most one is active.
func (s *Store) SaveConfig(cfg types.WarehouseConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.WarehouseID == "" || cfg.UserID == "" {
		return "", fmt.Errorf("warehouse_id and user_id required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	areas, err := marshalJSON(cfg.SpecialAreas)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if cfg.IsActive {
		_, err = tx.Exec(`UPDATE warehouse_configs SET is_active = 0
			WHERE warehouse_id = ? AND user_id = ? AND id != ?`,
			cfg.WarehouseID, cfg.UserID, cfg.ID)
		if err != nil {
			return "", fmt.Errorf("failed to deactivate siblings: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO warehouse_configs
		(id, warehouse_id, user_id, aisles, racks, positions, levels, level_names,
		 default_capacity, bidimensional, special_areas, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.WarehouseID, cfg.UserID, cfg.Aisles, cfg.Racks, cfg.Positions,
		cfg.Levels, cfg.LevelNames, cfg.DefaultCapacity, boolInt(cfg.Bidimensional),
		areas, boolInt(cfg.IsActive))
	if err != nil {
		return "", fmt.Errorf("failed to save config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit config: %w", err)
	}
	logging.Store("saved warehouse config %s (%s, active=%v)", cfg.ID, cfg.WarehouseID, cfg.IsActive)
	return cfg.ID, nil
}

// GetConfig fetches one config by ID.
func (s *Store) GetConfig(id string) (*types.WarehouseConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getConfigLocked(`WHERE id = ?`, id)
}

// ActiveConfig returns the active config for a (warehouse, user), or nil.
func (s *Store) ActiveConfig(tenant, userID string) (*types.WarehouseConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getConfigLocked(
		`WHERE warehouse_id = ? AND user_id = ? AND is_active = 1`, tenant, userID)
}

func (s *Store) getConfigLocked(where string, args ...any) (*types.WarehouseConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, warehouse_id, user_id, aisles, racks, positions, levels,
		       level_names, default_capacity, bidimensional, special_areas, is_active
		FROM warehouse_configs `+where, args...)

	var cfg types.WarehouseConfig
	var areas sql.NullString
	var bidim, active int
	err := row.Scan(&cfg.ID, &cfg.WarehouseID, &cfg.UserID, &cfg.Aisles, &cfg.Racks,
		&cfg.Positions, &cfg.Levels, &cfg.LevelNames, &cfg.DefaultCapacity,
		&bidim, &areas, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	cfg.Bidimensional = bidim != 0
	cfg.IsActive = active != 0
	if areas.Valid && areas.String != "" {
		if err := json.Unmarshal([]byte(areas.String), &cfg.SpecialAreas); err != nil {
			return nil, fmt.Errorf("corrupt special_areas for %s: %w", cfg.ID, err)
		}
	}
	return &cfg, nil
}

// DeleteConfig removes a config. Bound locations are soft-dereferenced
// (config_id set to NULL), never cascade-deleted.
func (s *Store) DeleteConfig(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE locations SET config_id = NULL WHERE config_id = ?`, id); err != nil {
		return fmt.Errorf("failed to dereference locations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM warehouse_configs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	logging.Store("deleted warehouse config %s (locations dereferenced)", id)
	return nil
}
