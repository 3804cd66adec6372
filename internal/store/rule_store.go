package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"warescan/internal/logging"
	"warescan/internal/rules"
	"warescan/internal/types"
)

// SaveRule inserts a rule, validating its condition payload against the
// schema for its rule type. A malformed payload does not reject the save;
// the rule is stored inactive so it never reaches the engine.
func (s *Store) SaveRule(r types.Rule) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Version < 1 {
		r.Version = 1
	}

	if err := rules.ValidatePayload(r.Type, rules.Payload(r.Conditions)); err != nil {
		logging.RulesWarn("rule %s (%s) failed validation, storing inactive: %v", r.Name, r.Type, err)
		r.IsActive = false
	}

	conds, err := json.Marshal(r.Conditions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conditions: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO rules
		(id, tenant, name, rule_type, category, priority, is_active, conditions, precedence, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, tenantOf(r), r.Name, string(r.Type), string(r.Category), string(r.Priority),
		boolInt(r.IsActive), string(conds), r.Precedence, r.Version)
	if err != nil {
		return "", fmt.Errorf("failed to save rule: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO rule_history (rule_id, version, conditions) VALUES (?, ?, ?)`,
		r.ID, r.Version, string(conds))
	if err != nil {
		return "", fmt.Errorf("failed to record rule history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit rule: %w", err)
	}
	logging.Rules("saved rule %s (%s, active=%v, v%d)", r.Name, r.Type, r.IsActive, r.Version)
	return r.ID, nil
}

// tenantOf reads the optional tenant scoping key from the conditions map.
// Rules without one apply to every tenant.
func tenantOf(r types.Rule) string {
	if t, ok := r.Conditions["tenant"].(string); ok {
		return t
	}
	return ""
}

// UpdateRuleConditions replaces a rule's conditions, bumping the version and
// appending to the history log. The new payload is re-validated; a malformed
// payload deactivates the rule.
func (s *Store) UpdateRuleConditions(id string, conditions map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRuleLocked(id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("rule %s not found", id)
	}

	active := r.IsActive
	if err := rules.ValidatePayload(r.Type, rules.Payload(conditions)); err != nil {
		logging.RulesWarn("rule %s update failed validation, deactivating: %v", id, err)
		active = false
	}

	conds, err := json.Marshal(conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	version := r.Version + 1

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE rules SET conditions = ?, version = ?, is_active = ? WHERE id = ?`,
		string(conds), version, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO rule_history (rule_id, version, conditions) VALUES (?, ?, ?)`,
		id, version, string(conds))
	if err != nil {
		return fmt.Errorf("failed to record rule history: %w", err)
	}
	return tx.Commit()
}

// RevertRule rolls a rule back to its latest non-reverted prior version.
func (s *Store) RevertRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRuleLocked(id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("rule %s not found", id)
	}

	var prevVersion int
	var prevConds string
	err = s.db.QueryRow(`
		SELECT version, conditions FROM rule_history
		WHERE rule_id = ? AND version < ? AND reverted = 0
		ORDER BY version DESC LIMIT 1`, id, r.Version).Scan(&prevVersion, &prevConds)
	if err == sql.ErrNoRows {
		return fmt.Errorf("rule %s has no prior version", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read rule history: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE rule_history SET reverted = 1 WHERE rule_id = ? AND version = ?`,
		id, r.Version); err != nil {
		return fmt.Errorf("failed to mark version reverted: %w", err)
	}
	if _, err := tx.Exec(`UPDATE rules SET conditions = ?, version = ? WHERE id = ?`,
		prevConds, prevVersion, id); err != nil {
		return fmt.Errorf("failed to revert rule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revert: %w", err)
	}
	logging.Rules("reverted rule %s to v%d", id, prevVersion)
	return nil
}

// SetRuleActive toggles a rule.
func (s *Store) SetRuleActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE rules SET is_active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// GetRule fetches one rule by ID.
func (s *Store) GetRule(id string) (*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRuleLocked(id)
}

func (s *Store) getRuleLocked(id string) (*types.Rule, error) {
	row := s.db.QueryRow(ruleSelect+` WHERE id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ActiveRules returns the active rules applicable to a tenant (global rules
// plus tenant-scoped ones) in deterministic evaluation order: precedence
// ascending, priority rank descending, rule ID ascending.
func (s *Store) ActiveRules(tenant string) ([]types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(ruleSelect+`
		WHERE is_active = 1 AND (tenant = '' OR tenant = ?)
		ORDER BY precedence ASC,
		         CASE priority
		           WHEN 'VERY_HIGH' THEN 4
		           WHEN 'HIGH' THEN 3
		           WHEN 'MEDIUM' THEN 2
		           WHEN 'LOW' THEN 1
		           ELSE 0
		         END DESC,
		         id ASC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	defer rows.Close()

	var out []types.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListRules returns every rule, active or not, ordered by precedence.
func (s *Store) ListRules() ([]types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(ruleSelect + ` ORDER BY precedence ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []types.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const ruleSelect = `
	SELECT id, name, rule_type, category, priority, is_active, conditions, precedence, version
	FROM rules`

func scanRule(r rowScanner) (*types.Rule, error) {
	var rule types.Rule
	var active int
	var conds string
	err := r.Scan(&rule.ID, &rule.Name, (*string)(&rule.Type), (*string)(&rule.Category),
		(*string)(&rule.Priority), &active, &conds, &rule.Precedence, &rule.Version)
	if err != nil {
		return nil, err
	}
	rule.IsActive = active != 0
	if conds != "" {
		if err := json.Unmarshal([]byte(conds), &rule.Conditions); err != nil {
			return nil, fmt.Errorf("corrupt conditions for rule %s: %w", rule.ID, err)
		}
	}
	return &rule, nil
}
