package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warescan/internal/types"
)

// SaveReport persists an evaluation report for a user.
func (s *Store) SaveReport(userID string, report types.Report) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO reports (id, user_id, tenant, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		report.ID, userID, report.Tenant, report.CreatedAt, string(payload))
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return report.ID, nil
}

// ListReports returns a user's reports, newest first.
func (s *Store) ListReports(userID string, limit int) ([]types.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT payload FROM reports WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []types.Report
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r types.Report
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("corrupt report payload: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastActivity returns the timestamp of a tenant's most recent report, used
// by the context resolver as a tie-break. The zero time means no activity.
func (s *Store) LastActivity(tenant string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ts time.Time
	err := s.db.QueryRow(
		`SELECT created_at FROM reports WHERE tenant = ? ORDER BY created_at DESC LIMIT 1`,
		tenant).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read tenant activity: %w", err)
	}
	return ts, nil
}
