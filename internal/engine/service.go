package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"warescan/internal/config"
	"warescan/internal/logging"
	"warescan/internal/types"
)

// ErrTooManyRows reports a snapshot over the configured row ceiling.
var ErrTooManyRows = errors.New("snapshot exceeds row limit")

// ReportSink persists finished reports; the store satisfies it.
type ReportSink interface {
	SaveReport(userID string, report types.Report) (string, error)
}

// Service runs evaluations with admission control: a weighted semaphore
// bounds how many snapshots are in flight, and every evaluation gets a
// total wall-clock budget.
type Service struct {
	engine       *Engine
	sink         ReportSink
	slots        *semaphore.Weighted
	totalTimeout time.Duration
	maxRows      int
}

// NewService wires a service around an engine. sink may be nil, in which
// case reports are returned but not persisted.
func NewService(engine *Engine, sink ReportSink, cfg *config.Config) *Service {
	return &Service{
		engine:       engine,
		sink:         sink,
		slots:        semaphore.NewWeighted(int64(cfg.Engine.MaxConcurrent)),
		totalTimeout: cfg.TotalTimeout(),
		maxRows:      cfg.Engine.MaxSnapshotRows,
	}
}

// Analyze admits, evaluates and persists one snapshot. Blocks while all
// slots are busy; honors ctx while waiting.
func (s *Service) Analyze(ctx context.Context, user types.UserContext, snapshot []types.InventoryRow) (types.Report, error) {
	if s.maxRows > 0 && len(snapshot) > s.maxRows {
		return types.Report{}, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(snapshot), s.maxRows)
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return types.Report{}, ErrCancelled
	}
	defer s.slots.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, s.totalTimeout)
	defer cancel()

	report, err := s.engine.Evaluate(runCtx, user, snapshot)
	if err != nil {
		// A run that outlived its total budget surfaces as a cancellation,
		// not a per-rule timeout.
		if runCtx.Err() != nil {
			return types.Report{}, ErrCancelled
		}
		return types.Report{}, err
	}

	if s.sink != nil {
		id, err := s.sink.SaveReport(user.UserID, report)
		if err != nil {
			logging.EngineError("report persistence failed for user %s: %v", user.UserID, err)
			return report, fmt.Errorf("save report: %w", err)
		}
		report.ID = id
	}
	return report, nil
}
