// Package calllog persists metadata about every model request so operators
// can see latency and failure rates. It implements gateway.Recorder.
package calllog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/atlas/internal/gateway"
	"github.com/zulandar/atlas/internal/models"
	"gorm.io/gorm"
)

// DefaultRecentLimit caps Recent when no limit is given.
const DefaultRecentLimit = 50

// Store writes and queries InferenceCall rows.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB  *gorm.DB
	Now func() time.Time // defaults to time.Now
}

// NewStore creates a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("calllog: db is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: opts.DB, now: now}, nil
}

// Record implements gateway.Recorder. Write failures are logged and dropped
// so a broken database never affects gameplay.
func (s *Store) Record(ctx context.Context, call gateway.Call) {
	row := models.InferenceCall{
		Round:            gateway.RoundFrom(ctx),
		Operation:        call.Operation,
		Model:            call.Model,
		Outcome:          models.OutcomeOK,
		LatencyMs:        call.Latency.Milliseconds(),
		ImageSynthesized: call.ImageSynthesized,
		CreatedAt:        s.now(),
	}
	if call.Err != nil {
		row.Outcome = models.OutcomeError
		row.Error = call.Err.Error()
	}
	// The call's own context is often already past its deadline.
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&row).Error; err != nil {
		log.Printf("calllog: record %s: %v", call.Operation, err)
	}
}

// Recent returns up to limit calls, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.InferenceCall, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	var calls []models.InferenceCall
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&calls).Error
	if err != nil {
		return nil, fmt.Errorf("calllog: recent: %w", err)
	}
	return calls, nil
}

// Prune deletes calls created before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.InferenceCall{})
	if result.Error != nil {
		return 0, fmt.Errorf("calllog: prune: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// OperationSummary aggregates calls for one operation.
type OperationSummary struct {
	Operation    string  `json:"operation"`
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Summary aggregates every stored call by operation, ordered by name.
func (s *Store) Summary(ctx context.Context) ([]OperationSummary, error) {
	var out []OperationSummary
	err := s.db.WithContext(ctx).
		Model(&models.InferenceCall{}).
		Select("operation, COUNT(*) AS calls, SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END) AS errors, AVG(latency_ms) AS avg_latency_ms", models.OutcomeError).
		Group("operation").
		Order("operation").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("calllog: summary: %w", err)
	}
	return out, nil
}
