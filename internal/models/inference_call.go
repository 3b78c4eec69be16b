package models

import "time"

// Outcome values for InferenceCall.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// InferenceCall records one settled request to the model. Only call
// metadata is stored; game state and images are never persisted.
type InferenceCall struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	Round            string    `gorm:"size:64;index"`
	Operation        string    `gorm:"size:32;not null;index"`
	Model            string    `gorm:"size:128"`
	Outcome          string    `gorm:"size:8;not null;default:ok"`
	Error            string    `gorm:"type:text"`
	LatencyMs        int64     `gorm:"not null;default:0"`
	ImageSynthesized bool      `gorm:"default:false"`
	CreatedAt        time.Time `gorm:"index"`
}
