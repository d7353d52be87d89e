package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAppendOnly = errors.New("scan events are append-only")

// ScanEvent is an append-only record of one scan attempt or admin skip.
type ScanEvent struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ParticipantID string    `gorm:"size:36;not null;index" json:"participant_id"`
	StepID        int       `gorm:"not null;index" json:"step_id"`
	ScannedAt     time.Time `gorm:"not null;index" json:"scanned_at"`
	Success       bool      `gorm:"not null" json:"success"`
	RevealedFirst bool      `gorm:"not null;default:false" json:"revealed_first"`
}

func (e *ScanEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ScannedAt.IsZero() {
		e.ScannedAt = time.Now().UTC()
	}
	return nil
}

// ScanEvents are never updated or deleted.
func (e *ScanEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrAppendOnly
}

func (e *ScanEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrAppendOnly
}
