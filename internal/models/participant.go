package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant is a hunt player identified by email or phone.
type Participant struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	Email             *string   `gorm:"uniqueIndex;size:255" json:"email"`
	Phone             *string   `gorm:"uniqueIndex;size:32" json:"phone"`
	CurrentStep       int       `gorm:"not null;default:1" json:"current_step"`
	CompletedSteps    StepSet   `gorm:"type:text" json:"completed_steps"`
	RevealedLocations StepSet   `gorm:"type:text" json:"revealed_locations"`
	CreatedAt         time.Time `json:"created_at"`
	LastActive        time.Time `json:"last_active"`
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CurrentStep == 0 {
		p.CurrentStep = 1
	}
	return nil
}

// HuntComplete is the single predicate for "finished the hunt".
func (p *Participant) HuntComplete() bool {
	return p.CompletedSteps.Len() >= TotalSteps
}

// Identifier returns whichever contact handle the participant signed in with.
func (p *Participant) Identifier() string {
	if p.Email != nil {
		return *p.Email
	}
	if p.Phone != nil {
		return *p.Phone
	}
	return ""
}
