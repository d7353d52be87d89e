// Package hunt implements the per-participant progression through the step
// catalog: reading the current stop, revealing its location, scanning codes
// and reporting progress.
package hunt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scavenger-hunt-api/internal/apperr"
	"scavenger-hunt-api/internal/models"
)

const (
	msgHuntComplete = "Congratulations! You have completed the scavenger hunt!"
	msgScanSuccess  = "Correct! Moving to next clue."
	msgScanFailure  = "Wrong location - try again!"
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type Progress struct {
	Current           int            `json:"current"`
	Total             int            `json:"total"`
	CompletedSteps    models.StepSet `json:"completed_steps"`
	RevealedLocations models.StepSet `json:"revealed_locations"`
}

// CurrentStep is either the hunt-complete notice or the step to look for.
type CurrentStep struct {
	Completed bool               `json:"completed,omitempty"`
	Message   string             `json:"message,omitempty"`
	Step      *models.PublicStep `json:"step,omitempty"`
	Progress  *Progress          `json:"progress,omitempty"`
}

type Reveal struct {
	Revealed bool   `json:"revealed"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

type ScanResult struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	NextStep      *models.PublicStep `json:"next_step,omitempty"`
	CompletedHunt bool               `json:"completed_hunt"`
}

type StepProgress struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Clue      string `json:"clue,omitempty"`
	Completed bool   `json:"completed"`
	Revealed  bool   `json:"revealed"`
	Current   bool   `json:"current"`
}

type ProgressReport struct {
	CurrentStep    int            `json:"current_step"`
	TotalSteps     int            `json:"total_steps"`
	CompletedCount int            `json:"completed_count"`
	Steps          []StepProgress `json:"steps"`
	CompletedHunt  bool           `json:"completed_hunt"`
}

func stepByID(db *gorm.DB, id int) (*models.Step, error) {
	var s models.Step
	err := db.First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("step not found")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// lockParticipant loads the participant row for update inside tx.
func lockParticipant(tx *gorm.DB, id string) (*models.Participant, error) {
	var p models.Participant
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CurrentStep reports the step the participant should look for next.
func (s *Service) CurrentStep(ctx context.Context, p *models.Participant) (*CurrentStep, error) {
	if p.HuntComplete() || p.CurrentStep > models.TotalSteps {
		return &CurrentStep{Completed: true, Message: msgHuntComplete}, nil
	}

	step, err := stepByID(s.db.WithContext(ctx), p.CurrentStep)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &CurrentStep{
		Step: step.Public(),
		Progress: &Progress{
			Current:           p.CurrentStep,
			Total:             models.TotalSteps,
			CompletedSteps:    p.CompletedSteps,
			RevealedLocations: p.RevealedLocations,
		},
	}, nil
}

// RevealLocation discloses the current step's name. It never affects
// progression; repeated reveals of the same step are no-ops.
func (s *Service) RevealLocation(ctx context.Context, participantID string) (*Reveal, error) {
	var name string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockParticipant(tx, participantID)
		if err != nil {
			return err
		}
		if p.CurrentStep > models.TotalSteps {
			return apperr.InvalidState("hunt already completed")
		}
		step, err := stepByID(tx, p.CurrentStep)
		if err != nil {
			return err
		}

		p.RevealedLocations.Add(p.CurrentStep)
		p.LastActive = s.now()
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		name = step.Name
		slog.Info("location revealed", "participant_id", p.ID, "step_id", step.ID)
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Reveal{
		Revealed: true,
		Location: name,
		Message:  fmt.Sprintf("Location revealed: %s", name),
	}, nil
}

// ScanQR checks a submitted code against the participant's current step.
// Every attempt is logged; the log entry and the progress update commit
// together or not at all.
func (s *Service) ScanQR(ctx context.Context, participantID, qrValue string) (*ScanResult, error) {
	if qrValue == "" {
		return nil, apperr.InvalidInput("qr value required")
	}

	var p *models.Participant
	var success bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockParticipant(tx, participantID)
		if err != nil {
			return err
		}
		step, err := stepByID(tx, p.CurrentStep)
		if err != nil {
			return err
		}

		success = qrValue == step.QRCodeValue
		now := s.now()
		event := models.ScanEvent{
			ParticipantID: p.ID,
			StepID:        step.ID,
			ScannedAt:     now,
			Success:       success,
			RevealedFirst: p.RevealedLocations.Has(step.ID),
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		slog.Info("scan recorded", "participant_id", p.ID, "step_id", step.ID, "success", success)

		if !success {
			return nil
		}
		p.CompletedSteps.Add(step.ID)
		if p.CurrentStep < models.TotalSteps {
			p.CurrentStep++
		}
		p.LastActive = now
		return tx.Save(p).Error
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if !success {
		return &ScanResult{Success: false, Message: msgScanFailure}, nil
	}

	res := &ScanResult{
		Success:       true,
		Message:       msgScanSuccess,
		CompletedHunt: p.HuntComplete() || p.CurrentStep > models.TotalSteps,
	}
	if res.CompletedHunt {
		res.Message = msgHuntComplete
		return res, nil
	}
	next, err := stepByID(s.db.WithContext(ctx), p.CurrentStep)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	res.NextStep = next.Public()
	return res, nil
}

// Progress lists every step with its status. Clues are only included for the
// current step and steps already completed.
func (s *Service) Progress(ctx context.Context, p *models.Participant) (*ProgressReport, error) {
	var steps []models.Step
	if err := s.db.WithContext(ctx).Order("id").Find(&steps).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	report := &ProgressReport{
		CurrentStep:    p.CurrentStep,
		TotalSteps:     models.TotalSteps,
		CompletedCount: p.CompletedSteps.Len(),
		Steps:          make([]StepProgress, 0, len(steps)),
		CompletedHunt:  p.HuntComplete(),
	}
	for _, step := range steps {
		sp := StepProgress{
			ID:        step.ID,
			Name:      step.Name,
			Completed: p.CompletedSteps.Has(step.ID),
			Revealed:  p.RevealedLocations.Has(step.ID),
			Current:   step.ID == p.CurrentStep,
		}
		if sp.Current || sp.Completed {
			sp.Clue = step.Clue
		}
		report.Steps = append(report.Steps, sp)
	}
	return report, nil
}
