// Package admin implements the operator console: participant and scan-log
// reports, progress corrections, catalog edits and the heartbeat stream.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scavenger-hunt-api/internal/apperr"
	"scavenger-hunt-api/internal/config"
	"scavenger-hunt-api/internal/models"
)

type Service struct {
	db                *gorm.DB
	now               func() time.Time
	defaultLimit      int
	maxLimit          int
	heartbeatInterval time.Duration
}

func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:                db,
		now:               func() time.Time { return time.Now().UTC() },
		defaultLimit:      cfg.EventsDefaultLimit,
		maxLimit:          cfg.EventsMaxLimit,
		heartbeatInterval: cfg.HeartbeatInterval,
	}
}

func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

type UserSummary struct {
	models.Participant
	CompletedCount     int               `json:"completed_count"`
	RevealedCount      int               `json:"revealed_count"`
	LatestScan         *models.ScanEvent `json:"latest_scan"`
	ProgressPercentage float64           `json:"progress_percentage"`
}

// ListUsers returns every participant, newest first, with progress figures.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	db := s.db.WithContext(ctx)

	var participants []models.Participant
	if err := db.Order("created_at DESC").Find(&participants).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	out := make([]UserSummary, 0, len(participants))
	for _, p := range participants {
		var latest []models.ScanEvent
		if err := db.Where("participant_id = ?", p.ID).Order("scanned_at DESC").Limit(1).Find(&latest).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		sum := UserSummary{
			Participant:        p,
			CompletedCount:     p.CompletedSteps.Len(),
			RevealedCount:      p.RevealedLocations.Len(),
			ProgressPercentage: percent(p.CompletedSteps.Len(), models.TotalSteps),
		}
		if len(latest) == 1 {
			sum.LatestScan = &latest[0]
		}
		out = append(out, sum)
	}
	return out, nil
}

// EventFilter narrows ListEvents. Zero values mean "no filter".
type EventFilter struct {
	ParticipantID string
	StepID        int
	SuccessOnly   bool
	Limit         int
}

// ParseEventFilter reads user_id (or participant_id), step_id, success_only
// and limit from a query string.
func ParseEventFilter(q url.Values) (EventFilter, error) {
	var f EventFilter

	f.ParticipantID = strings.TrimSpace(q.Get("user_id"))
	if f.ParticipantID == "" {
		f.ParticipantID = strings.TrimSpace(q.Get("participant_id"))
	}

	if v := q.Get("step_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 1 {
			return f, apperr.InvalidInput("step_id must be a positive integer")
		}
		f.StepID = id
	}

	if v := q.Get("success_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperr.InvalidInput("success_only must be true or false")
		}
		f.SuccessOnly = b
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, apperr.InvalidInput("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

// EventRow is a scan event annotated with who scanned and where.
type EventRow struct {
	models.ScanEvent
	UserEmail *string `json:"user_email"`
	UserPhone *string `json:"user_phone"`
	StepName  *string `json:"step_name"`
}

func (s *Service) limit(n int) int {
	if n <= 0 {
		n = s.defaultLimit
	}
	if s.maxLimit > 0 && n > s.maxLimit {
		n = s.maxLimit
	}
	return n
}

// ListEvents returns scan events newest first.
func (s *Service) ListEvents(ctx context.Context, f EventFilter) ([]EventRow, error) {
	q := s.db.WithContext(ctx).
		Table("scan_events").
		Select("scan_events.*, participants.email AS user_email, participants.phone AS user_phone, steps.name AS step_name").
		Joins("LEFT JOIN participants ON participants.id = scan_events.participant_id").
		Joins("LEFT JOIN steps ON steps.id = scan_events.step_id")

	if f.ParticipantID != "" {
		q = q.Where("scan_events.participant_id = ?", f.ParticipantID)
	}
	if f.StepID != 0 {
		q = q.Where("scan_events.step_id = ?", f.StepID)
	}
	if f.SuccessOnly {
		q = q.Where("scan_events.success = ?", true)
	}

	rows := []EventRow{}
	if err := q.Order("scan_events.scanned_at DESC").Limit(s.limit(f.Limit)).Scan(&rows).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}

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

// ResetProgress sends a participant back to the first step with no history.
// Scan events are kept.
func (s *Service) ResetProgress(ctx context.Context, participantID string) (*models.Participant, error) {
	var p *models.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = lockParticipant(tx, participantID); err != nil {
			return err
		}
		p.CurrentStep = 1
		p.CompletedSteps.Clear()
		p.RevealedLocations.Clear()
		p.LastActive = s.now()
		return tx.Save(p).Error
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	slog.Info("progress reset", "participant_id", p.ID)
	return p, nil
}

// SkipStep completes the participant's current step on their behalf and
// logs it as a successful scan.
func (s *Service) SkipStep(ctx context.Context, participantID string) (*models.Participant, error) {
	var p *models.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = lockParticipant(tx, participantID); err != nil {
			return err
		}
		if p.CurrentStep > models.TotalSteps || p.HuntComplete() {
			return apperr.InvalidState("user has already completed all steps")
		}

		skipped := p.CurrentStep
		now := s.now()
		p.CompletedSteps.Add(skipped)
		p.CurrentStep++
		p.LastActive = now
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		return tx.Create(&models.ScanEvent{
			ParticipantID: p.ID,
			StepID:        skipped,
			ScannedAt:     now,
			Success:       true,
			RevealedFirst: false,
		}).Error
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	slog.Info("step skipped", "participant_id", p.ID, "current_step", p.CurrentStep)
	return p, nil
}

// StepUpdate carries the two catalog fields an operator may change. Nil
// fields are left untouched.
type StepUpdate struct {
	QRCodeURL   *string `json:"qr_code_url"`
	QRCodeValue *string `json:"qr_code_value"`
}

func (s *Service) UpdateStep(ctx context.Context, stepID int, u StepUpdate) (*models.Step, error) {
	if u.QRCodeValue != nil && strings.TrimSpace(*u.QRCodeValue) == "" {
		return nil, apperr.InvalidInput("qr_code_value cannot be empty")
	}

	var step models.Step
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&step, stepID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("step not found")
		}
		if err != nil {
			return err
		}

		if u.QRCodeValue != nil && *u.QRCodeValue != step.QRCodeValue {
			var taken int64
			if err := tx.Model(&models.Step{}).Where("qr_code_value = ? AND id <> ?", *u.QRCodeValue, step.ID).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return apperr.Conflict("qr_code_value already assigned to another step")
			}
			step.QRCodeValue = *u.QRCodeValue
		}
		if u.QRCodeURL != nil {
			step.QRCodeURL = *u.QRCodeURL
		}

		err = tx.Save(&step).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("qr_code_value already assigned to another step")
		}
		return err
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	slog.Info("step updated", "step_id", step.ID)
	return &step, nil
}

// ListSteps returns the full catalog including secret codes.
func (s *Service) ListSteps(ctx context.Context) ([]models.Step, error) {
	var steps []models.Step
	if err := s.db.WithContext(ctx).Order("id").Find(&steps).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return steps, nil
}

type StepStats struct {
	StepID         int     `json:"step_id"`
	StepName       string  `json:"step_name"`
	CompletedCount int     `json:"completed_count"`
	RevealedCount  int     `json:"revealed_count"`
	CompletionRate float64 `json:"completion_rate"`
}

type Stats struct {
	TotalUsers      int         `json:"total_users"`
	TotalScans      int64       `json:"total_scans"`
	SuccessfulScans int64       `json:"successful_scans"`
	CompletedUsers  int         `json:"completed_users"`
	CompletionRate  float64     `json:"completion_rate"`
	StepStats       []StepStats `json:"step_stats"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{}

	if err := db.Model(&models.ScanEvent{}).Count(&st.TotalScans).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := db.Model(&models.ScanEvent{}).Where("success = ?", true).Count(&st.SuccessfulScans).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	var participants []models.Participant
	if err := db.Select("id", "completed_steps", "revealed_locations").Find(&participants).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	steps, err := s.ListSteps(ctx)
	if err != nil {
		return nil, err
	}

	st.TotalUsers = len(participants)
	completed := make(map[int]int, len(steps))
	revealed := make(map[int]int, len(steps))
	for _, p := range participants {
		if p.HuntComplete() {
			st.CompletedUsers++
		}
		for _, id := range p.CompletedSteps.Slice() {
			completed[id]++
		}
		for _, id := range p.RevealedLocations.Slice() {
			revealed[id]++
		}
	}
	st.CompletionRate = percent(st.CompletedUsers, st.TotalUsers)

	st.StepStats = make([]StepStats, 0, len(steps))
	for _, step := range steps {
		st.StepStats = append(st.StepStats, StepStats{
			StepID:         step.ID,
			StepName:       step.Name,
			CompletedCount: completed[step.ID],
			RevealedCount:  revealed[step.ID],
			CompletionRate: percent(completed[step.ID], st.TotalUsers),
		})
	}
	return st, nil
}
