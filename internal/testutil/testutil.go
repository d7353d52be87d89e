// Package testutil holds helpers shared by store-backed and HTTP tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"scavenger-hunt-api/internal/config"
	"scavenger-hunt-api/internal/database"
	"scavenger-hunt-api/internal/models"
)

const (
	AdminUsername = "admin"
	AdminPassword = "admin123"
	JWTSecret     = "test-jwt-secret"
)

// Config returns a configuration pointing at a fresh in-memory sqlite database.
func Config() *config.Config {
	return &config.Config{
		Port:               "0",
		AllowOrigins:       "*",
		JWTSecret:          JWTSecret,
		TokenTTL:           24 * time.Hour,
		DBDriver:           "sqlite",
		DatabaseURL:        fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		AdminUsername:      AdminUsername,
		AdminPassword:      AdminPassword,
		HeartbeatInterval:  30 * time.Second,
		EventsDefaultLimit: 100,
		EventsMaxLimit:     1000,
		LogLevel:           "error",
	}
}

// NewDB opens, migrates and seeds an isolated database for one test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	return NewDBWithConfig(t, Config())
}

func NewDBWithConfig(t *testing.T, cfg *config.Config) *gorm.DB {
	t.Helper()

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if err := database.Seed(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}
	return db
}

// CreateParticipant inserts a participant signed in by email.
func CreateParticipant(t *testing.T, db *gorm.DB, email string) *models.Participant {
	t.Helper()

	p := &models.Participant{Email: &email, LastActive: time.Now().UTC()}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("Failed to create participant: %v", err)
	}
	return p
}

// LoadParticipant re-reads a participant from the store.
func LoadParticipant(t *testing.T, db *gorm.DB, id string) *models.Participant {
	t.Helper()

	var p models.Participant
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("Failed to load participant %s: %v", id, err)
	}
	return &p
}

// SetProgress overwrites a participant's progress fields directly.
func SetProgress(t *testing.T, db *gorm.DB, p *models.Participant, current int, completed ...int) {
	t.Helper()

	p.CurrentStep = current
	p.CompletedSteps = models.NewStepSet(completed...)
	if err := db.Save(p).Error; err != nil {
		t.Fatalf("Failed to set progress: %v", err)
	}
}

// StepCode returns the secret code bound to a step.
func StepCode(t *testing.T, db *gorm.DB, stepID int) string {
	t.Helper()

	var s models.Step
	if err := db.First(&s, stepID).Error; err != nil {
		t.Fatalf("Failed to load step %d: %v", stepID, err)
	}
	return s.QRCodeValue
}

func CountScanEvents(t *testing.T, db *gorm.DB, participantID string) int64 {
	t.Helper()

	var n int64
	if err := db.Model(&models.ScanEvent{}).Where("participant_id = ?", participantID).Count(&n).Error; err != nil {
		t.Fatalf("Failed to count scan events: %v", err)
	}
	return n
}

// ErrInjected is returned by writes rejected through FailWrites.
var ErrInjected = errors.New("injected write failure")

// FailWrites makes every later insert into or update of table fail.
func FailWrites(t *testing.T, db *gorm.DB, table string) {
	t.Helper()

	fail := func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			tx.AddError(ErrInjected)
		}
	}
	name := "testutil:fail_" + table
	if err := db.Callback().Create().Before("gorm:create").Register(name, fail); err != nil {
		t.Fatalf("Failed to register create callback: %v", err)
	}
	if err := db.Callback().Update().Before("gorm:update").Register(name, fail); err != nil {
		t.Fatalf("Failed to register update callback: %v", err)
	}
}

// MakeRequest creates an HTTP test request with an optional bearer token.
func MakeRequest(method, path string, body interface{}, token string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeJSON decodes the response body into v.
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
