package database

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"scavenger-hunt-api/internal/models"
)

//go:embed catalog/steps.json catalog/steps.schema.json
var catalogFS embed.FS

// Catalog returns the fixed hunt stops after validating the embedded document
// against its schema.
func Catalog() ([]models.Step, error) {
	doc, err := catalogFS.ReadFile("catalog/steps.json")
	if err != nil {
		return nil, err
	}
	schema, err := catalogFS.ReadFile("catalog/steps.schema.json")
	if err != nil {
		return nil, err
	}
	return parseCatalog(doc, schema)
}

func parseCatalog(doc, schema []byte) ([]models.Step, error) {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	if !res.Valid() {
		d := []string{}
		for _, e := range res.Errors() {
			d = append(d, e.String())
		}
		return nil, fmt.Errorf("catalog invalid: %s", strings.Join(d, "; "))
	}

	var steps []models.Step
	if err := json.Unmarshal(doc, &steps); err != nil {
		return nil, err
	}

	seenID := make(map[int]bool, len(steps))
	seenCode := make(map[string]bool, len(steps))
	for _, s := range steps {
		if seenID[s.ID] {
			return nil, fmt.Errorf("catalog invalid: duplicate step id %d", s.ID)
		}
		if seenCode[s.QRCodeValue] {
			return nil, fmt.Errorf("catalog invalid: step %d reuses a qr_code_value", s.ID)
		}
		seenID[s.ID] = true
		seenCode[s.QRCodeValue] = true
	}
	return steps, nil
}

// Seed inserts the step catalog when the table is empty and creates the admin
// account when it does not exist yet. Both are no-ops on later boots.
func Seed(db *gorm.DB, adminUsername, adminPassword string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Step{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			steps, err := Catalog()
			if err != nil {
				return err
			}
			if err := tx.Create(&steps).Error; err != nil {
				return fmt.Errorf("seed steps: %w", err)
			}
			slog.Info("step catalog seeded", "steps", len(steps))
		}

		var admin models.Admin
		err := tx.Where("username = ?", adminUsername).First(&admin).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if adminPassword == "" {
			return errors.New("admin password required to create the initial admin")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin = models.Admin{Username: adminUsername, PasswordHash: string(hash)}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		slog.Info("admin account created", "username", adminUsername)
		return nil
	})
}
