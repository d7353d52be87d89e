package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"scavenger-hunt-api/internal/apperr"
	"scavenger-hunt-api/internal/models"
)

type Service struct {
	db     *gorm.DB
	tokens *Tokens
	now    func() time.Time
}

func NewService(db *gorm.DB, tokens *Tokens) *Service {
	return &Service{
		db:     db,
		tokens: tokens,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type ParticipantLogin struct {
	Token       string              `json:"token"`
	Participant *models.Participant `json:"user"`
}

type AdminLogin struct {
	Token string        `json:"token"`
	Admin *models.Admin `json:"admin"`
}

// LoginParticipant finds the participant by email (preferred) or phone,
// creating one on first sight, and issues a session token.
func (s *Service) LoginParticipant(ctx context.Context, email, phone string) (*ParticipantLogin, error) {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return nil, apperr.InvalidInput("email or phone number required")
	}

	column, value := "email", email
	if email == "" {
		column, value = "phone", phone
	}

	p, err := s.findOrCreate(ctx, column, value)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	p.LastActive = s.now()
	if err := s.db.WithContext(ctx).Model(p).Update("last_active", p.LastActive).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	token, err := s.tokens.IssueParticipant(p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	slog.Info("participant login", "participant_id", p.ID)
	return &ParticipantLogin{Token: token, Participant: p}, nil
}

func (s *Service) findOrCreate(ctx context.Context, column, value string) (*models.Participant, error) {
	db := s.db.WithContext(ctx)

	var p models.Participant
	err := db.Where(column+" = ?", value).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now()
	p = models.Participant{CurrentStep: 1, CreatedAt: now, LastActive: now}
	if column == "email" {
		p.Email = &value
	} else {
		p.Phone = &value
	}
	err = db.Create(&p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race with a concurrent first login
		p = models.Participant{}
		err = db.Where(column+" = ?", value).First(&p).Error
	}
	if err != nil {
		return nil, err
	}
	slog.Info("participant created", "participant_id", p.ID)
	return &p, nil
}

// LoginAdmin checks credentials and issues an admin token. A failed attempt
// has no side effects.
func (s *Service) LoginAdmin(ctx context.Context, username, password string) (*AdminLogin, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, apperr.InvalidInput("username and password required")
	}

	var a models.Admin
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		slog.Warn("admin login rejected", "username", username)
		return nil, apperr.Unauthorized("invalid credentials")
	}

	token, err := s.tokens.IssueAdmin(a.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	slog.Info("admin login", "admin_id", a.ID)
	return &AdminLogin{Token: token, Admin: &a}, nil
}

// Identity is whoever a valid token refers to; exactly one field is set.
type Identity struct {
	Participant *models.Participant `json:"user,omitempty"`
	Admin       *models.Admin       `json:"admin,omitempty"`
}

// Claims parses an Authorization header value of the form "Bearer <token>".
func (s *Service) Claims(header string) (*Claims, error) {
	if header == "" {
		return nil, apperr.Unauthorized("no token provided")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return nil, apperr.Unauthorized("no token provided")
	}
	c, err := s.tokens.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}
	return c, nil
}

// Me resolves the identity behind a token regardless of role.
func (s *Service) Me(ctx context.Context, header string) (*Identity, error) {
	c, err := s.Claims(header)
	if err != nil {
		return nil, err
	}
	if c.Role == RoleAdmin {
		a, err := s.admin(ctx, c.Subject)
		if err != nil {
			return nil, err
		}
		return &Identity{Admin: a}, nil
	}
	p, err := s.participant(ctx, c.Subject)
	if err != nil {
		return nil, err
	}
	return &Identity{Participant: p}, nil
}

// RequireParticipant guards the hunt surface.
func (s *Service) RequireParticipant(ctx context.Context, header string) (*models.Participant, error) {
	c, err := s.Claims(header)
	if err != nil {
		return nil, err
	}
	if c.Role != RoleParticipant {
		return nil, apperr.Forbidden("participant access required")
	}
	return s.participant(ctx, c.Subject)
}

// RequireAdmin guards the admin surface.
func (s *Service) RequireAdmin(ctx context.Context, header string) (*models.Admin, error) {
	c, err := s.Claims(header)
	if err != nil {
		return nil, err
	}
	if c.Role != RoleAdmin {
		return nil, apperr.Forbidden("admin access required")
	}
	return s.admin(ctx, c.Subject)
}

func (s *Service) participant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &p, nil
}

func (s *Service) admin(ctx context.Context, id string) (*models.Admin, error) {
	var a models.Admin
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("admin not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &a, nil
}
