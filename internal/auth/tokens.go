package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the session carried by a bearer token. Subject holds the
// participant or admin id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session tokens. It keeps no server-side
// state; logout is the client dropping its token.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tokens) IssueParticipant(participantID string) (string, error) {
	return t.issue(participantID, RoleParticipant)
}

func (t *Tokens) IssueAdmin(adminID string) (string, error) {
	return t.issue(adminID, RoleAdmin)
}

func (t *Tokens) issue(subject string, role Role) (string, error) {
	now := t.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify returns ErrInvalidToken for every failure: bad signature, wrong
// algorithm, malformed input, expiry, or unknown role.
func (t *Tokens) Verify(tok string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(tok, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	if c.Role != RoleParticipant && c.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return c, nil
}
