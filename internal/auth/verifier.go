package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"fixora-chat-service/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller: who they are and which side of their
// bookings they act as.
type Identity struct {
	UserID int64
	Role   models.Role
}

// Verifier validates a bearer credential exactly once per connection/request.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier checks HMAC-signed tokens issued by the main Fixora backend.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

type claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses and validates the token, returning the caller identity.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.UserID == 0 {
		return Identity{}, ErrInvalidToken
	}

	role := models.Role(c.Role)
	if role != models.RoleCustomer && role != models.RolePartner {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.UserID, Role: role}, nil
}
