package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role distinguishes the two actor kinds the API recognizes.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// AccessTokenClaims is the typed claim set carried in bearer tokens minted
// by the identity provider.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"uid"`
	Email  string    `json:"email,omitempty"`
	Role   Role      `json:"role"`
	jwt.RegisteredClaims
}
