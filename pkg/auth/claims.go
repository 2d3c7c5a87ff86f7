package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the typed view of an access token issued by the auth service.
// Subject carries the user id.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// HasRole reports whether the token carries the role, case-insensitively.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
