package types

import "time"

// UserRole represents the roles issued by the clinic auth service
type UserRole string

const (
	RoleNurse         UserRole = "infermiere"
	RoleCoordinator   UserRole = "coordinatore"
	RoleAdministrator UserRole = "amministratore"
)

// UserClaims represents JWT token claims
type UserClaims struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username"`
	Role       UserRole `json:"role"`
	Ambulatori []string `json:"ambulatori,omitempty"`
}

// CanAccess reports whether the user may read data of a site.
// An empty site list means no site restriction.
func (c *UserClaims) CanAccess(site string) bool {
	if len(c.Ambulatori) == 0 {
		return true
	}
	for _, s := range c.Ambulatori {
		if s == site {
			return true
		}
	}
	return false
}

// Credentials represents user login credentials
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthToken represents authentication token response
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresIn   int64     `json:"expires_in,omitempty"`
	IssuedAt    time.Time `json:"issued_at,omitempty"`
}
