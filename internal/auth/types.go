package auth

import "errors"

// Role is the access level granted by an API token.
type Role string

// Roles.
const (
	// RoleViewer may read state.
	RoleViewer Role = "viewer"
	// RoleOperator may also send commands.
	RoleOperator Role = "operator"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleViewer, RoleOperator:
		return r, nil
	}
	return "", ErrUnknownRole
}

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)
