package auth

// Permission represents a named capability in the API.
type Permission string

// Permission constants.
const (
	PermStateRead     Permission = "state:read"
	PermDeviceOperate Permission = "device:operate"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermStateRead},
	RoleOperator: {PermStateRead, PermDeviceOperate},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
