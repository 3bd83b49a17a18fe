package directory

const (
	PermViewViolations     = "view_violations"
	PermManageViolations   = "manage_violations"
	PermViewMembers        = "view_members"
	PermManageUsers        = "manage_users"
	PermManageRoles        = "manage_roles"
	PermManageAssociations = "manage_associations"
)

// AllPermissions is the closed set of permission keys. Permissions exist
// only as elements of a role's permission list, never as stored rows.
var AllPermissions = []string{
	PermViewViolations,
	PermManageViolations,
	PermViewMembers,
	PermManageUsers,
	PermManageRoles,
	PermManageAssociations,
}

// ValidPermission reports whether key belongs to the closed enumeration.
func ValidPermission(key string) bool {
	for _, p := range AllPermissions {
		if p == key {
			return true
		}
	}
	return false
}
