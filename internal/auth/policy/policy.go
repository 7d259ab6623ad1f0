// Package policy holds the role permission table embedded into bearer tokens.
// Rules are loaded once at startup into an immutable table; there are no
// per-role code paths.
package policy

const (
	PermApplicationsRead   = "applications:read"
	PermApplicationsWrite  = "applications:write"
	PermApplicationsReview = "applications:review"
	PermUsersManage        = "users:manage"
	PermSecurityManage     = "security:manage"
)

type Table struct {
	perms map[string][]string
}

// Default returns the built-in rule table.
func Default() *Table {
	return &Table{perms: map[string][]string{
		"user": {
			PermApplicationsRead,
			PermApplicationsWrite,
		},
		"reviewer": {
			PermApplicationsRead,
			PermApplicationsReview,
		},
		"admin": {
			PermApplicationsRead,
			PermApplicationsWrite,
			PermApplicationsReview,
			PermUsersManage,
			PermSecurityManage,
		},
	}}
}

// Permissions returns a copy of the permission set for a role. Unknown roles
// get no permissions.
func (t *Table) Permissions(role string) []string {
	src := t.perms[role]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func (t *Table) Allowed(role, permission string) bool {
	for _, p := range t.perms[role] {
		if p == permission {
			return true
		}
	}
	return false
}
