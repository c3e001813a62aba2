// internal/domain/access/entity.go
package access

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

type Role string

const (
	RoleOwner            Role = "owner"
	RoleAdmin            Role = "admin"
	RoleSupport          Role = "support"
	RoleMarketing        Role = "marketing"
	RoleFinance          Role = "finance"
	RoleContentDeveloper Role = "content_developer"
)

// Permission is a capability token with an optional sub-scope,
// e.g. {analytics} or {analytics financial}. A permission with no
// sub-scope implies all of its namespaced children.
type Permission struct {
	Category string
	Subscope string
}

// PermWildcard matches every permission check.
var PermWildcard = Permission{Category: "*"}

func NewPermission(category, subscope string) Permission {
	return Permission{Category: category, Subscope: subscope}
}

// ParsePermission splits "category:subscope" into its parts. Anything
// after the first colon is the sub-scope.
func ParsePermission(s string) Permission {
	category, subscope, _ := strings.Cut(s, ":")
	return Permission{Category: category, Subscope: subscope}
}

func (p Permission) String() string {
	if p.Subscope == "" {
		return p.Category
	}
	return p.Category + ":" + p.Subscope
}

func (p Permission) IsWildcard() bool {
	return p.Category == "*"
}

// Implies reports whether holding p satisfies a check for other.
// Broad implies narrow: {analytics} implies {analytics financial},
// never the reverse.
func (p Permission) Implies(other Permission) bool {
	if p.IsWildcard() {
		return true
	}
	if p.Category != other.Category {
		return false
	}
	return p.Subscope == "" || p.Subscope == other.Subscope
}

// Principal is the authenticated actor being authorized.
type Principal struct {
	ID                  int64          `json:"id" db:"id"`
	FullName            string         `json:"full_name" db:"full_name"`
	Email               string         `json:"email" db:"email"`
	PasswordHash        string         `json:"-" db:"password_hash"`
	Role                Role           `json:"role" db:"role"`
	ExplicitPermissions pq.StringArray `json:"explicit_permissions,omitempty" db:"explicit_permissions"`
	IsActive            bool           `json:"is_active" db:"is_active"`
	CreatedBy           *int64         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// Permissions returns the union of role-granted and explicitly-granted
// permissions. Unknown roles contribute nothing.
func (p *Principal) Permissions() []Permission {
	granted := PermissionsForRole(p.Role)
	for _, s := range p.ExplicitPermissions {
		granted = append(granted, ParsePermission(s))
	}
	return granted
}

func (p *Principal) IsOwner() bool {
	return p.Role == RoleOwner
}
