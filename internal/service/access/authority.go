// internal/service/access/authority.go
package access

import (
	"meterd-service/internal/domain/access"

	"go.uber.org/zap"
)

// Config maps admin sections and actions to the permissions that gate
// them. Zero-value fields fall back to the built-in defaults, so a
// server-provided catalog and the compiled-in one coalesce at
// construction instead of branching on every check.
type Config struct {
	Sections map[string][]access.Permission
	Actions  map[string][]access.Permission
}

// DefaultConfig is the compiled-in section/action catalog.
func DefaultConfig() Config {
	return Config{
		Sections: map[string][]access.Permission{
			"overview":  {access.PermAnalytics},
			"users":     {access.PermUsers},
			"roles":     {access.PermUserRoles},
			"billing":   {access.PermBilling},
			"analytics": {access.PermAnalytics},
			"content":   {access.PermContent},
			"support":   {access.PermSupport},
			"marketing": {access.PermMarketing},
			"team":      {access.PermTeam},
			"settings":  {access.PermSettings},
		},
		Actions: map[string][]access.Permission{
			"edit":              {access.PermUsers},
			"suspend":           {access.PermUsers},
			"delete":            {access.PermUsers},
			"change_role":       {access.PermUserRoles},
			"grant_permission":  {access.PermUserRoles},
			"revoke_permission": {access.PermUserRoles},
			"issue_refund":      {access.PermBillingRefunds},
			"manage_billing":    {access.PermBilling},
		},
	}
}

// Authority answers permission questions for principals. Every check
// fails closed: nil principals, unknown roles, unknown sections and
// unknown actions all deny, none of them error.
type Authority struct {
	sections map[string][]access.Permission
	actions  map[string][]access.Permission
	logger   *zap.Logger
}

func NewAuthority(cfg Config, logger *zap.Logger) *Authority {
	def := DefaultConfig()
	if cfg.Sections == nil {
		cfg.Sections = def.Sections
	}
	if cfg.Actions == nil {
		cfg.Actions = def.Actions
	}
	return &Authority{
		sections: cfg.Sections,
		actions:  cfg.Actions,
		logger:   logger,
	}
}

// HasPermission reports whether the principal may exercise perm. Owner
// satisfies every check, including permissions outside the catalog.
func (a *Authority) HasPermission(p *access.Principal, perm access.Permission) bool {
	if p == nil || !p.IsActive {
		return false
	}
	if p.IsOwner() {
		return true
	}

	for _, granted := range p.Permissions() {
		if granted.Implies(perm) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of perms is held.
// Empty input denies.
func (a *Authority) HasAnyPermission(p *access.Principal, perms []access.Permission) bool {
	for _, perm := range perms {
		if a.HasPermission(p, perm) {
			return true
		}
	}
	return false
}

// CanAccessSection gates a named admin section. Unknown sections deny.
func (a *Authority) CanAccessSection(p *access.Principal, section string) bool {
	required, ok := a.sections[section]
	if !ok {
		return false
	}
	return a.HasAnyPermission(p, required)
}

// CanPerformAction gates a named action, optionally scoped to a target
// principal. An owner target is untouchable by non-owner actors no
// matter what permissions they hold; that rule runs before any
// permission lookup.
func (a *Authority) CanPerformAction(p *access.Principal, action string, target *access.Principal) bool {
	if p == nil || !p.IsActive {
		return false
	}
	if target != nil && target.IsOwner() && !p.IsOwner() {
		return false
	}

	required, ok := a.actions[action]
	if !ok {
		return false
	}
	return a.HasAnyPermission(p, required)
}
