// internal/domain/access/catalog.go
package access

// Permission catalog. These are the capability tokens the admin
// surfaces check against; sub-scoped entries exist so a role can be
// granted a slice of a category without the whole thing.
var (
	PermUsers              = Permission{Category: "users"}
	PermUserRoles          = Permission{Category: "users", Subscope: "roles"}
	PermUserProfiles       = Permission{Category: "users", Subscope: "profiles"}
	PermBilling            = Permission{Category: "billing"}
	PermBillingOverages    = Permission{Category: "billing", Subscope: "overages"}
	PermBillingRefunds     = Permission{Category: "billing", Subscope: "refunds"}
	PermAnalytics          = Permission{Category: "analytics"}
	PermAnalyticsFinancial = Permission{Category: "analytics", Subscope: "financial"}
	PermAnalyticsContent   = Permission{Category: "analytics", Subscope: "content"}
	PermContent            = Permission{Category: "content"}
	PermContentTemplates   = Permission{Category: "content", Subscope: "templates"}
	PermSupport            = Permission{Category: "support"}
	PermSupportTickets     = Permission{Category: "support", Subscope: "tickets"}
	PermMarketing          = Permission{Category: "marketing"}
	PermMarketingCampaigns = Permission{Category: "marketing", Subscope: "campaigns"}
	PermTeam               = Permission{Category: "team"}
	PermSettings           = Permission{Category: "settings"}
)

// rolePermissions is the fixed role catalog. Owner carries the
// wildcard; every other role gets a bounded subset. Immutable at
// runtime.
var rolePermissions = map[Role][]Permission{
	RoleOwner: {PermWildcard},
	RoleAdmin: {
		PermUsers,
		PermBilling,
		PermAnalytics,
		PermContent,
		PermSupport,
		PermMarketing,
		PermTeam,
		PermSettings,
	},
	RoleSupport: {
		PermSupport,
		PermUserProfiles,
	},
	RoleMarketing: {
		PermMarketing,
		PermAnalyticsContent,
		PermContentTemplates,
	},
	RoleFinance: {
		PermBilling,
		PermAnalyticsFinancial,
	},
	RoleContentDeveloper: {
		PermContent,
	},
}

// PermissionsForRole returns the permissions a role grants. Unknown
// roles return nil so every downstream check fails closed.
func PermissionsForRole(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Roles lists the fixed role enumeration.
func Roles() []Role {
	return []Role{
		RoleOwner,
		RoleAdmin,
		RoleSupport,
		RoleMarketing,
		RoleFinance,
		RoleContentDeveloper,
	}
}

// IsValidRole reports whether role is part of the fixed catalog.
func IsValidRole(role Role) bool {
	_, ok := rolePermissions[role]
	return ok
}
