// internal/domain/access/dto.go
package access

// CreatePrincipalRequest creates a new admin credential.
type CreatePrincipalRequest struct {
	FullName    string   `json:"full_name" binding:"required"`
	Email       string   `json:"email" binding:"required,email"`
	Password    string   `json:"password" binding:"required,min=8"`
	Role        Role     `json:"role" binding:"required"`
	Permissions []string `json:"permissions,omitempty"`
}

// ChangeRoleRequest mutates a principal's role.
type ChangeRoleRequest struct {
	Role Role `json:"role" binding:"required"`
}

// PermissionGrantRequest grants or revokes one explicit permission.
type PermissionGrantRequest struct {
	Permission string `json:"permission" binding:"required"`
}

// CheckRequest asks the authority a question about the calling
// principal. Exactly one of the fields drives the check.
type CheckRequest struct {
	Permission  string   `json:"permission,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Action      string   `json:"action,omitempty"`
	TargetID    *int64   `json:"target_id,omitempty"`
}

// CheckResponse is the authority's answer. Denials are values, not
// errors.
type CheckResponse struct {
	Allowed bool   `json:"allowed"`
	Check   string `json:"check"`
}

// PrincipalInfo is the public shape of a principal.
type PrincipalInfo struct {
	ID          int64    `json:"id"`
	FullName    string   `json:"full_name"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	IsActive    bool     `json:"is_active"`
}

// Info strips credential fields for display.
func (p *Principal) Info() PrincipalInfo {
	return PrincipalInfo{
		ID:          p.ID,
		FullName:    p.FullName,
		Email:       p.Email,
		Role:        p.Role,
		Permissions: p.ExplicitPermissions,
		IsActive:    p.IsActive,
	}
}
