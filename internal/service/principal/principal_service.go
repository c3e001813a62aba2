// internal/service/principal/principal_service.go
package principal

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "meterd-service/internal/domain/access"
	"meterd-service/internal/notify"
	xerrors "meterd-service/internal/pkg/errors"
	"meterd-service/internal/service/access"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// PrincipalStore is the persistence port for principals.
type PrincipalStore interface {
	FindByID(ctx context.Context, id int64) (*domain.Principal, error)
	FindByEmail(ctx context.Context, email string) (*domain.Principal, error)
	// Create persists the principal and its free-tier subscription in
	// one transaction.
	Create(ctx context.Context, p *domain.Principal, renewalDate time.Time) error
	UpdateRole(ctx context.Context, id int64, role domain.Role) error
	UpdatePermissions(ctx context.Context, id int64, permissions []string) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Principal, error)
}

// Service manages admin credentials and role/permission mutation.
// Every mutating call is authorized through the Role Authority with
// the acting principal; denials come back as xerrors.ErrForbidden so
// the handler can render them without guessing.
type Service struct {
	principals PrincipalStore
	authority  *access.Authority
	notifier   notify.Sink
	logger     *zap.Logger
}

func NewService(principals PrincipalStore, authority *access.Authority, notifier notify.Sink, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	return &Service{
		principals: principals,
		authority:  authority,
		notifier:   notifier,
		logger:     logger,
	}
}

// Create provisions a new admin principal with a hashed credential and
// a free-plan subscription starting one month out.
func (s *Service) Create(ctx context.Context, actor *domain.Principal, req *domain.CreatePrincipalRequest) (*domain.Principal, error) {
	if !s.authority.CanPerformAction(actor, "edit", nil) {
		s.notifyDenied(actor, "create principal")
		return nil, xerrors.ErrForbidden
	}
	if !domain.IsValidRole(req.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", xerrors.ErrInvalidInput, req.Role)
	}
	// Only an owner can mint another owner.
	if req.Role == domain.RoleOwner && !actor.IsOwner() {
		s.notifyDenied(actor, "create owner principal")
		return nil, xerrors.ErrForbidden
	}

	if existing, err := s.principals.FindByEmail(ctx, strings.ToLower(req.Email)); err == nil && existing != nil {
		return nil, xerrors.ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	p := &domain.Principal{
		FullName:            req.FullName,
		Email:               strings.ToLower(req.Email),
		PasswordHash:        string(hash),
		Role:                req.Role,
		ExplicitPermissions: req.Permissions,
		IsActive:            true,
		CreatedBy:           &actor.ID,
	}

	if err := s.principals.Create(ctx, p, time.Now().AddDate(0, 1, 0)); err != nil {
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}

	s.logger.Info("principal created",
		zap.Int64("principal_id", p.ID),
		zap.String("role", string(p.Role)),
		zap.Int64("created_by", actor.ID),
	)
	return p, nil
}

// ChangeRole mutates a principal's role. Owner targets are untouchable
// by non-owner actors, checked inside the authority before any
// permission lookup.
func (s *Service) ChangeRole(ctx context.Context, actor *domain.Principal, targetID int64, role domain.Role) (*domain.Principal, error) {
	target, err := s.principals.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if !s.authority.CanPerformAction(actor, "change_role", target) {
		s.notifyDenied(actor, "change_role")
		return nil, xerrors.ErrForbidden
	}
	if !domain.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", xerrors.ErrInvalidInput, role)
	}
	// Elevating to owner is itself an owner-only act.
	if role == domain.RoleOwner && !actor.IsOwner() {
		s.notifyDenied(actor, "elevate to owner")
		return nil, xerrors.ErrForbidden
	}

	if err := s.principals.UpdateRole(ctx, targetID, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	s.logger.Info("role changed",
		zap.Int64("principal_id", targetID),
		zap.String("role", string(role)),
		zap.Int64("changed_by", actor.ID),
	)
	target.Role = role
	return target, nil
}

// GrantPermission adds one explicit permission on top of the target's
// role defaults. Idempotent.
func (s *Service) GrantPermission(ctx context.Context, actor *domain.Principal, targetID int64, permission string) (*domain.Principal, error) {
	target, err := s.principals.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !s.authority.CanPerformAction(actor, "grant_permission", target) {
		s.notifyDenied(actor, "grant_permission")
		return nil, xerrors.ErrForbidden
	}

	for _, existing := range target.ExplicitPermissions {
		if existing == permission {
			return target, nil
		}
	}

	perms := append([]string(target.ExplicitPermissions), permission)
	if err := s.principals.UpdatePermissions(ctx, targetID, perms); err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}

	s.logger.Info("permission granted",
		zap.Int64("principal_id", targetID),
		zap.String("permission", permission),
		zap.Int64("granted_by", actor.ID),
	)
	target.ExplicitPermissions = perms
	return target, nil
}

// RevokePermission removes one explicit permission. Idempotent.
func (s *Service) RevokePermission(ctx context.Context, actor *domain.Principal, targetID int64, permission string) (*domain.Principal, error) {
	target, err := s.principals.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !s.authority.CanPerformAction(actor, "revoke_permission", target) {
		s.notifyDenied(actor, "revoke_permission")
		return nil, xerrors.ErrForbidden
	}

	perms := make([]string, 0, len(target.ExplicitPermissions))
	for _, existing := range target.ExplicitPermissions {
		if existing != permission {
			perms = append(perms, existing)
		}
	}
	if len(perms) == len(target.ExplicitPermissions) {
		return target, nil
	}

	if err := s.principals.UpdatePermissions(ctx, targetID, perms); err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}

	s.logger.Info("permission revoked",
		zap.Int64("principal_id", targetID),
		zap.String("permission", permission),
		zap.Int64("revoked_by", actor.ID),
	)
	target.ExplicitPermissions = perms
	return target, nil
}

// Deactivate suspends a principal. Principals are never deleted.
func (s *Service) Deactivate(ctx context.Context, actor *domain.Principal, targetID int64) error {
	target, err := s.principals.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if !s.authority.CanPerformAction(actor, "suspend", target) {
		s.notifyDenied(actor, "suspend")
		return xerrors.ErrForbidden
	}

	if err := s.principals.Deactivate(ctx, targetID); err != nil {
		return fmt.Errorf("failed to deactivate principal: %w", err)
	}

	s.logger.Info("principal deactivated",
		zap.Int64("principal_id", targetID),
		zap.Int64("deactivated_by", actor.ID),
	)
	return nil
}

// List returns all principals for the admin roles page.
func (s *Service) List(ctx context.Context, actor *domain.Principal) ([]domain.PrincipalInfo, error) {
	if !s.authority.CanAccessSection(actor, "users") {
		s.notifyDenied(actor, "list principals")
		return nil, xerrors.ErrForbidden
	}

	principals, err := s.principals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}

	infos := make([]domain.PrincipalInfo, 0, len(principals))
	for i := range principals {
		infos = append(infos, principals[i].Info())
	}
	return infos, nil
}

func (s *Service) notifyDenied(actor *domain.Principal, what string) {
	var id int64
	if actor != nil {
		id = actor.ID
	}
	s.notifier.Publish(notify.NewEvent(notify.EventPermissionDenied, id,
		"permission denied",
		map[string]interface{}{"action": what}))
}
