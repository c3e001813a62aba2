// internal/repository/postgres/principal_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meterd-service/internal/domain/access"
	"meterd-service/internal/domain/billing"
	xerrors "meterd-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type PrincipalRepository struct {
	db *pgxpool.Pool
}

func NewPrincipalRepository(db *pgxpool.Pool) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

const principalColumns = `
	id, full_name, email, password_hash, role, explicit_permissions,
	is_active, created_by, created_at, updated_at
`

func scanPrincipal(row pgx.Row) (*access.Principal, error) {
	var p access.Principal
	err := row.Scan(
		&p.ID, &p.FullName, &p.Email, &p.PasswordHash, &p.Role, &p.ExplicitPermissions,
		&p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan principal: %w", err)
	}
	return &p, nil
}

// FindByID retrieves a principal by ID.
func (r *PrincipalRepository) FindByID(ctx context.Context, id int64) (*access.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return scanPrincipal(r.db.QueryRow(ctx, query, id))
}

// FindByEmail retrieves a principal by email.
func (r *PrincipalRepository) FindByEmail(ctx context.Context, email string) (*access.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`
	return scanPrincipal(r.db.QueryRow(ctx, query, email))
}

// Create persists the principal together with its free-plan
// subscription; every principal starts metered on the free tier.
func (r *PrincipalRepository) Create(ctx context.Context, p *access.Principal, renewalDate time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO principals (full_name, email, password_hash, role, explicit_permissions, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		p.FullName, p.Email, p.PasswordHash, p.Role, pq.Array([]string(p.ExplicitPermissions)),
		p.IsActive, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", err)
	}

	subQuery := `
		INSERT INTO subscriptions (principal_id, current_plan, status, renewal_date, monthly_used)
		VALUES ($1, $2, $3, $4, 0)
	`
	if _, err := tx.Exec(ctx, subQuery, p.ID, billing.PlanFree, billing.SubscriptionStatusActive, renewalDate); err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateRole mutates a principal's role.
func (r *PrincipalRepository) UpdateRole(ctx context.Context, id int64, role access.Role) error {
	query := `UPDATE principals SET role = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, role, id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdatePermissions replaces the explicit permission set.
func (r *PrincipalRepository) UpdatePermissions(ctx context.Context, id int64, permissions []string) error {
	query := `UPDATE principals SET explicit_permissions = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, pq.Array(permissions), id)
	if err != nil {
		return fmt.Errorf("failed to update permissions: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// Deactivate marks a principal inactive. Principals are never deleted.
func (r *PrincipalRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE principals SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate principal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// List returns every principal ordered by creation.
func (r *PrincipalRepository) List(ctx context.Context) ([]access.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals ORDER BY created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var principals []access.Principal
	for rows.Next() {
		var p access.Principal
		if err := rows.Scan(
			&p.ID, &p.FullName, &p.Email, &p.PasswordHash, &p.Role, &p.ExplicitPermissions,
			&p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}
