// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meterd-service/internal/domain/billing"
	xerrors "meterd-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db      *pgxpool.Pool
	charges *OverageChargeRepository
}

func NewSubscriptionRepository(db *pgxpool.Pool, charges *OverageChargeRepository) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, charges: charges}
}

const subscriptionColumns = `
	id, principal_id, current_plan, status, renewal_date, monthly_used,
	pending_downgrade_to, pending_downgrade_at, cancelled_at, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var s billing.Subscription
	err := row.Scan(
		&s.ID, &s.PrincipalID, &s.CurrentPlan, &s.Status, &s.RenewalDate, &s.MonthlyUsed,
		&s.PendingDowngradeTo, &s.PendingDowngradeAt, &s.CancelledAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}

// FindByPrincipal retrieves the principal's subscription.
func (r *SubscriptionRepository) FindByPrincipal(ctx context.Context, principalID int64) (*billing.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE principal_id = $1`
	return scanSubscription(r.db.QueryRow(ctx, query, principalID))
}

// TryConsume increments the monthly counter by units only when the
// result stays within limit. The single conditional UPDATE makes the
// exhaustion check and the increment one atomic read-modify-write, so
// two concurrent operations cannot both slip past the limit.
func (r *SubscriptionRepository) TryConsume(ctx context.Context, subscriptionID int64, units, limit int) (bool, error) {
	query := `
		UPDATE subscriptions
		SET monthly_used = monthly_used + $2, updated_at = NOW()
		WHERE id = $1 AND ($3 < 0 OR monthly_used + $2 <= $3)
	`
	result, err := r.db.Exec(ctx, query, subscriptionID, units, limit)
	if err != nil {
		return false, fmt.Errorf("failed to consume quota: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ForceConsume increments the monthly counter unconditionally and
// returns the new count.
func (r *SubscriptionRepository) ForceConsume(ctx context.Context, subscriptionID int64, units int) (int, error) {
	query := `
		UPDATE subscriptions
		SET monthly_used = monthly_used + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING monthly_used
	`
	var count int
	err := r.db.QueryRow(ctx, query, subscriptionID, units).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, xerrors.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record usage: %w", err)
	}
	return count, nil
}

// ConsumeWithCharge force-increments the monthly counter and inserts
// the overage charge in one transaction, so concurrent overage
// operations can neither double-charge nor under-charge.
func (r *SubscriptionRepository) ConsumeWithCharge(ctx context.Context, subscriptionID int64, units int, charge *billing.OverageCharge) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE subscriptions
		SET monthly_used = monthly_used + $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query, subscriptionID, units)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	if err := r.charges.CreateWithTx(ctx, tx, charge); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ApplyPlanChange sets the plan immediately and drops any pending
// downgrade. Used for upgrades.
func (r *SubscriptionRepository) ApplyPlanChange(ctx context.Context, subscriptionID int64, plan billing.PlanID) error {
	query := `
		UPDATE subscriptions
		SET current_plan = $2, pending_downgrade_to = NULL, pending_downgrade_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, subscriptionID, plan)
	if err != nil {
		return fmt.Errorf("failed to apply plan change: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// SetPendingDowngrade fills the single downgrade slot, replacing a
// prior one.
func (r *SubscriptionRepository) SetPendingDowngrade(ctx context.Context, subscriptionID int64, plan billing.PlanID, effective time.Time) error {
	query := `
		UPDATE subscriptions
		SET pending_downgrade_to = $2, pending_downgrade_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, subscriptionID, plan, effective)
	if err != nil {
		return fmt.Errorf("failed to schedule downgrade: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ClearPendingDowngrade empties the downgrade slot.
func (r *SubscriptionRepository) ClearPendingDowngrade(ctx context.Context, subscriptionID int64) error {
	query := `
		UPDATE subscriptions
		SET pending_downgrade_to = NULL, pending_downgrade_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to clear downgrade: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// FindDueRenewals lists active subscriptions past their renewal date.
func (r *SubscriptionRepository) FindDueRenewals(ctx context.Context, now time.Time) ([]billing.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'active' AND renewal_date <= $1
		ORDER BY renewal_date
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due renewals: %w", err)
	}
	defer rows.Close()

	var subs []billing.Subscription
	for rows.Next() {
		var s billing.Subscription
		if err := rows.Scan(
			&s.ID, &s.PrincipalID, &s.CurrentPlan, &s.Status, &s.RenewalDate, &s.MonthlyUsed,
			&s.PendingDowngradeTo, &s.PendingDowngradeAt, &s.CancelledAt, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Rollover crosses the renewal boundary: plan set (the pending
// downgrade target, or unchanged), renewal date advanced, downgrade
// slot cleared, monthly counter reset.
func (r *SubscriptionRepository) Rollover(ctx context.Context, subscriptionID int64, plan billing.PlanID, nextRenewal time.Time) error {
	query := `
		UPDATE subscriptions
		SET current_plan = $2, renewal_date = $3, monthly_used = 0,
		    pending_downgrade_to = NULL, pending_downgrade_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, subscriptionID, plan, nextRenewal)
	if err != nil {
		return fmt.Errorf("failed to roll subscription over: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
