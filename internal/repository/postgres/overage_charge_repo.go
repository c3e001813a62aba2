// internal/repository/postgres/overage_charge_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meterd-service/internal/domain/billing"
	xerrors "meterd-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OverageChargeRepository struct {
	db *pgxpool.Pool
}

func NewOverageChargeRepository(db *pgxpool.Pool) *OverageChargeRepository {
	return &OverageChargeRepository{db: db}
}

const chargeColumns = `
	id, reference, principal_id, plan, unit_count, rate, amount,
	status, failure_reason, settled_at, created_at
`

// CreateWithTx inserts a charge within a caller-owned transaction so
// the insert shares fate with the usage increment.
func (r *OverageChargeRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, charge *billing.OverageCharge) error {
	query := `
		INSERT INTO overage_charges (reference, principal_id, plan, unit_count, rate, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		charge.Reference, charge.PrincipalID, charge.Plan, charge.UnitCount,
		charge.Rate, charge.Amount, charge.Status,
	).Scan(&charge.ID, &charge.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create overage charge: %w", err)
	}
	return nil
}

// FindByReference retrieves one charge.
func (r *OverageChargeRepository) FindByReference(ctx context.Context, reference string) (*billing.OverageCharge, error) {
	query := `SELECT ` + chargeColumns + ` FROM overage_charges WHERE reference = $1`

	var c billing.OverageCharge
	err := r.db.QueryRow(ctx, query, reference).Scan(
		&c.ID, &c.Reference, &c.PrincipalID, &c.Plan, &c.UnitCount, &c.Rate, &c.Amount,
		&c.Status, &c.FailureReason, &c.SettledAt, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find overage charge: %w", err)
	}
	return &c, nil
}

// ListByPrincipal returns a principal's charges, newest first.
func (r *OverageChargeRepository) ListByPrincipal(ctx context.Context, principalID int64) ([]billing.OverageCharge, error) {
	query := `SELECT ` + chargeColumns + ` FROM overage_charges WHERE principal_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overage charges: %w", err)
	}
	defer rows.Close()

	var charges []billing.OverageCharge
	for rows.Next() {
		var c billing.OverageCharge
		if err := rows.Scan(
			&c.ID, &c.Reference, &c.PrincipalID, &c.Plan, &c.UnitCount, &c.Rate, &c.Amount,
			&c.Status, &c.FailureReason, &c.SettledAt, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan overage charge: %w", err)
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// UpdateStatus transitions a charge from one status to another. The
// from-state guard keeps settled charges immutable; a mismatch comes
// back as ErrConflict.
func (r *OverageChargeRepository) UpdateStatus(ctx context.Context, reference string, from, to billing.ChargeStatus, reason string) error {
	query := `
		UPDATE overage_charges
		SET status = $3, failure_reason = $4, settled_at = NOW()
		WHERE reference = $1 AND status = $2
	`
	failureReason := sql.NullString{String: reason, Valid: reason != ""}

	result, err := r.db.Exec(ctx, query, reference, from, to, failureReason)
	if err != nil {
		return fmt.Errorf("failed to update charge status: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.FindByReference(ctx, reference); err != nil {
			return err
		}
		return xerrors.ErrConflict
	}
	return nil
}

// Summary aggregates a principal's ledger by status.
func (r *OverageChargeRepository) Summary(ctx context.Context, principalID int64) (*billing.ChargeSummary, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status IN ('processed', 'recovered')), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'failed'), 0)
		FROM overage_charges
		WHERE principal_id = $1
	`
	s := billing.ChargeSummary{PrincipalID: principalID}
	err := r.db.QueryRow(ctx, query, principalID).Scan(
		&s.PendingCount, &s.PendingTotal, &s.ProcessedTotal, &s.FailedTotal,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize charges: %w", err)
	}
	return &s, nil
}

// DunningStats counts failed vs recovered charges across all
// principals for the recovery-rate metric.
func (r *OverageChargeRepository) DunningStats(ctx context.Context) (billing.DunningStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'recovered')
		FROM overage_charges
	`
	var stats billing.DunningStats
	if err := r.db.QueryRow(ctx, query).Scan(&stats.Failed, &stats.Recovered); err != nil {
		return billing.DunningStats{}, fmt.Errorf("failed to compute dunning stats: %w", err)
	}
	return stats, nil
}
