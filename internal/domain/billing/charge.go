// internal/domain/billing/charge.go
package billing

import (
	"database/sql"
	"time"
)

type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusProcessed ChargeStatus = "processed"
	ChargeStatusFailed    ChargeStatus = "failed"
	ChargeStatusRecovered ChargeStatus = "recovered"
)

// OverageCharge records one authorized over-quota operation. Amount is
// fixed at creation from the plan rate in force at that moment; a later
// plan change never reprices it. Status moves pending -> processed or
// failed at invoicing time, and failed -> recovered if dunning
// succeeds.
type OverageCharge struct {
	ID            int64          `json:"id" db:"id"`
	Reference     string         `json:"reference" db:"reference"`
	PrincipalID   int64          `json:"principal_id" db:"principal_id"`
	Plan          PlanID         `json:"plan" db:"plan"`
	UnitCount     int            `json:"unit_count" db:"unit_count"`
	Rate          float64        `json:"rate" db:"rate"`
	Amount        float64        `json:"amount" db:"amount"`
	Status        ChargeStatus   `json:"status" db:"status"`
	FailureReason sql.NullString `json:"-" db:"failure_reason"`
	SettledAt     sql.NullTime   `json:"-" db:"settled_at"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// ChargeSummary aggregates a principal's ledger for display and
// end-of-period invoicing.
type ChargeSummary struct {
	PrincipalID    int64   `json:"principal_id"`
	PendingCount   int     `json:"pending_count"`
	PendingTotal   float64 `json:"pending_total"`
	ProcessedTotal float64 `json:"processed_total"`
	FailedTotal    float64 `json:"failed_total"`
}

// DunningStats feed the recovery-rate metric: recovered / total failed.
type DunningStats struct {
	Failed    int64 `json:"failed"`
	Recovered int64 `json:"recovered"`
}

// RecoveryRate is 0 when nothing has ever failed.
func (d DunningStats) RecoveryRate() float64 {
	total := d.Failed + d.Recovered
	if total == 0 {
		return 0
	}
	return float64(d.Recovered) / float64(total)
}
