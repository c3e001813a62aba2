// internal/domain/billing/subscription.go
package billing

import (
	"database/sql"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
)

// Subscription binds one principal to its current plan. MonthlyUsed is
// the monthly usage counter; it resets at the renewal boundary, not the
// calendar month. At most one downgrade can be pending at a time and
// its effective date is pinned to the renewal date current when it was
// scheduled.
type Subscription struct {
	ID                 int64              `json:"id" db:"id"`
	PrincipalID        int64              `json:"principal_id" db:"principal_id"`
	CurrentPlan        PlanID             `json:"current_plan" db:"current_plan"`
	Status             SubscriptionStatus `json:"status" db:"status"`
	RenewalDate        time.Time          `json:"renewal_date" db:"renewal_date"`
	MonthlyUsed        int                `json:"monthly_used" db:"monthly_used"`
	PendingDowngradeTo sql.NullString     `json:"-" db:"pending_downgrade_to"`
	PendingDowngradeAt sql.NullTime       `json:"-" db:"pending_downgrade_at"`
	CancelledAt        sql.NullTime       `json:"-" db:"cancelled_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// PendingDowngrade is the single deferred plan change slot.
type PendingDowngrade struct {
	Plan          PlanID    `json:"plan"`
	EffectiveDate time.Time `json:"effective_date"`
}

// Downgrade returns the pending downgrade, or nil when none is
// scheduled.
func (s *Subscription) Downgrade() *PendingDowngrade {
	if !s.PendingDowngradeTo.Valid {
		return nil
	}
	return &PendingDowngrade{
		Plan:          PlanID(s.PendingDowngradeTo.String),
		EffectiveDate: s.PendingDowngradeAt.Time,
	}
}

// SetDowngrade schedules a downgrade, replacing any prior one.
func (s *Subscription) SetDowngrade(plan PlanID, effective time.Time) {
	s.PendingDowngradeTo = sql.NullString{String: string(plan), Valid: true}
	s.PendingDowngradeAt = sql.NullTime{Time: effective, Valid: true}
}

// ClearDowngrade drops the pending downgrade slot. Safe on an empty
// slot.
func (s *Subscription) ClearDowngrade() {
	s.PendingDowngradeTo = sql.NullString{}
	s.PendingDowngradeAt = sql.NullTime{}
}

// DowngradeDue reports whether a scheduled downgrade has reached its
// effective date.
func (s *Subscription) DowngradeDue(now time.Time) bool {
	d := s.Downgrade()
	return d != nil && !now.Before(d.EffectiveDate)
}
