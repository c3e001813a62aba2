// internal/domain/billing/dto.go
package billing

import "time"

// AuthorizeRequest asks the ledger to clear units of billable work.
type AuthorizeRequest struct {
	Units          int  `json:"units"`
	OverageConsent bool `json:"overage_consent"`
}

// ChangePlanRequest moves a subscription to another tier. Upgrades
// apply immediately; downgrades are deferred to the renewal boundary.
type ChangePlanRequest struct {
	Plan PlanID `json:"plan" binding:"required"`
}

// UsageInfo is the meter read-out surfaced to the UI. Remaining values
// of -1 mean unlimited.
type UsageInfo struct {
	Plan             PlanID  `json:"plan"`
	MonthlyUsed      int     `json:"monthly_used"`
	MonthlyLimit     int     `json:"monthly_limit"`
	MonthlyRemaining int     `json:"monthly_remaining"`
	DailyUsed        int     `json:"daily_used"`
	DailyLimit       int     `json:"daily_limit,omitempty"`
	DailyRemaining   int     `json:"daily_remaining"`
	UsagePercentage  float64 `json:"usage_percentage"`
	Exhausted        bool    `json:"exhausted"`
	PendingOverage   float64 `json:"pending_overage"`
}

// SubscriptionInfo is the subscription shape exposed to callers.
type SubscriptionInfo struct {
	PrincipalID      int64              `json:"principal_id"`
	CurrentPlan      PlanID             `json:"current_plan"`
	Status           SubscriptionStatus `json:"status"`
	RenewalDate      time.Time          `json:"renewal_date"`
	PendingDowngrade *PendingDowngrade  `json:"pending_downgrade,omitempty"`
}

func (s *Subscription) Info() SubscriptionInfo {
	return SubscriptionInfo{
		PrincipalID:      s.PrincipalID,
		CurrentPlan:      s.CurrentPlan,
		Status:           s.Status,
		RenewalDate:      s.RenewalDate,
		PendingDowngrade: s.Downgrade(),
	}
}
