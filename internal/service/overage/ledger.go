// internal/service/overage/ledger.go
package overage

import (
	"context"
	"fmt"

	"meterd-service/internal/domain/billing"
	"meterd-service/internal/notify"
	"meterd-service/internal/service/usage"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ReasonLimitExceeded is the denial the UI distinguishes from an
// authorization denial, so it can offer "upgrade" or "enable overage".
const ReasonLimitExceeded = "usage limit exceeded"

// Decision is the ledger's answer. Denials are values; only
// infrastructure failures surface as errors.
type Decision struct {
	Allowed bool                   `json:"allowed"`
	Reason  string                 `json:"reason,omitempty"`
	Charge  *billing.OverageCharge `json:"charge,omitempty"`
}

func allowed(charge *billing.OverageCharge) Decision {
	return Decision{Allowed: true, Charge: charge}
}

func denied(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ChargeStore is the persistence port for overage charges. Charge
// creation itself goes through usage.SubscriptionStore.ConsumeWithCharge
// so the charge lands in the same transaction as the counter increment.
type ChargeStore interface {
	ListByPrincipal(ctx context.Context, principalID int64) ([]billing.OverageCharge, error)
	FindByReference(ctx context.Context, reference string) (*billing.OverageCharge, error)
	// UpdateStatus moves a charge from one status to another; it fails
	// with xerrors.ErrConflict when the charge is not in from.
	UpdateStatus(ctx context.Context, reference string, from, to billing.ChargeStatus, reason string) error
	Summary(ctx context.Context, principalID int64) (*billing.ChargeSummary, error)
	DunningStats(ctx context.Context) (billing.DunningStats, error)
}

// Ledger gates billable operations once a counter is exhausted. It
// records and totals charges; invoicing them, and retrying failures,
// belongs to the external billing processor.
type Ledger struct {
	subs     usage.SubscriptionStore
	daily    usage.DailyCounter
	charges  ChargeStore
	notifier notify.Sink
	logger   *zap.Logger
}

func NewLedger(subs usage.SubscriptionStore, daily usage.DailyCounter, charges ChargeStore, notifier notify.Sink, logger *zap.Logger) *Ledger {
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	return &Ledger{
		subs:     subs,
		daily:    daily,
		charges:  charges,
		notifier: notifier,
		logger:   logger,
	}
}

// Authorize clears units of billable work for the principal and
// consumes them. Within quota the units are counted and no charge is
// created. At the limit, the request is denied unless it carries
// explicit overage consent and the plan bills overage; consented
// overage creates exactly one pending charge priced at the plan rate
// in force right now, atomically with the counter increment.
//
// A multi-unit request is all-or-nothing: when the batch does not fit
// the remaining quota, every unit in it is billed as overage (or the
// whole batch is denied). Batches are never split across the boundary;
// callers wanting per-unit granularity authorize unit by unit.
func (l *Ledger) Authorize(ctx context.Context, principalID int64, units int, overageConsent bool) (Decision, error) {
	if units <= 0 {
		units = 1
	}

	sub, err := l.subs.FindByPrincipal(ctx, principalID)
	if err != nil {
		return Decision{}, fmt.Errorf("no subscription for principal: %w", err)
	}
	if sub.Status != billing.SubscriptionStatusActive {
		return denied("subscription is not active"), nil
	}
	plan, ok := billing.PlanByID(sub.CurrentPlan)
	if !ok {
		return Decision{}, fmt.Errorf("subscription carries unknown plan %q", sub.CurrentPlan)
	}

	// Daily window first: a finite daily limit blocks even with
	// monthly quota left.
	dailyOK := true
	if plan.DailyLimit > 0 {
		dailyOK, err = l.daily.TryConsume(ctx, principalID, units, plan.DailyLimit)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to consume daily quota: %w", err)
		}
	} else {
		if _, err := l.daily.Increment(ctx, principalID, units); err != nil {
			return Decision{}, fmt.Errorf("failed to track daily usage: %w", err)
		}
	}

	if !dailyOK {
		if !overageConsent || !plan.AllowsOverage() {
			l.notifyLimitReached(principalID, sub.CurrentPlan, "daily")
			return denied(ReasonLimitExceeded), nil
		}
		if _, err := l.daily.Increment(ctx, principalID, units); err != nil {
			return Decision{}, fmt.Errorf("failed to track daily usage: %w", err)
		}
		return l.chargeOverage(ctx, sub, plan, units)
	}

	// Monthly window: the increment-then-compare runs as one atomic
	// statement in the store, so concurrent operations cannot both
	// slip past the limit.
	if plan.MonthlyLimit == billing.Unlimited {
		if _, err := l.subs.ForceConsume(ctx, sub.ID, units); err != nil {
			return Decision{}, fmt.Errorf("failed to record usage: %w", err)
		}
		return allowed(nil), nil
	}

	consumed, err := l.subs.TryConsume(ctx, sub.ID, units, plan.MonthlyLimit)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to consume monthly quota: %w", err)
	}
	if consumed {
		return allowed(nil), nil
	}

	// Monthly counter at its limit.
	if !overageConsent || !plan.AllowsOverage() {
		if err := l.daily.Undo(ctx, principalID, units); err != nil {
			l.logger.Warn("failed to undo daily consumption", zap.Error(err), zap.Int64("principal_id", principalID))
		}
		l.notifyLimitReached(principalID, sub.CurrentPlan, "monthly")
		return denied(ReasonLimitExceeded), nil
	}

	return l.chargeOverage(ctx, sub, plan, units)
}

func (l *Ledger) chargeOverage(ctx context.Context, sub *billing.Subscription, plan billing.Plan, units int) (Decision, error) {
	charge := &billing.OverageCharge{
		Reference:   "CHG-" + ulid.Make().String(),
		PrincipalID: sub.PrincipalID,
		Plan:        plan.ID,
		UnitCount:   units,
		Rate:        plan.OverageRate,
		Amount:      float64(units) * plan.OverageRate,
		Status:      billing.ChargeStatusPending,
	}

	if err := l.subs.ConsumeWithCharge(ctx, sub.ID, units, charge); err != nil {
		return Decision{}, fmt.Errorf("failed to record overage charge: %w", err)
	}

	l.logger.Info("overage charge created",
		zap.Int64("principal_id", sub.PrincipalID),
		zap.String("reference", charge.Reference),
		zap.Int("units", units),
		zap.Float64("amount", charge.Amount),
	)
	l.notifier.Publish(notify.NewEvent(notify.EventOverageCharged, sub.PrincipalID,
		"usage over plan limit billed at overage rate",
		map[string]interface{}{
			"reference": charge.Reference,
			"amount":    charge.Amount,
			"units":     units,
		}))

	return allowed(charge), nil
}

func (l *Ledger) notifyLimitReached(principalID int64, plan billing.PlanID, window string) {
	l.notifier.Publish(notify.NewEvent(notify.EventUsageLimitReached, principalID,
		ReasonLimitExceeded,
		map[string]interface{}{
			"plan":   string(plan),
			"window": window,
		}))
}

// ListCharges returns the principal's full ledger, newest first.
func (l *Ledger) ListCharges(ctx context.Context, principalID int64) ([]billing.OverageCharge, error) {
	return l.charges.ListByPrincipal(ctx, principalID)
}

// Summary aggregates pending, processed and failed totals.
func (l *Ledger) Summary(ctx context.Context, principalID int64) (*billing.ChargeSummary, error) {
	return l.charges.Summary(ctx, principalID)
}

// PendingTotal is the amount the next invoice will carry.
func (l *Ledger) PendingTotal(ctx context.Context, principalID int64) (float64, error) {
	s, err := l.charges.Summary(ctx, principalID)
	if err != nil {
		return 0, err
	}
	return s.PendingTotal, nil
}

// MarkProcessed records an invoicing success reported by the billing
// processor.
func (l *Ledger) MarkProcessed(ctx context.Context, reference string) error {
	if err := l.charges.UpdateStatus(ctx, reference, billing.ChargeStatusPending, billing.ChargeStatusProcessed, ""); err != nil {
		return err
	}
	l.logger.Info("overage charge processed", zap.String("reference", reference))
	return nil
}

// MarkFailed records an invoicing failure. Retrying is the billing
// processor's job, not the ledger's.
func (l *Ledger) MarkFailed(ctx context.Context, reference, reason string) error {
	if err := l.charges.UpdateStatus(ctx, reference, billing.ChargeStatusPending, billing.ChargeStatusFailed, reason); err != nil {
		return err
	}
	l.logger.Warn("overage charge failed", zap.String("reference", reference), zap.String("reason", reason))
	return nil
}

// MarkRecovered records a successful dunning retry of a failed charge.
func (l *Ledger) MarkRecovered(ctx context.Context, reference string) error {
	if err := l.charges.UpdateStatus(ctx, reference, billing.ChargeStatusFailed, billing.ChargeStatusRecovered, ""); err != nil {
		return err
	}
	l.logger.Info("overage charge recovered", zap.String("reference", reference))
	return nil
}

// DunningRecoveryRate is recovered / total failed, 0 when nothing has
// failed yet.
func (l *Ledger) DunningRecoveryRate(ctx context.Context) (float64, error) {
	stats, err := l.charges.DunningStats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.RecoveryRate(), nil
}
