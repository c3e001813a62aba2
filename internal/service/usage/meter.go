// internal/service/usage/meter.go
package usage

import (
	"context"
	"fmt"

	"meterd-service/internal/domain/billing"

	"go.uber.org/zap"
)

// SubscriptionStore is the persistence port for subscriptions and
// their monthly usage counter. TryConsume and ConsumeWithCharge must
// be atomic read-modify-writes against the backing store; two
// concurrent billable operations must never both slip past the limit.
type SubscriptionStore interface {
	FindByPrincipal(ctx context.Context, principalID int64) (*billing.Subscription, error)
	// TryConsume increments the monthly counter by units only if the
	// result stays within limit. A limit of billing.Unlimited always
	// applies. Returns whether the increment applied.
	TryConsume(ctx context.Context, subscriptionID int64, units, limit int) (bool, error)
	// ForceConsume increments unconditionally. Used once overage has
	// been authorized; the counter is a counter, not a gate.
	ForceConsume(ctx context.Context, subscriptionID int64, units int) (int, error)
	// ConsumeWithCharge force-increments and inserts the overage charge
	// in the same transaction.
	ConsumeWithCharge(ctx context.Context, subscriptionID int64, units int, charge *billing.OverageCharge) error
}

// DailyCounter is the per-day counter, reset at local midnight by key
// expiry.
type DailyCounter interface {
	// TryConsume increments by units only if the result stays within
	// limit; returns whether the increment applied.
	TryConsume(ctx context.Context, principalID int64, units, limit int) (bool, error)
	// Increment adds unconditionally and returns the new count.
	Increment(ctx context.Context, principalID int64, units int) (int64, error)
	// Undo compensates a consumed amount after a later check denied the
	// operation.
	Undo(ctx context.Context, principalID int64, units int) error
	Current(ctx context.Context, principalID int64) (int64, error)
}

// Quota holds remaining units per window. billing.Unlimited means the
// window never exhausts.
type Quota struct {
	Monthly int `json:"monthly"`
	Daily   int `json:"daily"`
}

// Meter tracks consumption against the plan's monthly and daily
// counters. It reads and counts; gating belongs to the overage ledger.
type Meter struct {
	subs   SubscriptionStore
	daily  DailyCounter
	logger *zap.Logger
}

func NewMeter(subs SubscriptionStore, daily DailyCounter, logger *zap.Logger) *Meter {
	return &Meter{
		subs:   subs,
		daily:  daily,
		logger: logger,
	}
}

// Remaining returns the non-negative remaining units per window, or
// billing.Unlimited where no cap applies.
func (m *Meter) Remaining(ctx context.Context, principalID int64) (Quota, error) {
	sub, plan, err := m.lookup(ctx, principalID)
	if err != nil {
		return Quota{}, err
	}

	q := Quota{Monthly: billing.Unlimited, Daily: billing.Unlimited}

	if plan.MonthlyLimit != billing.Unlimited {
		q.Monthly = plan.MonthlyLimit - sub.MonthlyUsed
		if q.Monthly < 0 {
			q.Monthly = 0
		}
	}

	if plan.DailyLimit > 0 {
		used, err := m.daily.Current(ctx, principalID)
		if err != nil {
			return Quota{}, fmt.Errorf("failed to read daily counter: %w", err)
		}
		q.Daily = plan.DailyLimit - int(used)
		if q.Daily < 0 {
			q.Daily = 0
		}
	}

	return q, nil
}

// IsExhausted reports whether the principal's next billable operation
// would exceed a finite window: the monthly counter at its limit, or a
// finite daily limit at its limit. Either window alone blocks.
func (m *Meter) IsExhausted(ctx context.Context, principalID int64) (bool, error) {
	q, err := m.Remaining(ctx, principalID)
	if err != nil {
		return false, err
	}
	if q.Monthly != billing.Unlimited && q.Monthly == 0 {
		return true, nil
	}
	if q.Daily != billing.Unlimited && q.Daily == 0 {
		return true, nil
	}
	return false, nil
}

// RecordUsage increments both counters by units. The meter does not
// reject increments: callers check IsExhausted, or accept overage,
// before calling, and an authorized overage operation is expected to
// push the counter past the limit.
func (m *Meter) RecordUsage(ctx context.Context, principalID int64, units int) error {
	if units <= 0 {
		return nil
	}

	sub, _, err := m.lookup(ctx, principalID)
	if err != nil {
		return err
	}

	count, err := m.subs.ForceConsume(ctx, sub.ID, units)
	if err != nil {
		return fmt.Errorf("failed to record monthly usage: %w", err)
	}
	if _, err := m.daily.Increment(ctx, principalID, units); err != nil {
		return fmt.Errorf("failed to record daily usage: %w", err)
	}

	m.logger.Debug("usage recorded",
		zap.Int64("principal_id", principalID),
		zap.Int("units", units),
		zap.Int("monthly_used", count),
	)
	return nil
}

// Usage assembles the full meter read-out for display.
func (m *Meter) Usage(ctx context.Context, principalID int64) (*billing.UsageInfo, error) {
	sub, plan, err := m.lookup(ctx, principalID)
	if err != nil {
		return nil, err
	}

	q, err := m.Remaining(ctx, principalID)
	if err != nil {
		return nil, err
	}

	info := &billing.UsageInfo{
		Plan:             sub.CurrentPlan,
		MonthlyUsed:      sub.MonthlyUsed,
		MonthlyLimit:     plan.MonthlyLimit,
		MonthlyRemaining: q.Monthly,
		DailyLimit:       plan.DailyLimit,
		DailyRemaining:   q.Daily,
	}

	if plan.DailyLimit > 0 {
		used, err := m.daily.Current(ctx, principalID)
		if err != nil {
			return nil, fmt.Errorf("failed to read daily counter: %w", err)
		}
		info.DailyUsed = int(used)
	}

	if plan.MonthlyLimit > 0 {
		info.UsagePercentage = float64(sub.MonthlyUsed) / float64(plan.MonthlyLimit) * 100
		if info.UsagePercentage > 100 {
			info.UsagePercentage = 100
		}
	}

	info.Exhausted = (q.Monthly != billing.Unlimited && q.Monthly == 0) ||
		(q.Daily != billing.Unlimited && q.Daily == 0)

	return info, nil
}

func (m *Meter) lookup(ctx context.Context, principalID int64) (*billing.Subscription, billing.Plan, error) {
	sub, err := m.subs.FindByPrincipal(ctx, principalID)
	if err != nil {
		return nil, billing.Plan{}, fmt.Errorf("no subscription for principal: %w", err)
	}
	plan, ok := billing.PlanByID(sub.CurrentPlan)
	if !ok {
		return nil, billing.Plan{}, fmt.Errorf("subscription carries unknown plan %q", sub.CurrentPlan)
	}
	return sub, plan, nil
}
