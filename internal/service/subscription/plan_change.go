// internal/service/subscription/plan_change.go
package subscription

import (
	"context"
	"fmt"
	"time"

	"meterd-service/internal/domain/billing"
	"meterd-service/internal/notify"
	xerrors "meterd-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// SubscriptionStore is the persistence port for plan changes and
// renewal rollover.
type SubscriptionStore interface {
	FindByPrincipal(ctx context.Context, principalID int64) (*billing.Subscription, error)
	// ApplyPlanChange sets the current plan immediately and clears any
	// pending downgrade.
	ApplyPlanChange(ctx context.Context, subscriptionID int64, plan billing.PlanID) error
	// SetPendingDowngrade fills the single downgrade slot, replacing
	// whatever was there.
	SetPendingDowngrade(ctx context.Context, subscriptionID int64, plan billing.PlanID, effective time.Time) error
	ClearPendingDowngrade(ctx context.Context, subscriptionID int64) error
	// FindDueRenewals lists active subscriptions whose renewal date has
	// passed.
	FindDueRenewals(ctx context.Context, now time.Time) ([]billing.Subscription, error)
	// Rollover sets the plan, advances the renewal date, clears the
	// pending downgrade and resets the monthly usage counter.
	Rollover(ctx context.Context, subscriptionID int64, plan billing.PlanID, nextRenewal time.Time) error
}

// BillingProcessor charges upgrades at request time. Downgrades never
// charge; they wait for the boundary instead.
type BillingProcessor interface {
	ChargePlanChange(ctx context.Context, principalID int64, from, to billing.PlanID) error
}

// Service applies plan changes. Upgrades take effect immediately;
// downgrades are deferred to the renewal boundary so a principal never
// loses paid-for access mid-cycle. One mutable pending slot, never a
// queue: a repeated downgrade request replaces the prior target, an
// upgrade clears it.
type Service struct {
	subs     SubscriptionStore
	billing  BillingProcessor
	notifier notify.Sink
	logger   *zap.Logger
}

func NewService(subs SubscriptionStore, processor BillingProcessor, notifier notify.Sink, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	return &Service{
		subs:     subs,
		billing:  processor,
		notifier: notifier,
		logger:   logger,
	}
}

// Get returns the principal's subscription.
func (s *Service) Get(ctx context.Context, principalID int64) (*billing.Subscription, error) {
	return s.subs.FindByPrincipal(ctx, principalID)
}

// RequestChange moves the subscription toward target. Same-plan
// requests are no-ops so the API stays idempotent and safe to retry.
func (s *Service) RequestChange(ctx context.Context, principalID int64, target billing.PlanID) (*billing.Subscription, error) {
	sub, err := s.subs.FindByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("no subscription for principal: %w", err)
	}

	switch billing.ComparePlans(target, sub.CurrentPlan) {
	case billing.ChangeInvalid:
		return nil, fmt.Errorf("%w: unknown plan %q", xerrors.ErrInvalidInput, target)

	case billing.ChangeSame:
		return sub, nil

	case billing.ChangeUpgrade:
		if err := s.billing.ChargePlanChange(ctx, principalID, sub.CurrentPlan, target); err != nil {
			return nil, fmt.Errorf("failed to charge plan upgrade: %w", err)
		}
		if err := s.subs.ApplyPlanChange(ctx, sub.ID, target); err != nil {
			return nil, fmt.Errorf("failed to apply plan upgrade: %w", err)
		}

		s.logger.Info("plan upgraded",
			zap.Int64("principal_id", principalID),
			zap.String("from", string(sub.CurrentPlan)),
			zap.String("to", string(target)),
		)
		s.notifier.Publish(notify.NewEvent(notify.EventPlanUpgraded, principalID,
			"plan upgraded",
			map[string]interface{}{"from": string(sub.CurrentPlan), "to": string(target)}))

		sub.CurrentPlan = target
		sub.ClearDowngrade()
		return sub, nil

	default: // downgrade, including to free: always deferred
		effective := sub.RenewalDate
		if err := s.subs.SetPendingDowngrade(ctx, sub.ID, target, effective); err != nil {
			return nil, fmt.Errorf("failed to schedule downgrade: %w", err)
		}

		s.logger.Info("downgrade scheduled",
			zap.Int64("principal_id", principalID),
			zap.String("from", string(sub.CurrentPlan)),
			zap.String("to", string(target)),
			zap.Time("effective", effective),
		)
		s.notifier.Publish(notify.NewEvent(notify.EventDowngradeScheduled, principalID,
			"downgrade scheduled for next renewal",
			map[string]interface{}{"to": string(target), "effective": effective}))

		sub.SetDowngrade(target, effective)
		return sub, nil
	}
}

// CancelPendingDowngrade clears the pending slot. Idempotent: no
// pending downgrade is not an error.
func (s *Service) CancelPendingDowngrade(ctx context.Context, principalID int64) (*billing.Subscription, error) {
	sub, err := s.subs.FindByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("no subscription for principal: %w", err)
	}

	if sub.Downgrade() == nil {
		return sub, nil
	}

	if err := s.subs.ClearPendingDowngrade(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("failed to cancel downgrade: %w", err)
	}

	s.logger.Info("downgrade cancelled", zap.Int64("principal_id", principalID))
	s.notifier.Publish(notify.NewEvent(notify.EventDowngradeCancelled, principalID,
		"pending downgrade cancelled", nil))

	sub.ClearDowngrade()
	return sub, nil
}

// ApplyDueDowngrades applies the pending downgrade if its effective
// date has passed, advancing the renewal boundary with it. Returns
// whether a downgrade applied.
func (s *Service) ApplyDueDowngrades(ctx context.Context, sub *billing.Subscription, now time.Time) (bool, error) {
	if !sub.DowngradeDue(now) {
		return false, nil
	}

	target := sub.Downgrade().Plan
	next := nextRenewal(sub.RenewalDate, now)
	if err := s.subs.Rollover(ctx, sub.ID, target, next); err != nil {
		return false, fmt.Errorf("failed to apply downgrade: %w", err)
	}

	s.logger.Info("downgrade applied",
		zap.Int64("principal_id", sub.PrincipalID),
		zap.String("from", string(sub.CurrentPlan)),
		zap.String("to", string(target)),
		zap.Time("next_renewal", next),
	)
	s.notifier.Publish(notify.NewEvent(notify.EventDowngradeApplied, sub.PrincipalID,
		"scheduled downgrade applied",
		map[string]interface{}{"to": string(target)}))

	sub.CurrentPlan = target
	sub.RenewalDate = next
	sub.ClearDowngrade()
	sub.MonthlyUsed = 0
	return true, nil
}

// ProcessRenewals sweeps subscriptions past their renewal boundary:
// the monthly counter resets, the renewal date advances, and a due
// pending downgrade takes effect. Called by the scheduler.
func (s *Service) ProcessRenewals(ctx context.Context, now time.Time) error {
	due, err := s.subs.FindDueRenewals(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due renewals: %w", err)
	}

	for i := range due {
		sub := &due[i]

		applied, err := s.ApplyDueDowngrades(ctx, sub, now)
		if err != nil {
			s.logger.Error("renewal rollover failed", zap.Error(err), zap.Int64("subscription_id", sub.ID))
			continue
		}
		if applied {
			continue
		}

		next := nextRenewal(sub.RenewalDate, now)
		if err := s.subs.Rollover(ctx, sub.ID, sub.CurrentPlan, next); err != nil {
			s.logger.Error("renewal rollover failed", zap.Error(err), zap.Int64("subscription_id", sub.ID))
			continue
		}

		s.logger.Info("subscription renewed",
			zap.Int64("subscription_id", sub.ID),
			zap.Time("next_renewal", next),
		)
	}

	return nil
}

// nextRenewal advances a renewal date by whole months until it lands
// past now. Catches up subscriptions that missed sweeps.
func nextRenewal(renewal, now time.Time) time.Time {
	next := renewal.AddDate(0, 1, 0)
	for !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}
