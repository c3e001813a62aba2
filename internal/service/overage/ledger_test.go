package overage

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"meterd-service/internal/domain/billing"
	"meterd-service/internal/notify"
	xerrors "meterd-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubStore struct {
	sub     *billing.Subscription
	charges []*billing.OverageCharge
}

func (f *fakeSubStore) FindByPrincipal(_ context.Context, principalID int64) (*billing.Subscription, error) {
	if f.sub == nil || f.sub.PrincipalID != principalID {
		return nil, xerrors.ErrNotFound
	}
	return f.sub, nil
}

func (f *fakeSubStore) TryConsume(_ context.Context, _ int64, units, limit int) (bool, error) {
	if limit >= 0 && f.sub.MonthlyUsed+units > limit {
		return false, nil
	}
	f.sub.MonthlyUsed += units
	return true, nil
}

func (f *fakeSubStore) ForceConsume(_ context.Context, _ int64, units int) (int, error) {
	f.sub.MonthlyUsed += units
	return f.sub.MonthlyUsed, nil
}

func (f *fakeSubStore) ConsumeWithCharge(_ context.Context, _ int64, units int, charge *billing.OverageCharge) error {
	f.sub.MonthlyUsed += units
	f.charges = append(f.charges, charge)
	return nil
}

type fakeDailyCounter struct {
	counts map[int64]int64
}

func newFakeDailyCounter() *fakeDailyCounter {
	return &fakeDailyCounter{counts: make(map[int64]int64)}
}

func (f *fakeDailyCounter) TryConsume(_ context.Context, principalID int64, units, limit int) (bool, error) {
	if f.counts[principalID]+int64(units) > int64(limit) {
		return false, nil
	}
	f.counts[principalID] += int64(units)
	return true, nil
}

func (f *fakeDailyCounter) Increment(_ context.Context, principalID int64, units int) (int64, error) {
	f.counts[principalID] += int64(units)
	return f.counts[principalID], nil
}

func (f *fakeDailyCounter) Undo(_ context.Context, principalID int64, units int) error {
	f.counts[principalID] -= int64(units)
	return nil
}

func (f *fakeDailyCounter) Current(_ context.Context, principalID int64) (int64, error) {
	return f.counts[principalID], nil
}

type fakeChargeStore struct {
	byRef map[string]*billing.OverageCharge
}

func newFakeChargeStore() *fakeChargeStore {
	return &fakeChargeStore{byRef: make(map[string]*billing.OverageCharge)}
}

func (f *fakeChargeStore) ListByPrincipal(_ context.Context, principalID int64) ([]billing.OverageCharge, error) {
	var out []billing.OverageCharge
	for _, c := range f.byRef {
		if c.PrincipalID == principalID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeChargeStore) FindByReference(_ context.Context, reference string) (*billing.OverageCharge, error) {
	c, ok := f.byRef[reference]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return c, nil
}

func (f *fakeChargeStore) UpdateStatus(_ context.Context, reference string, from, to billing.ChargeStatus, reason string) error {
	c, ok := f.byRef[reference]
	if !ok {
		return xerrors.ErrNotFound
	}
	if c.Status != from {
		return xerrors.ErrConflict
	}
	c.Status = to
	c.FailureReason = sql.NullString{String: reason, Valid: reason != ""}
	return nil
}

func (f *fakeChargeStore) Summary(_ context.Context, principalID int64) (*billing.ChargeSummary, error) {
	s := &billing.ChargeSummary{}
	for _, c := range f.byRef {
		if c.PrincipalID != principalID {
			continue
		}
		switch c.Status {
		case billing.ChargeStatusPending:
			s.PendingTotal += c.Amount
		case billing.ChargeStatusProcessed, billing.ChargeStatusRecovered:
			s.ProcessedTotal += c.Amount
		case billing.ChargeStatusFailed:
			s.FailedTotal += c.Amount
		}
	}
	return s, nil
}

func (f *fakeChargeStore) DunningStats(_ context.Context) (billing.DunningStats, error) {
	var stats billing.DunningStats
	for _, c := range f.byRef {
		switch c.Status {
		case billing.ChargeStatusFailed:
			stats.Failed++
		case billing.ChargeStatusRecovered:
			stats.Recovered++
		}
	}
	return stats, nil
}

type sinkRecorder struct {
	events []notify.Event
}

func (s *sinkRecorder) Publish(e notify.Event) {
	s.events = append(s.events, e)
}

func (s *sinkRecorder) typesSeen() []notify.EventType {
	var out []notify.EventType
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func activeSubscription(plan billing.PlanID, used int) *billing.Subscription {
	return &billing.Subscription{
		ID:          10,
		PrincipalID: 1,
		CurrentPlan: plan,
		Status:      billing.SubscriptionStatusActive,
		MonthlyUsed: used,
	}
}

func TestAuthorizeWithinQuota(t *testing.T) {
	store := &fakeSubStore{sub: activeSubscription(billing.PlanBasic, 59)}
	l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 1, false)
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.Nil(t, d.Charge)
	assert.Equal(t, 60, store.sub.MonthlyUsed)
	assert.Empty(t, store.charges)
}

func TestAuthorizeDeniedAtLimit(t *testing.T) {
	store := &fakeSubStore{sub: activeSubscription(billing.PlanBasic, 60)}
	daily := newFakeDailyCounter()
	sink := &sinkRecorder{}
	l := NewLedger(store, daily, newFakeChargeStore(), sink, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 1, false)
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLimitExceeded, d.Reason)
	assert.Equal(t, 60, store.sub.MonthlyUsed, "counter must not move on denial")
	assert.Equal(t, int64(0), daily.counts[1], "daily consumption compensated on denial")
	assert.Contains(t, sink.typesSeen(), notify.EventUsageLimitReached)
}

func TestAuthorizeOverageWithConsent(t *testing.T) {
	store := &fakeSubStore{sub: activeSubscription(billing.PlanBasic, 60)}
	sink := &sinkRecorder{}
	l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), sink, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 1, true)
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	require.NotNil(t, d.Charge)
	assert.True(t, strings.HasPrefix(d.Charge.Reference, "CHG-"))
	assert.Equal(t, 1, d.Charge.UnitCount)
	assert.Equal(t, 0.10, d.Charge.Rate)
	assert.InDelta(t, 0.10, d.Charge.Amount, 1e-9)
	assert.Equal(t, billing.ChargeStatusPending, d.Charge.Status)
	assert.Equal(t, 61, store.sub.MonthlyUsed)
	require.Len(t, store.charges, 1)
	assert.Contains(t, sink.typesSeen(), notify.EventOverageCharged)
}

func TestAuthorizeOverageUsesCurrentPlanRate(t *testing.T) {
	store := &fakeSubStore{sub: activeSubscription(billing.PlanPro, 150)}
	l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 5, true)
	require.NoError(t, err)

	require.NotNil(t, d.Charge)
	assert.Equal(t, 0.08, d.Charge.Rate)
	assert.InDelta(t, 0.40, d.Charge.Amount, 1e-9)
}

func TestAuthorizeConsentWithoutOverageBilling(t *testing.T) {
	// The free plan has no overage rate, so consent changes nothing.
	store := &fakeSubStore{sub: activeSubscription(billing.PlanFree, 5)}
	l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 1, true)
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLimitExceeded, d.Reason)
	assert.Empty(t, store.charges)
}

func TestAuthorizeDailyLimitBlocksFirst(t *testing.T) {
	daily := newFakeDailyCounter()
	daily.counts[1] = 3
	store := &fakeSubStore{sub: activeSubscription(billing.PlanFree, 1)}
	l := NewLedger(store, daily, newFakeChargeStore(), nil, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 1, false)
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLimitExceeded, d.Reason)
	assert.Equal(t, 1, store.sub.MonthlyUsed, "monthly counter untouched when the daily window blocks")
}

func TestAuthorizeUnlimitedPlan(t *testing.T) {
	store := &fakeSubStore{sub: activeSubscription(billing.PlanAgency, 100000)}
	l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 1, false)
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.Nil(t, d.Charge)
	assert.Equal(t, 100001, store.sub.MonthlyUsed)
}

func TestAuthorizeInactiveSubscription(t *testing.T) {
	sub := activeSubscription(billing.PlanBasic, 0)
	sub.Status = billing.SubscriptionStatusSuspended
	l := NewLedger(&fakeSubStore{sub: sub}, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

	d, err := l.Authorize(context.Background(), 1, 1, false)
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.NotEqual(t, ReasonLimitExceeded, d.Reason)
}

func TestAuthorizeBatchIsAllOrNothing(t *testing.T) {
	// A batch straddling the monthly boundary is never split: one unit
	// of quota left and two requested means the whole batch is billed
	// as overage, or the whole batch is denied.
	t.Run("denied batch leaves the counter untouched", func(t *testing.T) {
		store := &fakeSubStore{sub: activeSubscription(billing.PlanBasic, 59)}
		l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

		d, err := l.Authorize(context.Background(), 1, 2, false)
		require.NoError(t, err)

		assert.False(t, d.Allowed)
		assert.Equal(t, 59, store.sub.MonthlyUsed)
		assert.Empty(t, store.charges)
	})

	t.Run("consented batch bills every unit as overage", func(t *testing.T) {
		store := &fakeSubStore{sub: activeSubscription(billing.PlanBasic, 59)}
		l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

		d, err := l.Authorize(context.Background(), 1, 2, true)
		require.NoError(t, err)

		assert.True(t, d.Allowed)
		require.NotNil(t, d.Charge)
		assert.Equal(t, 2, d.Charge.UnitCount)
		assert.InDelta(t, 0.20, d.Charge.Amount, 1e-9)
		assert.Equal(t, 61, store.sub.MonthlyUsed)
	})
}

func TestAuthorizeDefaultsToOneUnit(t *testing.T) {
	store := &fakeSubStore{sub: activeSubscription(billing.PlanBasic, 0)}
	l := NewLedger(store, newFakeDailyCounter(), newFakeChargeStore(), nil, zap.NewNop())

	_, err := l.Authorize(context.Background(), 1, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.sub.MonthlyUsed)
}

func TestChargeLifecycle(t *testing.T) {
	ctx := context.Background()
	charges := newFakeChargeStore()
	charges.byRef["CHG-A"] = &billing.OverageCharge{Reference: "CHG-A", PrincipalID: 1, Amount: 0.10, Status: billing.ChargeStatusPending}
	charges.byRef["CHG-B"] = &billing.OverageCharge{Reference: "CHG-B", PrincipalID: 1, Amount: 0.20, Status: billing.ChargeStatusPending}

	l := NewLedger(&fakeSubStore{sub: activeSubscription(billing.PlanBasic, 0)}, newFakeDailyCounter(), charges, nil, zap.NewNop())

	require.NoError(t, l.MarkProcessed(ctx, "CHG-A"))
	assert.Equal(t, billing.ChargeStatusProcessed, charges.byRef["CHG-A"].Status)

	t.Run("processed charge cannot fail", func(t *testing.T) {
		err := l.MarkFailed(ctx, "CHG-A", "card declined")
		assert.ErrorIs(t, err, xerrors.ErrConflict)
	})

	t.Run("pending charge cannot recover", func(t *testing.T) {
		err := l.MarkRecovered(ctx, "CHG-B")
		assert.ErrorIs(t, err, xerrors.ErrConflict)
	})

	require.NoError(t, l.MarkFailed(ctx, "CHG-B", "card declined"))
	assert.Equal(t, "card declined", charges.byRef["CHG-B"].FailureReason.String)

	require.NoError(t, l.MarkRecovered(ctx, "CHG-B"))
	assert.Equal(t, billing.ChargeStatusRecovered, charges.byRef["CHG-B"].Status)

	t.Run("unknown reference", func(t *testing.T) {
		err := l.MarkProcessed(ctx, "CHG-MISSING")
		assert.ErrorIs(t, err, xerrors.ErrNotFound)
	})
}

func TestDunningRecoveryRate(t *testing.T) {
	ctx := context.Background()
	charges := newFakeChargeStore()
	charges.byRef["CHG-A"] = &billing.OverageCharge{Reference: "CHG-A", Status: billing.ChargeStatusFailed}
	charges.byRef["CHG-B"] = &billing.OverageCharge{Reference: "CHG-B", Status: billing.ChargeStatusRecovered}
	charges.byRef["CHG-C"] = &billing.OverageCharge{Reference: "CHG-C", Status: billing.ChargeStatusRecovered}

	l := NewLedger(&fakeSubStore{sub: activeSubscription(billing.PlanBasic, 0)}, newFakeDailyCounter(), charges, nil, zap.NewNop())

	rate, err := l.DunningRecoveryRate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}

func TestPendingTotal(t *testing.T) {
	charges := newFakeChargeStore()
	charges.byRef["CHG-A"] = &billing.OverageCharge{Reference: "CHG-A", PrincipalID: 1, Amount: 0.10, Status: billing.ChargeStatusPending}
	charges.byRef["CHG-B"] = &billing.OverageCharge{Reference: "CHG-B", PrincipalID: 1, Amount: 0.30, Status: billing.ChargeStatusPending}
	charges.byRef["CHG-C"] = &billing.OverageCharge{Reference: "CHG-C", PrincipalID: 1, Amount: 0.50, Status: billing.ChargeStatusProcessed}

	l := NewLedger(&fakeSubStore{sub: activeSubscription(billing.PlanBasic, 0)}, newFakeDailyCounter(), charges, nil, zap.NewNop())

	total, err := l.PendingTotal(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, total, 1e-9)
}
