package usage

import (
	"context"
	"testing"

	"meterd-service/internal/domain/billing"
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

func testSubscription(plan billing.PlanID, used int) *billing.Subscription {
	return &billing.Subscription{
		ID:          10,
		PrincipalID: 1,
		CurrentPlan: plan,
		Status:      billing.SubscriptionStatusActive,
		MonthlyUsed: used,
	}
}

func TestRemaining(t *testing.T) {
	ctx := context.Background()

	t.Run("basic plan counts down monthly only", func(t *testing.T) {
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanBasic, 20)}, newFakeDailyCounter(), zap.NewNop())

		q, err := m.Remaining(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 40, q.Monthly)
		assert.Equal(t, billing.Unlimited, q.Daily)
	})

	t.Run("free plan counts both windows", func(t *testing.T) {
		daily := newFakeDailyCounter()
		daily.counts[1] = 2
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanFree, 4)}, daily, zap.NewNop())

		q, err := m.Remaining(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, q.Monthly)
		assert.Equal(t, 1, q.Daily)
	})

	t.Run("agency plan never counts down", func(t *testing.T) {
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanAgency, 100000)}, newFakeDailyCounter(), zap.NewNop())

		q, err := m.Remaining(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, billing.Unlimited, q.Monthly)
		assert.Equal(t, billing.Unlimited, q.Daily)
	})

	t.Run("overage past the limit clamps to zero", func(t *testing.T) {
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanBasic, 65)}, newFakeDailyCounter(), zap.NewNop())

		q, err := m.Remaining(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, q.Monthly)
	})
}

func TestIsExhausted(t *testing.T) {
	ctx := context.Background()

	t.Run("monthly at limit", func(t *testing.T) {
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanBasic, 60)}, newFakeDailyCounter(), zap.NewNop())

		exhausted, err := m.IsExhausted(ctx, 1)
		require.NoError(t, err)
		assert.True(t, exhausted)
	})

	t.Run("daily at limit blocks despite monthly headroom", func(t *testing.T) {
		daily := newFakeDailyCounter()
		daily.counts[1] = 3
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanFree, 1)}, daily, zap.NewNop())

		exhausted, err := m.IsExhausted(ctx, 1)
		require.NoError(t, err)
		assert.True(t, exhausted)
	})

	t.Run("unlimited plan never exhausts", func(t *testing.T) {
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanAgency, 100000)}, newFakeDailyCounter(), zap.NewNop())

		exhausted, err := m.IsExhausted(ctx, 1)
		require.NoError(t, err)
		assert.False(t, exhausted)
	})

	t.Run("headroom left", func(t *testing.T) {
		m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanBasic, 59)}, newFakeDailyCounter(), zap.NewNop())

		exhausted, err := m.IsExhausted(ctx, 1)
		require.NoError(t, err)
		assert.False(t, exhausted)
	})
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("increments both counters", func(t *testing.T) {
		store := &fakeSubStore{sub: testSubscription(billing.PlanBasic, 10)}
		daily := newFakeDailyCounter()
		m := NewMeter(store, daily, zap.NewNop())

		require.NoError(t, m.RecordUsage(ctx, 1, 3))
		assert.Equal(t, 13, store.sub.MonthlyUsed)
		assert.Equal(t, int64(3), daily.counts[1])
	})

	t.Run("records past the limit without rejecting", func(t *testing.T) {
		store := &fakeSubStore{sub: testSubscription(billing.PlanBasic, 60)}
		m := NewMeter(store, newFakeDailyCounter(), zap.NewNop())

		require.NoError(t, m.RecordUsage(ctx, 1, 1))
		assert.Equal(t, 61, store.sub.MonthlyUsed)
	})

	t.Run("non-positive units are a no-op", func(t *testing.T) {
		store := &fakeSubStore{sub: testSubscription(billing.PlanBasic, 10)}
		m := NewMeter(store, newFakeDailyCounter(), zap.NewNop())

		require.NoError(t, m.RecordUsage(ctx, 1, 0))
		require.NoError(t, m.RecordUsage(ctx, 1, -5))
		assert.Equal(t, 10, store.sub.MonthlyUsed)
	})
}

func TestUsage(t *testing.T) {
	ctx := context.Background()

	daily := newFakeDailyCounter()
	daily.counts[1] = 2
	m := NewMeter(&fakeSubStore{sub: testSubscription(billing.PlanFree, 5)}, daily, zap.NewNop())

	info, err := m.Usage(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, billing.PlanFree, info.Plan)
	assert.Equal(t, 5, info.MonthlyUsed)
	assert.Equal(t, 5, info.MonthlyLimit)
	assert.Equal(t, 0, info.MonthlyRemaining)
	assert.Equal(t, 2, info.DailyUsed)
	assert.Equal(t, 1, info.DailyRemaining)
	assert.Equal(t, float64(100), info.UsagePercentage)
	assert.True(t, info.Exhausted)
}

func TestUsageUnknownPrincipal(t *testing.T) {
	m := NewMeter(&fakeSubStore{}, newFakeDailyCounter(), zap.NewNop())

	_, err := m.Usage(context.Background(), 42)
	assert.Error(t, err)
}
