// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"meterd-service/internal/service/subscription"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives the two clock-based collaborators: the hourly
// renewal-rollover sweep (monthly counter reset plus due downgrades)
// and the local-midnight daily boundary. Daily counters reset by key
// expiry, so the midnight job is a marker, not a sweep.
type Scheduler struct {
	cron          *cron.Cron
	subscriptions *subscription.Service
	logger        *zap.Logger
}

func New(subscriptions *subscription.Service, loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(loc)),
		subscriptions: subscriptions,
		logger:        logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("0 * * * *", func() {
		now := time.Now()
		if err := s.subscriptions.ProcessRenewals(ctx, now); err != nil {
			s.logger.Error("renewal sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc("0 0 * * *", func() {
		s.logger.Info("daily usage boundary crossed")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
