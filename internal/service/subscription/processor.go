// internal/service/subscription/processor.go
package subscription

import (
	"context"

	"meterd-service/internal/domain/billing"

	"go.uber.org/zap"
)

// LoggingProcessor is the development stand-in for the external
// billing processor: it records the proration charge it would have
// made and succeeds.
type LoggingProcessor struct {
	logger *zap.Logger
}

func NewLoggingProcessor(logger *zap.Logger) *LoggingProcessor {
	return &LoggingProcessor{logger: logger}
}

func (p *LoggingProcessor) ChargePlanChange(ctx context.Context, principalID int64, from, to billing.PlanID) error {
	fromPlan, _ := billing.PlanByID(from)
	toPlan, _ := billing.PlanByID(to)

	p.logger.Info("billing processor: plan change charge",
		zap.Int64("principal_id", principalID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Float64("price_delta", toPlan.Price-fromPlan.Price),
	)
	return nil
}
