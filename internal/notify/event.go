// internal/notify/event.go
package notify

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventPermissionDenied   EventType = "permission_denied"
	EventUsageLimitReached  EventType = "usage_limit_reached"
	EventOverageCharged     EventType = "overage_charged"
	EventDowngradeScheduled EventType = "downgrade_scheduled"
	EventDowngradeCancelled EventType = "downgrade_cancelled"
	EventDowngradeApplied   EventType = "downgrade_applied"
	EventPlanUpgraded       EventType = "plan_upgraded"
)

// Event is the fact that something decision-worthy happened. How it is
// rendered belongs to the consuming UI, never to this core.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	PrincipalID int64                  `json:"principal_id"`
	Message     string                 `json:"message"`
	Data        map[string]interface{} `json:"data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewEvent stamps an event with an id and timestamp.
func NewEvent(t EventType, principalID int64, message string, data map[string]interface{}) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		PrincipalID: principalID,
		Message:     message,
		Data:        data,
		CreatedAt:   time.Now(),
	}
}

// Sink receives events for user-facing display.
type Sink interface {
	Publish(event Event)
}

// NopSink discards everything. Used in tests and when no hub is wired.
type NopSink struct{}

func (NopSink) Publish(Event) {}
