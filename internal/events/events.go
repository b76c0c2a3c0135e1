// Package events publishes order lifecycle notifications after commit.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

const (
	OrderCreated        = "order.created"
	OrderAssigned       = "order.assigned"
	OrderSessionStarted = "order.session_started"
	OrderFinished       = "order.finished"
	OrderCancelled      = "order.cancelled"
	OrderRated          = "order.rated"
	PaymentConfirmed    = "payment.confirmed"
	PaymentFailed       = "payment.failed"
)

// Event is the message body written to the broker.
type Event struct {
	Type          string             `json:"type"`
	OrderID       uuid.UUID          `json:"order_id"`
	HumanID       string             `json:"human_id,omitempty"`
	Status        models.OrderStatus `json:"status,omitempty"`
	LawyerID      *uuid.UUID         `json:"lawyer_id,omitempty"`
	TransactionID string             `json:"transaction_id,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

// ForOrder builds an event describing the current state of o.
func ForOrder(typ string, o *models.Order, at time.Time) Event {
	return Event{Type: typ, OrderID: o.ID, HumanID: o.HumanID, Status: o.Status, OccurredAt: at}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes evs in order. Delivery is best effort: the state change has
// already committed, so failures are only logged.
func Emit(ctx context.Context, p Publisher, log *zap.Logger, evs ...Event) {
	for _, ev := range evs {
		if err := p.Publish(ctx, ev); err != nil {
			log.Warn("failed to publish event",
				zap.String("type", ev.Type),
				zap.String("order_id", ev.OrderID.String()),
				zap.Error(err),
			)
		}
	}
}
