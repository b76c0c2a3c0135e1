package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []OrderStatus{
	OrderPendingPayment, OrderPendingAssignment, OrderAssigned, OrderInProgress,
	OrderRatingPending, OrderCompleted, OrderCancelled,
}

var allEvents = []OrderEvent{
	EventPaymentConfirmed, EventLawyerBound, EventSessionStarted,
	EventWorkFinished, EventRated, EventCancelled,
}

func TestNextStatus_Table(t *testing.T) {
	legal := map[OrderStatus]map[OrderEvent]OrderStatus{
		OrderPendingPayment: {
			EventPaymentConfirmed: OrderPendingAssignment,
			EventLawyerBound:      OrderAssigned,
			EventCancelled:        OrderCancelled,
		},
		OrderPendingAssignment: {EventLawyerBound: OrderAssigned, EventCancelled: OrderCancelled},
		OrderAssigned:          {EventSessionStarted: OrderInProgress, EventCancelled: OrderCancelled},
		OrderInProgress:        {EventWorkFinished: OrderRatingPending},
		OrderRatingPending:     {EventRated: OrderCompleted},
	}

	for _, from := range allStatuses {
		for _, ev := range allEvents {
			to, ok := NextStatus(from, ev)
			want, wantOK := legal[from][ev]
			assert.Equal(t, wantOK, ok, "%s --%s-->", from, ev)
			if wantOK {
				assert.Equal(t, want, to, "%s --%s-->", from, ev)
			}
		}
	}
}

func TestTerminalAndOpen(t *testing.T) {
	assert.True(t, OrderCompleted.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.False(t, OrderRatingPending.Terminal())

	assert.True(t, OrderInProgress.Open())
	assert.False(t, OrderRatingPending.Open())
	assert.False(t, OrderCancelled.Open())

	for _, s := range allStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, OrderStatus("paid").Valid())
}

func TestCompletedOnlyReachableByRating(t *testing.T) {
	for _, from := range allStatuses {
		for _, ev := range allEvents {
			if to, ok := NextStatus(from, ev); ok && to == OrderCompleted {
				assert.Equal(t, OrderRatingPending, from)
				assert.Equal(t, EventRated, ev)
			}
		}
	}
}
