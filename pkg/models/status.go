package models

// OrderEvent triggers a status transition.
type OrderEvent string

const (
	EventPaymentConfirmed OrderEvent = "payment_confirmed"
	EventLawyerBound      OrderEvent = "lawyer_bound"
	EventSessionStarted   OrderEvent = "session_started"
	EventWorkFinished     OrderEvent = "work_finished"
	EventRated            OrderEvent = "rated"
	EventCancelled        OrderEvent = "cancelled"
)

// transitions is the complete table of legal order moves. Anything not listed
// here is rejected.
var transitions = map[OrderStatus]map[OrderEvent]OrderStatus{
	OrderPendingPayment: {
		EventPaymentConfirmed: OrderPendingAssignment,
		EventLawyerBound:      OrderAssigned,
		EventCancelled:        OrderCancelled,
	},
	OrderPendingAssignment: {
		EventLawyerBound: OrderAssigned,
		EventCancelled:   OrderCancelled,
	},
	OrderAssigned: {
		EventSessionStarted: OrderInProgress,
		EventCancelled:      OrderCancelled,
	},
	OrderInProgress: {
		EventWorkFinished: OrderRatingPending,
	},
	OrderRatingPending: {
		EventRated: OrderCompleted,
	},
}

// NextStatus returns the status an order moves to when ev happens in from.
func NextStatus(from OrderStatus, ev OrderEvent) (OrderStatus, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingPayment, OrderPendingAssignment, OrderAssigned, OrderInProgress,
		OrderRatingPending, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Open reports whether a lawyer can still be (re)bound to an order in s.
func (s OrderStatus) Open() bool {
	switch s {
	case OrderPendingPayment, OrderPendingAssignment, OrderAssigned, OrderInProgress:
		return true
	}
	return false
}
