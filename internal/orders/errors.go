package orders

import "github.com/aldoetobex/falacomigo-backend/pkg/apperr"

var (
	ErrOrderNotFound       = apperr.NotFound("ORDER_NOT_FOUND", "order not found")
	ErrClientNotFound      = apperr.NotFound("CLIENT_NOT_FOUND", "client not found")
	ErrParentNotFound      = apperr.NotFound("PARENT_ORDER_NOT_FOUND", "parent order not found")
	ErrClientInactive      = apperr.Forbidden("CLIENT_INACTIVE", "client account is disabled")
	ErrNotOrderOwner       = apperr.Forbidden("NOT_ORDER_OWNER", "order belongs to another client")
	ErrNotAssignedLawyer   = apperr.Forbidden("NOT_ASSIGNED_LAWYER", "only the assigned lawyer can do this")
	ErrIllegalTransition   = apperr.Conflict("ILLEGAL_TRANSITION", "transition not allowed from the current status")
	ErrStaleState          = apperr.Conflict("STALE_STATE", "order changed concurrently, reload and retry")
	ErrPaymentNotConfirmed = apperr.Conflict("PAYMENT_NOT_CONFIRMED", "payment must be confirmed before a lawyer is bound")
	ErrNoAssignment        = apperr.Conflict("NO_ASSIGNMENT", "order has no assigned lawyer")
	ErrOrderClosed         = apperr.Conflict("ORDER_CLOSED", "order no longer accepts a lawyer")
	ErrInvalidPackage      = apperr.InvalidInput("INVALID_PACKAGE", "package price must be positive")
	ErrTermsRequired       = apperr.InvalidInput("TERMS_REQUIRED", "follow-up consultations require accepting the terms")
	ErrHumanIDExhausted    = apperr.New(apperr.KindInternal, "HUMAN_ID_EXHAUSTED", "could not allocate an order reference")
)
