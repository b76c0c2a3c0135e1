package payments

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aldoetobex/falacomigo-backend/internal/auth"
	"github.com/aldoetobex/falacomigo-backend/pkg/validation"
)

// ===== DTOs =====

type InitiateRequest struct {
	OrderID     string          `json:"orderId" validate:"required,uuid"`
	PhoneNumber string          `json:"phoneNumber" validate:"required,min=9,max=20"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference" validate:"max=20"`
}

type PaymentResponse struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transactionId"`
	OrderID       uuid.UUID       `json:"orderId"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	ClientName    string          `json:"clientName,omitempty"`
	PhoneNumber   string          `json:"phoneNumber"`
	Method        string          `json:"method"`
	ConfirmedAt   *time.Time      `json:"confirmedAt,omitempty"`
	Message       string          `json:"message,omitempty"`
}

func toResponse(r *Receipt) PaymentResponse {
	return PaymentResponse{
		Success:       true,
		TransactionID: r.TransactionID,
		OrderID:       r.OrderID,
		Status:        string(r.Status),
		Amount:        r.Amount,
		ClientName:    r.ClientName,
		PhoneNumber:   r.PhoneNumber,
		Method:        r.Method,
		ConfirmedAt:   r.ConfirmedAt,
		Message:       r.Message,
	}
}

type Handler struct {
	ledger    *Ledger
	log       *zap.Logger
	devSecret string
}

func NewHandler(ledger *Ledger, log *zap.Logger, devSecret string) *Handler {
	return &Handler{ledger: ledger, log: log, devSecret: devSecret}
}

// ========== Initiate (client) ==========

// @Summary      Start M-Pesa payment
// @Description  Sends a C2B push to the client's phone and records a pending payment
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  InitiateRequest  true  "payment"
// @Success      201  {object}  PaymentResponse
// @Failure      400  {object}  models.ErrorResponse  "invalid phone / amount"
// @Failure      409  {object}  models.ErrorResponse  "already paid"
// @Failure      502  {object}  models.ErrorResponse  "provider unavailable"
// @Router       /payments/mpesa/initiate [post]
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var in InitiateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if in.Amount.IsNegative() {
		return validation.Respond(c, map[string][]string{"amount": {"Must be greater than or equal to 0"}})
	}

	r, err := h.ledger.Initiate(c.UserContext(), auth.MustCaller(c), InitiateInput{
		OrderID:   uuid.MustParse(in.OrderID),
		Phone:     in.PhoneNumber,
		Amount:    in.Amount,
		Reference: in.Reference,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toResponse(r))
}

// ========== Status (client polling) ==========

// @Summary      Payment status
// @Description  Returns the stored outcome, re-querying the provider while pending
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        transactionId  path  string  true  "our transaction id (VM...)"
// @Success      200  {object}  PaymentResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /payments/mpesa/{transactionId}/status [get]
func (h *Handler) Status(c *fiber.Ctx) error {
	r, err := h.ledger.CheckStatus(c.UserContext(), auth.MustCaller(c), c.Params("transactionId"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(r))
}

// ========== Callback (provider, no auth) ==========

// @Summary      M-Pesa callback
// @Description  Always acknowledged so the provider stops retrying; outcome is logged
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Router       /payments/mpesa/callback [post]
func (h *Handler) Callback(c *fiber.Ctx) error {
	if _, err := h.ledger.HandleWebhook(c.UserContext(), c.Body()); err != nil {
		h.log.Warn("mpesa callback rejected", zap.Error(err))
	}
	return c.JSON(fiber.Map{"success": true})
}

// ========== Simulate Complete (dev only) ==========
// Body: { "transactionId": "VM..." }
// Header: X-Dev-Secret: <DEV_PAYMENT_SECRET>
type simulateCompleteReq struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

func (h *Handler) SimulateComplete(c *fiber.Ctx) error {
	got := c.Get("X-Dev-Secret")
	if h.devSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.devSecret)) != 1 {
		return fiber.NewError(http.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}
	var in simulateCompleteReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	r, err := h.ledger.SimulateComplete(c.UserContext(), in.TransactionID)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(r))
}
