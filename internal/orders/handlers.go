package orders

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/falacomigo-backend/internal/auth"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
	"github.com/aldoetobex/falacomigo-backend/pkg/utils"
	"github.com/aldoetobex/falacomigo-backend/pkg/validation"
)

// ===== DTOs =====

type TopicRequest struct {
	ID   string `json:"id" validate:"required,max=40"`
	Name string `json:"name" validate:"required,max=120"`
}

type PackageRequest struct {
	ID       string          `json:"id" validate:"required,max=40"`
	Name     string          `json:"name" validate:"required,max=120"`
	Type     string          `json:"type" validate:"omitempty,oneof=STANDARD FOLLOW_UP"`
	Price    decimal.Decimal `json:"price"`
	Duration int             `json:"duration" validate:"gte=0"`
	Unit     string          `json:"unit" validate:"max=20"`
}

type CreateOrderRequest struct {
	Topic             TopicRequest   `json:"topic"`
	Pkg               PackageRequest `json:"pkg"`
	ConsultationType  string         `json:"consultationType" validate:"required,oneof=digital phone"`
	ClientPhoneNumber string         `json:"clientPhoneNumber" validate:"required,mzphone"`
	SelectedLawyerID  string         `json:"selectedLawyerId" validate:"max=40"`
	ParentOrderID     string         `json:"parentOrderId" validate:"omitempty,uuid"`
	TermsAccepted     bool           `json:"termsAccepted"`
}

type AssignRequest struct {
	LawyerID string `json:"lawyerId" validate:"required,uuid"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type LawyerSummary struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Specialty string    `json:"specialty"`
	OAMNumber string    `json:"oamNumber"`
	Rating    float64   `json:"rating"`
	IsOnline  bool      `json:"isOnline"`
}

type OrderResponse struct {
	ID                   uuid.UUID               `json:"id"`
	HumanID              string                  `json:"humanId"`
	ClientID             uuid.UUID               `json:"clientId"`
	Topic                models.Topic            `json:"topic"`
	Pkg                  models.Package          `json:"pkg"`
	ConsultationType     models.ConsultationType `json:"consultationType"`
	Status               models.OrderStatus      `json:"status"`
	PaymentStatus        models.PaymentStatus    `json:"paymentStatus"`
	PaymentMethod        string                  `json:"paymentMethod,omitempty"`
	TransactionReference string                  `json:"transactionReference,omitempty"`
	ParentOrderID        *uuid.UUID              `json:"parentOrderId,omitempty"`
	CreatedAt            time.Time               `json:"createdAt"`
	UpdatedAt            time.Time               `json:"updatedAt"`
}

type AssignmentResponse struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"orderId"`
	LawyerID   uuid.UUID `json:"lawyerId"`
	AssignedAt time.Time `json:"assignedAt"`
}

type CreateOrderResponse struct {
	Order         OrderResponse      `json:"order"`
	OrderID       uuid.UUID          `json:"orderId"`
	HumanID       string             `json:"humanId"`
	LawyerID      uuid.UUID          `json:"lawyerId"`
	Lawyer        LawyerSummary      `json:"lawyer"`
	Assignment    AssignmentResponse `json:"assignment"`
	PaymentStatus string             `json:"paymentStatus"`
}

type SessionResponse struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

type PaymentSummary struct {
	TransactionID string           `json:"transactionId"`
	Amount        decimal.Decimal  `json:"amount"`
	Method        string           `json:"method"`
	ClientName    string           `json:"clientName,omitempty"`
	Status        models.PayStatus `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	ConfirmedAt   *time.Time       `json:"confirmedAt,omitempty"`
}

type OrderDetailResponse struct {
	OrderResponse
	Lawyer     *LawyerSummary   `json:"lawyer,omitempty"`
	AssignedAt *time.Time       `json:"assignedAt,omitempty"`
	Session    *SessionResponse `json:"session,omitempty"`
	Payments   []PaymentSummary `json:"payments"`
	Rating     *int             `json:"rating,omitempty"`
}

func toOrderResponse(o *models.Order) OrderResponse {
	return OrderResponse{
		ID:                   o.ID,
		HumanID:              o.HumanID,
		ClientID:             o.ClientID,
		Topic:                o.Topic.Data(),
		Pkg:                  o.Package.Data(),
		ConsultationType:     o.ConsultationType,
		Status:               o.Status,
		PaymentStatus:        o.PaymentStatus,
		PaymentMethod:        o.PaymentMethod,
		TransactionReference: o.TransactionReference,
		ParentOrderID:        o.ParentOrderID,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func toLawyerSummary(l *models.Lawyer) LawyerSummary {
	return LawyerSummary{
		ID:        l.ID,
		FullName:  l.FullName,
		Specialty: l.Specialty,
		OAMNumber: l.OAMNumber,
		Rating:    l.Rating,
		IsOnline:  l.IsOnline,
	}
}

func toAssignmentResponse(a *models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:         a.ID,
		OrderID:    a.OrderID,
		LawyerID:   a.LawyerID,
		AssignedAt: a.AssignedAt,
	}
}

func toDetailResponse(d *Detail) OrderDetailResponse {
	out := OrderDetailResponse{OrderResponse: toOrderResponse(&d.Order), Payments: []PaymentSummary{}}
	if d.Lawyer != nil {
		ls := toLawyerSummary(d.Lawyer)
		out.Lawyer = &ls
	}
	if d.Assignment != nil {
		at := d.Assignment.AssignedAt
		out.AssignedAt = &at
	}
	if d.Session != nil {
		out.Session = &SessionResponse{StartTime: d.Session.StartTime, EndTime: d.Session.EndTime}
	}
	for _, p := range d.Payments {
		out.Payments = append(out.Payments, PaymentSummary{
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			Method:        p.Method,
			ClientName:    p.ClientName,
			Status:        p.Status,
			CreatedAt:     p.CreatedAt,
			ConfirmedAt:   p.ConfirmedAt,
		})
	}
	if d.Rating != nil {
		stars := d.Rating.Stars
		out.Rating = &stars
	}
	return out
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func parseOrderID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, ErrOrderNotFound
	}
	return id, nil
}

// Create Order godoc
// @Summary      Create consultation
// @Description  Client orders a consultation; the lawyer is chosen or auto-assigned by topic
// @Tags         consultations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateOrderRequest  true  "Order payload"
// @Success      201  {object}  CreateOrderResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "no lawyer available"
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateOrderRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Topic.Name = strings.TrimSpace(in.Topic.Name)
	in.ClientPhoneNumber = strings.TrimSpace(in.ClientPhoneNumber)

	errs, _ := validation.Validate(in)
	if !in.Pkg.Price.IsPositive() {
		if errs == nil {
			errs = map[string][]string{}
		}
		errs["price"] = append(errs["price"], "Must be greater than 0")
	}
	if errs != nil {
		return validation.Respond(c, errs)
	}

	var parent *uuid.UUID
	if in.ParentOrderID != "" {
		id := uuid.MustParse(in.ParentOrderID)
		parent = &id
	}

	out, err := h.svc.Create(c.UserContext(), auth.MustCaller(c), CreateInput{
		Topic: models.Topic{ID: in.Topic.ID, Name: in.Topic.Name},
		Package: models.Package{
			ID:       in.Pkg.ID,
			Name:     in.Pkg.Name,
			Type:     in.Pkg.Type,
			Price:    in.Pkg.Price,
			Duration: in.Pkg.Duration,
			Unit:     in.Pkg.Unit,
		},
		ConsultationType: models.ConsultationType(in.ConsultationType),
		ClientPhone:      in.ClientPhoneNumber,
		LawyerSelection:  in.SelectedLawyerID,
		ParentOrderID:    parent,
		TermsAccepted:    in.TermsAccepted,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(CreateOrderResponse{
		Order:         toOrderResponse(&out.Order),
		OrderID:       out.Order.ID,
		HumanID:       out.Order.HumanID,
		LawyerID:      out.Lawyer.ID,
		Lawyer:        toLawyerSummary(&out.Lawyer),
		Assignment:    toAssignmentResponse(&out.Assignment),
		PaymentStatus: string(out.Order.PaymentStatus),
	})
}

// List My Orders godoc
// @Summary      List my consultations
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        status    query string false "status filter"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[OrderResponse]
// @Router       /consultations/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	return h.list(c, h.svc.ListForClient)
}

// List Assigned Orders godoc
// @Summary      List consultations assigned to me
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        status    query string false "status filter"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[OrderResponse]
// @Router       /consultations/assigned [get]
func (h *Handler) ListAssigned(c *fiber.Ctx) error {
	return h.list(c, h.svc.ListForLawyer)
}

type lister func(ctx context.Context, id uuid.UUID, f ListFilter) ([]models.Order, int64, error)

func (h *Handler) list(c *fiber.Ctx, fn lister) error {
	page, size := utils.ParsePage(c)
	status := models.OrderStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return validation.Respond(c, map[string][]string{"status": {"Value is not allowed"}})
	}

	rows, total, err := fn(c.UserContext(), auth.MustCaller(c).ID, ListFilter{Status: status, Page: page, PageSize: size})
	if err != nil {
		return err
	}
	items := make([]OrderResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toOrderResponse(&rows[i]))
	}
	return c.JSON(models.NewPage(items, page, size, total))
}

// Get Order godoc
// @Summary      Consultation detail
// @Description  Visible to the owning client, the assigned lawyer and admins
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Order ID"
// @Success      200  {object}  OrderDetailResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /consultations/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := parseOrderID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.UserContext(), auth.MustCaller(c), id)
	if err != nil {
		return err
	}
	return c.JSON(toDetailResponse(d))
}

// Assign Lawyer godoc
// @Summary      Assign or reassign lawyer
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "Order ID"
// @Param        payload  body  AssignRequest  true  "lawyer"
// @Success      200  {object}  OrderDetailResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/assign [post]
func (h *Handler) Assign(c *fiber.Ctx) error {
	id, err := parseOrderID(c)
	if err != nil {
		return err
	}
	var in AssignRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	d, err := h.svc.Assign(c.UserContext(), auth.MustCaller(c), id, uuid.MustParse(in.LawyerID))
	if err != nil {
		return err
	}
	return c.JSON(toDetailResponse(d))
}

// Start Session godoc
// @Summary      Start consultation
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Order ID"
// @Success      200  {object}  OrderDetailResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/start [post]
func (h *Handler) Start(c *fiber.Ctx) error {
	id, err := parseOrderID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.StartSession(c.UserContext(), auth.MustCaller(c), id)
	if err != nil {
		return err
	}
	return c.JSON(toDetailResponse(d))
}

// Finish Session godoc
// @Summary      Finish consultation
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Order ID"
// @Success      200  {object}  OrderDetailResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/finish [post]
func (h *Handler) Finish(c *fiber.Ctx) error {
	id, err := parseOrderID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Finish(c.UserContext(), auth.MustCaller(c), id)
	if err != nil {
		return err
	}
	return c.JSON(toDetailResponse(d))
}

// Cancel Order godoc
// @Summary      Cancel consultation
// @Tags         consultations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true   "Order ID"
// @Param        payload  body  CancelRequest  false  "reason"
// @Success      200  {object}  OrderResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	id, err := parseOrderID(c)
	if err != nil {
		return err
	}
	var in CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	o, err := h.svc.Cancel(c.UserContext(), auth.MustCaller(c), id, in.Reason)
	if err != nil {
		return err
	}
	return c.JSON(toOrderResponse(o))
}
