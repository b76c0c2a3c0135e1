package orders

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/events"
	"github.com/aldoetobex/falacomigo-backend/internal/lawyers"
	"github.com/aldoetobex/falacomigo-backend/pkg/database"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
	"github.com/aldoetobex/falacomigo-backend/pkg/utils"
)

const humanIDAttempts = 5

// Policy holds the deployment-wide order rules.
type Policy struct {
	// AutoConfirmPayment marks every new order as paid and binds the lawyer at
	// creation. Off by default: orders wait for the M-Pesa ledger.
	AutoConfirmPayment bool
}

type Service struct {
	db       *gorm.DB
	resolver *lawyers.Resolver
	events   events.Publisher
	log      *zap.Logger
	policy   Policy

	now        func() time.Time
	newHumanID func() string
}

func NewService(db *gorm.DB, resolver *lawyers.Resolver, pub events.Publisher, log *zap.Logger, policy Policy) *Service {
	return &Service{
		db:         db,
		resolver:   resolver,
		events:     pub,
		log:        log,
		policy:     policy,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newHumanID: func() string { return fmt.Sprintf("FC-%06d", rand.IntN(1_000_000)) },
	}
}

func (s *Service) Policy() Policy { return s.policy }

/* ================================ Create ================================ */

type CreateInput struct {
	Topic            models.Topic
	Package          models.Package
	ConsultationType models.ConsultationType
	ClientPhone      string
	// LawyerSelection is a lawyer ID, or "" / "auto" to let the resolver pick.
	LawyerSelection string
	ParentOrderID   *uuid.UUID
	TermsAccepted   bool
}

// Created is the result of a successful order creation.
type Created struct {
	Order      models.Order
	Lawyer     models.Lawyer
	Assignment models.Assignment
}

// Create stores a new order with its lawyer bound in one transaction.
func (s *Service) Create(ctx context.Context, caller models.Caller, in CreateInput) (*Created, error) {
	if !in.Package.Price.IsPositive() {
		return nil, ErrInvalidPackage
	}
	if strings.EqualFold(in.Package.Type, models.PackageFollowUp) && !in.TermsAccepted {
		return nil, ErrTermsRequired
	}

	lawyer, err := s.resolver.Resolve(ctx, in.LawyerSelection, in.Topic)
	if err != nil {
		return nil, err
	}

	var out *Created
	for attempt := 0; attempt < humanIDAttempts; attempt++ {
		out, err = s.create(ctx, caller, in, lawyer)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		s.log.Debug("order reference collision, retrying", zap.Int("attempt", attempt+1))
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrHumanIDExhausted.WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	evs := []events.Event{events.ForOrder(events.OrderCreated, &out.Order, out.Order.CreatedAt)}
	if out.Order.Status == models.OrderAssigned {
		ev := events.ForOrder(events.OrderAssigned, &out.Order, out.Order.CreatedAt)
		ev.LawyerID = &out.Lawyer.ID
		evs = append(evs, ev)
	}
	events.Emit(ctx, s.events, s.log, evs...)

	s.log.Info("order created",
		zap.String("order_id", out.Order.ID.String()),
		zap.String("human_id", out.Order.HumanID),
		zap.String("lawyer_id", out.Lawyer.ID.String()),
		zap.String("status", string(out.Order.Status)),
	)
	return out, nil
}

func (s *Service) create(ctx context.Context, caller models.Caller, in CreateInput, lawyer *models.Lawyer) (*Created, error) {
	now := s.now()
	out := &Created{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var client models.User
		if err := tx.First(&client, "id = ?", caller.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClientNotFound
			}
			return errors.Wrap(err, "load client")
		}
		if !client.IsActive {
			return ErrClientInactive
		}

		if in.ParentOrderID != nil {
			var parent models.Order
			if err := tx.First(&parent, "id = ?", *in.ParentOrderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrParentNotFound
				}
				return errors.Wrap(err, "load parent order")
			}
			if parent.ClientID != client.ID {
				return ErrNotOrderOwner
			}
		}

		// re-read inside the transaction: the lawyer may have been disabled
		// since resolution
		var l models.Lawyer
		if err := tx.First(&l, "id = ?", lawyer.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return lawyers.ErrLawyerNotFound
			}
			return errors.Wrap(err, "load lawyer")
		}
		if !l.Eligible() {
			return lawyers.ErrLawyerUnavailable
		}

		o := models.Order{
			HumanID:          s.newHumanID(),
			ClientID:         client.ID,
			Topic:            datatypes.NewJSONType(in.Topic),
			Package:          datatypes.NewJSONType(in.Package),
			ConsultationType: in.ConsultationType,
			ClientPhone:      in.ClientPhone,
			Status:           models.OrderPendingPayment,
			PaymentStatus:    models.PaymentPending,
			ParentOrderID:    in.ParentOrderID,
			TermsAccepted:    in.TermsAccepted,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if s.policy.AutoConfirmPayment {
			o.PaymentStatus = models.PaymentConfirmed
			o.PaymentMethod = models.MethodAuto
		}
		if err := tx.Create(&o).Error; err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := utils.LogOrderHistory(ctx, tx, o.ID, caller.ID, "created", "", o.Status, ""); err != nil {
			return err
		}

		asg, err := upsertAssignment(tx, o.ID, l.ID, now)
		if err != nil {
			return err
		}

		if s.policy.AutoConfirmPayment {
			if err := Transition(ctx, tx, &o, models.EventLawyerBound, caller.ID, "payment auto-confirmed", now); err != nil {
				return err
			}
		}

		out.Order, out.Lawyer, out.Assignment = o, l, *asg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// upsertAssignment keeps exactly one assignment per order: the first bind
// inserts, later binds replace the lawyer.
func upsertAssignment(tx *gorm.DB, orderID, lawyerID uuid.UUID, now time.Time) (*models.Assignment, error) {
	var asg models.Assignment
	err := tx.Where("order_id = ?", orderID).First(&asg).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		asg = models.Assignment{OrderID: orderID, LawyerID: lawyerID, AssignedAt: now}
		if err := tx.Create(&asg).Error; err != nil {
			return nil, errors.Wrap(err, "insert assignment")
		}
	case err != nil:
		return nil, errors.Wrap(err, "load assignment")
	default:
		if err := tx.Model(&asg).Updates(map[string]any{"lawyer_id": lawyerID, "assigned_at": now}).Error; err != nil {
			return nil, errors.Wrap(err, "update assignment")
		}
		asg.LawyerID, asg.AssignedAt = lawyerID, now
	}
	return &asg, nil
}

/* =============================== Payment ================================ */

// ApplyPaymentConfirmed runs inside the ledger's confirmation transaction,
// with o locked. It mirrors the payment on the order and, when a lawyer is
// already bound, completes the assignment in the same step.
func (s *Service) ApplyPaymentConfirmed(ctx context.Context, tx *gorm.DB, o *models.Order, now time.Time) ([]events.Event, error) {
	if o.PaymentStatus == models.PaymentConfirmed {
		return nil, nil
	}

	if err := tx.WithContext(ctx).Model(&models.Order{}).Where("id = ?", o.ID).
		Updates(map[string]any{"payment_status": models.PaymentConfirmed, "payment_method": models.MethodMpesa, "updated_at": now}).Error; err != nil {
		return nil, errors.Wrap(err, "mark order paid")
	}
	o.PaymentStatus = models.PaymentConfirmed
	o.PaymentMethod = models.MethodMpesa

	if o.Status != models.OrderPendingPayment {
		// money arrived after the order left pending_payment (e.g. cancelled)
		s.log.Warn("payment confirmed for an order no longer awaiting payment, refund required",
			zap.String("order_id", o.ID.String()),
			zap.String("status", string(o.Status)),
		)
		return nil, utils.LogOrderHistory(ctx, tx, o.ID, models.SystemActor, "payment_confirmed_late", o.Status, o.Status, "refund required")
	}

	if err := Transition(ctx, tx, o, models.EventPaymentConfirmed, models.SystemActor, "", now); err != nil {
		return nil, err
	}

	var asg models.Assignment
	err := tx.WithContext(ctx).Where("order_id = ?", o.ID).First(&asg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load assignment")
	}

	var l models.Lawyer
	if err := tx.WithContext(ctx).First(&l, "id = ?", asg.LawyerID).Error; err != nil {
		return nil, errors.Wrap(err, "load bound lawyer")
	}
	if !l.Eligible() {
		s.log.Warn("bound lawyer no longer eligible, order left for manual assignment",
			zap.String("order_id", o.ID.String()),
			zap.String("lawyer_id", l.ID.String()),
		)
		return nil, nil
	}

	if err := Transition(ctx, tx, o, models.EventLawyerBound, models.SystemActor, "payment confirmed", now); err != nil {
		return nil, err
	}
	ev := events.ForOrder(events.OrderAssigned, o, now)
	ev.LawyerID = &asg.LawyerID
	return []events.Event{ev}, nil
}

/* ================================ Assign ================================ */

// Assign binds (or rebinds) a lawyer chosen by an administrator.
func (s *Service) Assign(ctx context.Context, caller models.Caller, orderID, lawyerID uuid.UUID) (*Detail, error) {
	lawyer, err := s.resolver.Manual(ctx, lawyerID)
	if err != nil {
		return nil, err
	}
	if !lawyer.Eligible() {
		return nil, lawyers.ErrLawyerUnavailable
	}

	now := s.now()
	var (
		o   models.Order
		asg *models.Assignment
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOrder(tx, orderID, &o); err != nil {
			return err
		}
		if !o.Status.Open() {
			return ErrOrderClosed
		}

		var err error
		if asg, err = upsertAssignment(tx, o.ID, lawyer.ID, now); err != nil {
			return err
		}
		if err := utils.LogOrderHistory(ctx, tx, o.ID, caller.ID, "lawyer_assigned", o.Status, o.Status, lawyer.ID.String()); err != nil {
			return err
		}

		if o.Status == models.OrderPendingAssignment && o.PaymentStatus == models.PaymentConfirmed {
			return Transition(ctx, tx, &o, models.EventLawyerBound, caller.ID, "assigned by admin", now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := events.ForOrder(events.OrderAssigned, &o, now)
	ev.LawyerID = &lawyer.ID
	events.Emit(ctx, s.events, s.log, ev)

	return &Detail{Order: o, Assignment: asg, Lawyer: lawyer}, nil
}

/* =========================== Session lifecycle ========================== */

// StartSession is called by the assigned lawyer when the consultation begins.
func (s *Service) StartSession(ctx context.Context, caller models.Caller, orderID uuid.UUID) (*Detail, error) {
	now := s.now()
	d := &Detail{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		asg, err := s.lockForLawyer(tx, caller, orderID, &d.Order)
		if err != nil {
			return err
		}
		if err := Transition(ctx, tx, &d.Order, models.EventSessionStarted, caller.ID, "", now); err != nil {
			return err
		}

		sess := models.Session{AssignmentID: asg.ID, StartTime: now}
		if err := tx.Create(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrStaleState
			}
			return errors.Wrap(err, "insert session")
		}
		d.Assignment, d.Session = asg, &sess
		return loadLawyer(tx, d)
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, s.log, events.ForOrder(events.OrderSessionStarted, &d.Order, now))
	return d, nil
}

// Finish closes the session and asks the client for a rating.
func (s *Service) Finish(ctx context.Context, caller models.Caller, orderID uuid.UUID) (*Detail, error) {
	now := s.now()
	d := &Detail{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		asg, err := s.lockForLawyer(tx, caller, orderID, &d.Order)
		if err != nil {
			return err
		}
		if err := Transition(ctx, tx, &d.Order, models.EventWorkFinished, caller.ID, "", now); err != nil {
			return err
		}

		if err := tx.Model(&models.Session{}).
			Where("assignment_id = ? AND end_time IS NULL", asg.ID).
			Update("end_time", now).Error; err != nil {
			return errors.Wrap(err, "close session")
		}
		var sess models.Session
		if err := tx.Where("assignment_id = ?", asg.ID).First(&sess).Error; err == nil {
			d.Session = &sess
		}
		d.Assignment = asg
		return loadLawyer(tx, d)
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, s.log, events.ForOrder(events.OrderFinished, &d.Order, now))
	return d, nil
}

// lockForLawyer loads and locks the order, then checks that caller is its
// assigned lawyer (or an admin).
func (s *Service) lockForLawyer(tx *gorm.DB, caller models.Caller, orderID uuid.UUID, o *models.Order) (*models.Assignment, error) {
	if err := lockOrder(tx, orderID, o); err != nil {
		return nil, err
	}
	var asg models.Assignment
	if err := tx.Where("order_id = ?", o.ID).First(&asg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if caller.IsLawyer() {
				return nil, ErrNotAssignedLawyer
			}
			return nil, ErrNoAssignment
		}
		return nil, errors.Wrap(err, "load assignment")
	}
	if !caller.IsAdmin() && asg.LawyerID != caller.ID {
		return nil, ErrNotAssignedLawyer
	}
	return &asg, nil
}

func loadLawyer(tx *gorm.DB, d *Detail) error {
	var l models.Lawyer
	if err := tx.First(&l, "id = ?", d.Assignment.LawyerID).Error; err != nil {
		return errors.Wrap(err, "load lawyer")
	}
	d.Lawyer = &l
	return nil
}

/* ================================ Cancel ================================ */

// Cancel is available to the owning client and to admins before the session starts.
func (s *Service) Cancel(ctx context.Context, caller models.Caller, orderID uuid.UUID, reason string) (*models.Order, error) {
	now := s.now()
	var o models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOrder(tx, orderID, &o); err != nil {
			return err
		}
		if !caller.IsAdmin() && o.ClientID != caller.ID {
			return ErrNotOrderOwner
		}
		return Transition(ctx, tx, &o, models.EventCancelled, caller.ID, strings.TrimSpace(reason), now)
	})
	if err != nil {
		return nil, err
	}

	if o.PaymentStatus == models.PaymentConfirmed {
		s.log.Warn("paid order cancelled, refund required", zap.String("order_id", o.ID.String()))
	}
	events.Emit(ctx, s.events, s.log, events.ForOrder(events.OrderCancelled, &o, now))
	return &o, nil
}

/* ================================= Read ================================= */

// Detail is an order with everything bound to it.
type Detail struct {
	Order      models.Order
	Assignment *models.Assignment
	Lawyer     *models.Lawyer
	Session    *models.Session
	Payments   []models.Payment
	Rating     *models.Rating
}

// Get returns the order if caller is its client, its lawyer or an admin.
func (s *Service) Get(ctx context.Context, caller models.Caller, orderID uuid.UUID) (*Detail, error) {
	db := s.db.WithContext(ctx)
	d := &Detail{}

	if err := db.First(&d.Order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "load order")
	}

	var asg models.Assignment
	if err := db.Where("order_id = ?", orderID).First(&asg).Error; err == nil {
		d.Assignment = &asg
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "load assignment")
	}

	switch {
	case caller.IsAdmin():
	case caller.IsClient() && d.Order.ClientID == caller.ID:
	case caller.IsLawyer() && d.Assignment != nil && d.Assignment.LawyerID == caller.ID:
	default:
		return nil, ErrNotOrderOwner
	}

	if d.Assignment != nil {
		var l models.Lawyer
		if err := db.First(&l, "id = ?", d.Assignment.LawyerID).Error; err == nil {
			d.Lawyer = &l
		}
		var sess models.Session
		if err := db.Where("assignment_id = ?", d.Assignment.ID).First(&sess).Error; err == nil {
			d.Session = &sess
		}
	}

	if err := db.Where("order_id = ?", orderID).Order("created_at DESC").Find(&d.Payments).Error; err != nil {
		return nil, errors.Wrap(err, "load payments")
	}
	var r models.Rating
	if err := db.Where("order_id = ?", orderID).First(&r).Error; err == nil {
		d.Rating = &r
	}
	return d, nil
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status   models.OrderStatus
	Page     int
	PageSize int
}

// ListForClient returns the client's orders, newest first.
func (s *Service) ListForClient(ctx context.Context, clientID uuid.UUID, f ListFilter) ([]models.Order, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Order{}).Where("client_id = ?", clientID)
	return s.list(q, f)
}

// ListForLawyer returns the orders currently bound to the lawyer.
func (s *Service) ListForLawyer(ctx context.Context, lawyerID uuid.UUID, f ListFilter) ([]models.Order, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Joins("JOIN assignments ON assignments.order_id = orders.id").
		Where("assignments.lawyer_id = ?", lawyerID)
	return s.list(q, f)
}

func (s *Service) list(q *gorm.DB, f ListFilter) ([]models.Order, int64, error) {
	if f.Status != "" {
		q = q.Where("orders.status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	var rows []models.Order
	if err := q.Order("orders.created_at DESC").
		Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return rows, total, nil
}

func lockOrder(tx *gorm.DB, id uuid.UUID, o *models.Order) error {
	if err := database.ForUpdate(tx).First(o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return errors.Wrap(err, "lock order")
	}
	return nil
}

// LockOrder loads and row-locks an order inside tx.
func LockOrder(tx *gorm.DB, id uuid.UUID, o *models.Order) error { return lockOrder(tx, id, o) }
