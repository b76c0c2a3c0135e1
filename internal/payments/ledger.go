package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/events"
	"github.com/aldoetobex/falacomigo-backend/internal/mpesa"
	"github.com/aldoetobex/falacomigo-backend/internal/orders"
	"github.com/aldoetobex/falacomigo-backend/pkg/apperr"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

var (
	ErrPaymentNotFound = apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found")
	ErrAlreadyPaid     = apperr.Conflict("ALREADY_PAID", "order is already paid")
	ErrNotPayable      = apperr.Conflict("ORDER_NOT_PAYABLE", "order is not awaiting payment")
	ErrAmountMismatch  = apperr.InvalidInput("AMOUNT_MISMATCH", "amount must equal the package price")
	ErrInvalidWebhook  = apperr.InvalidInput("INVALID_CALLBACK", "callback does not name a transaction")
)

// Gateway is the payment provider as seen by the ledger.
type Gateway interface {
	Initiate(ctx context.Context, phone string, amount decimal.Decimal, reference string) (*mpesa.InitiateResult, error)
	CheckStatus(ctx context.Context, transactionID string) (models.PaymentStatus, error)
}

// PollThrottle limits how often one transaction is re-queried at the provider.
type PollThrottle interface {
	AllowPoll(ctx context.Context, key string, interval time.Duration) (bool, error)
}

type Options struct {
	Throttle     PollThrottle
	PollInterval time.Duration
}

// Ledger records payment attempts and reconciles them with the provider.
// Every path that can confirm a payment goes through confirm, whose
// conditional update lets exactly one caller win.
type Ledger struct {
	db      *gorm.DB
	gateway Gateway
	orders  *orders.Service
	events  events.Publisher
	log     *zap.Logger

	throttle     PollThrottle
	pollInterval time.Duration
	now          func() time.Time
}

func NewLedger(db *gorm.DB, gw Gateway, svc *orders.Service, pub events.Publisher, log *zap.Logger, opts Options) *Ledger {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Ledger{
		db:           db,
		gateway:      gw,
		orders:       svc,
		events:       pub,
		log:          log,
		throttle:     opts.Throttle,
		pollInterval: opts.PollInterval,
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Receipt is the caller-facing view of a payment.
type Receipt struct {
	TransactionID string
	OrderID       uuid.UUID
	Status        models.PaymentStatus
	Amount        decimal.Decimal
	ClientName    string
	PhoneNumber   string
	Method        string
	ConfirmedAt   *time.Time
	Message       string
}

func receiptOf(p *models.Payment) *Receipt {
	r := &Receipt{
		TransactionID: p.TransactionID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		ClientName:    p.ClientName,
		PhoneNumber:   p.PhoneNumber,
		Method:        p.Method,
		ConfirmedAt:   p.ConfirmedAt,
		Message:       p.Description,
	}
	switch p.Status {
	case models.PayCompleted:
		r.Status = models.PaymentConfirmed
	case models.PayFailed:
		r.Status = models.PaymentFailed
	default:
		r.Status = models.PaymentPending
	}
	return r
}

/* =============================== Initiate =============================== */

type InitiateInput struct {
	OrderID uuid.UUID
	Phone   string
	// Amount defaults to the package price when zero.
	Amount    decimal.Decimal
	Reference string
}

// Initiate validates the order, asks the provider for a C2B push and records
// the pending payment. Nothing is written when the provider call fails.
func (l *Ledger) Initiate(ctx context.Context, caller models.Caller, in InitiateInput) (*Receipt, error) {
	var o models.Order
	if err := l.db.WithContext(ctx).First(&o, "id = ?", in.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orders.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "load order")
	}
	if !caller.IsAdmin() && o.ClientID != caller.ID {
		return nil, orders.ErrNotOrderOwner
	}
	if o.PaymentStatus == models.PaymentConfirmed {
		return nil, ErrAlreadyPaid
	}
	if o.Status != models.OrderPendingPayment {
		return nil, ErrNotPayable
	}

	price := o.Package.Data().Price
	amount := in.Amount
	if amount.IsZero() {
		amount = price
	} else if !amount.Equal(price) {
		return nil, ErrAmountMismatch
	}

	reference := in.Reference
	if reference == "" {
		reference = o.HumanID
	}

	var payer models.User
	if err := l.db.WithContext(ctx).Select("id", "full_name").First(&payer, "id = ?", o.ClientID).Error; err != nil {
		return nil, errors.Wrap(err, "load payer")
	}

	res, err := l.gateway.Initiate(ctx, in.Phone, amount, reference)
	if err != nil {
		return nil, err
	}

	now := l.now()
	pay := models.Payment{
		OrderID:       o.ID,
		TransactionID: res.TransactionID,
		ClientName:    payer.FullName,
		PhoneNumber:   res.MSISDN,
		Amount:        amount,
		Method:        models.MethodMpesa,
		Status:        models.PayPending,
		Description:   res.Message,
		CreatedAt:     now,
	}
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&pay).Error; err != nil {
			return errors.Wrap(err, "insert payment")
		}
		upd := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND payment_status <> ?", o.ID, models.OrderPendingPayment, models.PaymentConfirmed).
			Updates(map[string]any{
				"payment_status":        models.PaymentPending,
				"payment_method":        models.MethodMpesa,
				"transaction_reference": pay.TransactionID,
				"updated_at":            now,
			})
		if upd.Error != nil {
			return errors.Wrap(upd.Error, "mark order awaiting payment")
		}
		if upd.RowsAffected == 0 {
			return ErrNotPayable
		}
		return nil
	})
	if err != nil {
		l.log.Warn("payment initiated at provider but not recorded",
			zap.String("transaction_id", res.TransactionID),
			zap.String("order_id", o.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	l.log.Info("payment initiated",
		zap.String("transaction_id", pay.TransactionID),
		zap.String("order_id", o.ID.String()),
		zap.String("amount", amount.String()),
	)
	r := receiptOf(&pay)
	r.Message = res.Message
	return r, nil
}

/* ============================== CheckStatus ============================= */

// CheckStatus answers from the ledger when the payment is settled, otherwise
// asks the provider and applies what it reports.
func (l *Ledger) CheckStatus(ctx context.Context, caller models.Caller, transactionID string) (*Receipt, error) {
	pay, err := l.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		var o models.Order
		if err := l.db.WithContext(ctx).Select("id", "client_id").First(&o, "id = ?", pay.OrderID).Error; err != nil {
			return nil, errors.Wrap(err, "load order")
		}
		if o.ClientID != caller.ID {
			return nil, orders.ErrNotOrderOwner
		}
	}

	if pay.Status != models.PayPending {
		return receiptOf(pay), nil
	}

	if l.throttle != nil {
		ok, err := l.throttle.AllowPoll(ctx, transactionID, l.pollInterval)
		if err != nil {
			// never block reconciliation on the cache
			l.log.Warn("poll throttle unavailable", zap.Error(err))
			ok = true
		}
		if !ok {
			return receiptOf(pay), nil
		}
	}

	st, err := l.gateway.CheckStatus(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	switch st {
	case models.PaymentConfirmed:
		r, _, err := l.confirm(ctx, transactionID, "")
		return r, err
	case models.PaymentFailed:
		r, _, err := l.fail(ctx, transactionID, "reported failed by provider")
		return r, err
	default:
		return receiptOf(pay), nil
	}
}

/* ================================ Webhook =============================== */

// HandleWebhook applies a provider callback. Replays are harmless: a payment
// that already left pending is not touched again.
func (l *Ledger) HandleWebhook(ctx context.Context, body []byte) (*Receipt, error) {
	cb := mpesa.ParseWebhook(body)
	if !cb.Valid {
		l.log.Warn("mpesa callback without transaction reference", zap.ByteString("body", body))
		return nil, ErrInvalidWebhook
	}

	var (
		r   *Receipt
		err error
	)
	if cb.Status == models.PaymentConfirmed {
		r, _, err = l.confirm(ctx, cb.TransactionID, cb.ProviderTransactionID)
	} else {
		r, _, err = l.fail(ctx, cb.TransactionID, cb.Description)
	}
	if err != nil {
		l.log.Warn("mpesa callback not applied",
			zap.String("transaction_id", cb.TransactionID),
			zap.Error(err),
		)
	}
	return r, err
}

// SimulateComplete confirms a pending payment without the provider. Only
// wired in development with the sandbox gateway.
func (l *Ledger) SimulateComplete(ctx context.Context, transactionID string) (*Receipt, error) {
	r, _, err := l.confirm(ctx, transactionID, "SIM-"+transactionID)
	return r, err
}

/* =============================== Internals ============================== */

func (l *Ledger) load(ctx context.Context, transactionID string) (*models.Payment, error) {
	var pay models.Payment
	if err := l.db.WithContext(ctx).First(&pay, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, errors.Wrap(err, "load payment")
	}
	return &pay, nil
}

// confirm moves a pending payment to completed and applies the order side
// effects in the same transaction. won is false when someone else got there
// first (or the payment had already failed); the stored state is returned.
func (l *Ledger) confirm(ctx context.Context, transactionID, providerTxID string) (r *Receipt, won bool, err error) {
	now := l.now()
	var (
		pay models.Payment
		evs []events.Event
	)

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": models.PayCompleted, "confirmed_at": now}
		if providerTxID != "" {
			updates["provider_transaction_id"] = providerTxID
		}
		res := tx.Model(&models.Payment{}).
			Where("transaction_id = ? AND status = ?", transactionID, models.PayPending).
			Updates(updates)
		if res.Error != nil {
			return errors.Wrap(res.Error, "complete payment")
		}

		if err := tx.First(&pay, "transaction_id = ?", transactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return errors.Wrap(err, "reload payment")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		won = true

		var o models.Order
		if err := orders.LockOrder(tx, pay.OrderID, &o); err != nil {
			return err
		}
		more, err := l.orders.ApplyPaymentConfirmed(ctx, tx, &o, now)
		if err != nil {
			return err
		}

		ev := events.ForOrder(events.PaymentConfirmed, &o, now)
		ev.TransactionID = transactionID
		evs = append([]events.Event{ev}, more...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if won {
		l.log.Info("payment confirmed",
			zap.String("transaction_id", transactionID),
			zap.String("order_id", pay.OrderID.String()),
		)
		events.Emit(ctx, l.events, l.log, evs...)
	}
	return receiptOf(&pay), won, nil
}

// fail marks a pending payment failed and mirrors it on the order.
func (l *Ledger) fail(ctx context.Context, transactionID, reason string) (r *Receipt, won bool, err error) {
	now := l.now()
	var (
		pay models.Payment
		o   models.Order
	)

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("transaction_id = ? AND status = ?", transactionID, models.PayPending).
			Updates(map[string]any{"status": models.PayFailed, "description": reason})
		if res.Error != nil {
			return errors.Wrap(res.Error, "fail payment")
		}
		if err := tx.First(&pay, "transaction_id = ?", transactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return errors.Wrap(err, "reload payment")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		won = true

		if err := orders.LockOrder(tx, pay.OrderID, &o); err != nil {
			return err
		}
		// a later successful attempt may already have paid the order
		if o.PaymentStatus == models.PaymentConfirmed {
			return nil
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", o.ID).
			Updates(map[string]any{"payment_status": models.PaymentFailed, "updated_at": now}).Error; err != nil {
			return errors.Wrap(err, "mark order payment failed")
		}
		o.PaymentStatus = models.PaymentFailed
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if won {
		l.log.Info("payment failed",
			zap.String("transaction_id", transactionID),
			zap.String("reason", reason),
		)
		ev := events.ForOrder(events.PaymentFailed, &o, now)
		ev.OrderID = pay.OrderID
		ev.TransactionID = transactionID
		events.Emit(ctx, l.events, l.log, ev)
	}
	return receiptOf(&pay), won, nil
}
