package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/internal/events"
	"github.com/aldoetobex/falacomigo-backend/internal/lawyers"
	"github.com/aldoetobex/falacomigo-backend/internal/mpesa"
	"github.com/aldoetobex/falacomigo-backend/internal/orders"
	"github.com/aldoetobex/falacomigo-backend/internal/testutil"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

type fixture struct {
	db     *gorm.DB
	gw     *testutil.FakeGateway
	rec    *testutil.Recorder
	svc    *orders.Service
	ledger *Ledger

	client models.User
	lawyer models.Lawyer
	order  models.Order
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	f := &fixture{db: db, gw: &testutil.FakeGateway{}, rec: &testutil.Recorder{}}
	f.svc = orders.NewService(db, lawyers.NewResolver(db), f.rec, zap.NewNop(), orders.Policy{})
	f.ledger = NewLedger(db, f.gw, f.svc, f.rec, zap.NewNop(), opts)

	f.client = testutil.NewClient(t, db)
	f.lawyer = testutil.NewLawyer(t, db, "Direito de Família")
	f.order = testutil.NewOrder(t, db, f.client.ID, models.OrderPendingPayment, models.PaymentPending)
	testutil.Bind(t, db, f.order.ID, f.lawyer.ID)
	return f
}

func (f *fixture) caller() models.Caller {
	return models.Caller{ID: f.client.ID, Role: models.RoleClient}
}

func (f *fixture) initiate(t *testing.T) *Receipt {
	t.Helper()
	r, err := f.ledger.Initiate(context.Background(), f.caller(), InitiateInput{OrderID: f.order.ID, Phone: "+258 84 123 4567"})
	require.NoError(t, err)
	return r
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func callback(txID, code string) []byte {
	return []byte(fmt.Sprintf(`{
		"output_ResponseCode": %q,
		"output_ResponseDesc": "Request processed successfully",
		"output_TransactionID": "5C1400CVRO",
		"output_ThirdPartyReference": %q
	}`, code, txID))
}

/* =============================== Initiate =============================== */

func TestInitiate(t *testing.T) {
	f := newFixture(t, Options{})

	r := f.initiate(t)
	assert.Equal(t, models.PaymentPending, r.Status)
	assert.Equal(t, "258841234567", r.PhoneNumber)
	assert.True(t, testutil.Price.Equal(r.Amount), "zero amount means package price")
	assert.Equal(t, 1, f.gw.Initiated)

	pay, err := f.ledger.load(context.Background(), r.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.PayPending, pay.Status)
	assert.Equal(t, f.order.ID, pay.OrderID)
	assert.Equal(t, f.client.FullName, pay.ClientName)
	assert.Equal(t, models.MethodMpesa, pay.Method)
	assert.Equal(t, f.client.FullName, r.ClientName)
	assert.Equal(t, "mpesa", r.Method)

	o := testutil.Reload[models.Order](t, f.db, f.order.ID)
	assert.Equal(t, models.OrderPendingPayment, o.Status)
	assert.Equal(t, "mpesa", o.PaymentMethod)
	assert.Equal(t, r.TransactionID, o.TransactionReference)
}

func TestInitiate_InvalidPhoneWritesNothing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.ledger.Initiate(context.Background(), f.caller(), InitiateInput{OrderID: f.order.ID, Phone: "258871234567"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mpesa.ErrInvalidPhone))

	assert.Zero(t, f.count(t, &models.Payment{}, "order_id = ?", f.order.ID))
	assert.Zero(t, f.gw.Initiated)
	assert.Empty(t, testutil.Reload[models.Order](t, f.db, f.order.ID).PaymentMethod)
}

func TestInitiate_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	t.Run("amount mismatch", func(t *testing.T) {
		_, err := f.ledger.Initiate(ctx, f.caller(), InitiateInput{OrderID: f.order.ID, Phone: "841234567", Amount: decimal.NewFromInt(400)})
		assert.True(t, errors.Is(err, ErrAmountMismatch))
	})

	t.Run("not owner", func(t *testing.T) {
		other := testutil.NewClient(t, f.db)
		_, err := f.ledger.Initiate(ctx, models.Caller{ID: other.ID, Role: models.RoleClient}, InitiateInput{OrderID: f.order.ID, Phone: "841234567"})
		assert.True(t, errors.Is(err, orders.ErrNotOrderOwner))
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.ledger.Initiate(ctx, f.caller(), InitiateInput{OrderID: uuid.New(), Phone: "841234567"})
		assert.True(t, errors.Is(err, orders.ErrOrderNotFound))
	})

	t.Run("already paid", func(t *testing.T) {
		paid := testutil.NewOrder(t, f.db, f.client.ID, models.OrderAssigned, models.PaymentConfirmed)
		_, err := f.ledger.Initiate(ctx, f.caller(), InitiateInput{OrderID: paid.ID, Phone: "841234567"})
		assert.True(t, errors.Is(err, ErrAlreadyPaid))
	})

	t.Run("cancelled", func(t *testing.T) {
		gone := testutil.NewOrder(t, f.db, f.client.ID, models.OrderCancelled, models.PaymentPending)
		_, err := f.ledger.Initiate(ctx, f.caller(), InitiateInput{OrderID: gone.ID, Phone: "841234567"})
		assert.True(t, errors.Is(err, ErrNotPayable))
	})

	t.Run("provider down", func(t *testing.T) {
		f.gw.InitiateErr = mpesa.ErrGatewayUnavailable.WithMessage("INS-1: Internal Error")
		defer func() { f.gw.InitiateErr = nil }()

		_, err := f.ledger.Initiate(ctx, f.caller(), InitiateInput{OrderID: f.order.ID, Phone: "841234567"})
		assert.True(t, errors.Is(err, mpesa.ErrGatewayUnavailable))
	})

	assert.Zero(t, f.gw.Initiated)
	assert.Zero(t, f.count(t, &models.Payment{}, "1 = 1"))
}

/* ============================ Reconciliation ============================ */

func TestWebhook_ConfirmsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.initiate(t)

	first, err := f.ledger.HandleWebhook(ctx, callback(r.TransactionID, mpesa.SuccessCode))
	require.NoError(t, err)
	require.NotNil(t, first.ConfirmedAt)
	assert.Equal(t, models.PaymentConfirmed, first.Status)

	// provider retries the same callback
	second, err := f.ledger.HandleWebhook(ctx, callback(r.TransactionID, mpesa.SuccessCode))
	require.NoError(t, err)
	require.NotNil(t, second.ConfirmedAt)
	assert.True(t, first.ConfirmedAt.Equal(*second.ConfirmedAt))

	o := testutil.Reload[models.Order](t, f.db, f.order.ID)
	assert.Equal(t, models.OrderAssigned, o.Status)
	assert.Equal(t, models.PaymentConfirmed, o.PaymentStatus)

	assert.Equal(t, 1, f.rec.Count(events.PaymentConfirmed))
	assert.Equal(t, 1, f.rec.Count(events.OrderAssigned))
	assert.EqualValues(t, 1, f.count(t, &models.OrderHistory{}, "order_id = ? AND action = ?", o.ID, "payment_confirmed"))
	assert.EqualValues(t, 1, f.count(t, &models.Assignment{}, "order_id = ?", o.ID))

	pay, err := f.ledger.load(ctx, r.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "5C1400CVRO", pay.ProviderTransactionID)
}

func TestPollAndWebhookRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.initiate(t)
	f.gw.Status = models.PaymentConfirmed

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts []*Receipt
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				got *Receipt
				err error
			)
			if i%2 == 0 {
				got, err = f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
			} else {
				got, err = f.ledger.HandleWebhook(ctx, callback(r.TransactionID, mpesa.SuccessCode))
			}
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			receipts = append(receipts, got)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, receipts, n)
	for _, got := range receipts {
		assert.Equal(t, models.PaymentConfirmed, got.Status)
		require.NotNil(t, got.ConfirmedAt)
		assert.True(t, receipts[0].ConfirmedAt.Equal(*got.ConfirmedAt))
	}

	assert.Equal(t, 1, f.rec.Count(events.PaymentConfirmed))
	assert.EqualValues(t, 1, f.count(t, &models.OrderHistory{}, "order_id = ? AND action = ?", f.order.ID, "lawyer_bound"))
	assert.Equal(t, models.OrderAssigned, testutil.Reload[models.Order](t, f.db, f.order.ID).Status)
}

func TestWebhook_FailureThenRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.initiate(t)

	got, err := f.ledger.HandleWebhook(ctx, callback(r.TransactionID, "INS-2006"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)

	o := testutil.Reload[models.Order](t, f.db, f.order.ID)
	assert.Equal(t, models.OrderPendingPayment, o.Status)
	assert.Equal(t, models.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, 1, f.rec.Count(events.PaymentFailed))

	// a success for the failed attempt does not resurrect it
	got, err = f.ledger.HandleWebhook(ctx, callback(r.TransactionID, mpesa.SuccessCode))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	assert.Zero(t, f.rec.Count(events.PaymentConfirmed))

	// the client tries again with a fresh transaction
	retry := f.initiate(t)
	assert.NotEqual(t, r.TransactionID, retry.TransactionID)
	_, err = f.ledger.HandleWebhook(ctx, callback(retry.TransactionID, mpesa.SuccessCode))
	require.NoError(t, err)

	o = testutil.Reload[models.Order](t, f.db, f.order.ID)
	assert.Equal(t, models.OrderAssigned, o.Status)
	assert.Equal(t, retry.TransactionID, o.TransactionReference)
}

func TestWebhook_LatePaymentOnCancelledOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.initiate(t)

	_, err := f.svc.Cancel(ctx, f.caller(), f.order.ID, "")
	require.NoError(t, err)

	got, err := f.ledger.HandleWebhook(ctx, callback(r.TransactionID, mpesa.SuccessCode))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.Status)

	o := testutil.Reload[models.Order](t, f.db, f.order.ID)
	assert.Equal(t, models.OrderCancelled, o.Status)
	assert.Equal(t, models.PaymentConfirmed, o.PaymentStatus)
	assert.EqualValues(t, 1, f.count(t, &models.OrderHistory{}, "order_id = ? AND action = ?", o.ID, "payment_confirmed_late"))
	assert.Zero(t, f.rec.Count(events.OrderAssigned))
}

func TestWebhook_Unreadable(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.ledger.HandleWebhook(context.Background(), []byte("not json"))
	assert.True(t, errors.Is(err, ErrInvalidWebhook))

	_, err = f.ledger.HandleWebhook(context.Background(), callback("VMUNKNOWN", mpesa.SuccessCode))
	assert.True(t, errors.Is(err, ErrPaymentNotFound))
}

/* ================================ Polling =============================== */

type fakeThrottle struct {
	allow bool
	err   error
	calls int
}

func (f *fakeThrottle) AllowPoll(context.Context, string, time.Duration) (bool, error) {
	f.calls++
	return f.allow, f.err
}

func TestCheckStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("pending stays pending", func(t *testing.T) {
		f := newFixture(t, Options{})
		r := f.initiate(t)

		got, err := f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, got.Status)
		assert.Equal(t, 1, f.gw.Checked)
	})

	t.Run("settled answers from ledger", func(t *testing.T) {
		f := newFixture(t, Options{})
		r := f.initiate(t)
		f.gw.Status = models.PaymentConfirmed

		_, err := f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
		require.NoError(t, err)
		got, err := f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentConfirmed, got.Status)
		assert.Equal(t, 1, f.gw.Checked)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t, Options{})
		r := f.initiate(t)
		f.gw.Status = models.PaymentFailed

		got, err := f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, got.Status)
		assert.Equal(t, models.PaymentFailed, testutil.Reload[models.Order](t, f.db, f.order.ID).PaymentStatus)
	})

	t.Run("provider unreachable", func(t *testing.T) {
		f := newFixture(t, Options{})
		r := f.initiate(t)
		f.gw.StatusErr = mpesa.ErrGatewayUnavailable

		_, err := f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
		assert.True(t, errors.Is(err, mpesa.ErrGatewayUnavailable))
		pay, err := f.ledger.load(ctx, r.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.PayPending, pay.Status)
	})

	t.Run("throttled", func(t *testing.T) {
		th := &fakeThrottle{allow: false}
		f := newFixture(t, Options{Throttle: th, PollInterval: time.Minute})
		r := f.initiate(t)
		f.gw.Status = models.PaymentConfirmed

		got, err := f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, got.Status)
		assert.Equal(t, 1, th.calls)
		assert.Zero(t, f.gw.Checked)
	})

	t.Run("throttle down fails open", func(t *testing.T) {
		th := &fakeThrottle{err: errors.New("connection refused")}
		f := newFixture(t, Options{Throttle: th})
		r := f.initiate(t)
		f.gw.Status = models.PaymentConfirmed

		got, err := f.ledger.CheckStatus(ctx, f.caller(), r.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentConfirmed, got.Status)
		assert.Equal(t, 1, f.gw.Checked)
	})

	t.Run("not owner", func(t *testing.T) {
		f := newFixture(t, Options{})
		r := f.initiate(t)
		other := testutil.NewClient(t, f.db)

		_, err := f.ledger.CheckStatus(ctx, models.Caller{ID: other.ID, Role: models.RoleClient}, r.TransactionID)
		assert.True(t, errors.Is(err, orders.ErrNotOrderOwner))
	})

	t.Run("unknown transaction", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.ledger.CheckStatus(ctx, f.caller(), "VM00000000000000AAAAAA")
		assert.True(t, errors.Is(err, ErrPaymentNotFound))
	})
}

func TestSimulateComplete(t *testing.T) {
	f := newFixture(t, Options{})
	r := f.initiate(t)

	got, err := f.ledger.SimulateComplete(context.Background(), r.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.Status)

	pay, err := f.ledger.load(context.Background(), r.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "SIM-"+r.TransactionID, pay.ProviderTransactionID)
}
