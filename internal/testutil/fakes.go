package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aldoetobex/falacomigo-backend/internal/events"
	"github.com/aldoetobex/falacomigo-backend/internal/mpesa"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

// FakeGateway answers like the provider without network access. Phone
// validation is the real one.
type FakeGateway struct {
	mu sync.Mutex

	InitiateErr error
	Status      models.PaymentStatus
	StatusErr   error

	Initiated int
	Checked   int
	LastPhone string
	nextID    int
}

func (g *FakeGateway) Initiate(_ context.Context, phone string, amount decimal.Decimal, _ string) (*mpesa.InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	msisdn, err := mpesa.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, mpesa.ErrInvalidAmount
	}
	if g.InitiateErr != nil {
		return nil, g.InitiateErr
	}
	g.Initiated++
	g.nextID++
	g.LastPhone = msisdn
	return &mpesa.InitiateResult{
		TransactionID: fmt.Sprintf("VMTEST%08d", g.nextID),
		MSISDN:        msisdn,
		Status:        models.PaymentPending,
		Message:       "Request processed successfully",
	}, nil
}

func (g *FakeGateway) CheckStatus(context.Context, string) (models.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Checked++
	if g.StatusErr != nil {
		return "", g.StatusErr
	}
	if g.Status == "" {
		return models.PaymentPending, nil
	}
	return g.Status, nil
}

// Recorder keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	Events []events.Event
}

func (r *Recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	return nil
}

// Count returns how many events of typ were published.
func (r *Recorder) Count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.Events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// Types lists published event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Type)
	}
	return out
}
