package payment

import (
	"context"
	"fmt"
	"sync"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway to use in tests and
// local development without gateway credentials.
type NoopPaymentGateway struct {
	mu     sync.Mutex
	seq    int64
	orders map[string]*model.Order
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		orders: make(map[string]*model.Order),
	}
}

func (g *NoopPaymentGateway) Name() string  { return "noop" }
func (g *NoopPaymentGateway) KeyID() string { return "rzp_test_noop" }

func (g *NoopPaymentGateway) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	if req.Amount <= 0 {
		return nil, &domain.GatewayError{Op: "create_order", Status: 400, Message: "amount must be at least 100"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	notes := make(map[string]string, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	o := &model.Order{
		ID:       fmt.Sprintf("order_noop%d", g.seq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    notes,
	}
	g.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (g *NoopPaymentGateway) FetchOrder(ctx context.Context, orderID string) (*model.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return nil, &domain.GatewayError{Op: "fetch_order", Status: 400, Message: "The id provided does not exist"}
	}
	cp := *o
	return &cp, nil
}

// SetOrderStatus simulates the gateway moving an order forward.
func (g *NoopPaymentGateway) SetOrderStatus(orderID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[orderID]; ok {
		o.Status = status
	}
}
