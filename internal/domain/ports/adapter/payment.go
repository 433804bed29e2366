package adapter

import (
	"context"

	"trulyinvoice/internal/domain/model"
)

// PaymentGateway is the hex port for the order-based payment provider.
type PaymentGateway interface {
	Name() string
	// KeyID is the public key the checkout widget is opened with.
	KeyID() string

	// CreateOrder registers an order for amount (minor units) and returns the
	// provider's view of it.
	CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error)
	// FetchOrder re-reads an order from the provider. Callers must use it
	// instead of trusting client-supplied order details.
	FetchOrder(ctx context.Context, orderID string) (*model.Order, error)
}

// SignatureVerifier checks the checkout callback signature.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}
