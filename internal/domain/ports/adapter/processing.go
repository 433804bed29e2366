package adapter

import "context"

// InvoiceProcessor hands an uploaded document to the backend extraction API.
type InvoiceProcessor interface {
	Process(ctx context.Context, documentID, accessToken string) error
}
