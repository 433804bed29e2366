// File: internal/usecase/invoice_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/infra/logging"
)

var _ InvoiceUseCase = (*invoiceUC)(nil)

// InvoiceUseCase gates document processing on the scan quota.
type InvoiceUseCase interface {
	// Process consumes one scan and hands the document to the processing
	// backend. The scan is returned when the backend never accepted it.
	Process(ctx context.Context, userID, documentID, accessToken string) (model.Usage, error)
}

type invoiceUC struct {
	subUC     SubscriptionUseCase
	processor adapter.InvoiceProcessor
	log       *zerolog.Logger
}

func NewInvoiceUseCase(subUC SubscriptionUseCase, processor adapter.InvoiceProcessor, logger *zerolog.Logger) *invoiceUC {
	return &invoiceUC{subUC: subUC, processor: processor, log: logger}
}

func (u *invoiceUC) Process(ctx context.Context, userID, documentID, accessToken string) (model.Usage, error) {
	defer logging.TraceDuration(u.log, "InvoiceUC.Process")()
	log := logging.With(ctx, u.log)

	if _, err := u.subUC.ConsumeScan(ctx, userID); err != nil {
		return model.Usage{}, err
	}

	if err := u.processor.Process(ctx, documentID, accessToken); err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("processing failed, releasing scan")
		// The request context may already be cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := u.subUC.ReleaseScan(rctx, userID); rerr != nil {
			log.Error().Err(rerr).Msg("failed to release scan")
		}
		return model.Usage{}, err
	}

	usage, err := u.subUC.Usage(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("usage lookup after processing failed")
		return model.Usage{}, nil
	}
	return usage, nil
}
