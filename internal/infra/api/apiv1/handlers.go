package apiv1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/infra/logging"
	"trulyinvoice/internal/infra/metrics"
	"trulyinvoice/internal/usecase"
)

type createOrderRequest struct {
	Tier         string   `json:"tier" validate:"omitempty,max=32"`
	BillingCycle string   `json:"billing_cycle" validate:"omitempty,max=16"`
	Amount       *float64 `json:"amount"`
	Currency     string   `json:"currency" validate:"omitempty,len=3,alpha"`
	PlanName     string   `json:"planName" validate:"omitempty,max=64"`
}

type createOrderResponse struct {
	OrderID      string `json:"order_id"`
	AmountPaise  int64  `json:"amount_paise"`
	Currency     string `json:"currency"`
	KeyID        string `json:"key_id"`
	Receipt      string `json:"receipt"`
	Tier         string `json:"tier,omitempty"`
	BillingCycle string `json:"billing_cycle"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required,hexadecimal"`
}

type paymentView struct {
	OrderID      string     `json:"order_id"`
	PaymentID    string     `json:"payment_id,omitempty"`
	Tier         string     `json:"tier"`
	BillingCycle string     `json:"billing_cycle"`
	AmountPaise  int64      `json:"amount_paise"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	return dec.Decode(dst)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"plans": s.plans.List(r.Context())})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	u, err := s.users.Get(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, u)
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	view, err := s.subs.Get(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, r, fmt.Errorf("%w: limit must be 1..100", domain.ErrInvalidArgument))
			return
		}
		limit = n
	}
	list, err := s.payments.ListPayments(r.Context(), p.UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]paymentView, 0, len(list))
	for _, pm := range list {
		v := paymentView{
			OrderID:      pm.OrderID,
			Tier:         string(pm.Tier),
			BillingCycle: string(pm.BillingCycle),
			AmountPaise:  pm.Amount,
			Currency:     pm.Currency,
			Status:       string(pm.Status),
			CreatedAt:    pm.CreatedAt,
			PaidAt:       pm.PaidAt,
		}
		if pm.PaymentID != nil {
			v.PaymentID = *pm.PaymentID
		}
		out = append(out, v)
	}
	render.JSON(w, r, map[string]any{"payments": out})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principalFrom(ctx)

	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeValidation(w, r, err)
		return
	}

	res, err := s.payments.CreateOrder(ctx, p.UserID, usecase.CreateOrderInput{
		Tier:         req.Tier,
		BillingCycle: req.BillingCycle,
		Amount:       req.Amount,
		Currency:     req.Currency,
		PlanName:     req.PlanName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, createOrderResponse{
		OrderID:      res.OrderID,
		AmountPaise:  res.Amount,
		Currency:     res.Currency,
		KeyID:        res.KeyID,
		Receipt:      res.Receipt,
		Tier:         string(res.Tier),
		BillingCycle: string(res.BillingCycle),
	})
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principalFrom(ctx)
	start := time.Now()
	fail := func(err error) {
		metrics.ObserveVerify("fail", verifyReason(err), time.Since(start))
		writeVerifyError(w, r, err)
	}

	var req verifyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(domain.ErrMissingPaymentParams)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		// A malformed signature can never match.
		if details := validationDetails(err); details["Signature"] == "hexadecimal" {
			fail(domain.ErrSignatureMismatch)
			return
		}
		fail(domain.ErrMissingPaymentParams)
		return
	}

	res, err := s.payments.VerifyPayment(ctx, p.UserID, usecase.VerifyPaymentInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSignatureMismatch) {
			logging.With(ctx, s.log).Error().Err(err).Str("order_id", req.OrderID).Msg("payment verification failed")
		}
		fail(err)
		return
	}
	metrics.ObserveVerify("ok", "", time.Since(start))

	msg := fmt.Sprintf("Payment verified. Your %s plan is active until %s.", planName(res.Tier), res.ExpiresAt.Format("2 Jan 2006"))
	if res.AlreadyProcessed {
		msg = "Payment was already verified."
	}
	render.JSON(w, r, verifyResponse{Success: true, Message: msg})
}

// verifyReason keeps the metric label set bounded.
func verifyReason(err error) string {
	var gw *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrMissingPaymentParams):
		return "bad_request"
	case errors.Is(err, domain.ErrSignatureMismatch):
		return "signature"
	case errors.Is(err, domain.ErrOrderOwnership):
		return "forbidden"
	case errors.As(err, &gw):
		return "gateway"
	case errors.Is(err, domain.ErrLocked):
		return "locked"
	case errors.Is(err, domain.ErrUnsettleableOrder):
		return "entitlement"
	default:
		return "unknown"
	}
}

func planName(t model.Tier) string {
	if p, err := model.PlanFor(t); err == nil {
		return p.Name
	}
	return strings.ToUpper(string(t))
}

func (s *Server) processInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principalFrom(ctx)

	docID := strings.TrimSpace(chi.URLParam(r, "id"))
	if docID == "" {
		writeError(w, r, domain.ErrInvalidArgument)
		return
	}

	usage, err := s.invoices.Process(ctx, p.UserID, docID, p.AccessToken)
	if err != nil {
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			logging.With(ctx, s.log).Error().Err(err).Str("document_id", docID).Msg("invoice processing failed")
		}
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"success":     true,
		"document_id": docID,
		"usage":       usage,
	})
}
