// File: internal/infra/adapters/payment/razorpay_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*RazorpayGateway)(nil)

// RazorpayGateway implements adapter.PaymentGateway over the Orders REST API
// with HTTP basic auth (key id / key secret). Calls go through a circuit
// breaker so a failing gateway is not hammered by checkout retries.
type RazorpayGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*model.Order]
	log       *zerolog.Logger
}

type RazorpayOptions struct {
	KeyID     string
	KeySecret string
	BaseURL   string // default https://api.razorpay.com
	Timeout   time.Duration
	// Consecutive 5xx/transport failures before the breaker opens.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewRazorpayGateway(opts RazorpayOptions, logger *zerolog.Logger) (*RazorpayGateway, error) {
	if opts.KeyID == "" || opts.KeySecret == "" {
		return nil, errors.New("razorpay key id/secret empty")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.razorpay.com"
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid razorpay base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	g := &RazorpayGateway{
		keyID:     opts.KeyID,
		keySecret: opts.KeySecret,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		client:    &http.Client{Timeout: opts.Timeout},
		log:       logger,
	}
	threshold := opts.FailureThreshold
	g.breaker = gobreaker.NewCircuitBreaker[*model.Order](gobreaker.Settings{
		Name:        "razorpay",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors are the caller's fault, not an unhealthy gateway.
		IsSuccessful: func(err error) bool {
			var ge *domain.GatewayError
			if errors.As(err, &ge) {
				return ge.Status >= 400 && ge.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.SetBreakerState(name, int(to))
		},
	})
	return g, nil
}

func (g *RazorpayGateway) Name() string  { return "razorpay" }
func (g *RazorpayGateway) KeyID() string { return g.keyID }

type rzpOrder struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Receipt  string          `json:"receipt"`
	Status   string          `json:"status"`
	Notes    json.RawMessage `json:"notes"`
}

type rzpError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder calls POST /v1/orders.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	payload := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}
	return g.breaker.Execute(func() (*model.Order, error) {
		return g.do(ctx, "create_order", http.MethodPost, "/v1/orders", payload)
	})
}

// FetchOrder calls GET /v1/orders/{id}.
func (g *RazorpayGateway) FetchOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return g.breaker.Execute(func() (*model.Order, error) {
		return g.do(ctx, "fetch_order", http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil)
	})
}

func (g *RazorpayGateway) do(ctx context.Context, op, method, path string, payload any) (*model.Order, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e rzpError
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &e) == nil && e.Error.Description != "" {
			msg = e.Error.Description
		}
		return nil, &domain.GatewayError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	var out rzpOrder
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.GatewayError{Op: op, Status: resp.StatusCode, Message: "decode order: " + err.Error()}
	}
	if out.ID == "" {
		return nil, &domain.GatewayError{Op: op, Status: resp.StatusCode, Message: "order id missing in response"}
	}
	return &model.Order{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Receipt:  out.Receipt,
		Status:   out.Status,
		Notes:    decodeNotes(out.Notes),
	}, nil
}

// decodeNotes accepts the object form and the empty-array form ("notes": [])
// the API returns for orders without notes.
func decodeNotes(raw json.RawMessage) map[string]string {
	notes := map[string]string{}
	if len(raw) == 0 || raw[0] != '{' {
		return notes
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return notes
	}
	for k, v := range m {
		switch t := v.(type) {
		case string:
			notes[k] = t
		case nil:
		default:
			notes[k] = fmt.Sprint(t)
		}
	}
	return notes
}
