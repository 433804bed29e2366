// File: internal/infra/adapters/processing/client.go
package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/infra/metrics"
)

var _ adapter.InvoiceProcessor = (*Client)(nil)

type Options struct {
	BackendURL     string
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// Client calls the backend extraction API. Transport errors and 5xx answers
// are retried with exponential backoff; 4xx answers fail at once.
type Client struct {
	base string
	opts Options
	http *http.Client
	log  *zerolog.Logger
}

func NewClient(opts Options, log *zerolog.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 60 * time.Second
	}
	return &Client{
		base: strings.TrimRight(opts.BackendURL, "/"),
		opts: opts,
		http: &http.Client{},
		log:  log,
	}
}

// statusError is a non-2xx answer from the backend.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.status, e.body)
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.opts.InitialBackoff << uint(c.opts.MaxAttempts)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)
}

func (c *Client) Process(ctx context.Context, documentID, accessToken string) error {
	if strings.TrimSpace(documentID) == "" {
		return domain.ErrInvalidArgument
	}
	endpoint := fmt.Sprintf("%s/api/documents/%s/process", c.base, url.PathEscape(documentID))
	start := time.Now()
	attempt := 0

	op := func() error {
		attempt++
		err := c.attempt(ctx, endpoint, accessToken)
		var se *statusError
		switch {
		case err == nil:
			metrics.IncProcessingAttempt("ok")
			return nil
		case errors.As(err, &se) && se.status < 500:
			metrics.IncProcessingAttempt("failed")
			return backoff.Permanent(err)
		default:
			metrics.IncProcessingAttempt("retry")
			c.log.Warn().Err(err).Str("document_id", documentID).Int("attempt", attempt).Msg("processing attempt failed")
			return err
		}
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		metrics.ObserveProcessing("error", time.Since(start))
		return fmt.Errorf("%w: document %s after %d attempt(s): %v", domain.ErrProcessingFailed, documentID, attempt, err)
	}
	metrics.ObserveProcessing("ok", time.Since(start))
	return nil
}

func (c *Client) attempt(ctx context.Context, endpoint, accessToken string) error {
	actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, endpoint, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
}
