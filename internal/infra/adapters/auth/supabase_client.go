// File: internal/infra/adapters/auth/supabase_client.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/ports/adapter"
)

var _ adapter.Authenticator = (*SupabaseClient)(nil)

// SupabaseClient resolves access tokens by asking the auth server who the
// bearer is (GET /auth/v1/user).
type SupabaseClient struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewSupabaseClient(baseURL, anonKey string, timeout time.Duration) *SupabaseClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SupabaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *SupabaseClient) Authenticate(ctx context.Context, accessToken string) (*adapter.Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, domain.ErrUnauthenticated
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase auth: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("supabase auth: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("supabase auth: decode user: %w", err)
	}
	if out.ID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return &adapter.Identity{UserID: out.ID, Email: out.Email}, nil
}
