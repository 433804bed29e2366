package adapter

import "context"

// Identity is the authenticated caller as reported by the auth provider.
type Identity struct {
	UserID string
	Email  string
}

// Authenticator resolves a bearer access token to an identity. It returns
// domain.ErrUnauthenticated for missing, invalid or expired tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*Identity, error)
}
