package httpapi

import (
	"context"
	"net/http"

	"github.com/ramppay/ramppay-sync-go/internal/domain"
)

// Login exchanges credentials for a bearer token and installs it on the
// client.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var result domain.AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &result); err != nil {
		return nil, err
	}
	c.SetBearer(result.Token)
	return &result, nil
}

// Register creates an account. The returned user is unverified until Verify
// succeeds.
func (c *Client) Register(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var result domain.AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", body, &result); err != nil {
		return nil, err
	}
	c.SetBearer(result.Token)
	return &result, nil
}

// Verify confirms the email verification code.
func (c *Client) Verify(ctx context.Context, email, code string) error {
	body := map[string]string{"email": email, "code": code}
	return c.doJSON(ctx, http.MethodPost, "/auth/verify", body, nil)
}

// ResendCode asks the backend to send a fresh verification code.
func (c *Client) ResendCode(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.doJSON(ctx, http.MethodPost, "/auth/resend", body, nil)
}

// GetMe returns the authoritative user record for the current session.
func (c *Client) GetMe(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile patches mutable profile fields and returns the updated
// record.
func (c *Client) UpdateProfile(ctx context.Context, name string) (*domain.User, error) {
	body := map[string]string{"name": name}
	var user domain.User
	if err := c.doJSON(ctx, http.MethodPut, "/auth/profile", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout invalidates the session server-side, then drops the local
// credential regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.SetBearer("")
	return err
}
