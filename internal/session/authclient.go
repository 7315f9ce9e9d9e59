package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/security"
	"github.com/jcarweb/repuestospro-sub005/internal/session/domain"
)

const maxErrorBody = 512

// AuthClient calls the remote auth collaborator. It implements Refresher and
// TwoFactorVerifier. Request bodies carry credentials and are never logged.
type AuthClient struct {
	BaseURL    string
	HTTPClient *http.Client
	// FallbackTTL sets ExpiresAt when neither the response nor the token carries one.
	FallbackTTL time.Duration
	Now         func() time.Time
}

// NewAuthClient returns a client for baseURL with the given per-request timeout.
func NewAuthClient(baseURL string, timeout, fallbackTTL time.Duration) *AuthClient {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	if fallbackTTL <= 0 {
		fallbackTTL = DefaultSessionTTL
	}
	return &AuthClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: timeout},
		FallbackTTL: fallbackTTL,
		Now:         time.Now,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	ExpiresAt    int64  `json:"expiresAt"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Refresh posts to /auth/refresh. Any non-2xx status, transport or decode error
// returns ErrRefreshFailed.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	var out refreshResponse
	if err := c.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return RefreshResult{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if out.AccessToken == "" {
		return RefreshResult{}, fmt.Errorf("%w: response without access token", ErrRefreshFailed)
	}
	return RefreshResult{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    c.expiry(out.ExpiresAt, out.AccessToken),
	}, nil
}

type verifyRequest struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"code"`
}

type verifyResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         domain.User `json:"user"`
}

// VerifyTwoFactor posts to /auth/verify-2fa. Failures return ErrVerifyFailed.
func (c *AuthClient) VerifyTwoFactor(ctx context.Context, tempToken, code string) (VerifyResult, error) {
	var out verifyResponse
	if err := c.post(ctx, "/auth/verify-2fa", verifyRequest{TempToken: tempToken, Code: code}, &out); err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %w", ErrVerifyFailed, err)
	}
	if out.AccessToken == "" || out.User.ID == "" {
		return VerifyResult{}, fmt.Errorf("%w: incomplete response", ErrVerifyFailed)
	}
	return VerifyResult{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken, User: out.User}, nil
}

// expiry prefers the server value, then the token's own exp claim.
func (c *AuthClient) expiry(ms int64, accessToken string) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	if exp, ok := security.UnverifiedExpiry(accessToken); ok {
		return exp.UTC()
	}
	return c.Now().UTC().Add(c.FallbackTTL)
}

func (c *AuthClient) post(ctx context.Context, path string, in, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("auth: %s status=%d body=%s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: %s decode: %w", path, err)
	}
	return nil
}
