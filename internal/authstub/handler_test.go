package authstub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jcarweb/repuestospro-sub005/internal/session"
)

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	svc := newTestService(t, nil)
	srv := httptest.NewServer(NewHandler(svc, zaptest.NewLogger(t)).Router())
	t.Cleanup(srv.Close)
	return svc, srv
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestHandler_Healthz(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandler_Login(t *testing.T) {
	svc, srv := newTestServer(t)
	_, _ = svc.AddUser("ana@example.com", testPassword, "Ana", "admin", false)

	var out map[string]any
	if code := postJSON(t, srv.URL+"/auth/login", map[string]string{"email": "ana@example.com", "password": testPassword}, &out); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if out["accessToken"] == "" || out["mfaRequired"] != false {
		t.Errorf("body = %v", out)
	}

	if code := postJSON(t, srv.URL+"/auth/login", map[string]string{"email": "ana@example.com", "password": "nope-nope"}, nil); code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", code)
	}
}

func TestHandler_BadBody(t *testing.T) {
	_, srv := newTestServer(t)
	for _, path := range []string{"/auth/login", "/auth/verify-2fa", "/auth/refresh"} {
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString("{"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

// The session package's AuthClient must speak the stub's wire format.
func TestHandler_AuthClientRoundTrip(t *testing.T) {
	svc, srv := newTestServer(t)
	_, _ = svc.AddUser("ana@example.com", testPassword, "Ana", "admin", true)

	var login struct {
		MFARequired bool   `json:"mfaRequired"`
		TempToken   string `json:"tempToken"`
		OTP         string `json:"otp"`
	}
	postJSON(t, srv.URL+"/auth/login", map[string]string{"email": "ana@example.com", "password": testPassword}, &login)
	if !login.MFARequired || login.TempToken == "" || login.OTP == "" {
		t.Fatalf("login = %+v, want challenge", login)
	}

	client := session.NewAuthClient(srv.URL, 5*time.Second, time.Hour)
	ctx := context.Background()
	if _, err := client.VerifyTwoFactor(ctx, login.TempToken, "bad"); !errors.Is(err, session.ErrVerifyFailed) {
		t.Errorf("bad code err = %v, want ErrVerifyFailed", err)
	}
	verified, err := client.VerifyTwoFactor(ctx, login.TempToken, login.OTP)
	if err != nil {
		t.Fatalf("VerifyTwoFactor: %v", err)
	}
	if verified.User.Email != "ana@example.com" || verified.RefreshToken == "" {
		t.Fatalf("verified = %+v", verified)
	}

	refreshed, err := client.Refresh(ctx, verified.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" || refreshed.RefreshToken == verified.RefreshToken {
		t.Errorf("refreshed = %+v, want rotated tokens", refreshed)
	}
	if !refreshed.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want future", refreshed.ExpiresAt)
	}
	if _, err := client.Refresh(ctx, verified.RefreshToken); !errors.Is(err, session.ErrRefreshFailed) {
		t.Errorf("reused token err = %v, want ErrRefreshFailed", err)
	}
}
