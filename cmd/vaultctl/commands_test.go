package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/jcarweb/repuestospro-sub005/internal/app"
	"github.com/jcarweb/repuestospro-sub005/internal/config"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/memory"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
	"github.com/jcarweb/repuestospro-sub005/internal/session/domain"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := &config.Config{
		StoreBackend:            config.BackendMemory,
		AuthBaseURL:             "http://127.0.0.1:1",
		EventLogCapacity:        100,
		DetectorMaxFailedLogins: 5,
		DetectorMaxDevices:      3,
		KDFTime:                 1,
		KDFMemoryKiB:            8 * 1024,
		KDFThreads:              1,
	}
	a, err := app.New(context.Background(), cfg, app.WithLogger(zaptest.NewLogger(t)), app.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func exec(t *testing.T, a *app.App, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), a, args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestRun_Unknown(t *testing.T) {
	a := newTestApp(t)
	for _, args := range [][]string{{}, {"vault"}, {"vault", "nope"}, {"nope", "list"}} {
		if _, err := exec(t, a, "", args...); !errors.Is(err, errUsage) {
			t.Errorf("run(%v) err = %v, want errUsage", args, err)
		}
	}
}

func TestRun_VaultLifecycle(t *testing.T) {
	a := newTestApp(t)

	if _, err := exec(t, a, "from stdin", "vault", "store", "-name", "note", "-passphrase", "pw"); err != nil {
		t.Fatalf("vault store: %v", err)
	}
	out, err := exec(t, a, "", "vault", "get", "-name", "note", "-passphrase", "pw")
	if err != nil || out != "from stdin" {
		t.Fatalf("vault get = %q, %v", out, err)
	}
	if _, err := exec(t, a, "", "vault", "get", "-name", "note", "-passphrase", "wrong"); !errors.Is(err, security.ErrAuthentication) {
		t.Errorf("wrong passphrase err = %v, want ErrAuthentication", err)
	}
	out, _ = exec(t, a, "", "vault", "verify", "-name", "note", "-passphrase", "pw")
	if strings.TrimSpace(out) != "true" {
		t.Errorf("vault verify = %q, want true", out)
	}
	if _, err := exec(t, a, "", "vault", "rekey", "-old", "pw", "-new", "pw2"); err != nil {
		t.Fatalf("vault rekey: %v", err)
	}
	out, err = exec(t, a, "", "vault", "get", "-name", "note", "-passphrase", "pw2")
	if err != nil || out != "from stdin" {
		t.Errorf("get after rekey = %q, %v", out, err)
	}
	out, _ = exec(t, a, "", "vault", "stats")
	if !strings.Contains(out, `"count": 1`) {
		t.Errorf("vault stats = %s", out)
	}
	if _, err := exec(t, a, "", "vault", "revoke-all"); err != nil {
		t.Fatalf("revoke-all: %v", err)
	}
	if _, err := exec(t, a, "", "vault", "get", "-name", "note", "-passphrase", "pw2"); err == nil {
		t.Error("get after revoke-all: expected not found")
	}
}

func TestRun_SessionAndEvents(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	out, _ := exec(t, a, "", "session", "status")
	if strings.TrimSpace(out) != "no session" {
		t.Errorf("status = %q", out)
	}
	if _, err := a.Sessions.CreateSession(ctx, domain.User{ID: "u1"}, "access-secret", "refresh-secret"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	out, _ = exec(t, a, "", "session", "status")
	if strings.Contains(out, "access-secret") || !strings.Contains(out, "u1") {
		t.Errorf("status = %q, want user without tokens", out)
	}
	out, err := exec(t, a, "", "session", "check")
	if err != nil || strings.TrimSpace(out) != domain.LivenessActive.String() {
		t.Errorf("check = %q, %v", out, err)
	}
	if _, err := exec(t, a, "", "session", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	out, _ = exec(t, a, "", "events", "list")
	if !strings.Contains(out, `"login"`) || !strings.Contains(out, `"logout"`) {
		t.Errorf("events = %s", out)
	}
	if _, err := exec(t, a, "", "events", "clear"); err != nil {
		t.Fatalf("events clear: %v", err)
	}
	out, _ = exec(t, a, "", "events", "list", "-window", "1h")
	if strings.TrimSpace(out) != "[]" && strings.TrimSpace(out) != "null" {
		t.Errorf("events after clear = %s", out)
	}
}

func TestRun_PIN(t *testing.T) {
	a := newTestApp(t)
	if _, err := exec(t, a, "", "pin", "set", "-pin", "12a4", "-password", "pw"); err == nil {
		t.Error("non-digit pin accepted")
	}
	if _, err := exec(t, a, "", "pin", "set", "-pin", "1234", "-password", "pw"); err != nil {
		t.Fatalf("pin set: %v", err)
	}
	out, err := exec(t, a, "", "pin", "verify", "-pin", "1234", "-password", "pw")
	if err != nil || strings.TrimSpace(out) != "true" {
		t.Errorf("pin verify = %q, %v", out, err)
	}
	out, _ = exec(t, a, "", "pin", "verify", "-pin", "9999", "-password", "pw")
	if strings.TrimSpace(out) != "false" {
		t.Errorf("wrong pin verify = %q, want false", out)
	}
	if _, err := exec(t, a, "", "health", "check"); err != nil {
		t.Errorf("health check: %v", err)
	}
}
