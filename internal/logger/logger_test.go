package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Profiles(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		l, err := New(env, "debug")
		if err != nil {
			t.Fatalf("New(%q): %v", env, err)
		}
		if l == nil {
			t.Fatalf("New(%q) returned nil", env)
		}
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := New("production", "loud")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at info level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}

func TestRedact(t *testing.T) {
	if Redact("") != "" {
		t.Error("Redact(\"\") should be empty")
	}
	a := Redact("refresh-token-1")
	if a != Redact("refresh-token-1") {
		t.Error("Redact not stable")
	}
	if strings.Contains(a, "refresh-token-1") {
		t.Error("Redact leaked the secret")
	}
	if a == Redact("refresh-token-2") {
		t.Error("different secrets share a fingerprint")
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct{ in, want string }{
		{"john.doe@example.com", "joh***@example.com"},
		{"jo@example.com", "jo***@example.com"},
		{"nodomain", "***"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
