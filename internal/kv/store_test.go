package kv

import (
	"errors"
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap("get", "k", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	cause := errors.New("disk full")
	err := Wrap("put", "vault.pin", cause)
	if !errors.Is(err, ErrStorage) {
		t.Error("wrapped error should match ErrStorage")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should keep its cause")
	}
	if !strings.Contains(err.Error(), `"vault.pin"`) {
		t.Errorf("error = %q, want key in message", err.Error())
	}
	if err := Wrap("list", "", cause); !strings.Contains(err.Error(), "list: disk full") {
		t.Errorf("error = %q", err.Error())
	}
}
