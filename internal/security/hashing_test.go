package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash([]byte("hunter22"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Matches(hash, []byte("hunter22")) {
		t.Error("Matches(correct) = false")
	}
	if h.Matches(hash, []byte("hunter23")) {
		t.Error("Matches(wrong) = true")
	}
	if h.Matches("not-a-hash", []byte("hunter22")) {
		t.Error("Matches(malformed hash) = true")
	}
}

func TestNewHasher_ClampsCost(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, bcrypt.DefaultCost},
		{1, bcrypt.MinCost},
		{99, bcrypt.MaxCost},
		{10, 10},
	}
	for _, tt := range tests {
		if got := NewHasher(tt.in).Cost; got != tt.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}
