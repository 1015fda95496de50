package utils

import (
	"strings"
	"testing"
)

func TestConstantTimeHexEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "deadbeef", "deadbeef", true},
		{"case insensitive hex", "DEADBEEF", "deadbeef", true},
		{"different", "deadbeef", "deadbeee", false},
		{"length mismatch", "deadbeef", "deadbeefaa", false},
		{"empty vs value", "", "aa", false},
		{"both empty", "", "", true},
		{"malformed a", "zz", "aa", false},
		{"malformed b", "aa", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConstantTimeHexEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("ConstantTimeHexEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestHMACSign_Deterministic(t *testing.T) {
	a := HMACSign("key", "pub-1:sec-1")
	b := HMACSign("key", "pub-1:sec-1")
	if a != b {
		t.Fatalf("expected deterministic signature")
	}
	if len(a) != 64 {
		t.Errorf("expected 32-byte hex signature, got %d chars", len(a))
	}
	if HMACSign("other", "pub-1:sec-1") == a {
		t.Errorf("signature should depend on the key")
	}
	if HMACSign("key", "pub-1:sec-2") == a {
		t.Errorf("signature should depend on the message")
	}
}

func TestDeriveKeyHash(t *testing.T) {
	hash, err := DeriveKeyHash("api-key", "salt")
	if err != nil {
		t.Fatalf("DeriveKeyHash: %v", err)
	}
	if len(hash) != 128 {
		t.Fatalf("expected 64-byte hex hash, got %d chars", len(hash))
	}

	again, err := DeriveKeyHash("api-key", "salt")
	if err != nil {
		t.Fatalf("DeriveKeyHash: %v", err)
	}
	if hash != again {
		t.Errorf("expected deterministic derivation")
	}

	if !VerifyKeyHash("api-key", "salt", hash) {
		t.Errorf("expected key to verify")
	}
	if VerifyKeyHash("api-key", "other-salt", hash) {
		t.Errorf("expected salt mismatch to fail")
	}
	if VerifyKeyHash("wrong-key", "salt", hash) {
		t.Errorf("expected wrong key to fail")
	}
	if VerifyKeyHash("api-key", "salt", "not-hex") {
		t.Errorf("expected malformed stored hash to fail")
	}
}

func TestRandomToken(t *testing.T) {
	tok, err := RandomToken(16)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	if len(tok) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(tok))
	}
	if strings.Trim(tok, "0123456789abcdef") != "" {
		t.Errorf("expected lowercase hex, got %q", tok)
	}

	other, _ := RandomToken(16)
	if tok == other {
		t.Errorf("expected distinct tokens")
	}

	if _, err := RandomToken(0); err == nil {
		t.Errorf("expected error for zero length")
	}
}
