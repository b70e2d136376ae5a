package security

import (
	"testing"
	"time"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))

	token, exp, err := Generate(opts, "user-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry %v not in the future", exp)
	}

	sub, err := Verify(opts, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "user-1" {
		t.Fatalf("sub = %q, want user-1", sub)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("secret-a")), "user-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := Verify(DefaultOptions([]byte("secret-b")), token); err == nil {
		t.Fatalf("expected verification failure with wrong secret")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	for _, tok := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := Verify(opts, tok); err == nil {
			t.Fatalf("Verify(%q): expected error", tok)
		}
	}
}

func TestUnsupportedAlg(t *testing.T) {
	opts := Options{Secret: []byte("s"), Alg: "RS256"}
	if _, _, err := Generate(opts, "u"); err == nil {
		t.Fatalf("expected unsupported alg error on generate")
	}
	if _, err := Verify(opts, "whatever"); err == nil {
		t.Fatalf("expected unsupported alg error on verify")
	}
}
