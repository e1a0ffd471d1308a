package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"path/filepath"
	"testing"
	"time"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer(testKey(t), "https://vault.example", time.Hour)

	tok, err := issuer.Issue("alice-wallet")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Wallet != "alice-wallet" {
		t.Errorf("wallet = %q, want alice-wallet", claims.Wallet)
	}
	if claims.Subject != "alice-wallet" {
		t.Errorf("subject = %q, want alice-wallet", claims.Subject)
	}
}

func TestVerify_rejectsForeignKey(t *testing.T) {
	a := NewIssuer(testKey(t), "https://vault.example", time.Hour)
	b := NewIssuer(testKey(t), "https://vault.example", time.Hour)

	tok, err := a.Issue("alice-wallet")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok); err == nil {
		t.Error("token signed with a different key verified")
	}
}

func TestVerify_rejectsExpired(t *testing.T) {
	issuer := NewIssuer(testKey(t), "https://vault.example", -time.Minute)
	tok, err := issuer.Issue("alice-wallet")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(tok); err == nil {
		t.Error("expired token verified")
	}
}

func TestVerify_rejectsWrongIssuer(t *testing.T) {
	key := testKey(t)
	a := NewIssuer(key, "https://vault-a.example", time.Hour)
	b := NewIssuer(key, "https://vault-b.example", time.Hour)

	tok, err := a.Issue("alice-wallet")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok); err == nil {
		t.Error("token with wrong issuer verified")
	}
}

func TestLoadOrCreateKey_roundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	k1, err := LoadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	k2, err := LoadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if k1.N.Cmp(k2.N) != 0 {
		t.Error("second load generated a new key instead of reusing the stored one")
	}
}
