package derive_test

import (
	"testing"

	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
)

func TestDerive_deterministic(t *testing.T) {
	a1, b1, err := derive.Derive([]byte(derive.SeedVault), []byte("manager-1"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	a2, b2, err := derive.Derive([]byte(derive.SeedVault), []byte("manager-1"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a1 != a2 || b1 != b2 {
		t.Errorf("same seeds produced different results: %s/%d vs %s/%d", a1, b1, a2, b2)
	}
}

func TestDerive_distinctPerSeedComponent(t *testing.T) {
	vault, _, _ := derive.VaultAddress("manager-1")

	a1, _, err := derive.SubAccountAddress(vault, "assetX", "alice")
	if err != nil {
		t.Fatalf("derive alice: %v", err)
	}
	a2, _, err := derive.SubAccountAddress(vault, "assetX", "bob")
	if err != nil {
		t.Fatalf("derive bob: %v", err)
	}
	a3, _, err := derive.SubAccountAddress(vault, "assetY", "alice")
	if err != nil {
		t.Fatalf("derive alice/Y: %v", err)
	}

	if a1 == a2 {
		t.Error("different customers derived the same address")
	}
	if a1 == a3 {
		t.Error("different assets derived the same address")
	}
}

func TestDerive_seedBoundariesMatter(t *testing.T) {
	a1, _, _ := derive.Derive([]byte("ab"), []byte("c"))
	a2, _, _ := derive.Derive([]byte("a"), []byte("bc"))
	if a1 == a2 {
		t.Error("seed boundary shift did not change the address")
	}
}

func TestVerify(t *testing.T) {
	addr, bump, err := derive.VaultAddress("manager-1")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if err := derive.Verify(addr, bump, []byte(derive.SeedVault), []byte("manager-1")); err != nil {
		t.Errorf("verify canonical derivation: %v", err)
	}

	if err := derive.Verify(addr, bump, []byte(derive.SeedVault), []byte("manager-2")); err == nil {
		t.Error("verify accepted wrong seeds")
	}

	wrongBump := bump - 1
	if err := derive.Verify(addr, wrongBump, []byte(derive.SeedVault), []byte("manager-1")); err == nil {
		t.Error("verify accepted non-canonical bump")
	}
}

func TestWalletAddressesNeverCollideWithDerived(t *testing.T) {
	// Wallet addresses are pinned to the reserved prefix; derived addresses
	// reject candidates inside it. Spot-check a batch of identities.
	ids := []string{"alice", "bob", "carol", "manager-1", "", "a very long wallet identity string"}
	for _, id := range ids {
		w := derive.WalletAddress(id)
		if w.Bytes()[0] != 0x00 {
			t.Errorf("wallet address for %q outside reserved prefix", id)
		}
		d, _, err := derive.Derive([]byte(derive.SeedToken), []byte(id), []byte("assetX"))
		if err != nil {
			t.Fatalf("derive token for %q: %v", id, err)
		}
		if d.Bytes()[0] == 0x00 {
			t.Errorf("derived address for %q landed in reserved prefix", id)
		}
		if d == w {
			t.Errorf("derived address collided with wallet address for %q", id)
		}
	}
}

func TestTokenAccountOwnersAreNamespaced(t *testing.T) {
	vaultAddr, _, _ := derive.VaultAddress("manager-1")
	custodial, _, err := derive.TokenAccountAddress(vaultAddr, "assetX")
	if err != nil {
		t.Fatalf("derive custodial: %v", err)
	}

	// A wallet whose identity happens to be the hex form of the vault
	// address resolves inside the wallet namespace, never onto the vault's
	// custodial account.
	impostor, _, err := derive.TokenAccountAddress(derive.WalletAddress(vaultAddr.String()), "assetX")
	if err != nil {
		t.Fatalf("derive impostor: %v", err)
	}
	if impostor == custodial {
		t.Error("wallet identity aliased the custodial account address")
	}
}

func TestDerive_seedValidation(t *testing.T) {
	if _, _, err := derive.Derive(); err == nil {
		t.Error("empty seed set accepted")
	}
	long := make([]byte, 65)
	if _, _, err := derive.Derive(long); err == nil {
		t.Error("oversized seed accepted")
	}
}

func TestAddressRoundTrip(t *testing.T) {
	addr, _, _ := derive.VaultAddress("manager-1")
	parsed, err := derive.ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != addr {
		t.Errorf("round trip mismatch: %s vs %s", parsed, addr)
	}

	if _, err := derive.ParseAddress("zz"); err == nil {
		t.Error("invalid hex accepted")
	}
	if _, err := derive.ParseAddress("abcd"); err == nil {
		t.Error("short address accepted")
	}
}
