package token_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dperdic/s3-asset-manager-vault/internal/token"
	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
	"go.uber.org/zap"
)

func newEngine(t *testing.T) *token.MemoryEngine {
	t.Helper()
	return token.NewMemoryEngine(zap.NewNop())
}

func mustMint(t *testing.T, e *token.MemoryEngine, asset string, decimals uint8) {
	t.Helper()
	if _, err := e.CreateMint(context.Background(), asset, decimals, "mint-authority"); err != nil {
		t.Fatalf("create mint %s: %v", asset, err)
	}
}

// mustAccount creates the wallet-owned account for a wallet identity.
func mustAccount(t *testing.T, e *token.MemoryEngine, wallet, asset string) *token.Account {
	t.Helper()
	acct, err := e.CreateAccount(context.Background(), derive.WalletAddress(wallet), asset)
	if err != nil {
		t.Fatalf("create account %s/%s: %v", wallet, asset, err)
	}
	return acct
}

func TestCreateMint_duplicate(t *testing.T) {
	e := newEngine(t)
	mustMint(t, e, "USDX", 6)
	if _, err := e.CreateMint(context.Background(), "USDX", 6, "x"); !errors.Is(err, token.ErrMintExists) {
		t.Errorf("expected ErrMintExists, got %v", err)
	}
}

func TestCreateAccount_idempotent(t *testing.T) {
	e := newEngine(t)
	mustMint(t, e, "USDX", 6)

	a1 := mustAccount(t, e, "alice", "USDX")
	a2 := mustAccount(t, e, "alice", "USDX")
	if a1.Address != a2.Address {
		t.Errorf("second create returned a different account: %s vs %s", a1.Address, a2.Address)
	}

	want, bump, _ := derive.TokenAccountAddress(derive.WalletAddress("alice"), "USDX")
	if a1.Address != want || a1.Bump != bump {
		t.Errorf("account not at derived address: got %s/%d want %s/%d", a1.Address, a1.Bump, want, bump)
	}
}

func TestCreateAccount_unknownMint(t *testing.T) {
	e := newEngine(t)
	if _, err := e.CreateAccount(context.Background(), derive.WalletAddress("alice"), "NOPE"); !errors.Is(err, token.ErrMintNotFound) {
		t.Errorf("expected ErrMintNotFound, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustMint(t, e, "USDX", 6)
	src := mustAccount(t, e, "alice", "USDX")
	dst := mustAccount(t, e, "bob", "USDX")

	if err := e.MintTo(ctx, "USDX", src.Address, 1000); err != nil {
		t.Fatalf("mint to: %v", err)
	}
	if err := e.Transfer(ctx, src.Address, dst.Address, derive.WalletAddress("alice"), 400); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got, _ := e.GetAccount(ctx, src.Address)
	if got.Balance != 600 {
		t.Errorf("source balance = %d, want 600", got.Balance)
	}
	got, _ = e.GetAccount(ctx, dst.Address)
	if got.Balance != 400 {
		t.Errorf("destination balance = %d, want 400", got.Balance)
	}
}

func TestTransfer_insufficientSourceFunds(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustMint(t, e, "USDX", 6)
	src := mustAccount(t, e, "alice", "USDX")
	dst := mustAccount(t, e, "bob", "USDX")

	if err := e.Transfer(ctx, src.Address, dst.Address, derive.WalletAddress("alice"), 1); !errors.Is(err, token.ErrInsufficientSourceFunds) {
		t.Errorf("expected ErrInsufficientSourceFunds, got %v", err)
	}
	got, _ := e.GetAccount(ctx, dst.Address)
	if got.Balance != 0 {
		t.Errorf("failed transfer mutated destination: balance = %d", got.Balance)
	}
}

func TestTransfer_wrongAuthority(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustMint(t, e, "USDX", 6)
	src := mustAccount(t, e, "alice", "USDX")
	dst := mustAccount(t, e, "bob", "USDX")
	if err := e.MintTo(ctx, "USDX", src.Address, 100); err != nil {
		t.Fatalf("mint to: %v", err)
	}

	if err := e.Transfer(ctx, src.Address, dst.Address, derive.WalletAddress("mallory"), 1); !errors.Is(err, token.ErrNotAccountOwner) {
		t.Errorf("expected ErrNotAccountOwner, got %v", err)
	}
	got, _ := e.GetAccount(ctx, src.Address)
	if got.Balance != 100 {
		t.Errorf("unauthorized transfer mutated source: balance = %d", got.Balance)
	}
}

func TestTransfer_assetMismatch(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustMint(t, e, "USDX", 6)
	mustMint(t, e, "GOLD", 3)
	src := mustAccount(t, e, "alice", "USDX")
	dst := mustAccount(t, e, "bob", "GOLD")
	if err := e.MintTo(ctx, "USDX", src.Address, 100); err != nil {
		t.Fatalf("mint to: %v", err)
	}

	if err := e.Transfer(ctx, src.Address, dst.Address, derive.WalletAddress("alice"), 1); !errors.Is(err, token.ErrAssetMismatch) {
		t.Errorf("expected ErrAssetMismatch, got %v", err)
	}
}

func TestTransfer_missingAccount(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	mustMint(t, e, "USDX", 6)
	src := mustAccount(t, e, "alice", "USDX")
	missing, _, _ := derive.TokenAccountAddress(derive.WalletAddress("nobody"), "USDX")

	if err := e.Transfer(ctx, src.Address, missing, derive.WalletAddress("alice"), 1); !errors.Is(err, token.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
