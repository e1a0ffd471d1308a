package client_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dperdic/s3-asset-manager-vault/internal/handler"
	"github.com/dperdic/s3-asset-manager-vault/internal/identity"
	"github.com/dperdic/s3-asset-manager-vault/internal/token"
	"github.com/dperdic/s3-asset-manager-vault/internal/vault"
	"github.com/dperdic/s3-asset-manager-vault/pkg/client"
	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// startServer stands up the full HTTP stack over the memory ledger with
// asset X (3 decimals) minted and alice funded.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer := identity.NewIssuer(key, "https://vault.test", time.Hour)

	engine := token.NewMemoryEngine(zap.NewNop())
	ledger := vault.NewMemoryLedger(engine, zap.NewNop())

	ctx := context.Background()
	if _, err := engine.CreateMint(ctx, "X", 3, "mint-authority"); err != nil {
		t.Fatalf("create mint: %v", err)
	}
	acct, err := engine.CreateAccount(ctx, derive.WalletAddress("alice"), "X")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := engine.MintTo(ctx, "X", acct.Address, 100_000); err != nil {
		t.Fatalf("fund alice: %v", err)
	}

	r := gin.New()
	api := r.Group("/api/v1")
	auth := handler.RequireWallet(issuer)
	handler.NewVaultHandler(ledger, engine, zap.NewNop()).Register(api, auth)
	handler.NewAuthHandler(issuer, "test-secret", zap.NewNop()).Register(api)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_endToEnd(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	// Manager initializes the vault.
	mgr := client.New(srv.URL)
	if _, err := mgr.IssueToken(ctx, "manager-wallet", "test-secret"); err != nil {
		t.Fatalf("issue manager token: %v", err)
	}
	v, err := mgr.InitializeVault(ctx)
	if err != nil {
		t.Fatalf("initialize vault: %v", err)
	}
	if v.Manager != "manager-wallet" {
		t.Errorf("vault manager = %q", v.Manager)
	}

	// Alice deposits and withdraws.
	alice := client.New(srv.URL)
	if _, err := alice.IssueToken(ctx, "alice", "test-secret"); err != nil {
		t.Fatalf("issue alice token: %v", err)
	}
	res, err := alice.Deposit(ctx, "manager-wallet", "X", "3.123")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Receipt.NewBalance != 3123 {
		t.Errorf("balance after deposit = %d, want 3123", res.Receipt.NewBalance)
	}

	if _, err := alice.Withdraw(ctx, "manager-wallet", "X", "2.112"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	sub, err := alice.GetBalance(ctx, "manager-wallet", "X", "alice")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if sub.Balance != 1011 {
		t.Errorf("balance = %d, want 1011", sub.Balance)
	}

	receipts, err := alice.ListReceipts(ctx, "manager-wallet", "X", "alice", 10)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(receipts) != 2 {
		t.Errorf("got %d receipts, want 2", len(receipts))
	}
}

func TestClient_apiErrorDecoding(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	c := client.New(srv.URL)
	if _, err := c.IssueToken(ctx, "manager-wallet", "test-secret"); err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := c.InitializeVault(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := c.InitializeVault(ctx)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "already_initialized" || apiErr.Status != 409 {
		t.Errorf("unexpected api error: %+v", apiErr)
	}
}

func TestClient_unauthenticated(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	c := client.New(srv.URL)
	_, err := c.InitializeVault(ctx)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 401 {
		t.Errorf("status = %d, want 401", apiErr.Status)
	}
}

func TestClient_badAdminSecret(t *testing.T) {
	ctx := context.Background()
	srv := startServer(t)

	c := client.New(srv.URL)
	if _, err := c.IssueToken(ctx, "alice", "wrong"); err == nil {
		t.Error("expected error for bad admin secret")
	}
}
