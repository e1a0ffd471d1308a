package vault

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dperdic/s3-asset-manager-vault/internal/token"
	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation. A single
// mutex serializes all operations, which is acceptable for its intended
// single-process development and test use.
type MemoryLedger struct {
	mu       sync.Mutex
	tokens   token.Engine
	vaults   map[derive.Address]*Vault
	subs     map[derive.Address]*SubAccount
	receipts map[derive.Address][]*Receipt
	logger   *zap.Logger
}

// NewMemoryLedger creates an empty MemoryLedger over the given token engine.
func NewMemoryLedger(tokens token.Engine, logger *zap.Logger) *MemoryLedger {
	return &MemoryLedger{
		tokens:   tokens,
		vaults:   make(map[derive.Address]*Vault),
		subs:     make(map[derive.Address]*SubAccount),
		receipts: make(map[derive.Address][]*Receipt),
		logger:   logger,
	}
}

// InitializeVault implements Ledger.
func (l *MemoryLedger) InitializeVault(_ context.Context, manager string) (*Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	addr, bump, err := derive.VaultAddress(manager)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}
	if _, ok := l.vaults[addr]; ok {
		return nil, ErrAlreadyInitialized
	}

	v := &Vault{
		Address:   addr,
		Manager:   manager,
		Bump:      bump,
		CreatedAt: time.Now().UTC(),
	}
	l.vaults[addr] = v
	l.logger.Info("vault initialized",
		zap.String("vault", addr.String()),
		zap.String("manager", manager),
	)
	cp := *v
	return &cp, nil
}

// Deposit implements Ledger. All preconditions are validated before the
// token transfer; once the transfer succeeds the in-memory mutations cannot
// fail, so the operation is all-or-nothing.
func (l *MemoryLedger) Deposit(ctx context.Context, req TxRequest) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Amount == 0 {
		return nil, ErrAmountMustBePositive
	}
	v, err := l.vaultByManager(req.Manager)
	if err != nil {
		return nil, err
	}
	if req.Authority != req.Customer {
		return nil, ErrUnauthorized
	}

	subAddr, subBump, err := derive.SubAccountAddress(v.Address, req.Asset, req.Customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	sub := l.subs[subAddr]
	var curBalance uint64
	if sub != nil {
		curBalance = sub.Balance
	}

	if curBalance > math.MaxUint64-req.Amount {
		return nil, ErrOverflow
	}
	if v.TotalDeposits > math.MaxUint64-req.Amount {
		return nil, ErrOverflow
	}

	// The vault's custodial account for this asset, owned by the vault's
	// derived address and created lazily on the first deposit of the asset.
	// Created only after every other precondition holds; if the transfer
	// itself still fails the empty account remains, which is harmless since
	// it is the account the next deposit of this asset would create anyway.
	custodial, err := l.tokens.CreateAccount(ctx, v.Address, req.Asset)
	if err != nil {
		return nil, err
	}

	wallet := derive.WalletAddress(req.Customer)
	source, _, err := derive.TokenAccountAddress(wallet, req.Asset)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	if err := l.tokens.Transfer(ctx, source, custodial.Address, wallet, req.Amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if sub == nil {
		sub = &SubAccount{
			Address:           subAddr,
			Vault:             v.Address,
			Owner:             req.Customer,
			Asset:             req.Asset,
			VaultTokenAccount: custodial.Address,
			Bump:              subBump,
			CreatedAt:         now,
		}
		l.subs[subAddr] = sub
	}
	sub.Balance += req.Amount
	sub.UpdatedAt = now
	v.TotalDeposits += req.Amount

	r := l.record(KindDeposit, v, sub, req.Amount, now)
	l.logger.Debug("deposit committed",
		zap.String("sub_account", subAddr.String()),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("balance", sub.Balance),
	)
	return r, nil
}

// Withdraw implements Ledger. The entitlement check against the customer's
// vault balance runs before any transfer is attempted; the custodial pool
// holds other customers' funds and is never drawn below the caller's claim.
func (l *MemoryLedger) Withdraw(ctx context.Context, req TxRequest) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Amount == 0 {
		return nil, ErrAmountMustBePositive
	}
	v, err := l.vaultByManager(req.Manager)
	if err != nil {
		return nil, err
	}

	subAddr, _, err := derive.SubAccountAddress(v.Address, req.Asset, req.Customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	sub := l.subs[subAddr]
	if sub == nil {
		return nil, ErrSubAccountNotFound
	}
	if req.Authority != sub.Owner {
		return nil, ErrUnauthorized
	}
	if sub.Balance < req.Amount {
		return nil, ErrInsufficientFunds
	}
	if v.TotalDeposits < req.Amount {
		return nil, ErrUnderflow
	}

	dest, _, err := derive.TokenAccountAddress(derive.WalletAddress(req.Customer), req.Asset)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}
	// The vault's derived address is the owner of the custodial account.
	if err := l.tokens.Transfer(ctx, sub.VaultTokenAccount, dest, v.Address, req.Amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub.Balance -= req.Amount
	sub.UpdatedAt = now
	v.TotalDeposits -= req.Amount

	r := l.record(KindWithdraw, v, sub, req.Amount, now)
	l.logger.Debug("withdrawal committed",
		zap.String("sub_account", subAddr.String()),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("balance", sub.Balance),
	)
	return r, nil
}

// GetVault implements Ledger.
func (l *MemoryLedger) GetVault(_ context.Context, manager string) (*Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, err := l.vaultByManager(manager)
	if err != nil {
		return nil, err
	}
	cp := *v
	return &cp, nil
}

// GetSubAccount implements Ledger.
func (l *MemoryLedger) GetSubAccount(_ context.Context, manager, asset, customer string) (*SubAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, err := l.vaultByManager(manager)
	if err != nil {
		return nil, err
	}
	subAddr, _, err := derive.SubAccountAddress(v.Address, asset, customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	sub := l.subs[subAddr]
	if sub == nil {
		return nil, ErrSubAccountNotFound
	}
	cp := *sub
	return &cp, nil
}

// Receipts implements Ledger.
func (l *MemoryLedger) Receipts(_ context.Context, manager, asset, customer string, limit int) ([]*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, err := l.vaultByManager(manager)
	if err != nil {
		return nil, err
	}
	subAddr, _, err := derive.SubAccountAddress(v.Address, asset, customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	all := l.receipts[subAddr]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	// Newest first.
	out := make([]*Receipt, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Verify implements Ledger: every vault's aggregate must equal the sum of
// its sub-account balances.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sums := make(map[derive.Address]uint64, len(l.vaults))
	for _, sub := range l.subs {
		sums[sub.Vault] += sub.Balance
	}
	for addr, v := range l.vaults {
		if v.TotalDeposits != sums[addr] {
			return fmt.Errorf("conservation violated for vault %s: total_deposits=%d, sum(balances)=%d",
				addr, v.TotalDeposits, sums[addr])
		}
	}
	return nil
}

func (l *MemoryLedger) vaultByManager(manager string) (*Vault, error) {
	addr, _, err := derive.VaultAddress(manager)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}
	v, ok := l.vaults[addr]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v, nil
}

// record appends a receipt for a committed operation. Must be called with
// the ledger mutex held.
func (l *MemoryLedger) record(kind ReceiptKind, v *Vault, sub *SubAccount, amt uint64, now time.Time) *Receipt {
	r := &Receipt{
		ID:               uuid.New(),
		Kind:             kind,
		Vault:            v.Address,
		SubAccount:       sub.Address,
		Customer:         sub.Owner,
		Asset:            sub.Asset,
		Amount:           amt,
		NewBalance:       sub.Balance,
		NewTotalDeposits: v.TotalDeposits,
		CreatedAt:        now,
	}
	l.receipts[sub.Address] = append(l.receipts[sub.Address], r)
	cp := *r
	return &cp
}
