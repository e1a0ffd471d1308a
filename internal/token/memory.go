package token

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
	"go.uber.org/zap"
)

// MemoryEngine is an in-memory, thread-safe Engine implementation.
type MemoryEngine struct {
	mu       sync.RWMutex
	mints    map[string]*Mint
	accounts map[derive.Address]*Account
	logger   *zap.Logger
}

// NewMemoryEngine creates an empty MemoryEngine.
func NewMemoryEngine(logger *zap.Logger) *MemoryEngine {
	return &MemoryEngine{
		mints:    make(map[string]*Mint),
		accounts: make(map[derive.Address]*Account),
		logger:   logger,
	}
}

// CreateMint implements Engine.
func (e *MemoryEngine) CreateMint(_ context.Context, asset string, decimals uint8, authority string) (*Mint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.mints[asset]; ok {
		return nil, ErrMintExists
	}
	m := &Mint{Asset: asset, Decimals: decimals, Authority: authority}
	e.mints[asset] = m
	return m, nil
}

// GetMint implements Engine.
func (e *MemoryEngine) GetMint(_ context.Context, asset string) (*Mint, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.mints[asset]
	if !ok {
		return nil, ErrMintNotFound
	}
	cp := *m
	return &cp, nil
}

// CreateAccount implements Engine. A second call for the same (owner, asset)
// pair returns the existing account.
func (e *MemoryEngine) CreateAccount(_ context.Context, owner derive.Address, asset string) (*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createAccountLocked(owner, asset)
}

func (e *MemoryEngine) createAccountLocked(owner derive.Address, asset string) (*Account, error) {
	if _, ok := e.mints[asset]; !ok {
		return nil, ErrMintNotFound
	}
	addr, bump, err := derive.TokenAccountAddress(owner, asset)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}
	if acct, ok := e.accounts[addr]; ok {
		cp := *acct
		return &cp, nil
	}
	acct := &Account{Address: addr, Owner: owner, Asset: asset, Bump: bump}
	e.accounts[addr] = acct
	cp := *acct
	return &cp, nil
}

// GetAccount implements Engine.
func (e *MemoryEngine) GetAccount(_ context.Context, addr derive.Address) (*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, ok := e.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

// MintTo implements Engine.
func (e *MemoryEngine) MintTo(_ context.Context, asset string, to derive.Address, amt uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.mints[asset]; !ok {
		return ErrMintNotFound
	}
	acct, ok := e.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Asset != asset {
		return ErrAssetMismatch
	}
	if acct.Balance > math.MaxUint64-amt {
		return ErrBalanceOverflow
	}
	acct.Balance += amt
	return nil
}

// Transfer implements Engine. All checks run before any mutation, so a
// failed transfer leaves both accounts untouched.
func (e *MemoryEngine) Transfer(_ context.Context, from, to derive.Address, authority derive.Address, amt uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.accounts[from]
	if !ok {
		return ErrAccountNotFound
	}
	dst, ok := e.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}
	if src.Owner != authority {
		return ErrNotAccountOwner
	}
	if src.Asset != dst.Asset {
		return ErrAssetMismatch
	}
	if src.Balance < amt {
		return ErrInsufficientSourceFunds
	}
	if dst.Balance > math.MaxUint64-amt {
		return ErrBalanceOverflow
	}

	src.Balance -= amt
	dst.Balance += amt

	if e.logger != nil {
		e.logger.Debug("token transfer",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Uint64("amount", amt),
		)
	}
	return nil
}
