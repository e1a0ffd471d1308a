// Package token implements the asset-transfer and account-creation
// primitives the vault ledger is layered on: mints (one per asset type),
// asset-holding accounts addressed by derived (owner, asset) pairs, and
// atomic transfers between them. Transfers are the sole path by which
// custody of units changes hands.
//
// Two implementations of the Engine interface are provided:
//   - MemoryEngine: in-process, for testing and single-process deployments.
//   - PostgresEngine: durable; exposes Tx-scoped variants so the ledger can
//     commit a transfer and its own bookkeeping as one transaction.
package token

import (
	"context"
	"errors"

	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
)

var (
	// ErrMintNotFound is returned when an asset type has no registered mint.
	ErrMintNotFound = errors.New("mint not found")

	// ErrMintExists is returned by CreateMint for an already-registered asset.
	ErrMintExists = errors.New("mint already exists")

	// ErrAccountNotFound is returned when a transfer references an
	// asset-holding account that was never created.
	ErrAccountNotFound = errors.New("token account not found")

	// ErrInsufficientSourceFunds is returned when the source account holds
	// fewer units than the transfer amount. Distinct from the ledger's own
	// entitlement check, which concerns a customer's vault balance.
	ErrInsufficientSourceFunds = errors.New("insufficient source funds")

	// ErrNotAccountOwner is returned when the transfer authority does not
	// own the source account.
	ErrNotAccountOwner = errors.New("authority does not own source account")

	// ErrAssetMismatch is returned when source and destination accounts
	// hold different asset types.
	ErrAssetMismatch = errors.New("source and destination assets differ")

	// ErrBalanceOverflow is returned when a credit would exceed the
	// representable range.
	ErrBalanceOverflow = errors.New("token balance overflow")
)

// Mint describes one fungible asset type.
type Mint struct {
	Asset     string `json:"asset"`
	Decimals  uint8  `json:"decimals"`
	Authority string `json:"authority"`
}

// Account is a single asset-holding account. Its address is derived from the
// (owner, asset) pair, so there is exactly one per pair and it is reached by
// recomputation, never by registry lookup. Owners are addresses: wallet
// identities are mapped through derive.WalletAddress before they reach the
// engine, and a vault's custodial accounts are owned by the vault's own
// derived address. The reserved wallet prefix keeps the two owner kinds
// disjoint, so no caller-chosen identity can own a custodial account.
type Account struct {
	Address derive.Address `json:"address"`
	Owner   derive.Address `json:"owner"`
	Asset   string         `json:"asset"`
	Balance uint64         `json:"balance"`
	Bump    uint8          `json:"bump"`
}

// Engine is the asset-transfer primitive consumed by the vault ledger.
type Engine interface {
	// CreateMint registers an asset type with its decimal precision.
	CreateMint(ctx context.Context, asset string, decimals uint8, authority string) (*Mint, error)

	// GetMint returns the mint for an asset type.
	GetMint(ctx context.Context, asset string) (*Mint, error)

	// CreateAccount creates (or returns the existing) asset-holding
	// account for the (owner, asset) pair. Idempotent.
	CreateAccount(ctx context.Context, owner derive.Address, asset string) (*Account, error)

	// GetAccount returns an asset-holding account by address.
	GetAccount(ctx context.Context, addr derive.Address) (*Account, error)

	// MintTo credits freshly minted units to an account. Used by deploy
	// and seed tooling, never by the ledger itself.
	MintTo(ctx context.Context, asset string, to derive.Address, amt uint64) error

	// Transfer atomically moves amt units from one account to another.
	// authority must equal the source account's owner address. Succeeds or
	// fails as a whole.
	Transfer(ctx context.Context, from, to derive.Address, authority derive.Address, amt uint64) error
}
