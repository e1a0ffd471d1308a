package vault

import (
	"time"

	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
	"github.com/google/uuid"
)

// Vault is the root ledger record for one manager. The manager identity is
// set once at creation and never changes; TotalDeposits is the strongly
// consistent sum of all sub-account balances under this vault, co-committed
// with every deposit and withdrawal.
type Vault struct {
	Address       derive.Address `json:"address"`
	Manager       string         `json:"manager"`
	Bump          uint8          `json:"bump"`
	TotalDeposits uint64         `json:"total_deposits"`
	CreatedAt     time.Time      `json:"created_at"`
}

// SubAccount tracks one customer's balance for one asset type under one
// vault. It records a claim against the vault's custodial pool; the customer
// never owns the underlying asset-holding account. Created lazily on the
// customer's first deposit for the (vault, asset) pair.
type SubAccount struct {
	Address           derive.Address `json:"address"`
	Vault             derive.Address `json:"vault"`
	Owner             string         `json:"owner"`
	Asset             string         `json:"asset"`
	VaultTokenAccount derive.Address `json:"vault_token_account"`
	Balance           uint64         `json:"balance"`
	Bump              uint8          `json:"bump"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ReceiptKind distinguishes the two balance-mutating operations.
type ReceiptKind string

const (
	KindDeposit  ReceiptKind = "deposit"
	KindWithdraw ReceiptKind = "withdraw"
)

// Receipt is the record returned (and persisted) for every committed
// deposit or withdrawal. NewBalance and NewTotalDeposits are the values as
// of this operation's commit, so callers can observe balances without a
// follow-up read.
type Receipt struct {
	ID               uuid.UUID      `json:"id"`
	Kind             ReceiptKind    `json:"kind"`
	Vault            derive.Address `json:"vault"`
	SubAccount       derive.Address `json:"sub_account"`
	Customer         string         `json:"customer"`
	Asset            string         `json:"asset"`
	Amount           uint64         `json:"amount"`
	NewBalance       uint64         `json:"new_balance"`
	NewTotalDeposits uint64         `json:"new_total_deposits"`
	CreatedAt        time.Time      `json:"created_at"`
}
