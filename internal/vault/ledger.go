package vault

import "context"

// TxRequest carries one deposit or withdrawal. Authority is the
// authenticated caller identity; the ledger rejects the operation with
// ErrUnauthorized unless it matches the targeted customer.
type TxRequest struct {
	Authority string
	Manager   string
	Customer  string
	Asset     string
	Amount    uint64
}

// Ledger is the vault state machine. Both MemoryLedger and PostgresLedger
// implement this interface.
type Ledger interface {
	// InitializeVault creates the vault record for a manager at its
	// derived address. Create-once: a second call fails with
	// ErrAlreadyInitialized and leaves the existing record untouched.
	InitializeVault(ctx context.Context, manager string) (*Vault, error)

	// Deposit moves amount units of the asset from the customer's own
	// token account into the vault's custodial account, lazily creating
	// the sub-account, and credits the sub-account balance and the vault
	// aggregate — all as one atomic operation.
	Deposit(ctx context.Context, req TxRequest) (*Receipt, error)

	// Withdraw checks the customer's vault entitlement, then moves amount
	// units from the custodial account back to the customer and debits
	// the sub-account and aggregate atomically.
	Withdraw(ctx context.Context, req TxRequest) (*Receipt, error)

	// GetVault returns the vault record for a manager.
	GetVault(ctx context.Context, manager string) (*Vault, error)

	// GetSubAccount returns the (vault, asset, customer) balance record.
	GetSubAccount(ctx context.Context, manager, asset, customer string) (*SubAccount, error)

	// Receipts returns the most recent receipts for a customer's
	// sub-account, newest first.
	Receipts(ctx context.Context, manager, asset, customer string, limit int) ([]*Receipt, error)

	// Verify audits conservation: for every vault, total_deposits must
	// equal the sum of its sub-account balances. Returns nil when the
	// ledger is consistent.
	Verify(ctx context.Context) error
}
