package vault

import (
	"errors"

	"github.com/dperdic/s3-asset-manager-vault/internal/token"
)

// The ledger's failure taxonomy. Every precondition violation is rejected
// before any mutation or transfer is attempted; callers can rely on the
// returned sentinel to distinguish the cases programmatically.
var (
	// ErrAlreadyInitialized: a vault record already exists at the derived
	// address. Initialization is create-once, never an upsert.
	ErrAlreadyInitialized = errors.New("vault already initialized")

	// ErrVaultNotFound: no vault exists for the target manager.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrSubAccountNotFound: the customer has never deposited this asset
	// into this vault.
	ErrSubAccountNotFound = errors.New("sub-account not found")

	// ErrUnauthorized: the authenticated caller does not match the
	// customer (or manager) the operation targets.
	ErrUnauthorized = errors.New("caller is not authorized for this account")

	// ErrAmountMustBePositive: deposit and withdraw amounts must be > 0.
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrInsufficientFunds: the withdrawal exceeds the customer's vault
	// balance. This is the ledger's own entitlement check, raised before
	// any transfer is attempted; it is distinct from
	// token.ErrInsufficientSourceFunds, which concerns the caller's own
	// token account on deposit.
	ErrInsufficientFunds = errors.New("insufficient vault balance")

	// ErrOverflow: the balance or aggregate would exceed the representable
	// range.
	ErrOverflow = errors.New("balance arithmetic overflow")

	// ErrUnderflow: the aggregate would go negative. Indicates a
	// conservation violation and should never occur in a healthy ledger.
	ErrUnderflow = errors.New("balance arithmetic underflow")
)

// Code maps an operation error to its stable, enumerable API code.
// Token-engine errors surface with their own codes so callers can tell
// "your vault balance is short" from "your own token account is short".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrVaultNotFound):
		return "vault_not_found"
	case errors.Is(err, ErrSubAccountNotFound):
		return "sub_account_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAmountMustBePositive):
		return "amount_must_be_positive"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrOverflow), errors.Is(err, token.ErrBalanceOverflow):
		return "overflow"
	case errors.Is(err, ErrUnderflow):
		return "underflow"
	case errors.Is(err, token.ErrInsufficientSourceFunds):
		return "insufficient_source_funds"
	case errors.Is(err, token.ErrMintNotFound):
		return "asset_not_found"
	case errors.Is(err, token.ErrAccountNotFound):
		return "token_account_not_found"
	case errors.Is(err, token.ErrNotAccountOwner):
		return "unauthorized"
	default:
		return "internal"
	}
}
