package vault

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dperdic/s3-asset-manager-vault/internal/token"
	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// maxStoredBalance is the largest value the BIGINT ledger columns can hold.
const maxStoredBalance = uint64(math.MaxInt64)

// depositOverflows reports whether crediting amt on top of current would
// exceed maxStoredBalance. The amt check comes first so the subtraction
// below cannot wrap when amt alone is out of range.
func depositOverflows(current, amt uint64) bool {
	return amt > maxStoredBalance || current > maxStoredBalance-amt
}

// PostgresLedger persists the vault ledger to PostgreSQL. Each deposit or
// withdrawal runs as a single transaction that locks the sub-account row,
// performs the token transfer through the engine's Tx-scoped methods, and
// co-commits the aggregate — so the transfer and the bookkeeping are
// all-or-nothing. Sub-account rows are the unit of contention; operations on
// different customers' sub-accounts only meet on the vault aggregate row,
// which is touched last and briefly.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	tokens *token.PostgresEngine
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given pool and
// token engine. The engine must share the same pool so Tx-scoped transfers
// join the ledger's transactions.
func NewPostgresLedger(pool *pgxpool.Pool, tokens *token.PostgresEngine, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, tokens: tokens, logger: logger}
}

// InitializeVault implements Ledger. The derived address is the primary key,
// so create-once falls out of an insert that refuses to upsert.
func (l *PostgresLedger) InitializeVault(ctx context.Context, manager string) (*Vault, error) {
	addr, bump, err := derive.VaultAddress(manager)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}

	now := time.Now().UTC()
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO vaults (address, manager, bump, total_deposits, created_at)
		 VALUES ($1, $2, $3, 0, $4)
		 ON CONFLICT (address) DO NOTHING`,
		addr.String(), manager, int16(bump), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert vault: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyInitialized
	}

	l.logger.Info("vault initialized",
		zap.String("vault", addr.String()),
		zap.String("manager", manager),
	)
	return &Vault{Address: addr, Manager: manager, Bump: bump, CreatedAt: now}, nil
}

// Deposit implements Ledger.
func (l *PostgresLedger) Deposit(ctx context.Context, req TxRequest) (*Receipt, error) {
	if req.Amount == 0 {
		return nil, ErrAmountMustBePositive
	}
	if req.Authority != req.Customer {
		return nil, ErrUnauthorized
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	v, err := getVaultTx(ctx, tx, req.Manager, false)
	if err != nil {
		return nil, err
	}

	// The custodial account is owned by the vault's derived address, which
	// can never collide with a wallet address.
	custodial, err := l.tokens.CreateAccountTx(ctx, tx, v.Address, req.Asset)
	if err != nil {
		return nil, err
	}

	sub, err := l.ensureSubAccountTx(ctx, tx, v, custodial.Address, req.Asset, req.Customer)
	if err != nil {
		return nil, err
	}

	// Re-read the aggregate under lock before checking overflow.
	vLocked, err := getVaultTx(ctx, tx, req.Manager, true)
	if err != nil {
		return nil, err
	}
	if depositOverflows(sub.Balance, req.Amount) || depositOverflows(vLocked.TotalDeposits, req.Amount) {
		return nil, ErrOverflow
	}

	wallet := derive.WalletAddress(req.Customer)
	source, _, err := derive.TokenAccountAddress(wallet, req.Asset)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	if err := l.tokens.TransferTx(ctx, tx, source, custodial.Address, wallet, req.Amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE sub_accounts SET balance = balance + $1, updated_at = $2 WHERE address = $3`,
		int64(req.Amount), now, sub.Address.String(),
	); err != nil {
		return nil, fmt.Errorf("credit sub-account: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE vaults SET total_deposits = total_deposits + $1 WHERE address = $2`,
		int64(req.Amount), v.Address.String(),
	); err != nil {
		return nil, fmt.Errorf("credit vault aggregate: %w", err)
	}

	r := &Receipt{
		ID:               uuid.New(),
		Kind:             KindDeposit,
		Vault:            v.Address,
		SubAccount:       sub.Address,
		Customer:         req.Customer,
		Asset:            req.Asset,
		Amount:           req.Amount,
		NewBalance:       sub.Balance + req.Amount,
		NewTotalDeposits: vLocked.TotalDeposits + req.Amount,
		CreatedAt:        now,
	}
	if err := insertReceiptTx(ctx, tx, r); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit deposit: %w", err)
	}

	l.logger.Debug("deposit committed",
		zap.String("sub_account", sub.Address.String()),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("balance", r.NewBalance),
	)
	return r, nil
}

// Withdraw implements Ledger. The entitlement check runs against the locked
// sub-account row before any transfer, so two concurrent withdrawals cannot
// both pass against a stale balance.
func (l *PostgresLedger) Withdraw(ctx context.Context, req TxRequest) (*Receipt, error) {
	if req.Amount == 0 {
		return nil, ErrAmountMustBePositive
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	v, err := getVaultTx(ctx, tx, req.Manager, false)
	if err != nil {
		return nil, err
	}

	subAddr, _, err := derive.SubAccountAddress(v.Address, req.Asset, req.Customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	sub, err := getSubAccountTx(ctx, tx, subAddr, true)
	if err != nil {
		return nil, err
	}
	if req.Authority != sub.Owner {
		return nil, ErrUnauthorized
	}
	if sub.Balance < req.Amount {
		return nil, ErrInsufficientFunds
	}

	vLocked, err := getVaultTx(ctx, tx, req.Manager, true)
	if err != nil {
		return nil, err
	}
	if vLocked.TotalDeposits < req.Amount {
		return nil, ErrUnderflow
	}

	dest, _, err := derive.TokenAccountAddress(derive.WalletAddress(req.Customer), req.Asset)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}
	if err := l.tokens.TransferTx(ctx, tx, sub.VaultTokenAccount, dest, v.Address, req.Amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE sub_accounts SET balance = balance - $1, updated_at = $2 WHERE address = $3`,
		int64(req.Amount), now, sub.Address.String(),
	); err != nil {
		return nil, fmt.Errorf("debit sub-account: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE vaults SET total_deposits = total_deposits - $1 WHERE address = $2`,
		int64(req.Amount), v.Address.String(),
	); err != nil {
		return nil, fmt.Errorf("debit vault aggregate: %w", err)
	}

	r := &Receipt{
		ID:               uuid.New(),
		Kind:             KindWithdraw,
		Vault:            v.Address,
		SubAccount:       sub.Address,
		Customer:         req.Customer,
		Asset:            req.Asset,
		Amount:           req.Amount,
		NewBalance:       sub.Balance - req.Amount,
		NewTotalDeposits: vLocked.TotalDeposits - req.Amount,
		CreatedAt:        now,
	}
	if err := insertReceiptTx(ctx, tx, r); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit withdrawal: %w", err)
	}

	l.logger.Debug("withdrawal committed",
		zap.String("sub_account", sub.Address.String()),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("balance", r.NewBalance),
	)
	return r, nil
}

// GetVault implements Ledger.
func (l *PostgresLedger) GetVault(ctx context.Context, manager string) (*Vault, error) {
	return getVault(ctx, l.pool, manager)
}

// GetSubAccount implements Ledger.
func (l *PostgresLedger) GetSubAccount(ctx context.Context, manager, asset, customer string) (*SubAccount, error) {
	v, err := getVault(ctx, l.pool, manager)
	if err != nil {
		return nil, err
	}
	addr, _, err := derive.SubAccountAddress(v.Address, asset, customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	return getSubAccount(ctx, l.pool, addr)
}

// Receipts implements Ledger.
func (l *PostgresLedger) Receipts(ctx context.Context, manager, asset, customer string, limit int) ([]*Receipt, error) {
	v, err := getVault(ctx, l.pool, manager)
	if err != nil {
		return nil, err
	}
	addr, _, err := derive.SubAccountAddress(v.Address, asset, customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, kind, vault, sub_account, customer, asset, amount, new_balance, new_total_deposits, created_at
		 FROM receipts WHERE sub_account = $1 ORDER BY created_at DESC LIMIT $2`,
		addr.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Verify implements Ledger. One aggregate query over all vaults; O(n) in
// sub-accounts.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT v.address, v.total_deposits, COALESCE(SUM(s.balance), 0)
		 FROM vaults v
		 LEFT JOIN sub_accounts s ON s.vault = v.address
		 GROUP BY v.address, v.total_deposits`,
	)
	if err != nil {
		return fmt.Errorf("query conservation audit: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		var total, sum int64
		if err := rows.Scan(&addr, &total, &sum); err != nil {
			return fmt.Errorf("scan audit row: %w", err)
		}
		if total != sum {
			return fmt.Errorf("conservation violated for vault %s: total_deposits=%d, sum(balances)=%d",
				addr, total, sum)
		}
	}
	return rows.Err()
}

// ensureSubAccountTx creates the sub-account row for (vault, asset, customer)
// if it does not exist, then returns it locked. The insert and the lock run
// in the caller's transaction, so two concurrent first deposits race on the
// primary key and both end up on the single surviving row.
func (l *PostgresLedger) ensureSubAccountTx(ctx context.Context, tx pgx.Tx, v *Vault, custodial derive.Address, asset, customer string) (*SubAccount, error) {
	addr, bump, err := derive.SubAccountAddress(v.Address, asset, customer)
	if err != nil {
		return nil, fmt.Errorf("derive sub-account address: %w", err)
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO sub_accounts (address, vault, owner, asset, vault_token_account, balance, bump, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)
		 ON CONFLICT (address) DO NOTHING`,
		addr.String(), v.Address.String(), customer, asset, custodial.String(), int16(bump), now,
	); err != nil {
		return nil, fmt.Errorf("create sub-account: %w", err)
	}
	return getSubAccountTx(ctx, tx, addr, true)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getVault(ctx context.Context, q pgQuerier, manager string) (*Vault, error) {
	addr, _, err := derive.VaultAddress(manager)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}
	return scanVault(q.QueryRow(ctx,
		`SELECT address, manager, bump, total_deposits, created_at FROM vaults WHERE address = $1`,
		addr.String(),
	))
}

func getVaultTx(ctx context.Context, tx pgx.Tx, manager string, forUpdate bool) (*Vault, error) {
	addr, _, err := derive.VaultAddress(manager)
	if err != nil {
		return nil, fmt.Errorf("derive vault address: %w", err)
	}
	query := `SELECT address, manager, bump, total_deposits, created_at FROM vaults WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanVault(tx.QueryRow(ctx, query, addr.String()))
}

func scanVault(row pgx.Row) (*Vault, error) {
	v := &Vault{}
	var addr string
	var bump int16
	var total int64
	if err := row.Scan(&addr, &v.Manager, &bump, &total, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("scan vault: %w", err)
	}
	parsed, err := derive.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	v.Address = parsed
	v.Bump = uint8(bump)
	v.TotalDeposits = uint64(total)
	return v, nil
}

func getSubAccount(ctx context.Context, q pgQuerier, addr derive.Address) (*SubAccount, error) {
	return scanSubAccount(q.QueryRow(ctx,
		`SELECT address, vault, owner, asset, vault_token_account, balance, bump, created_at, updated_at
		 FROM sub_accounts WHERE address = $1`,
		addr.String(),
	))
}

func getSubAccountTx(ctx context.Context, tx pgx.Tx, addr derive.Address, forUpdate bool) (*SubAccount, error) {
	query := `SELECT address, vault, owner, asset, vault_token_account, balance, bump, created_at, updated_at
		 FROM sub_accounts WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanSubAccount(tx.QueryRow(ctx, query, addr.String()))
}

func scanSubAccount(row pgx.Row) (*SubAccount, error) {
	s := &SubAccount{}
	var addr, vaultAddr, custodial string
	var balance int64
	var bump int16
	if err := row.Scan(&addr, &vaultAddr, &s.Owner, &s.Asset, &custodial, &balance, &bump, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubAccountNotFound
		}
		return nil, fmt.Errorf("scan sub-account: %w", err)
	}
	var err error
	if s.Address, err = derive.ParseAddress(addr); err != nil {
		return nil, err
	}
	if s.Vault, err = derive.ParseAddress(vaultAddr); err != nil {
		return nil, err
	}
	if s.VaultTokenAccount, err = derive.ParseAddress(custodial); err != nil {
		return nil, err
	}
	s.Balance = uint64(balance)
	s.Bump = uint8(bump)
	return s, nil
}

func insertReceiptTx(ctx context.Context, tx pgx.Tx, r *Receipt) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO receipts (id, kind, vault, sub_account, customer, asset, amount, new_balance, new_total_deposits, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, string(r.Kind), r.Vault.String(), r.SubAccount.String(), r.Customer,
		r.Asset, int64(r.Amount), int64(r.NewBalance), int64(r.NewTotalDeposits), r.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func scanReceipt(rows pgx.Rows) (*Receipt, error) {
	r := &Receipt{}
	var kind, vaultAddr, subAddr string
	var amt, bal, total int64
	if err := rows.Scan(&r.ID, &kind, &vaultAddr, &subAddr, &r.Customer, &r.Asset, &amt, &bal, &total, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan receipt: %w", err)
	}
	r.Kind = ReceiptKind(kind)
	var err error
	if r.Vault, err = derive.ParseAddress(vaultAddr); err != nil {
		return nil, err
	}
	if r.SubAccount, err = derive.ParseAddress(subAddr); err != nil {
		return nil, err
	}
	r.Amount = uint64(amt)
	r.NewBalance = uint64(bal)
	r.NewTotalDeposits = uint64(total)
	return r, nil
}
