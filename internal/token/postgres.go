package token

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dperdic/s3-asset-manager-vault/pkg/derive"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// maxStoredBalance is the largest balance the BIGINT columns can hold.
const maxStoredBalance = uint64(math.MaxInt64)

// creditOverflows reports whether crediting amt on top of current would
// exceed maxStoredBalance. The amt check comes first so the subtraction
// below cannot wrap when amt alone is out of range.
func creditOverflows(current, amt uint64) bool {
	return amt > maxStoredBalance || current > maxStoredBalance-amt
}

// PostgresEngine persists mints and asset-holding accounts to PostgreSQL.
// The Tx-scoped methods let callers (the Postgres ledger) run a transfer
// inside their own transaction so the transfer and the ledger's balance
// bookkeeping commit or roll back as one unit.
type PostgresEngine struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresEngine creates a PostgresEngine backed by the given pool.
func NewPostgresEngine(pool *pgxpool.Pool, logger *zap.Logger) *PostgresEngine {
	return &PostgresEngine{pool: pool, logger: logger}
}

// CreateMint implements Engine.
func (e *PostgresEngine) CreateMint(ctx context.Context, asset string, decimals uint8, authority string) (*Mint, error) {
	tag, err := e.pool.Exec(ctx,
		`INSERT INTO mints (asset, decimals, authority)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (asset) DO NOTHING`,
		asset, int16(decimals), authority,
	)
	if err != nil {
		return nil, fmt.Errorf("create mint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMintExists
	}
	return &Mint{Asset: asset, Decimals: decimals, Authority: authority}, nil
}

// GetMint implements Engine.
func (e *PostgresEngine) GetMint(ctx context.Context, asset string) (*Mint, error) {
	m := &Mint{}
	var decimals int16
	err := e.pool.QueryRow(ctx,
		`SELECT asset, decimals, authority FROM mints WHERE asset = $1`, asset,
	).Scan(&m.Asset, &decimals, &m.Authority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mint: %w", err)
	}
	m.Decimals = uint8(decimals)
	return m, nil
}

// CreateAccount implements Engine.
func (e *PostgresEngine) CreateAccount(ctx context.Context, owner derive.Address, asset string) (*Account, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	acct, err := e.CreateAccountTx(ctx, tx, owner, asset)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create account: %w", err)
	}
	return acct, nil
}

// CreateAccountTx creates (or fetches) the asset-holding account for the
// (owner, asset) pair within an existing transaction. Idempotent: the
// derived address is the primary key and conflicts fall through to a read.
func (e *PostgresEngine) CreateAccountTx(ctx context.Context, tx pgx.Tx, owner derive.Address, asset string) (*Account, error) {
	if _, err := mintDecimalsTx(ctx, tx, asset); err != nil {
		return nil, err
	}
	addr, bump, err := derive.TokenAccountAddress(owner, asset)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO token_accounts (address, owner, asset, balance, bump)
		 VALUES ($1, $2, $3, 0, $4)
		 ON CONFLICT (address) DO NOTHING`,
		addr.String(), owner.String(), asset, int16(bump),
	); err != nil {
		return nil, fmt.Errorf("create token account: %w", err)
	}
	return getAccount(ctx, tx, addr, false)
}

// GetAccount implements Engine.
func (e *PostgresEngine) GetAccount(ctx context.Context, addr derive.Address) (*Account, error) {
	return getAccount(ctx, e.pool, addr, false)
}

// MintTo implements Engine.
func (e *PostgresEngine) MintTo(ctx context.Context, asset string, to derive.Address, amt uint64) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	acct, err := getAccount(ctx, tx, to, true)
	if err != nil {
		return err
	}
	if acct.Asset != asset {
		return ErrAssetMismatch
	}
	if creditOverflows(acct.Balance, amt) {
		return ErrBalanceOverflow
	}
	if _, err := tx.Exec(ctx,
		`UPDATE token_accounts SET balance = balance + $1 WHERE address = $2`,
		int64(amt), to.String(),
	); err != nil {
		return fmt.Errorf("mint to account: %w", err)
	}
	return tx.Commit(ctx)
}

// Transfer implements Engine.
func (e *PostgresEngine) Transfer(ctx context.Context, from, to derive.Address, authority derive.Address, amt uint64) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := e.TransferTx(ctx, tx, from, to, authority, amt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// TransferTx moves amt units between two accounts within an existing
// transaction. Both rows are locked in address order so two opposing
// transfers cannot deadlock.
func (e *PostgresEngine) TransferTx(ctx context.Context, tx pgx.Tx, from, to derive.Address, authority derive.Address, amt uint64) error {
	first, second := from, to
	if second.String() < first.String() {
		first, second = second, first
	}
	locked := make(map[derive.Address]*Account, 2)
	for _, addr := range []derive.Address{first, second} {
		acct, err := getAccount(ctx, tx, addr, true)
		if err != nil {
			return err
		}
		locked[addr] = acct
	}
	src, dst := locked[from], locked[to]

	if src.Owner != authority {
		return ErrNotAccountOwner
	}
	if src.Asset != dst.Asset {
		return ErrAssetMismatch
	}
	if src.Balance < amt {
		return ErrInsufficientSourceFunds
	}
	if creditOverflows(dst.Balance, amt) {
		return ErrBalanceOverflow
	}

	if _, err := tx.Exec(ctx,
		`UPDATE token_accounts SET balance = balance - $1 WHERE address = $2`,
		int64(amt), from.String(),
	); err != nil {
		return fmt.Errorf("debit source: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE token_accounts SET balance = balance + $1 WHERE address = $2`,
		int64(amt), to.String(),
	); err != nil {
		return fmt.Errorf("credit destination: %w", err)
	}

	e.logger.Debug("token transfer",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint64("amount", amt),
	)
	return nil
}

// mintDecimalsTx reads a mint's precision within a transaction.
func mintDecimalsTx(ctx context.Context, tx pgx.Tx, asset string) (uint8, error) {
	var decimals int16
	err := tx.QueryRow(ctx, `SELECT decimals FROM mints WHERE asset = $1`, asset).Scan(&decimals)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrMintNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get mint: %w", err)
	}
	return uint8(decimals), nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getAccount(ctx context.Context, q querier, addr derive.Address, forUpdate bool) (*Account, error) {
	query := `SELECT owner, asset, balance, bump FROM token_accounts WHERE address = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	acct := &Account{Address: addr}
	var owner string
	var balance int64
	var bump int16
	err := q.QueryRow(ctx, query, addr.String()).Scan(&owner, &acct.Asset, &balance, &bump)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token account: %w", err)
	}
	if acct.Owner, err = derive.ParseAddress(owner); err != nil {
		return nil, fmt.Errorf("parse account owner: %w", err)
	}
	acct.Balance = uint64(balance)
	acct.Bump = uint8(bump)
	return acct, nil
}
