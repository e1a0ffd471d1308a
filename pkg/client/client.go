// Package client provides the Go SDK for the vault HTTP API: token
// issuance, vault initialization, deposits, withdrawals, and balance reads.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a structured error response from the vault API. Code is the
// stable ledger error code ("insufficient_funds", "already_initialized", ...).
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("vault api: %s (%s, http %d)", e.Message, e.Code, e.Status)
}

// Vault mirrors the API's vault record.
type Vault struct {
	Address       string    `json:"address"`
	Manager       string    `json:"manager"`
	Bump          uint8     `json:"bump"`
	TotalDeposits uint64    `json:"total_deposits"`
	CreatedAt     time.Time `json:"created_at"`
}

// SubAccount mirrors the API's customer sub-account record.
type SubAccount struct {
	Address           string `json:"address"`
	Vault             string `json:"vault"`
	Owner             string `json:"owner"`
	Asset             string `json:"asset"`
	VaultTokenAccount string `json:"vault_token_account"`
	Balance           uint64 `json:"balance"`
}

// Receipt mirrors the API's operation receipt.
type Receipt struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Vault            string    `json:"vault"`
	SubAccount       string    `json:"sub_account"`
	Customer         string    `json:"customer"`
	Asset            string    `json:"asset"`
	Amount           uint64    `json:"amount"`
	NewBalance       uint64    `json:"new_balance"`
	NewTotalDeposits uint64    `json:"new_total_deposits"`
	CreatedAt        time.Time `json:"created_at"`
}

// TxResult is returned by Deposit and Withdraw.
type TxResult struct {
	Receipt       Receipt `json:"receipt"`
	AmountDecimal string  `json:"amount_decimal"`
}

// Client is the vault SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the wallet session token used on mutating calls.
func WithToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client for the vault API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the wallet session token.
func (c *Client) SetToken(token string) {
	c.bearerToken = token
}

// IssueToken requests a wallet session token from the dev issuer endpoint
// and installs it on the client.
func (c *Client) IssueToken(ctx context.Context, wallet, adminSecret string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	req := map[string]string{"wallet": wallet}
	headers := map[string]string{"X-Admin-Secret": adminSecret}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/token", req, headers, &resp); err != nil {
		return "", err
	}
	c.bearerToken = resp.Token
	return resp.Token, nil
}

// InitializeVault creates the vault for the authenticated wallet.
func (c *Client) InitializeVault(ctx context.Context) (*Vault, error) {
	var v Vault
	if err := c.call(ctx, http.MethodPost, "/api/v1/vaults", nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVault fetches a vault record by manager identity.
func (c *Client) GetVault(ctx context.Context, manager string) (*Vault, error) {
	var v Vault
	if err := c.call(ctx, http.MethodGet, "/api/v1/vaults/"+manager, nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Deposit deposits a decimal amount ("3.123") of an asset into a vault as
// the authenticated wallet.
func (c *Client) Deposit(ctx context.Context, manager, asset, decimalAmount string) (*TxResult, error) {
	return c.tx(ctx, manager, "deposits", asset, decimalAmount)
}

// Withdraw withdraws a decimal amount of an asset from a vault as the
// authenticated wallet.
func (c *Client) Withdraw(ctx context.Context, manager, asset, decimalAmount string) (*TxResult, error) {
	return c.tx(ctx, manager, "withdrawals", asset, decimalAmount)
}

func (c *Client) tx(ctx context.Context, manager, op, asset, decimalAmount string) (*TxResult, error) {
	var res TxResult
	body := map[string]string{"asset": asset, "amount": decimalAmount}
	path := fmt.Sprintf("/api/v1/vaults/%s/%s", manager, op)
	if err := c.call(ctx, http.MethodPost, path, body, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBalance fetches a customer's sub-account for an asset under a vault.
func (c *Client) GetBalance(ctx context.Context, manager, asset, customer string) (*SubAccount, error) {
	var sub SubAccount
	path := fmt.Sprintf("/api/v1/vaults/%s/accounts/%s?asset=%s", manager, customer, asset)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListReceipts fetches the most recent receipts for a customer sub-account.
func (c *Client) ListReceipts(ctx context.Context, manager, asset, customer string, limit int) ([]Receipt, error) {
	var resp struct {
		Receipts []Receipt `json:"receipts"`
	}
	path := fmt.Sprintf("/api/v1/vaults/%s/accounts/%s/receipts?asset=%s&limit=%d", manager, customer, asset, limit)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Receipts, nil
}

// call performs one JSON request/response round trip against the API.
func (c *Client) call(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault api request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
