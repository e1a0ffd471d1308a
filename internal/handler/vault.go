// Package handler exposes the vault ledger over HTTP: the three ledger
// operations, the read accessors, wallet-token authentication, per-IP rate
// limiting, and Prometheus metrics.
package handler

import (
	"net/http"
	"strconv"

	"github.com/dperdic/s3-asset-manager-vault/internal/token"
	"github.com/dperdic/s3-asset-manager-vault/internal/vault"
	"github.com/dperdic/s3-asset-manager-vault/pkg/amount"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VaultHandler serves the ledger operations and read accessors.
type VaultHandler struct {
	ledger vault.Ledger
	tokens token.Engine
	logger *zap.Logger
}

// NewVaultHandler creates a VaultHandler.
func NewVaultHandler(ledger vault.Ledger, tokens token.Engine, logger *zap.Logger) *VaultHandler {
	return &VaultHandler{ledger: ledger, tokens: tokens, logger: logger}
}

// Register mounts the vault routes on the given router group. auth guards
// the mutating routes; reads are public.
func (h *VaultHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	v := rg.Group("/vaults")
	{
		v.POST("", auth, h.Initialize)
		v.GET("/:manager", h.GetVault)
		v.POST("/:manager/deposits", auth, h.Deposit)
		v.POST("/:manager/withdrawals", auth, h.Withdraw)
		v.GET("/:manager/accounts/:customer", h.GetBalance)
		v.GET("/:manager/accounts/:customer/receipts", h.ListReceipts)
	}
}

// txBody is the request payload for deposits and withdrawals. Amount is a
// decimal string in whole asset units ("3.123"); it is scaled to smallest
// units at the asset's precision before it reaches the ledger.
type txBody struct {
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// Initialize handles POST /vaults — creates the vault for the calling
// wallet. The manager is whoever signs; there is no manager field to forge.
func (h *VaultHandler) Initialize(c *gin.Context) {
	manager := CallerWallet(c)

	v, err := h.ledger.InitializeVault(c.Request.Context(), manager)
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// GetVault handles GET /vaults/:manager.
func (h *VaultHandler) GetVault(c *gin.Context) {
	v, err := h.ledger.GetVault(c.Request.Context(), c.Param("manager"))
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Deposit handles POST /vaults/:manager/deposits.
func (h *VaultHandler) Deposit(c *gin.Context) {
	h.runTx(c, vault.KindDeposit)
}

// Withdraw handles POST /vaults/:manager/withdrawals.
func (h *VaultHandler) Withdraw(c *gin.Context) {
	h.runTx(c, vault.KindWithdraw)
}

// runTx is the shared deposit/withdraw path: parse, scale the decimal
// amount, run the ledger operation as the authenticated wallet.
func (h *VaultHandler) runTx(c *gin.Context, kind vault.ReceiptKind) {
	ctx := c.Request.Context()
	caller := CallerWallet(c)

	var body txBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset and amount are required", "code": "bad_request"})
		return
	}

	mint, err := h.tokens.GetMint(ctx, body.Asset)
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	units, err := amount.ToSmallestUnit(body.Amount, mint.Decimals)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_amount"})
		return
	}

	req := vault.TxRequest{
		Authority: caller,
		Manager:   c.Param("manager"),
		Customer:  caller,
		Asset:     body.Asset,
		Amount:    units,
	}

	var receipt *vault.Receipt
	if kind == vault.KindDeposit {
		receipt, err = h.ledger.Deposit(ctx, req)
	} else {
		receipt, err = h.ledger.Withdraw(ctx, req)
	}
	if err != nil {
		RecordOperationFailure(vault.Code(err))
		h.writeLedgerError(c, err)
		return
	}

	RecordOperation(string(kind), body.Asset)
	RecordVaultTotal(req.Manager, receipt.NewTotalDeposits)
	c.JSON(http.StatusOK, gin.H{
		"receipt":        receipt,
		"amount_decimal": amount.FromSmallestUnit(receipt.Amount, mint.Decimals),
	})
}

// GetBalance handles GET /vaults/:manager/accounts/:customer?asset=X.
func (h *VaultHandler) GetBalance(c *gin.Context) {
	asset := c.Query("asset")
	if asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset query parameter is required", "code": "bad_request"})
		return
	}

	sub, err := h.ledger.GetSubAccount(c.Request.Context(), c.Param("manager"), asset, c.Param("customer"))
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListReceipts handles GET /vaults/:manager/accounts/:customer/receipts.
func (h *VaultHandler) ListReceipts(c *gin.Context) {
	asset := c.Query("asset")
	if asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset query parameter is required", "code": "bad_request"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	receipts, err := h.ledger.Receipts(c.Request.Context(), c.Param("manager"), asset, c.Param("customer"), limit)
	if err != nil {
		h.writeLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

// writeLedgerError maps a ledger error to its stable code and HTTP status.
func (h *VaultHandler) writeLedgerError(c *gin.Context, err error) {
	code := vault.Code(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		h.logger.Error("ledger operation failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func statusForCode(code string) int {
	switch code {
	case "already_initialized":
		return http.StatusConflict
	case "vault_not_found", "sub_account_not_found", "asset_not_found", "token_account_not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusForbidden
	case "amount_must_be_positive":
		return http.StatusBadRequest
	case "insufficient_funds", "insufficient_source_funds", "overflow", "underflow":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
