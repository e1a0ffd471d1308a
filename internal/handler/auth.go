package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dperdic/s3-asset-manager-vault/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// walletContextKey is the gin context key holding the authenticated wallet.
const walletContextKey = "auth.wallet"

// RequireWallet returns middleware that authenticates the Bearer token and
// stores the wallet identity on the request context. Requests without a
// valid token are rejected with 401 before any handler runs.
func RequireWallet(issuer *identity.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer token", "code": "unauthenticated",
			})
			return
		}

		claims, err := issuer.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token", "code": "unauthenticated",
			})
			return
		}

		c.Set(walletContextKey, claims.Wallet)
		c.Next()
	}
}

// CallerWallet returns the authenticated wallet identity, or "" when the
// route was not guarded by RequireWallet.
func CallerWallet(c *gin.Context) string {
	return c.GetString(walletContextKey)
}

// AuthHandler issues wallet session tokens. This is the development stand-in
// for a real wallet-signature login flow; it is disabled unless an admin
// secret is configured.
type AuthHandler struct {
	issuer      *identity.Issuer
	adminSecret string
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(issuer *identity.Issuer, adminSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{issuer: issuer, adminSecret: adminSecret, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

type tokenBody struct {
	Wallet string `json:"wallet" binding:"required"`
}

// IssueToken handles POST /auth/token — issues a session token for a wallet
// identity. Guarded by the X-Admin-Secret header.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	if h.adminSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "token issuance is not configured", "code": "auth_disabled",
		})
		return
	}
	provided := c.GetHeader("X-Admin-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminSecret)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "bad admin secret", "code": "forbidden"})
		return
	}

	var body tokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet is required", "code": "bad_request"})
		return
	}

	tok, err := h.issuer.Issue(body.Wallet)
	if err != nil {
		h.logger.Error("issue wallet token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "wallet": body.Wallet})
}
