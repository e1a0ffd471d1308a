package identity

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// WalletClaims are the JWT claims for a wallet session token. Subject and
// Wallet both carry the wallet identity; Wallet exists so middleware does
// not need to interpret registered claims.
type WalletClaims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet"`
}

// Issuer issues and verifies wallet session JWTs with the vault's RSA key.
type Issuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
}

// NewIssuer creates an Issuer. issuerURL becomes the "iss" claim; ttl
// defaults to one hour when zero.
func NewIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Issuer{
		key:    key,
		pub:    &key.PublicKey,
		issuer: issuerURL,
		ttl:    ttl,
	}
}

// Issue creates a signed session token for a wallet identity.
func (i *Issuer) Issue(wallet string) (string, error) {
	now := time.Now().UTC()
	claims := WalletClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   wallet,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.New().String(),
		},
		Wallet: wallet,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign wallet token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (i *Issuer) Verify(tokenStr string) (*WalletClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&WalletClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return i.pub, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify wallet token: %w", err)
	}
	claims, ok := token.Claims.(*WalletClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid wallet token claims")
	}
	if claims.Wallet == "" {
		return nil, fmt.Errorf("wallet token missing wallet claim")
	}
	return claims, nil
}
