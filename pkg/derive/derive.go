// Package derive computes deterministic derived addresses for vault records.
//
// Every record the ledger reasons about (vault, token account, customer
// sub-account) lives at an address computed from a fixed, versioned seed
// sequence rather than an identifier chosen by a caller. Wallet addresses
// occupy a reserved prefix of the address space, so a derived address can
// never collide with an identity a caller controls directly. Derivation
// returns a bump discriminator alongside the address; Verify recomputes the
// derivation and rejects non-canonical bumps, making the (seeds, bump) pair
// a proof that an address was derived, not chosen.
package derive

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// AddressLength is the byte length of every address.
const AddressLength = 32

// SchemaVersion participates in every digest. Changing the seed composition
// of any record changes every downstream address and is a breaking schema
// migration; such a change must also bump this version.
const SchemaVersion byte = 1

// MaxBump is the starting value of the bump search.
const MaxBump uint8 = 255

// walletPrefix is the leading byte reserved for wallet (directly-controllable)
// addresses. Derived addresses never start with it.
const walletPrefix byte = 0x00

// Domain tags keep the wallet and derived hash spaces disjoint even before
// the prefix rule is applied.
const (
	derivedTag = "s3vault/derived/"
	walletTag  = "s3vault/wallet/"
)

// Seed tags for the fixed derivation schema.
const (
	SeedVault    = "vault"    // ["vault", manager]
	SeedToken    = "token"    // ["token", owner address, asset]
	SeedCustomer = "customer" // ["customer", vault, asset, customer]
)

const (
	maxSeeds   = 16
	maxSeedLen = 64
)

var (
	// ErrNoBumpFound is returned when no bump in [0, 255] yields a valid
	// derived address. With a 1/256 rejection rate per candidate this is
	// not expected to occur for any real seed set.
	ErrNoBumpFound = errors.New("no valid bump for seed set")

	// ErrNonCanonicalBump is returned by Verify when the supplied bump is
	// not the one Derive would have chosen.
	ErrNonCanonicalBump = errors.New("bump is not canonical for seed set")

	// ErrAddressMismatch is returned by Verify when the recomputed address
	// differs from the supplied one.
	ErrAddressMismatch = errors.New("address does not match seed derivation")
)

// Address is a fixed-width account identifier.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address; no record is ever stored there.
var ZeroAddress Address

// String returns the hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// MarshalText implements encoding.TextMarshaler (hex).
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a hex-encoded address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(raw) != AddressLength {
		return a, fmt.Errorf("parse address: want %d bytes, got %d", AddressLength, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// WalletAddress maps a wallet identity to its address. Wallet addresses are
// forced into the reserved prefix so they occupy a slice of the address space
// no derivation can reach.
func WalletAddress(identity string) Address {
	sum := blake2b.Sum256(append([]byte(walletTag), identity...))
	var a Address
	copy(a[:], sum[:])
	a[0] = walletPrefix
	return a
}

// Derive computes the derived address for an ordered seed sequence.
// It walks the bump from MaxBump downward and returns the first candidate
// outside the reserved wallet prefix together with the bump that produced it.
// The same seeds always yield the same (address, bump) pair.
func Derive(seeds ...[]byte) (Address, uint8, error) {
	if err := checkSeeds(seeds); err != nil {
		return ZeroAddress, 0, err
	}
	for i := int(MaxBump); i >= 0; i-- {
		bump := uint8(i)
		cand := candidate(bump, seeds)
		if cand[0] != walletPrefix {
			return cand, bump, nil
		}
	}
	return ZeroAddress, 0, ErrNoBumpFound
}

// Verify checks that addr was derived from seeds with the canonical bump.
func Verify(addr Address, bump uint8, seeds ...[]byte) error {
	want, canonical, err := Derive(seeds...)
	if err != nil {
		return err
	}
	if bump != canonical {
		return ErrNonCanonicalBump
	}
	if addr != want {
		return ErrAddressMismatch
	}
	return nil
}

// VaultAddress derives the vault record address for a manager identity.
func VaultAddress(manager string) (Address, uint8, error) {
	return Derive([]byte(SeedVault), []byte(manager))
}

// TokenAccountAddress derives the asset-holding account address for an
// (owner, asset) pair. Owners are addresses, never raw identity strings:
// WalletAddress output for customer wallets, the vault's own derived address
// for custodial accounts. The reserved wallet prefix keeps the two owner
// namespaces disjoint, so no caller-chosen identity can resolve onto a
// custodial account.
func TokenAccountAddress(owner Address, asset string) (Address, uint8, error) {
	return Derive([]byte(SeedToken), owner[:], []byte(asset))
}

// SubAccountAddress derives the customer sub-account address for the
// (vault, asset, customer) triple.
func SubAccountAddress(vault Address, asset, customer string) (Address, uint8, error) {
	return Derive([]byte(SeedCustomer), vault[:], []byte(asset), []byte(customer))
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) == 0 {
		return errors.New("derive: at least one seed required")
	}
	if len(seeds) > maxSeeds {
		return fmt.Errorf("derive: at most %d seeds, got %d", maxSeeds, len(seeds))
	}
	for i, s := range seeds {
		if len(s) > maxSeedLen {
			return fmt.Errorf("derive: seed %d exceeds %d bytes", i, maxSeedLen)
		}
	}
	return nil
}

// candidate hashes the versioned, length-prefixed seed sequence plus a bump.
// Length prefixes keep ["ab","c"] and ["a","bc"] distinct.
func candidate(bump uint8, seeds [][]byte) Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(derivedTag))
	h.Write([]byte{SchemaVersion})
	var lenBuf [2]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
		h.Write(lenBuf[:])
		h.Write(s)
	}
	h.Write([]byte{bump})
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}
