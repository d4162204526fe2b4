// Package ledger models the on-chain vault program from the client side:
// program-derived addresses, byte-exact account codecs, instruction encoding
// and the sharded vault planner. Nothing here signs or submits transactions;
// the package turns bytes into typed records and back.
package ledger

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the length of an ed25519 public key.
const PublicKeyLength = 32

// DefaultProgramID is the deployed vault program address.
const DefaultProgramID = "BLKDrv1111111111111111111111111111111111111"

var (
	ErrInvalidPublicKey      = errors.New("ledger: invalid public key")
	ErrMalformedAccountData  = errors.New("ledger: malformed account data")
	ErrWrongAccountType      = errors.New("ledger: account discriminator mismatch")
	ErrNoViableBump          = errors.New("ledger: no viable bump seed found")
	ErrSeedTooLong           = errors.New("ledger: seed exceeds maximum length")
	ErrTooManySeeds          = errors.New("ledger: too many seeds")
	ErrShardSetFull          = errors.New("ledger: all shards at capacity")
	ErrShardFull             = errors.New("ledger: shard at capacity")
	ErrDuplicateFile         = errors.New("ledger: file already registered")
	ErrFileNotFound          = errors.New("ledger: file not found")
	ErrIndexFull             = errors.New("ledger: vault index full")
	ErrSlotEmpty             = errors.New("ledger: shard slot already empty")
	ErrUnknownSecurityLevel  = errors.New("ledger: unknown security level")
	ErrUnknownPermission     = errors.New("ledger: unknown permission level")
	ErrCommitmentMismatch    = errors.New("ledger: on-chain commitment mismatch")
	ErrOwnerMismatch         = errors.New("ledger: file record owner mismatch")
	ErrAccountNotFound       = errors.New("ledger: account not found")
	ErrInvalidInstructionArg = errors.New("ledger: invalid instruction argument")
)

// PublicKey is a 32-byte ed25519 public key or program-derived address.
type PublicKey [PublicKeyLength]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != PublicKeyLength {
		return pk, fmt.Errorf("%w: %d bytes after decoding", ErrInvalidPublicKey, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePublicKey is ParsePublicKey for compile-time constants.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(raw []byte) (PublicKey, error) {
	var pk PublicKey
	if len(raw) != PublicKeyLength {
		return pk, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// String renders the key in base58.
func (pk PublicKey) String() string { return base58.Encode(pk[:]) }

// IsZero reports whether the key is the all-zero placeholder that the program
// uses to mark empty shard pointers and file slots.
func (pk PublicKey) IsZero() bool { return pk == PublicKey{} }

// Bytes returns a copy of the raw key bytes.
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeyLength)
	copy(out, pk[:])
	return out
}
