// Package keyderive turns one 64-byte wallet signature into the symmetric
// keys used for file encryption. Derivation is deterministic: the same
// signature always yields the same key for a given security level, which is
// what makes recovery after logout possible without storing any key material.
package keyderive

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"blockdrive/go-sdk/internal/bytesutil"
)

// SecurityLevel selects the HKDF context used for key separation. Levels are
// mutually independent: a key derived for one level cannot decrypt content
// encrypted under another.
type SecurityLevel uint8

const (
	LevelStandard  SecurityLevel = 1
	LevelSensitive SecurityLevel = 2
	LevelMaximum   SecurityLevel = 3
)

const (
	// SignatureLength is the exact length of a wallet signature (Ed25519).
	SignatureLength = 64
	// KeyLength is the AES-256 key size produced by derivation.
	KeyLength = 32
)

var hkdfSalt = []byte("BlockDrive-HKDF-Salt-v1")

var hkdfInfo = map[SecurityLevel][]byte{
	LevelStandard:  []byte("blockdrive-level-1-encryption"),
	LevelSensitive: []byte("blockdrive-level-2-encryption"),
	LevelMaximum:   []byte("blockdrive-level-3-encryption"),
}

var signMessages = map[SecurityLevel]string{
	LevelStandard:  "BlockDrive Security Level One - Standard Protection",
	LevelSensitive: "BlockDrive Security Level Two - Sensitive Data Protection",
	LevelMaximum:   "BlockDrive Security Level Three - Maximum Security",
}

var (
	ErrInvalidSignatureLength = errors.New("keyderive: signature must be exactly 64 bytes")
	ErrDegenerateSignature    = errors.New("keyderive: signature is all zero")
	ErrUnknownSecurityLevel   = errors.New("keyderive: unknown security level")
)

// DerivedKey is the result of deriving one security level from a signature.
// Key is raw AES-256 material and must be wiped when no longer needed.
type DerivedKey struct {
	Level            SecurityLevel
	Key              []byte
	VerificationHash string
	DerivedAt        time.Time
}

// Wipe destroys the key material in place.
func (k *DerivedKey) Wipe() {
	if k == nil {
		return
	}
	bytesutil.Wipe(k.Key)
}

func (l SecurityLevel) String() string {
	switch l {
	case LevelStandard:
		return "standard"
	case LevelSensitive:
		return "sensitive"
	case LevelMaximum:
		return "maximum"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(l))
	}
}

// Valid reports whether l is one of the three defined levels.
func (l SecurityLevel) Valid() bool {
	_, ok := hkdfInfo[l]
	return ok
}

// Levels lists all defined security levels in ascending order.
func Levels() []SecurityLevel {
	return []SecurityLevel{LevelStandard, LevelSensitive, LevelMaximum}
}

func validateSignature(signature []byte) error {
	if len(signature) != SignatureLength {
		return fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(signature))
	}
	if bytesutil.IsAllZero(signature) {
		return ErrDegenerateSignature
	}
	return nil
}

// Derive produces the AES-256 key for one security level from a wallet
// signature. Input validation runs before any cryptographic call. The
// function performs no I/O; it is a pure function of its inputs and the
// package constants.
func Derive(signature []byte, level SecurityLevel) (*DerivedKey, error) {
	if err := validateSignature(signature); err != nil {
		return nil, err
	}
	info, ok := hkdfInfo[level]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSecurityLevel, level)
	}

	reader := hkdf.New(sha256.New, signature, hkdfSalt, info)
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("keyderive: hkdf expand failed: %w", err)
	}

	return &DerivedKey{
		Level:            level,
		Key:              key,
		VerificationHash: KeyHash(signature, level),
		DerivedAt:        time.Now(),
	}, nil
}

// DeriveAll derives keys for every provided signature. Each level signs its
// own message, so callers normally supply one signature per level.
func DeriveAll(signatures map[SecurityLevel][]byte) (map[SecurityLevel]*DerivedKey, error) {
	out := make(map[SecurityLevel]*DerivedKey, len(signatures))
	for level, sig := range signatures {
		key, err := Derive(sig, level)
		if err != nil {
			return nil, fmt.Errorf("level %s: %w", level, err)
		}
		out[level] = key
	}
	return out, nil
}

// KeyHash returns the verification hash published alongside a derived key:
// sha256(signature ‖ "-level-{n}-hash"). It proves which signature a key came
// from without revealing either.
func KeyHash(signature []byte, level SecurityLevel) string {
	input := make([]byte, 0, len(signature)+24)
	input = append(input, signature...)
	input = append(input, fmt.Sprintf("-level-%d-hash", level)...)
	return bytesutil.SHA256Hex(input)
}

// SignMessage returns the message a wallet must sign to derive keys for the
// given level.
func SignMessage(level SecurityLevel) (string, error) {
	msg, ok := signMessages[level]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownSecurityLevel, level)
	}
	return msg, nil
}

// SignMessages returns the sign message for every level.
func SignMessages() map[SecurityLevel]string {
	out := make(map[SecurityLevel]string, len(signMessages))
	for level, msg := range signMessages {
		out[level] = msg
	}
	return out
}
