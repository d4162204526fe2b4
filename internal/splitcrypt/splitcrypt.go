// Package splitcrypt implements the split-encryption scheme: files are
// encrypted with AES-256-GCM, and the first 16 bytes of the ciphertext (the
// "critical bytes") are withheld from the stored content. Decryption requires
// both the stored remainder and the critical bytes recovered through a proof
// package or a delegation.
package splitcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"blockdrive/go-sdk/internal/bytesutil"
)

const (
	// KeySize is the AES-256 key size.
	KeySize = 32
	// IVSize is the GCM nonce size used across the protocol.
	IVSize = 12
	// CriticalBytesLength is the fixed size of the withheld fragment.
	CriticalBytesLength = 16
)

var (
	ErrInvalidKeySize     = errors.New("splitcrypt: key must be 32 bytes")
	ErrInvalidIVSize      = errors.New("splitcrypt: iv must be 12 bytes")
	ErrDecryptionFailed   = errors.New("splitcrypt: decryption failed")
	ErrCommitmentMismatch = errors.New("splitcrypt: critical bytes do not match commitment")
	ErrCiphertextTooShort = errors.New("splitcrypt: ciphertext shorter than critical fragment")
)

// EncryptedFile is a whole-ciphertext encryption result.
type EncryptedFile struct {
	Ciphertext   []byte
	IV           []byte
	OriginalHash string // sha256 hex of the plaintext
}

// SplitFile is the split variant: Ciphertext excludes the critical bytes.
// Commitment always equals sha256(CriticalBytes); any divergence between the
// two fields is an integrity failure.
type SplitFile struct {
	Ciphertext    []byte
	IV            []byte
	OriginalHash  string
	CriticalBytes []byte
	Commitment    string
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("splitcrypt: cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("splitcrypt: gcm init failed: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under a fresh 12-byte IV with no associated data,
// matching the wire format produced by the browser client.
func Encrypt(plaintext, key []byte) (*EncryptedFile, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv, err := bytesutil.Random(IVSize)
	if err != nil {
		return nil, err
	}
	return &EncryptedFile{
		Ciphertext:   aead.Seal(nil, iv, plaintext, nil),
		IV:           iv,
		OriginalHash: bytesutil.SHA256Hex(plaintext),
	}, nil
}

// EncryptSplit encrypts plaintext and peels off the leading 16 ciphertext
// bytes as the critical fragment. The stored ciphertext alone cannot be
// decrypted; the commitment binds the withheld fragment publicly.
func EncryptSplit(plaintext, key []byte) (*SplitFile, error) {
	full, err := Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}
	if len(full.Ciphertext) < CriticalBytesLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrCiphertextTooShort, len(full.Ciphertext))
	}
	critical := append([]byte(nil), full.Ciphertext[:CriticalBytesLength]...)
	return &SplitFile{
		Ciphertext:    full.Ciphertext[CriticalBytesLength:],
		IV:            full.IV,
		OriginalHash:  full.OriginalHash,
		CriticalBytes: critical,
		Commitment:    bytesutil.SHA256Hex(critical),
	}, nil
}

// Decrypt opens ciphertext and, when expectedHash is non-empty, verifies the
// plaintext digest. A digest mismatch does not withhold the plaintext —
// verified=false lets the caller decide whether to trust the bytes. An AEAD
// tag failure is fatal and surfaces as ErrDecryptionFailed.
func Decrypt(ciphertext, iv, key []byte, expectedHash string) (plaintext []byte, verified bool, err error) {
	if len(iv) != IVSize {
		return nil, false, fmt.Errorf("%w: got %d", ErrInvalidIVSize, len(iv))
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, false, err
	}
	plaintext, err = aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: wrong key or corrupted data", ErrDecryptionFailed)
	}
	if expectedHash == "" {
		return plaintext, true, nil
	}
	return plaintext, bytesutil.SHA256Hex(plaintext) == expectedHash, nil
}

// DecryptSplit reassembles the full ciphertext from the stored remainder and
// the recovered critical bytes, then decrypts. The commitment is checked
// before any cryptographic work; a mismatch is never tolerated.
func DecryptSplit(content, criticalBytes, iv, key []byte, commitment, expectedHash string) ([]byte, bool, error) {
	if !VerifyCommitment(criticalBytes, commitment) {
		return nil, false, fmt.Errorf("%w: expected %s", ErrCommitmentMismatch, commitment)
	}
	full := make([]byte, 0, len(criticalBytes)+len(content))
	full = append(full, criticalBytes...)
	full = append(full, content...)
	return Decrypt(full, iv, key, expectedHash)
}

// VerifyCommitment reports whether sha256(criticalBytes) equals the hex
// commitment, using a constant-time digest comparison.
func VerifyCommitment(criticalBytes []byte, commitment string) bool {
	expected, err := bytesutil.FromHex(commitment)
	if err != nil {
		return false
	}
	return bytesutil.ConstantTimeEqual(bytesutil.SHA256(criticalBytes), expected)
}
