// Package bytesutil provides the byte-level primitives shared by every
// cryptographic component: encoding conversion, hashing, secure random
// generation, wiping and constant-time comparison.
package bytesutil

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidHex    = errors.New("bytesutil: invalid hex string")
	ErrInvalidBase64 = errors.New("bytesutil: invalid base64 string")
	ErrInvalidUTF8   = errors.New("bytesutil: invalid utf-8 payload")
)

// Random returns n cryptographically secure random bytes.
func Random(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("bytesutil: negative length %d", n)
	}
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("bytesutil: random source failed: %w", err)
	}
	return out, nil
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SHA256Hex returns the SHA-256 digest of data as a lowercase hex string.
// Commitments throughout the protocol use this exact representation.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ToHex encodes b as lowercase hex.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// FromHex decodes a hex string, tolerating UUID-style dashes and mixed case.
func FromHex(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return out, nil
}

// ToBase64 encodes b using standard RFC 4648 base64, matching the
// serialization used inside proof and delegation packages.
func ToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// FromBase64 decodes standard RFC 4648 base64.
func FromBase64(s string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return out, nil
}

// DecodeUTF8 interprets raw bytes as UTF-8 text, trimming zero padding first.
// On-chain content identifiers are stored as zero-padded byte arrays and must
// round-trip through this helper.
func DecodeUTF8(raw []byte) (string, error) {
	trimmed := TrimZeroPadding(raw)
	if !utf8.Valid(trimmed) {
		return "", ErrInvalidUTF8
	}
	return string(trimmed), nil
}

// TrimZeroPadding strips trailing zero bytes from a fixed-width field.
func TrimZeroPadding(raw []byte) []byte {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return raw[:end]
}

// Wipe overwrites b with random bytes and then zeroes it. Buffers holding
// signatures, derived keys or critical bytes must be wiped as soon as the
// caller is done with them.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	// Best effort overwrite; the final zeroing is the part callers rely on.
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeEqual compares two byte slices without leaking the position of
// the first mismatch.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// IsAllZero reports whether every byte of b is zero.
func IsAllZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
