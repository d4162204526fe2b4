// Package delegation re-encrypts the critical bytes of a file for a specific
// recipient. The grantor generates a fresh ephemeral P-256 key pair per
// grant, agrees on a shared secret with the recipient's public key, and seals
// `criticalBytes ‖ fileIV` under an HKDF-derived AES-256-GCM key. The
// grantor's long-term key never appears in the package, and compromising one
// package exposes no other.
package delegation

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"blockdrive/go-sdk/internal/bytesutil"
	"blockdrive/go-sdk/internal/splitcrypt"
)

const (
	payloadLength = splitcrypt.CriticalBytesLength + splitcrypt.IVSize
	ivSize        = 12
)

var hkdfDelegationInfo = []byte("blockdrive-ecdh-delegation-v1")

var (
	ErrInvalidRecipientKey = errors.New("delegation: invalid recipient public key")
	ErrInvalidPayload      = errors.New("delegation: payload has unexpected length")
	ErrDecryptionFailed    = errors.New("delegation: decryption failed")
	ErrEmptyPackage        = errors.New("delegation: package source is empty")
	ErrMalformedPackage    = errors.New("delegation: malformed package")
)

// Package is the per-(file, recipient) delegation object. For the symmetric
// wallet-key fallback EphemeralPublicKey is empty; both paths share the same
// payload layout.
type Package struct {
	EphemeralPublicKey string `json:"ephemeralPublicKey,omitempty"` // base64, uncompressed P-256 point
	IV                 string `json:"iv"`
	EncryptedPayload   string `json:"encryptedCriticalBytes"` // criticalBytes ‖ fileIV
}

// Source is the tagged union for delegation input: either an already-decoded
// package or its raw JSON serialization. Callers pick the variant explicitly;
// there is no runtime shape sniffing.
type Source struct {
	pkg *Package
	raw []byte
}

// FromPackage wraps a decoded package.
func FromPackage(pkg *Package) Source { return Source{pkg: pkg} }

// FromRaw wraps serialized JSON bytes.
func FromRaw(raw []byte) Source { return Source{raw: raw} }

func (s Source) resolve() (*Package, error) {
	if s.pkg != nil {
		return s.pkg, nil
	}
	if len(s.raw) == 0 {
		return nil, ErrEmptyPackage
	}
	var pkg Package
	if err := json.Unmarshal(s.raw, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	return &pkg, nil
}

// GenerateRecipientKey creates a P-256 key pair for receiving delegations.
func GenerateRecipientKey() (*ecdh.PrivateKey, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("delegation: key generation failed: %w", err)
	}
	return key, nil
}

// ParseRecipientPublicKey decodes a base64 uncompressed P-256 point.
func ParseRecipientPublicKey(encoded string) (*ecdh.PublicKey, error) {
	raw, err := bytesutil.FromBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipientKey, err)
	}
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipientKey, err)
	}
	return pub, nil
}

func deriveSharedKey(secret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, hkdfDelegationInfo)
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("delegation: hkdf expand failed: %w", err)
	}
	return key, nil
}

func seal(key, payload []byte) (iv, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("delegation: cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("delegation: gcm init failed: %w", err)
	}
	iv, err = bytesutil.Random(ivSize)
	if err != nil {
		return nil, nil, err
	}
	return iv, aead.Seal(nil, iv, payload, nil), nil
}

func open(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("delegation: cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("delegation: gcm init failed: %w", err)
	}
	payload, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong recipient or corrupted package", ErrDecryptionFailed)
	}
	return payload, nil
}

func buildPayload(criticalBytes, fileIV []byte) ([]byte, error) {
	if len(criticalBytes) != splitcrypt.CriticalBytesLength {
		return nil, fmt.Errorf("%w: critical bytes %d", ErrInvalidPayload, len(criticalBytes))
	}
	if len(fileIV) != splitcrypt.IVSize {
		return nil, fmt.Errorf("%w: file iv %d", ErrInvalidPayload, len(fileIV))
	}
	payload := make([]byte, 0, payloadLength)
	payload = append(payload, criticalBytes...)
	payload = append(payload, fileIV...)
	return payload, nil
}

func splitPayload(payload []byte) (criticalBytes, fileIV []byte, err error) {
	if len(payload) != payloadLength {
		return nil, nil, fmt.Errorf("%w: got %d", ErrInvalidPayload, len(payload))
	}
	return payload[:splitcrypt.CriticalBytesLength], payload[splitcrypt.CriticalBytesLength:], nil
}

// EncryptForRecipient wraps the critical bytes and file IV for one recipient.
// A fresh ephemeral key pair is generated per call and its public half is
// embedded in the package so the recipient can redo the agreement.
func EncryptForRecipient(criticalBytes, fileIV []byte, recipient *ecdh.PublicKey) (*Package, error) {
	if recipient == nil {
		return nil, ErrInvalidRecipientKey
	}
	payload, err := buildPayload(criticalBytes, fileIV)
	if err != nil {
		return nil, err
	}
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("delegation: ephemeral key generation failed: %w", err)
	}
	secret, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipientKey, err)
	}
	defer bytesutil.Wipe(secret)

	key, err := deriveSharedKey(secret)
	if err != nil {
		return nil, err
	}
	defer bytesutil.Wipe(key)

	iv, ciphertext, err := seal(key, payload)
	if err != nil {
		return nil, err
	}
	return &Package{
		EphemeralPublicKey: bytesutil.ToBase64(ephemeral.PublicKey().Bytes()),
		IV:                 bytesutil.ToBase64(iv),
		EncryptedPayload:   bytesutil.ToBase64(ciphertext),
	}, nil
}

// DecryptFromDelegation reverses EncryptForRecipient with the recipient's
// private key.
func DecryptFromDelegation(src Source, recipient *ecdh.PrivateKey) (criticalBytes, fileIV []byte, err error) {
	pkg, err := src.resolve()
	if err != nil {
		return nil, nil, err
	}
	if pkg.EphemeralPublicKey == "" {
		return nil, nil, fmt.Errorf("%w: missing ephemeral public key", ErrMalformedPackage)
	}
	ephemeralPub, err := ParseRecipientPublicKey(pkg.EphemeralPublicKey)
	if err != nil {
		return nil, nil, err
	}
	secret, err := recipient.ECDH(ephemeralPub)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRecipientKey, err)
	}
	defer bytesutil.Wipe(secret)

	key, err := deriveSharedKey(secret)
	if err != nil {
		return nil, nil, err
	}
	defer bytesutil.Wipe(key)

	return openPackage(pkg, key)
}

// EncryptWithWalletKey is the symmetric fallback for same-wallet round trips.
// The payload layout is identical to the ECDH path.
func EncryptWithWalletKey(criticalBytes, fileIV, walletKey []byte) (*Package, error) {
	payload, err := buildPayload(criticalBytes, fileIV)
	if err != nil {
		return nil, err
	}
	iv, ciphertext, err := seal(walletKey, payload)
	if err != nil {
		return nil, err
	}
	return &Package{
		IV:               bytesutil.ToBase64(iv),
		EncryptedPayload: bytesutil.ToBase64(ciphertext),
	}, nil
}

// DecryptWithWalletKey reverses EncryptWithWalletKey.
func DecryptWithWalletKey(src Source, walletKey []byte) (criticalBytes, fileIV []byte, err error) {
	pkg, err := src.resolve()
	if err != nil {
		return nil, nil, err
	}
	return openPackage(pkg, walletKey)
}

func openPackage(pkg *Package, key []byte) (criticalBytes, fileIV []byte, err error) {
	iv, err := bytesutil.FromBase64(pkg.IV)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	ciphertext, err := bytesutil.FromBase64(pkg.EncryptedPayload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	payload, err := open(key, iv, ciphertext)
	if err != nil {
		return nil, nil, err
	}
	return splitPayload(payload)
}
