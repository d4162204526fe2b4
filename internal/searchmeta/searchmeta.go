// Package searchmeta encrypts file metadata and derives deterministic search
// tokens so the server can answer exact-match lookups without ever seeing
// plaintext names or types. The token key is derived separately from the AEAD
// key: leaking every search token reveals nothing about the decryption key.
package searchmeta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"blockdrive/go-sdk/internal/keyderive"
	"blockdrive/go-sdk/internal/splitcrypt"
)

const metadataVersion = 2

var (
	hkdfSearchSalt = []byte("BlockDrive-Search-Salt-v1")
	hkdfSearchInfo = []byte("blockdrive-search-token-v1")
)

var (
	ErrUnknownVersion = errors.New("searchmeta: unknown metadata version")
	ErrInvalidKey     = errors.New("searchmeta: file key must be 32 bytes")
)

// SizeBucket is the only size information ever exposed; exact byte counts
// stay inside the encrypted metadata.
type SizeBucket string

const (
	BucketTiny   SizeBucket = "tiny"   // < 10 KiB
	BucketSmall  SizeBucket = "small"  // < 1 MiB
	BucketMedium SizeBucket = "medium" // < 100 MiB
	BucketLarge  SizeBucket = "large"  // < 1 GiB
	BucketHuge   SizeBucket = "huge"   // >= 1 GiB
)

// BucketForSize maps an exact byte count onto its coarse bucket.
func BucketForSize(n int64) SizeBucket {
	switch {
	case n < 10<<10:
		return BucketTiny
	case n < 1<<20:
		return BucketSmall
	case n < 100<<20:
		return BucketMedium
	case n < 1<<30:
		return BucketLarge
	default:
		return BucketHuge
	}
}

// FileMetadata is the plaintext structure protected by EncryptMetadata.
type FileMetadata struct {
	FileName      string                  `json:"fileName"`
	MimeType      string                  `json:"mimeType"`
	FileSize      int64                   `json:"fileSize"`
	UploadedAt    int64                   `json:"uploadedAt"`
	ContentHash   string                  `json:"contentHash"`
	SecurityLevel keyderive.SecurityLevel `json:"securityLevel"`
	ContentCID    string                  `json:"contentCid,omitempty"`
	ProofCID      string                  `json:"proofCid,omitempty"`
}

// EncryptedMetadata is the stored form: AEAD-sealed metadata plus the
// deterministic tokens the server indexes for exact-match search.
type EncryptedMetadata struct {
	Version    int        `json:"version"`
	Ciphertext string     `json:"ciphertext"`
	IV         string     `json:"iv"`
	NameToken  string     `json:"nameToken"`
	TypeToken  string     `json:"typeToken"`
	SizeBucket SizeBucket `json:"sizeBucket"`
}

// DeriveSearchKey expands the file encryption key into a dedicated HMAC key.
// Salt and info differ from every AEAD derivation in the protocol.
func DeriveSearchKey(fileKey []byte) ([]byte, error) {
	if len(fileKey) != splitcrypt.KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKey, len(fileKey))
	}
	reader := hkdf.New(sha256.New, fileKey, hkdfSearchSalt, hkdfSearchInfo)
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("searchmeta: hkdf expand failed: %w", err)
	}
	return key, nil
}

// SearchToken produces the deterministic token for an exact-match value:
// HMAC-SHA256 over the trimmed, lower-cased input.
func SearchToken(value string, searchKey []byte) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	mac := hmac.New(sha256.New, searchKey)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncryptMetadata seals meta under the file key and attaches search tokens.
func EncryptMetadata(meta *FileMetadata, fileKey []byte) (*EncryptedMetadata, error) {
	searchKey, err := DeriveSearchKey(fileKey)
	if err != nil {
		return nil, err
	}
	ciphertext, iv, err := splitcrypt.EncryptMetadata(meta, fileKey)
	if err != nil {
		return nil, err
	}
	return &EncryptedMetadata{
		Version:    metadataVersion,
		Ciphertext: ciphertext,
		IV:         iv,
		NameToken:  SearchToken(meta.FileName, searchKey),
		TypeToken:  SearchToken(meta.MimeType, searchKey),
		SizeBucket: BucketForSize(meta.FileSize),
	}, nil
}

// DecryptMetadata opens an EncryptedMetadata record. Unknown versions are
// rejected outright rather than parsed on a guessed layout.
func DecryptMetadata(enc *EncryptedMetadata, fileKey []byte) (*FileMetadata, error) {
	if enc.Version != metadataVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, enc.Version)
	}
	var meta FileMetadata
	if err := splitcrypt.DecryptMetadata(enc.Ciphertext, enc.IV, fileKey, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
