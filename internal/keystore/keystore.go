// Package keystore persists derived encryption keys between recovery runs so
// the wallet does not have to re-sign on every invocation. Keys live inside a
// passphrase-encrypted envelope: argon2id stretches the passphrase,
// XChaCha20-Poly1305 seals the payload.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"blockdrive/go-sdk/internal/bytesutil"
	"blockdrive/go-sdk/internal/keyderive"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	filePrefix      = "BDKEY1\n"
)

var (
	ErrAuthFailed = errors.New("keystore: wrong passphrase or corrupted store")
	ErrInvalid    = errors.New("keystore: envelope is invalid")
	ErrNotSealed  = errors.New("keystore: file is not a sealed key store")
	ErrNoKey      = errors.New("keystore: no key cached for level")
)

// Envelope is the sealed on-disk form. KDF parameters ride along so they can
// be raised later without breaking existing stores.
type Envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// cachedKey is the persisted form of one derived key.
type cachedKey struct {
	Level            int    `json:"level"`
	Key              []byte `json:"key"`
	VerificationHash string `json:"verificationHash"`
	DerivedAt        int64  `json:"derivedAt"`
}

// KeyCache holds derived keys for the three security levels.
type KeyCache struct {
	keys map[keyderive.SecurityLevel]*keyderive.DerivedKey
}

// NewKeyCache builds an empty cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[keyderive.SecurityLevel]*keyderive.DerivedKey)}
}

// Put stores a derived key, replacing any previous key for its level.
func (c *KeyCache) Put(key *keyderive.DerivedKey) {
	c.keys[key.Level] = key
}

// Get returns the cached key for a level.
func (c *KeyCache) Get(level keyderive.SecurityLevel) (*keyderive.DerivedKey, error) {
	key, ok := c.keys[level]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrNoKey, level)
	}
	return key, nil
}

// Levels lists the levels with cached keys.
func (c *KeyCache) Levels() []keyderive.SecurityLevel {
	out := make([]keyderive.SecurityLevel, 0, len(c.keys))
	for level := range c.keys {
		out = append(out, level)
	}
	return out
}

// Wipe destroys every cached key.
func (c *KeyCache) Wipe() {
	for level, key := range c.keys {
		key.Wipe()
		delete(c.keys, level)
	}
}

// Seal encrypts the cache under a passphrase.
func (c *KeyCache) Seal(passphrase string) ([]byte, error) {
	persisted := make([]cachedKey, 0, len(c.keys))
	for _, key := range c.keys {
		persisted = append(persisted, cachedKey{
			Level:            int(key.Level),
			Key:              key.Key,
			VerificationHash: key.VerificationHash,
			DerivedAt:        key.DerivedAt.UnixMilli(),
		})
	}
	payload, err := json.Marshal(persisted)
	if err != nil {
		return nil, fmt.Errorf("keystore: cache marshal failed: %w", err)
	}
	defer bytesutil.Wipe(payload)
	return encrypt(passphrase, payload)
}

// Open decrypts a sealed cache.
func Open(passphrase string, data []byte) (*KeyCache, error) {
	payload, err := decrypt(passphrase, data)
	if err != nil {
		return nil, err
	}
	defer bytesutil.Wipe(payload)

	var persisted []cachedKey
	if err := json.Unmarshal(payload, &persisted); err != nil {
		return nil, ErrInvalid
	}
	cache := NewKeyCache()
	for _, entry := range persisted {
		level := keyderive.SecurityLevel(entry.Level)
		cache.keys[level] = &keyderive.DerivedKey{
			Level:            level,
			Key:              append([]byte(nil), entry.Key...),
			VerificationHash: entry.VerificationHash,
			DerivedAt:        time.UnixMilli(entry.DerivedAt),
		}
	}
	return cache, nil
}

// SaveFile seals and writes the cache. Parent directories are created owner-
// only.
func (c *KeyCache) SaveFile(path, passphrase string) error {
	sealed, err := c.Seal(passphrase)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("keystore: create store directory: %w", err)
	}
	return os.WriteFile(path, sealed, 0o600)
}

// LoadFile reads and opens a sealed cache file.
func LoadFile(path, passphrase string) (*KeyCache, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read store file: %w", err)
	}
	return Open(passphrase, raw)
}

func encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	salt, err := bytesutil.Random(saltSize)
	if err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt)
	defer bytesutil.Wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := bytesutil.Random(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Version:     envelopeVersion,
		KDF:         "argon2id",
		KDFTime:     2,
		KDFMemoryKB: 64 * 1024,
		KDFThreads:  1,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, nil),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func decrypt(passphrase string, data []byte) ([]byte, error) {
	if !strings.HasPrefix(string(data), filePrefix) {
		return nil, ErrNotSealed
	}
	var env Envelope
	if err := json.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	if env.Version != envelopeVersion || env.KDF != "argon2id" {
		return nil, ErrInvalid
	}
	key := argon2.IDKey([]byte(passphrase), env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
	defer bytesutil.Wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 2, 64*1024, 1, chacha20poly1305.KeySize)
}
