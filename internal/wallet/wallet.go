// Package wallet provides a local mnemonic-derived signer for recovery runs
// that have no connected wallet. The signatures it produces feed the key
// derivation exactly as a browser wallet's would.
package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"

	"blockdrive/go-sdk/internal/bytesutil"
	"blockdrive/go-sdk/internal/keyderive"
)

var (
	ErrInvalidMnemonic = errors.New("wallet: invalid mnemonic")
	ErrSignerWiped     = errors.New("wallet: signer has been wiped")
)

// Signer holds an ed25519 keypair derived from a mnemonic. Wipe destroys the
// private key; a wiped signer refuses to sign.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates a signer from fresh 256-bit entropy and returns the
// mnemonic that recovers it.
func Generate() (*Signer, string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", fmt.Errorf("wallet: entropy generation failed: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("wallet: mnemonic generation failed: %w", err)
	}
	signer, err := FromMnemonic(mnemonic)
	if err != nil {
		return nil, "", err
	}
	return signer, mnemonic, nil
}

// FromMnemonic derives the signer deterministically: the BIP-39 seed's first
// 32 bytes become the ed25519 seed.
func FromMnemonic(mnemonic string) (*Signer, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	bytesutil.Wipe(seed)
	return &Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// ValidateMnemonic reports whether a mnemonic passes checksum validation.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(strings.TrimSpace(mnemonic))
}

// SignMessage signs arbitrary message bytes, producing the 64-byte signature
// the key derivation consumes.
func (s *Signer) SignMessage(message []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, ErrSignerWiped
	}
	return ed25519.Sign(s.priv, message), nil
}

// SignSecurityLevel signs the canonical message for a security level.
func (s *Signer) SignSecurityLevel(level keyderive.SecurityLevel) ([]byte, error) {
	message, err := keyderive.SignMessage(level)
	if err != nil {
		return nil, err
	}
	return s.SignMessage([]byte(message))
}

// PublicKey returns a copy of the ed25519 public key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), s.pub...)
}

// Address renders the public key in base58, the form account owners appear
// in on chain.
func (s *Signer) Address() string {
	return base58.Encode(s.pub)
}

// Wipe overwrites the private key. The public key survives so the signer can
// still identify itself.
func (s *Signer) Wipe() {
	if s.priv != nil {
		bytesutil.Wipe(s.priv)
		s.priv = nil
	}
}
