package delegation

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"blockdrive/go-sdk/internal/splitcrypt"
)

func testFragments() (criticalBytes, fileIV []byte) {
	criticalBytes = make([]byte, splitcrypt.CriticalBytesLength)
	fileIV = make([]byte, splitcrypt.IVSize)
	for i := range criticalBytes {
		criticalBytes[i] = byte(i + 40)
	}
	for i := range fileIV {
		fileIV[i] = byte(i + 90)
	}
	return criticalBytes, fileIV
}

func TestECDHRoundTrip(t *testing.T) {
	recipient, err := GenerateRecipientKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	criticalBytes, fileIV := testFragments()

	pkg, err := EncryptForRecipient(criticalBytes, fileIV, recipient.PublicKey())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if pkg.EphemeralPublicKey == "" {
		t.Fatal("ephemeral public key missing")
	}

	gotCritical, gotIV, err := DecryptFromDelegation(FromPackage(pkg), recipient)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(gotCritical, criticalBytes) || !bytes.Equal(gotIV, fileIV) {
		t.Fatal("round trip mismatch")
	}
}

func TestWrongRecipientFails(t *testing.T) {
	recipient, err := GenerateRecipientKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	intruder, err := GenerateRecipientKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	criticalBytes, fileIV := testFragments()

	pkg, err := EncryptForRecipient(criticalBytes, fileIV, recipient.PublicKey())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, _, err := DecryptFromDelegation(FromPackage(pkg), intruder); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for wrong recipient, got %v", err)
	}
}

func TestFreshEphemeralKeyPerGrant(t *testing.T) {
	recipient, err := GenerateRecipientKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	criticalBytes, fileIV := testFragments()

	a, err := EncryptForRecipient(criticalBytes, fileIV, recipient.PublicKey())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	b, err := EncryptForRecipient(criticalBytes, fileIV, recipient.PublicKey())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if a.EphemeralPublicKey == b.EphemeralPublicKey {
		t.Fatal("each grant must use a fresh ephemeral key")
	}
}

func TestRawSourceRoundTrip(t *testing.T) {
	recipient, err := GenerateRecipientKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	criticalBytes, fileIV := testFragments()

	pkg, err := EncryptForRecipient(criticalBytes, fileIV, recipient.PublicKey())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	raw, err := json.Marshal(pkg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	gotCritical, gotIV, err := DecryptFromDelegation(FromRaw(raw), recipient)
	if err != nil {
		t.Fatalf("decrypt from raw failed: %v", err)
	}
	if !bytes.Equal(gotCritical, criticalBytes) || !bytes.Equal(gotIV, fileIV) {
		t.Fatal("raw round trip mismatch")
	}
}

func TestEmptyAndMalformedSources(t *testing.T) {
	recipient, err := GenerateRecipientKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	if _, _, err := DecryptFromDelegation(FromRaw(nil), recipient); !errors.Is(err, ErrEmptyPackage) {
		t.Fatalf("expected ErrEmptyPackage, got %v", err)
	}
	if _, _, err := DecryptFromDelegation(FromRaw([]byte("{not json")), recipient); !errors.Is(err, ErrMalformedPackage) {
		t.Fatalf("expected ErrMalformedPackage, got %v", err)
	}
}

func TestWalletKeyFallbackRoundTrip(t *testing.T) {
	walletKey := make([]byte, 32)
	for i := range walletKey {
		walletKey[i] = byte(i * 7)
	}
	criticalBytes, fileIV := testFragments()

	pkg, err := EncryptWithWalletKey(criticalBytes, fileIV, walletKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if pkg.EphemeralPublicKey != "" {
		t.Fatal("wallet-key package must not carry an ephemeral key")
	}
	gotCritical, gotIV, err := DecryptWithWalletKey(FromPackage(pkg), walletKey)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(gotCritical, criticalBytes) || !bytes.Equal(gotIV, fileIV) {
		t.Fatal("wallet-key round trip mismatch")
	}
}

func TestInvalidFragmentLengths(t *testing.T) {
	recipient, err := GenerateRecipientKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	if _, err := EncryptForRecipient(make([]byte, 8), make([]byte, splitcrypt.IVSize), recipient.PublicKey()); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for short critical bytes, got %v", err)
	}
	if _, err := EncryptForRecipient(make([]byte, splitcrypt.CriticalBytesLength), make([]byte, 16), recipient.PublicKey()); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for wrong iv, got %v", err)
	}
}
