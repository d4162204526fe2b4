package zkproof

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"time"

	"blockdrive/go-sdk/internal/bytesutil"
	"blockdrive/go-sdk/internal/splitcrypt"
)

// Service composes a proof backend with the AEAD wrapping of the critical
// bytes. It holds no global state; the backend and clock are explicit.
type Service struct {
	backend Backend
	now     func() time.Time
}

// NewService builds a proof service around the given backend.
func NewService(backend Backend) *Service {
	return &Service{backend: backend, now: time.Now}
}

// BackendType exposes which backend the service was built with.
func (s *Service) BackendType() ProofType { return s.backend.Type() }

// Generate produces a v2 proof package for the given critical bytes.
// The commitment is verified before any proof work: a mismatch means the
// caller's state is already corrupt and no artifact is ever touched.
func (s *Service) Generate(criticalBytes, fileIV, encryptionKey []byte, commitment string) (*ProofPackage, error) {
	if !splitcrypt.VerifyCommitment(criticalBytes, commitment) {
		return nil, fmt.Errorf("%w: refusing to prove against %s", ErrCommitmentMismatch, commitment)
	}
	commitmentBytes, err := bytesutil.FromHex(commitment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommitmentMismatch, err)
	}

	proof, signals, err := s.backend.Prove(criticalBytes, commitmentBytes)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(criticalBytes)+len(fileIV))
	payload = append(payload, criticalBytes...)
	payload = append(payload, fileIV...)
	iv, sealed, err := sealPayload(encryptionKey, payload)
	bytesutil.Wipe(payload)
	if err != nil {
		return nil, err
	}

	pkg := &ProofPackage{
		Version:                VersionCurrent,
		Commitment:             commitment,
		Groth16Proof:           proof,
		PublicSignals:          signals,
		EncryptedCriticalBytes: bytesutil.ToBase64(sealed),
		EncryptionIV:           bytesutil.ToBase64(iv),
		ProofTimestamp:         s.now().UnixMilli(),
		ProofType:              s.backend.Type(),
	}
	if s.backend.Type() == ProofTypeGroth16 {
		pkg.CircuitVersion = CircuitVersionCurrent
	}
	hash, err := ComputeProofHash(pkg)
	if err != nil {
		return nil, err
	}
	pkg.ProofHash = hash
	return pkg, nil
}

// VerifyGroth16 runs the backend's proof check on a package. Packages tagged
// simulated pass the check by construction; the tag tells the caller what
// that acceptance is worth.
func (s *Service) VerifyGroth16(pkg *ProofPackage) error {
	if pkg.Version == VersionLegacy || pkg.Version == 0 {
		// v1 packages carry no proof; hash verification is all they offer.
		return nil
	}
	return s.backend.Verify(pkg.Groth16Proof, pkg.PublicSignals)
}

// VerifyAndExtract validates a package end to end and recovers the critical
// bytes and file IV. Four checks run in order — commitment equality, proof
// hash, optional Groth16 verification, and post-decryption commitment — and
// any failure is fatal. Partial success is not meaningful.
func (s *Service) VerifyAndExtract(pkg *ProofPackage, decryptionKey []byte, expectedCommitment string) (criticalBytes, fileIV []byte, err error) {
	if expectedCommitment != "" && pkg.Commitment != expectedCommitment {
		return nil, nil, fmt.Errorf("%w: package commits to %s", ErrCommitmentMismatch, pkg.Commitment)
	}
	if !VerifyIntegrity(pkg) {
		return nil, nil, ErrProofIntegrityFailed
	}
	if pkg.Version == VersionCurrent && pkg.ProofType == ProofTypeGroth16 {
		if err := s.backend.Verify(pkg.Groth16Proof, pkg.PublicSignals); err != nil {
			return nil, nil, err
		}
	}

	sealed, err := bytesutil.FromBase64(pkg.EncryptedCriticalBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	iv, err := bytesutil.FromBase64(pkg.EncryptionIV)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	payload, err := openPayload(decryptionKey, iv, sealed)
	if err != nil {
		return nil, nil, err
	}
	if len(payload) < splitcrypt.CriticalBytesLength+splitcrypt.IVSize {
		return nil, nil, fmt.Errorf("%w: payload too short: %d", ErrMalformedPackage, len(payload))
	}
	criticalBytes = payload[:splitcrypt.CriticalBytesLength]
	fileIV = payload[splitcrypt.CriticalBytesLength : splitcrypt.CriticalBytesLength+splitcrypt.IVSize]

	if !splitcrypt.VerifyCommitment(criticalBytes, pkg.Commitment) {
		bytesutil.Wipe(payload)
		return nil, nil, ErrProofTamperDetected
	}
	return criticalBytes, fileIV, nil
}

func sealPayload(key, payload []byte) (iv, sealed []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv, err = bytesutil.Random(splitcrypt.IVSize)
	if err != nil {
		return nil, nil, err
	}
	return iv, aead.Seal(nil, iv, payload, nil), nil
}

func openPayload(key, iv, sealed []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	payload, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or corrupted package", ErrDecryptionFailed)
	}
	return payload, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != splitcrypt.KeySize {
		return nil, fmt.Errorf("zkproof: encryption key must be %d bytes, got %d",
			splitcrypt.KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("zkproof: cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("zkproof: gcm init failed: %w", err)
	}
	return aead, nil
}
