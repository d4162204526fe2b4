// Package zkproof produces and verifies proof packages: zero-knowledge proofs
// that the holder knows the 16-byte preimage of a public SHA-256 commitment,
// with the AEAD-encrypted critical bytes embedded so the rightful owner or
// delegate can recover them. A simulated backend stands in when circuit
// artifacts are unavailable; simulated proofs are clearly tagged and carry no
// cryptographic weight.
package zkproof

import (
	"encoding/json"
	"errors"
	"fmt"

	"blockdrive/go-sdk/internal/bytesutil"
)

// ProofType records which backend produced a package. Callers must branch on
// it: a simulated proof verifies as acceptable for integration flows but is
// never cryptographically meaningful.
type ProofType string

const (
	ProofTypeGroth16   ProofType = "groth16"
	ProofTypeSimulated ProofType = "simulated"
)

// Package format versions. v1 predates the Groth16 fields and must remain
// readable; there is no migration path, v1 packages verify by hash only.
const (
	VersionLegacy  = 1
	VersionCurrent = 2
)

var (
	ErrCommitmentMismatch   = errors.New("zkproof: critical bytes do not match commitment")
	ErrProofIntegrityFailed = errors.New("zkproof: proof hash mismatch, package may be tampered")
	ErrProofTamperDetected  = errors.New("zkproof: extracted bytes do not match commitment")
	ErrDecryptionFailed     = errors.New("zkproof: proof payload decryption failed")
	ErrVerificationFailed   = errors.New("zkproof: groth16 verification failed")
	ErrUnknownVersion       = errors.New("zkproof: unknown package version")
	ErrMalformedPackage     = errors.New("zkproof: malformed proof package")
)

// Groth16Proof is the serialized proof carried inside a v2 package.
type Groth16Proof struct {
	Proof    string `json:"proof"` // base64, compressed BN254 points
	Protocol string `json:"protocol"`
	Curve    string `json:"curve"`
}

// ProofPackage is the provable disclosure object uploaded to the proof store.
// ProofHash seals the public fields; it is recomputed and compared on every
// read.
type ProofPackage struct {
	Version                int           `json:"version"`
	Commitment             string        `json:"commitment"`
	Groth16Proof           *Groth16Proof `json:"groth16Proof"`
	PublicSignals          []string      `json:"publicSignals"`
	EncryptedCriticalBytes string        `json:"encryptedCriticalBytes"`
	EncryptionIV           string        `json:"encryptionIv"`
	FileIV                 string        `json:"fileIv,omitempty"`
	ProofHash              string        `json:"proofHash"`
	ProofTimestamp         int64         `json:"proofTimestamp"`
	ProofType              ProofType     `json:"proofType"`
	CircuitVersion         string        `json:"circuitVersion,omitempty"`
}

// SerializedZKProof is the minimal view used for indexing a stored package
// without deserializing the whole object.
type SerializedZKProof struct {
	Proof      *Groth16Proof `json:"proof"`
	ProofHash  string        `json:"proofHash"`
	Commitment string        `json:"commitment"`
}

// Index extracts the minimal indexing view.
func (p *ProofPackage) Index() SerializedZKProof {
	return SerializedZKProof{Proof: p.Groth16Proof, ProofHash: p.ProofHash, Commitment: p.Commitment}
}

// Hash content structs: field order here defines the canonical JSON key order
// and must never change, or every existing proofHash breaks.
type hashContentV2 struct {
	Commitment             string        `json:"commitment"`
	Groth16Proof           *Groth16Proof `json:"groth16Proof"`
	PublicSignals          []string      `json:"publicSignals"`
	EncryptedCriticalBytes string        `json:"encryptedCriticalBytes"`
	ProofTimestamp         int64         `json:"proofTimestamp"`
}

type hashContentV1 struct {
	Commitment             string `json:"commitment"`
	EncryptedCriticalBytes string `json:"encryptedCriticalBytes"`
	ProofTimestamp         int64  `json:"proofTimestamp"`
}

// ComputeProofHash derives the tamper seal over the package's public fields:
// sha256 of the compact JSON with keys in canonical order.
func ComputeProofHash(p *ProofPackage) (string, error) {
	version := p.Version
	if version == 0 {
		version = VersionLegacy
	}
	var content any
	switch version {
	case VersionCurrent:
		signals := p.PublicSignals
		if signals == nil {
			signals = []string{}
		}
		content = hashContentV2{
			Commitment:             p.Commitment,
			Groth16Proof:           p.Groth16Proof,
			PublicSignals:          signals,
			EncryptedCriticalBytes: p.EncryptedCriticalBytes,
			ProofTimestamp:         p.ProofTimestamp,
		}
	case VersionLegacy:
		content = hashContentV1{
			Commitment:             p.Commitment,
			EncryptedCriticalBytes: p.EncryptedCriticalBytes,
			ProofTimestamp:         p.ProofTimestamp,
		}
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("zkproof: hash content marshal failed: %w", err)
	}
	return bytesutil.SHA256Hex(raw), nil
}

// VerifyIntegrity recomputes the proof hash and compares it against the
// stored seal. It does not decrypt anything.
func VerifyIntegrity(p *ProofPackage) bool {
	computed, err := ComputeProofHash(p)
	if err != nil {
		return false
	}
	return computed == p.ProofHash
}

// ParsePackage decodes a stored proof package from its UTF-8 JSON form.
func ParsePackage(raw []byte) (*ProofPackage, error) {
	var pkg ProofPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	if pkg.Version == 0 {
		pkg.Version = VersionLegacy
	}
	if pkg.Version != VersionLegacy && pkg.Version != VersionCurrent {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, pkg.Version)
	}
	return &pkg, nil
}
