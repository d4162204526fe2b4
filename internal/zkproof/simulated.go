package zkproof

import (
	"fmt"

	"blockdrive/go-sdk/internal/bytesutil"
	"blockdrive/go-sdk/internal/splitcrypt"
)

// simulatedProofBlob is a fixed placeholder payload standing in for real
// curve points. It is stable so integration tests can assert on it, and it
// can never pass a real pairing check.
var simulatedProofBlob = func() string {
	blob := make([]byte, 128)
	copy(blob, "blockdrive-simulated-proof-v1")
	return bytesutil.ToBase64(blob)
}()

// SimulatedBackend emits clearly-tagged placeholder proofs when circuit
// artifacts are unreachable. Its verification always accepts a well-formed
// simulated proof; callers must branch on ProofType before attaching any
// cryptographic meaning to the result.
type SimulatedBackend struct{}

func NewSimulatedBackend() *SimulatedBackend { return &SimulatedBackend{} }

func (s *SimulatedBackend) Type() ProofType { return ProofTypeSimulated }

func (s *SimulatedBackend) Prove(criticalBytes, commitment []byte) (*Groth16Proof, []string, error) {
	if len(criticalBytes) != splitcrypt.CriticalBytesLength {
		return nil, nil, fmt.Errorf("zkproof: critical bytes must be %d bytes, got %d",
			splitcrypt.CriticalBytesLength, len(criticalBytes))
	}
	if len(commitment) != commitmentLength {
		return nil, nil, fmt.Errorf("zkproof: commitment must be %d bytes, got %d",
			commitmentLength, len(commitment))
	}
	return &Groth16Proof{
		Proof:    simulatedProofBlob,
		Protocol: protocolGroth16,
		Curve:    curveBN254,
	}, commitmentToSignals(commitment), nil
}

func (s *SimulatedBackend) Verify(proof *Groth16Proof, publicSignals []string) error {
	if proof == nil {
		return fmt.Errorf("%w: missing proof", ErrVerificationFailed)
	}
	if _, err := signalsToCommitment(publicSignals); err != nil {
		return err
	}
	// Acceptable for integration testing only; not cryptographically
	// meaningful.
	return nil
}
