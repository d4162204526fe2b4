package zkproof

import (
	"context"
	"log/slog"
)

// Backend produces and checks preimage-knowledge proofs. The chosen backend
// is recorded in the package as data (ProofType) rather than inferred later
// from environment state.
type Backend interface {
	// Type identifies the proofs this backend emits.
	Type() ProofType
	// Prove proves knowledge of the 16-byte preimage of commitment.
	// criticalBytes never leaves the process; only the proof and the public
	// signals derived from the commitment are returned.
	Prove(criticalBytes, commitment []byte) (*Groth16Proof, []string, error)
	// Verify checks a proof against its public signals.
	Verify(proof *Groth16Proof, publicSignals []string) error
}

// SelectBackend is the backend factory: it probes artifact availability and
// returns a Groth16 backend when the circuit artifacts can be fetched and
// parsed, falling back to the simulated backend otherwise. The fallback is
// deliberate and logged; the resulting packages are tagged simulated.
func SelectBackend(ctx context.Context, artifacts *ArtifactClient, logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if artifacts == nil {
		logger.Warn("no artifact client configured, using simulated proofs")
		return NewSimulatedBackend()
	}
	available, err := artifacts.Available(ctx, false)
	if err != nil || !available {
		logger.Warn("circuit artifacts unavailable, falling back to simulated proofs",
			slog.Any("error", err))
		return NewSimulatedBackend()
	}
	set, err := artifacts.Fetch(ctx)
	if err != nil {
		logger.Warn("circuit artifact fetch failed, falling back to simulated proofs",
			slog.Any("error", err))
		return NewSimulatedBackend()
	}
	backend, err := NewGroth16Backend(set)
	if err != nil {
		logger.Warn("circuit artifacts malformed, falling back to simulated proofs",
			slog.Any("error", err))
		return NewSimulatedBackend()
	}
	logger.Info("groth16 backend ready", slog.String("circuit_version", backend.CircuitVersion()))
	return backend
}
