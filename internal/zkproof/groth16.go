package zkproof

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/uints"

	"blockdrive/go-sdk/internal/bytesutil"
	"blockdrive/go-sdk/internal/splitcrypt"
)

// CircuitVersionCurrent identifies the deployed preimage circuit. It is
// recorded in every groth16 package so verifiers can pick matching artifacts.
const CircuitVersionCurrent = "bn254-sha256-preimage-v1"

const (
	protocolGroth16 = "groth16"
	curveBN254      = "bn254"

	commitmentLength = 32
)

// preimageCircuit proves knowledge of a 16-byte preimage whose SHA-256
// digest equals the public commitment. The preimage stays secret; the 32
// commitment bytes are the public signals.
type preimageCircuit struct {
	Preimage   [splitcrypt.CriticalBytesLength]uints.U8 `gnark:",secret"`
	Commitment [commitmentLength]uints.U8               `gnark:",public"`
}

func (c *preimageCircuit) Define(api frontend.API) error {
	hasher, err := sha2.New(api)
	if err != nil {
		return err
	}
	hasher.Write(c.Preimage[:])
	digest := hasher.Sum()
	if len(digest) != commitmentLength {
		return fmt.Errorf("unexpected digest width %d", len(digest))
	}
	bf, err := uints.New[uints.U32](api)
	if err != nil {
		return err
	}
	for i := range digest {
		bf.ByteAssertEq(digest[i], c.Commitment[i])
	}
	return nil
}

// Groth16Backend holds the parsed circuit artifacts. Construction fails when
// any artifact is malformed, which the factory treats as "unavailable".
type Groth16Backend struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// NewGroth16Backend parses a fetched artifact set.
func NewGroth16Backend(set *ArtifactSet) (*Groth16Backend, error) {
	if set == nil {
		return nil, fmt.Errorf("zkproof: nil artifact set")
	}
	ccs := groth16.NewCS(ecc.BN254)
	if _, err := ccs.ReadFrom(bytes.NewReader(set.Circuit)); err != nil {
		return nil, fmt.Errorf("zkproof: circuit artifact malformed: %w", err)
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(bytes.NewReader(set.ProvingKey)); err != nil {
		return nil, fmt.Errorf("zkproof: proving key malformed: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(set.VerifyingKey)); err != nil {
		return nil, fmt.Errorf("zkproof: verification key malformed: %w", err)
	}
	return &Groth16Backend{ccs: ccs, pk: pk, vk: vk}, nil
}

func (b *Groth16Backend) Type() ProofType { return ProofTypeGroth16 }

// CircuitVersion reports the circuit identifier these artifacts implement.
func (b *Groth16Backend) CircuitVersion() string { return CircuitVersionCurrent }

func (b *Groth16Backend) Prove(criticalBytes, commitment []byte) (*Groth16Proof, []string, error) {
	if len(criticalBytes) != splitcrypt.CriticalBytesLength {
		return nil, nil, fmt.Errorf("zkproof: critical bytes must be %d bytes, got %d",
			splitcrypt.CriticalBytesLength, len(criticalBytes))
	}
	if len(commitment) != commitmentLength {
		return nil, nil, fmt.Errorf("zkproof: commitment must be %d bytes, got %d",
			commitmentLength, len(commitment))
	}

	var assignment preimageCircuit
	for i, v := range criticalBytes {
		assignment.Preimage[i] = uints.NewU8(v)
	}
	for i, v := range commitment {
		assignment.Commitment[i] = uints.NewU8(v)
	}

	witness, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("zkproof: witness build failed: %w", err)
	}
	proof, err := groth16.Prove(b.ccs, b.pk, witness)
	if err != nil {
		return nil, nil, fmt.Errorf("zkproof: proving failed: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, nil, fmt.Errorf("zkproof: proof serialization failed: %w", err)
	}
	return &Groth16Proof{
		Proof:    bytesutil.ToBase64(buf.Bytes()),
		Protocol: protocolGroth16,
		Curve:    curveBN254,
	}, commitmentToSignals(commitment), nil
}

func (b *Groth16Backend) Verify(proof *Groth16Proof, publicSignals []string) error {
	if proof == nil {
		return fmt.Errorf("%w: missing proof", ErrVerificationFailed)
	}
	commitment, err := signalsToCommitment(publicSignals)
	if err != nil {
		return err
	}

	var assignment preimageCircuit
	for i, v := range commitment {
		assignment.Commitment[i] = uints.NewU8(v)
	}
	publicWitness, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("zkproof: public witness build failed: %w", err)
	}

	raw, err := bytesutil.FromBase64(proof.Proof)
	if err != nil {
		return fmt.Errorf("%w: undecodable proof: %v", ErrVerificationFailed, err)
	}
	parsed := groth16.NewProof(ecc.BN254)
	if _, err := parsed.ReadFrom(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("%w: malformed proof points: %v", ErrVerificationFailed, err)
	}
	if err := groth16.Verify(parsed, b.vk, publicWitness); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}

// commitmentToSignals exposes the 32 commitment bytes as decimal public
// signal strings, the order matching the circuit's public input order.
func commitmentToSignals(commitment []byte) []string {
	signals := make([]string, len(commitment))
	for i, v := range commitment {
		signals[i] = strconv.Itoa(int(v))
	}
	return signals
}

func signalsToCommitment(signals []string) ([]byte, error) {
	if len(signals) != commitmentLength {
		return nil, fmt.Errorf("%w: expected %d public signals, got %d",
			ErrVerificationFailed, commitmentLength, len(signals))
	}
	out := make([]byte, commitmentLength)
	for i, s := range signals {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: public signal %d out of byte range: %q",
				ErrVerificationFailed, i, s)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// BuildArtifacts compiles the preimage circuit and runs the Groth16 setup,
// returning a serialized artifact set ready for publication. Used by the CLI
// and by tests; production deployments publish the result once and clients
// only ever fetch it.
func BuildArtifacts() (*ArtifactSet, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &preimageCircuit{})
	if err != nil {
		return nil, fmt.Errorf("zkproof: circuit compile failed: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("zkproof: setup failed: %w", err)
	}

	var circuitBuf, pkBuf, vkBuf bytes.Buffer
	if _, err := ccs.WriteTo(&circuitBuf); err != nil {
		return nil, fmt.Errorf("zkproof: circuit serialization failed: %w", err)
	}
	if _, err := pk.WriteTo(&pkBuf); err != nil {
		return nil, fmt.Errorf("zkproof: proving key serialization failed: %w", err)
	}
	if _, err := vk.WriteTo(&vkBuf); err != nil {
		return nil, fmt.Errorf("zkproof: verification key serialization failed: %w", err)
	}
	return &ArtifactSet{
		Circuit:      circuitBuf.Bytes(),
		ProvingKey:   pkBuf.Bytes(),
		VerifyingKey: vkBuf.Bytes(),
	}, nil
}
