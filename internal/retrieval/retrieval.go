// Package retrieval orchestrates shared-file recovery: a delegation grants
// access, the proof package yields the withheld critical bytes, storage
// yields the rest, and the two halves decrypt back into the original file.
// The pipeline is a strict stage sequence; every failure names its stage and
// is classified as an availability or an integrity problem.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"blockdrive/go-sdk/internal/bytesutil"
	"blockdrive/go-sdk/internal/ledger"
	"blockdrive/go-sdk/internal/splitcrypt"
	"blockdrive/go-sdk/internal/storage"
	"blockdrive/go-sdk/internal/zkproof"
)

// Stage identifies a step of the retrieval pipeline.
type Stage string

const (
	StagePermissionCheck    Stage = "permission_check"
	StageProofFetch         Stage = "proof_fetch"
	StageProofVerifyExtract Stage = "proof_verify_extract"
	StageContentFetch       Stage = "content_fetch"
	StageDecrypt            Stage = "decrypt"
	StageDone               Stage = "done"
)

var (
	ErrPermissionDenied    = errors.New("retrieval: delegation does not permit download")
	ErrDelegationInvalid   = errors.New("retrieval: delegation inactive or expired")
	ErrFileNotActive       = errors.New("retrieval: file record is not active")
	ErrNoProofReference    = errors.New("retrieval: delegation carries no proof reference")
	ErrBadProofReference   = errors.New("retrieval: proof reference is not a plausible identifier")
	ErrContentUnavailable  = errors.New("retrieval: content unavailable from all locations")
	ErrIntegrity           = errors.New("retrieval: integrity check failed")
	ErrPlaintextHashChecks = errors.New("retrieval: recovered plaintext fails the expected hash")
)

// StageError wraps a stage failure with enough context to act on it without
// re-running the pipeline.
type StageError struct {
	Stage      Stage
	FileID     string
	Grantor    string
	Permission ledger.PermissionLevel
	Elapsed    time.Duration
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("retrieval: stage %s failed for file %s (grantor %s, permission %s, after %s): %v",
		e.Stage, e.FileID, e.Grantor, e.Permission, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsAvailabilityError reports whether a failure is about reachability
// (retryable against other providers or later) rather than about the data
// itself.
func IsAvailabilityError(err error) bool {
	return errors.Is(err, storage.ErrUnavailable) ||
		errors.Is(err, ErrContentUnavailable) ||
		errors.Is(err, ledger.ErrAccountNotFound) ||
		errors.Is(err, zkproof.ErrArtifactsUnavailable)
}

// IsIntegrityError reports whether a failure means the data cannot be
// trusted. Retrying will not help; the inputs are wrong or tampered.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrPlaintextHashChecks) ||
		errors.Is(err, zkproof.ErrProofIntegrityFailed) ||
		errors.Is(err, zkproof.ErrProofTamperDetected) ||
		errors.Is(err, zkproof.ErrCommitmentMismatch) ||
		errors.Is(err, zkproof.ErrVerificationFailed) ||
		errors.Is(err, splitcrypt.ErrCommitmentMismatch) ||
		errors.Is(err, ledger.ErrCommitmentMismatch)
}

// Request carries one shared-file retrieval.
type Request struct {
	// Delegation grants the caller access; its 128-byte key field holds the
	// proof reference.
	Delegation *ledger.Delegation
	// Record is the file being retrieved.
	Record *ledger.FileRecord
	// DecryptionKey opens the proof package payload and the file content.
	DecryptionKey []byte
	// ExpectedHash optionally pins the plaintext to a known SHA-256 hex.
	ExpectedHash string
}

// Result is a completed retrieval.
type Result struct {
	Plaintext     []byte
	HashVerified  bool
	ProofType     zkproof.ProofType
	ContentSource string
}

// Orchestrator runs retrievals against a proof service and a storage client.
type Orchestrator struct {
	proofs  *zkproof.Service
	store   *storage.Client
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewOrchestrator wires the pipeline. Metrics and logger may be nil.
func NewOrchestrator(proofs *zkproof.Service, store *storage.Client, metrics *Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Orchestrator{
		proofs:  proofs,
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Retrieve runs the pipeline to completion. Stages run strictly in order;
// the first failure aborts with a StageError naming the stage.
func (o *Orchestrator) Retrieve(ctx context.Context, req *Request) (*Result, error) {
	started := o.now()
	fileID := bytesutil.ToHex(req.Record.FileID[:])
	grantor := req.Delegation.Grantor.String()

	fail := func(stage Stage, err error) (*Result, error) {
		elapsed := o.now().Sub(started)
		o.metrics.observe(stage, false, elapsed)
		o.logger.Warn("retrieval failed",
			slog.String("stage", string(stage)),
			slog.String("file_id", fileID),
			slog.Bool("availability", IsAvailabilityError(err)),
			slog.Any("error", err))
		return nil, &StageError{
			Stage:      stage,
			FileID:     fileID,
			Grantor:    grantor,
			Permission: req.Delegation.PermissionLevel,
			Elapsed:    elapsed,
			Err:        err,
		}
	}

	// Permission check. View-only grants never reach the network.
	if !req.Delegation.IsValid(o.now().Unix()) {
		return fail(StagePermissionCheck, ErrDelegationInvalid)
	}
	if !req.Delegation.CanDownload() {
		return fail(StagePermissionCheck, fmt.Errorf("%w: %s", ErrPermissionDenied, req.Delegation.PermissionLevel))
	}
	if !req.Record.IsActive() {
		return fail(StagePermissionCheck, ErrFileNotActive)
	}

	// Proof fetch, via the reference embedded in the delegation.
	proofRef, err := ProofReference(req.Delegation)
	if err != nil {
		return fail(StageProofFetch, err)
	}
	proofDownload, err := o.store.DownloadProof(ctx, proofRef)
	if err != nil {
		return fail(StageProofFetch, err)
	}
	pkg, err := zkproof.ParsePackage(proofDownload.Data)
	if err != nil {
		return fail(StageProofFetch, err)
	}

	// Proof verification and critical-byte extraction.
	expectedCommitment := bytesutil.ToHex(req.Record.CriticalBytesCommitment[:])
	criticalBytes, fileIV, err := o.proofs.VerifyAndExtract(pkg, req.DecryptionKey, expectedCommitment)
	if err != nil {
		return fail(StageProofVerifyExtract, err)
	}
	defer bytesutil.Wipe(criticalBytes)

	// Content fetch: primary location, then the redundancy copy.
	content, source, err := o.fetchContent(ctx, req.Record)
	if err != nil {
		return fail(StageContentFetch, err)
	}

	// Reassemble and decrypt.
	plaintext, hashVerified, err := splitcrypt.DecryptSplit(
		content, criticalBytes, fileIV, req.DecryptionKey,
		pkg.Commitment, req.ExpectedHash)
	if err != nil {
		return fail(StageDecrypt, fmt.Errorf("%w: %w", ErrIntegrity, err))
	}
	if req.ExpectedHash != "" && !hashVerified {
		return fail(StageDecrypt, ErrPlaintextHashChecks)
	}

	elapsed := o.now().Sub(started)
	o.metrics.observe(StageDone, true, elapsed)
	o.logger.Info("retrieval complete",
		slog.String("file_id", fileID),
		slog.String("content_source", source),
		slog.String("proof_type", string(pkg.ProofType)),
		slog.Duration("elapsed", elapsed))
	return &Result{
		Plaintext:     plaintext,
		HashVerified:  hashVerified,
		ProofType:     pkg.ProofType,
		ContentSource: source,
	}, nil
}

func (o *Orchestrator) fetchContent(ctx context.Context, record *ledger.FileRecord) ([]byte, string, error) {
	primary := record.PrimaryCIDString()
	if primary != "" {
		result, err := o.store.DownloadContent(ctx, primary)
		if err == nil {
			return result.Data, result.Provider, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		o.logger.Debug("primary content location failed, trying redundancy",
			slog.Any("error", err))
	}
	redundancy := record.RedundancyCIDString()
	if redundancy != "" && redundancy != primary {
		result, err := o.store.DownloadContent(ctx, redundancy)
		if err == nil {
			return result.Data, result.Provider, nil
		}
	}
	return nil, "", ErrContentUnavailable
}

// ProofReference decodes the proof identifier from the delegation's 128-byte
// key field: zero padding trimmed, the rest read as UTF-8 text. The result
// must look like an identifier, not binary noise.
func ProofReference(d *ledger.Delegation) (string, error) {
	trimmed := bytesutil.TrimZeroPadding(d.EncryptedFileKey[:])
	if len(trimmed) == 0 {
		return "", ErrNoProofReference
	}
	if !utf8.Valid(trimmed) {
		return "", fmt.Errorf("%w: not valid utf-8", ErrBadProofReference)
	}
	ref := string(trimmed)
	for _, r := range ref {
		if r < 0x21 || r > 0x7E {
			return "", fmt.Errorf("%w: contains %q", ErrBadProofReference, r)
		}
	}
	return ref, nil
}
