package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blockdrive/go-sdk/internal/bytesutil"
)

// AccountFetcher reads raw account data by address. The RPC client implements
// it; tests substitute a map.
type AccountFetcher interface {
	FetchAccount(ctx context.Context, address PublicKey) ([]byte, error)
}

// RPCClient fetches accounts over the node's JSON-RPC interface.
type RPCClient struct {
	endpoint string
	hc       *http.Client
}

// NewRPCClient builds a client for one RPC endpoint.
func NewRPCClient(endpoint string, hc *http.Client) *RPCClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &RPCClient{endpoint: endpoint, hc: hc}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result struct {
		Value *struct {
			Data  []string `json:"data"`
			Owner string   `json:"owner"`
		} `json:"value"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchAccount retrieves an account's raw data, base64-decoded. A missing
// account is ErrAccountNotFound, not an empty slice.
func (c *RPCClient) FetchAccount(ctx context.Context, address PublicKey) ([]byte, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getAccountInfo",
		Params:  []any{address.String(), map[string]string{"encoding": "base64"}},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: rpc request marshal failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ledger: rpc request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: rpc call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger: rpc returned http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ledger: rpc response read failed: %w", err)
	}
	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ledger: rpc response malformed: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("ledger: rpc error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if parsed.Result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	if len(parsed.Result.Value.Data) < 1 {
		return nil, fmt.Errorf("ledger: rpc response missing account data")
	}
	data, err := base64.StdEncoding.DecodeString(parsed.Result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("ledger: account data undecodable: %w", err)
	}
	return data, nil
}

// VerificationResult reports a commitment check against the chain.
type VerificationResult struct {
	Verified          bool
	OnChain           bool
	CommitmentMatches bool
	OwnerMatches      bool
	Record            *FileRecord
}

// Verifier resolves file records by derivation and checks commitments
// against them before any decryption is attempted.
type Verifier struct {
	fetcher AccountFetcher
	program PublicKey
}

// NewVerifier builds a verifier over any account source.
func NewVerifier(fetcher AccountFetcher, program PublicKey) *Verifier {
	return &Verifier{fetcher: fetcher, program: program}
}

// FetchFileRecord derives the record address from the owner and file id and
// decodes the account.
func (v *Verifier) FetchFileRecord(ctx context.Context, owner PublicKey, fileID [FileIDLength]byte) (*FileRecord, PublicKey, error) {
	vaultAddr, _, err := DeriveVault(owner, v.program)
	if err != nil {
		return nil, PublicKey{}, err
	}
	fileAddr, _, err := DeriveFileRecord(vaultAddr, fileID, v.program)
	if err != nil {
		return nil, PublicKey{}, err
	}
	data, err := v.fetcher.FetchAccount(ctx, fileAddr)
	if err != nil {
		return nil, fileAddr, err
	}
	record, err := DecodeFileRecord(data)
	if err != nil {
		return nil, fileAddr, err
	}
	return record, fileAddr, nil
}

// FetchDelegation derives the delegation address for a grantee on a file
// record and decodes the account.
func (v *Verifier) FetchDelegation(ctx context.Context, fileRecord, grantee PublicKey) (*Delegation, PublicKey, error) {
	addr, _, err := DeriveDelegation(fileRecord, grantee, v.program)
	if err != nil {
		return nil, PublicKey{}, err
	}
	data, err := v.fetcher.FetchAccount(ctx, addr)
	if err != nil {
		return nil, addr, err
	}
	delegation, err := DecodeDelegation(data)
	if err != nil {
		return nil, addr, err
	}
	return delegation, addr, nil
}

// VerifyFileCommitment compares a locally computed critical-bytes commitment
// (hex) against the on-chain record, and the record's owner against the
// expected owner. Verified is true only when both match.
func (v *Verifier) VerifyFileCommitment(ctx context.Context, owner PublicKey, fileID [FileIDLength]byte, expectedCommitment string) (*VerificationResult, error) {
	record, _, err := v.FetchFileRecord(ctx, owner, fileID)
	if err != nil {
		return &VerificationResult{}, err
	}
	onChain := bytesutil.ToHex(record.CriticalBytesCommitment[:])
	commitmentMatches := strings.EqualFold(onChain, expectedCommitment)
	ownerMatches := record.Owner == owner
	result := &VerificationResult{
		Verified:          commitmentMatches && ownerMatches,
		OnChain:           true,
		CommitmentMatches: commitmentMatches,
		OwnerMatches:      ownerMatches,
		Record:            record,
	}
	if !commitmentMatches {
		return result, fmt.Errorf("%w: chain has %s", ErrCommitmentMismatch, onChain)
	}
	if !ownerMatches {
		return result, fmt.Errorf("%w: record owned by %s", ErrOwnerMismatch, record.Owner)
	}
	return result, nil
}
