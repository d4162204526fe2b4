package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"blockdrive/go-sdk/internal/bytesutil"
)

type mapFetcher map[PublicKey][]byte

func (m mapFetcher) FetchAccount(_ context.Context, address PublicKey) ([]byte, error) {
	data, ok := m[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return data, nil
}

// seedFileRecord registers a record under its derived address and returns the
// owner, file id and the record.
func seedFileRecord(t *testing.T, fetcher mapFetcher) (PublicKey, [FileIDLength]byte, *FileRecord) {
	t.Helper()
	owner := testOwner()
	record := sampleFileRecord()
	record.Owner = owner

	vaultAddr, _, err := DeriveVault(owner, testProgram)
	if err != nil {
		t.Fatalf("vault derivation: %v", err)
	}
	record.Vault = vaultAddr
	fileAddr, _, err := DeriveFileRecord(vaultAddr, record.FileID, testProgram)
	if err != nil {
		t.Fatalf("file derivation: %v", err)
	}
	fetcher[fileAddr] = record.Encode()
	return owner, record.FileID, record
}

func TestVerifyFileCommitmentMatches(t *testing.T) {
	fetcher := mapFetcher{}
	owner, fileID, record := seedFileRecord(t, fetcher)
	verifier := NewVerifier(fetcher, testProgram)

	commitment := bytesutil.ToHex(record.CriticalBytesCommitment[:])
	result, err := verifier.VerifyFileCommitment(context.Background(), owner, fileID, commitment)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !result.Verified || !result.OnChain || !result.CommitmentMatches || !result.OwnerMatches {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Record.FileID != fileID {
		t.Fatal("result must carry the decoded record")
	}
}

func TestVerifyFileCommitmentMismatch(t *testing.T) {
	fetcher := mapFetcher{}
	owner, fileID, _ := seedFileRecord(t, fetcher)
	verifier := NewVerifier(fetcher, testProgram)

	other := bytesutil.SHA256Hex([]byte("different critical bytes"))
	result, err := verifier.VerifyFileCommitment(context.Background(), owner, fileID, other)
	if !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected ErrCommitmentMismatch, got %v", err)
	}
	if result.Verified || !result.OnChain {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyFileCommitmentOwnerMismatch(t *testing.T) {
	fetcher := mapFetcher{}
	owner := testOwner()
	record := sampleFileRecord()
	// Record owned by someone else, but stored at this owner's derived
	// address.
	record.Owner = PublicKey{31: 0x77}
	vaultAddr, _, _ := DeriveVault(owner, testProgram)
	fileAddr, _, _ := DeriveFileRecord(vaultAddr, record.FileID, testProgram)
	fetcher[fileAddr] = record.Encode()

	verifier := NewVerifier(fetcher, testProgram)
	commitment := bytesutil.ToHex(record.CriticalBytesCommitment[:])
	result, err := verifier.VerifyFileCommitment(context.Background(), owner, record.FileID, commitment)
	if !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
	if result.Verified || !result.CommitmentMatches || result.OwnerMatches {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyFileCommitmentNotOnChain(t *testing.T) {
	verifier := NewVerifier(mapFetcher{}, testProgram)
	var fileID [FileIDLength]byte
	_, err := verifier.VerifyFileCommitment(context.Background(), testOwner(), fileID, "ab")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestFetchDelegation(t *testing.T) {
	fetcher := mapFetcher{}
	owner, fileID, _ := seedFileRecord(t, fetcher)
	verifier := NewVerifier(fetcher, testProgram)

	vaultAddr, _, _ := DeriveVault(owner, testProgram)
	fileAddr, _, _ := DeriveFileRecord(vaultAddr, fileID, testProgram)
	grantee := PublicKey{31: 0x42}
	delegationAddr, bump, err := DeriveDelegation(fileAddr, grantee, testProgram)
	if err != nil {
		t.Fatalf("delegation derivation: %v", err)
	}
	seeded := &Delegation{
		Bump:            bump,
		FileRecord:      fileAddr,
		Grantor:         owner,
		Grantee:         grantee,
		PermissionLevel: PermissionDownload,
		IsActive:        true,
	}
	copy(seeded.EncryptedFileKey[:], "bafyproofref")
	fetcher[delegationAddr] = seeded.Encode()

	got, addr, err := verifier.FetchDelegation(context.Background(), fileAddr, grantee)
	if err != nil {
		t.Fatalf("fetch delegation failed: %v", err)
	}
	if addr != delegationAddr {
		t.Fatal("derived address mismatch")
	}
	if got.Grantee != grantee || got.PermissionLevel != PermissionDownload {
		t.Fatalf("unexpected delegation: %+v", got)
	}
}

func TestFetchDelegationMissing(t *testing.T) {
	verifier := NewVerifier(mapFetcher{}, testProgram)
	_, _, err := verifier.FetchDelegation(context.Background(), testOwner(), PublicKey{31: 0x42})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRPCClientFetchAccount(t *testing.T) {
	record := sampleFileRecord()
	encoded := base64.StdEncoding.EncodeToString(record.Encode())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"value":{"data":[%q,"base64"],"owner":%q}}}`,
			encoded, testProgram)
	}))
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.Client())
	data, err := client.FetchAccount(context.Background(), testOwner())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	decoded, err := DecodeFileRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.FileID != record.FileID {
		t.Fatal("fetched record does not match")
	}
}

func TestRPCClientMissingAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"value":null}}`)
	}))
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.Client())
	if _, err := client.FetchAccount(context.Background(), testOwner()); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRPCClientErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid pubkey"}}`)
	}))
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.Client())
	if _, err := client.FetchAccount(context.Background(), testOwner()); err == nil {
		t.Fatal("rpc error must surface")
	}
}
