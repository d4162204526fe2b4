package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, gateways []string, proofStore string) *Client {
	t.Helper()
	opts := []Option{
		WithGateways(gateways),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	if proofStore != "" {
		opts = append(opts, WithProofStore(proofStore))
	}
	return NewClient(opts...)
}

func TestDownloadContentFallsThroughGateways(t *testing.T) {
	payload := []byte("encrypted content body")
	var deadHits, liveHits int

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadHits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer dead.Close()
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		liveHits++
		if !strings.HasSuffix(r.URL.Path, "/QmContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write(payload)
	}))
	defer live.Close()

	client := newTestClient(t, []string{dead.URL + "/ipfs/", live.URL + "/ipfs/"}, "")
	result, err := client.DownloadContent(context.Background(), "QmContent")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if !bytes.Equal(result.Data, payload) {
		t.Fatal("wrong payload")
	}
	if result.Provider != live.URL+"/ipfs/" {
		t.Fatalf("result credits wrong provider %q", result.Provider)
	}
	if deadHits != 1 || liveHits != 1 {
		t.Fatalf("gateway order not respected: dead=%d live=%d", deadHits, liveHits)
	}
}

func TestDownloadContentAllGatewaysFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, []string{srv.URL + "/a/", srv.URL + "/b/"}, "")
	_, err := client.DownloadContent(context.Background(), "QmMissing")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// Both gateway failures must be present in the error.
	msg := err.Error()
	if !strings.Contains(msg, "/a") || !strings.Contains(msg, "/b") {
		t.Fatalf("error drops gateway context: %s", msg)
	}
}

func TestDownloadContentValidation(t *testing.T) {
	client := newTestClient(t, []string{"http://unused/"}, "")
	if _, err := client.DownloadContent(context.Background(), ""); !errors.Is(err, ErrEmptyObjectID) {
		t.Fatalf("expected ErrEmptyObjectID, got %v", err)
	}
	client = newTestClient(t, nil, "")
	if _, err := client.DownloadContent(context.Background(), "Qm"); !errors.Is(err, ErrNoGateways) {
		t.Fatalf("expected ErrNoGateways, got %v", err)
	}
}

func TestDownloadProofPrefersProofStore(t *testing.T) {
	proofJSON := []byte(`{"version":2}`)
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(proofJSON)
	}))
	defer store.Close()
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be hit when the proof store works")
	}))
	defer gateway.Close()

	client := newTestClient(t, []string{gateway.URL + "/ipfs/"}, store.URL)
	result, err := client.DownloadProof(context.Background(), "proof-abc")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if result.Provider != "proof-store" || !bytes.Equal(result.Data, proofJSON) {
		t.Fatalf("unexpected result: provider=%q", result.Provider)
	}
}

func TestDownloadProofFallsBackToGateways(t *testing.T) {
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer store.Close()
	proofJSON := []byte(`{"version":2}`)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(proofJSON)
	}))
	defer gateway.Close()

	client := newTestClient(t, []string{gateway.URL + "/ipfs/"}, store.URL)
	result, err := client.DownloadProof(context.Background(), "proof-abc")
	if err != nil {
		t.Fatalf("fallback failed: %v", err)
	}
	if !bytes.Equal(result.Data, proofJSON) {
		t.Fatal("wrong payload via fallback")
	}
}

func TestDownloadProofPreservesBothErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, []string{srv.URL + "/ipfs/"}, srv.URL+"/proofs")
	_, err := client.DownloadProof(context.Background(), "proof-missing")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "proof store") || !strings.Contains(msg, "gateways") {
		t.Fatalf("error must preserve both failure contexts: %s", msg)
	}
}

func TestDownloadContentHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := newTestClient(t, []string{srv.URL + "/a/", srv.URL + "/b/"}, "")
	if _, err := client.DownloadContent(ctx, "Qm"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
