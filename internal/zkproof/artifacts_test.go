package zkproof

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func artifactServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func serveBinaryArtifacts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	if r.Method == http.MethodHead {
		return
	}
	w.Write([]byte{0x01, 0x02, 0x03, 0x04})
}

func TestAvailableWithBinaryArtifacts(t *testing.T) {
	srv := artifactServer(t, serveBinaryArtifacts)
	client := NewArtifactClient(srv.URL, srv.Client(), time.Minute)

	ok, err := client.Available(context.Background(), false)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if !ok {
		t.Fatal("binary artifacts should be reported available")
	}
}

func TestHTMLErrorPageCountsAsUnavailable(t *testing.T) {
	// A storage provider serving a styled 404 page with a 200-ish shape: the
	// status is 404 but some gateways return 200 with an HTML body. Cover
	// both.
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "html 404",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, "<!DOCTYPE html><html><body>Not Found</body></html>")
			},
		},
		{
			name: "html 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				io.WriteString(w, "<html><body>gateway placeholder</body></html>")
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := artifactServer(t, tc.handler)
			client := NewArtifactClient(srv.URL, srv.Client(), time.Minute)

			ok, err := client.Available(context.Background(), false)
			if ok {
				t.Fatal("html artifact bodies must count as unavailable")
			}
			if err == nil {
				t.Fatal("expected a probe error describing the html response")
			}
		})
	}
}

func TestSelectBackendFallsBackOnHTMLArtifacts(t *testing.T) {
	srv := artifactServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "<!doctype html><html><body>404</body></html>")
	})
	client := NewArtifactClient(srv.URL, srv.Client(), time.Minute)

	backend := SelectBackend(context.Background(), client, slog.New(slog.DiscardHandler))
	if backend.Type() != ProofTypeSimulated {
		t.Fatalf("expected simulated fallback, got %s", backend.Type())
	}

	// Packages generated through the fallback must carry the tag.
	criticalBytes, fileIV, key, commitment := testInputs()
	pkg, err := NewService(backend).Generate(criticalBytes, fileIV, key, commitment)
	if err != nil {
		t.Fatalf("generate via fallback failed: %v", err)
	}
	if pkg.ProofType != ProofTypeSimulated {
		t.Fatalf("fallback package must be tagged simulated, got %s", pkg.ProofType)
	}
}

func TestSelectBackendFallsBackWithoutClient(t *testing.T) {
	backend := SelectBackend(context.Background(), nil, slog.New(slog.DiscardHandler))
	if backend.Type() != ProofTypeSimulated {
		t.Fatalf("expected simulated backend, got %s", backend.Type())
	}
}

func TestAvailabilityCacheAndForceRefresh(t *testing.T) {
	var probes int
	srv := artifactServer(t, func(w http.ResponseWriter, r *http.Request) {
		probes++
		serveBinaryArtifacts(w, r)
	})
	client := NewArtifactClient(srv.URL, srv.Client(), time.Minute)
	current := time.Unix(1700000000, 0)
	client.now = func() time.Time { return current }

	if _, err := client.Available(context.Background(), false); err != nil {
		t.Fatalf("first probe failed: %v", err)
	}
	first := probes
	if first == 0 {
		t.Fatal("first call must hit the server")
	}

	// Within the ttl the cached result is reused.
	if _, err := client.Available(context.Background(), false); err != nil {
		t.Fatalf("cached probe failed: %v", err)
	}
	if probes != first {
		t.Fatalf("cached call hit the server: %d -> %d", first, probes)
	}

	// Force bypasses the cache even inside the ttl.
	if _, err := client.Available(context.Background(), true); err != nil {
		t.Fatalf("forced probe failed: %v", err)
	}
	if probes == first {
		t.Fatal("forced call must hit the server")
	}

	// Past the ttl the cache expires on its own.
	second := probes
	current = current.Add(2 * time.Minute)
	if _, err := client.Available(context.Background(), false); err != nil {
		t.Fatalf("post-ttl probe failed: %v", err)
	}
	if probes == second {
		t.Fatal("expired cache entry must trigger a fresh probe")
	}
}

func TestFetchRejectsHTMLBodyWithBinaryContentType(t *testing.T) {
	srv := artifactServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "<!DOCTYPE html><html><body>disguised error page</body></html>")
	})
	client := NewArtifactClient(srv.URL, srv.Client(), time.Minute)

	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatal("html body behind a binary content type must be rejected")
	}
}

func TestFetchReturnsAllThreeArtifacts(t *testing.T) {
	srv := artifactServer(t, serveBinaryArtifacts)
	client := NewArtifactClient(srv.URL, srv.Client(), time.Minute)

	set, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(set.Circuit) == 0 || len(set.ProvingKey) == 0 || len(set.VerifyingKey) == 0 {
		t.Fatal("all three artifacts must be non-empty")
	}
}
