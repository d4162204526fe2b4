package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSanitizeArgsFingerprintsDisallowedIDs(t *testing.T) {
	args := SanitizeArgs(
		"file_id", "7f3a9c1d2e4b5a6f7f3a9c1d2e4b5a6f",
		"grantor", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"stage", "proof_fetch",
	)
	if len(args) != 6 {
		t.Fatalf("unexpected args length: %d", len(args))
	}
	if got := args[0]; got != "file_id_fp" {
		t.Fatalf("unexpected key: %v", got)
	}
	if got := args[1].(string); !strings.HasPrefix(got, "fp_") {
		t.Fatalf("unexpected fingerprint value: %q", got)
	}
	if got := args[4]; got != "stage" {
		t.Fatalf("expected untouched key, got %v", got)
	}
}

func TestSanitizingHandlerRedactsSensitiveAndIDs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(WrapHandler(base))
	logger.Info("test",
		"owner", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"wallet_signature", "deadbeef",
		"mnemonic", "abandon abandon abandon",
		"status", "ok")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["owner"]; ok {
		t.Fatal("owner should not be present")
	}
	if _, ok := payload["owner_fp"]; !ok {
		t.Fatal("owner_fp should be present")
	}
	if got, _ := payload["wallet_signature"].(string); got != redactedValue {
		t.Fatalf("expected redacted signature, got %q", got)
	}
	if got, _ := payload["mnemonic"].(string); got != redactedValue {
		t.Fatalf("expected redacted mnemonic, got %q", got)
	}
	if got, _ := payload["status"].(string); got != "ok" {
		t.Fatalf("plain attr must pass through, got %q", got)
	}
}

func TestFingerprintStableWithinProcess(t *testing.T) {
	a := FingerprintID("vault-abc")
	b := FingerprintID("vault-abc")
	c := FingerprintID("vault-xyz")
	if a != b {
		t.Fatal("same value must fingerprint identically within one boot")
	}
	if a == c {
		t.Fatal("distinct values must fingerprint differently")
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("grantee", "g1"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "grantee_fp") {
		t.Fatalf("expected sanitized grantee key, got %s", buf.String())
	}
}
