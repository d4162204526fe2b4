package searchmeta

import (
	"bytes"
	"errors"
	"testing"

	"blockdrive/go-sdk/internal/keyderive"
	"blockdrive/go-sdk/internal/splitcrypt"
)

func fileKey() []byte {
	key := make([]byte, splitcrypt.KeySize)
	for i := range key {
		key[i] = byte(200 - i)
	}
	return key
}

func TestSearchTokenDeterministicAndNormalized(t *testing.T) {
	searchKey, err := DeriveSearchKey(fileKey())
	if err != nil {
		t.Fatalf("derive search key failed: %v", err)
	}
	a := SearchToken("Report.PDF", searchKey)
	b := SearchToken("  report.pdf  ", searchKey)
	if a != b {
		t.Fatal("normalization should make tokens equal")
	}
	if a == SearchToken("other.pdf", searchKey) {
		t.Fatal("different values should produce different tokens")
	}
}

func TestSearchKeyIndependentFromFileKey(t *testing.T) {
	key := fileKey()
	searchKey, err := DeriveSearchKey(key)
	if err != nil {
		t.Fatalf("derive search key failed: %v", err)
	}
	if bytes.Equal(searchKey, key) {
		t.Fatal("search key must differ from file key")
	}
}

func TestDeriveSearchKeyRejectsShortKey(t *testing.T) {
	if _, err := DeriveSearchKey(make([]byte, 16)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestBucketBoundaries(t *testing.T) {
	cases := []struct {
		size int64
		want SizeBucket
	}{
		{0, BucketTiny},
		{10<<10 - 1, BucketTiny},
		{10 << 10, BucketSmall},
		{1<<20 - 1, BucketSmall},
		{1 << 20, BucketMedium},
		{100<<20 - 1, BucketMedium},
		{100 << 20, BucketLarge},
		{1<<30 - 1, BucketLarge},
		{1 << 30, BucketHuge},
	}
	for _, tc := range cases {
		if got := BucketForSize(tc.size); got != tc.want {
			t.Fatalf("size %d: got %s, want %s", tc.size, got, tc.want)
		}
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	key := fileKey()
	meta := &FileMetadata{
		FileName:      "tax-return-2025.pdf",
		MimeType:      "application/pdf",
		FileSize:      512 << 10,
		UploadedAt:    1756166400,
		ContentHash:   "deadbeef",
		SecurityLevel: keyderive.LevelSensitive,
		ContentCID:    "bafyexamplecontent",
		ProofCID:      "proof-abc123",
	}

	enc, err := EncryptMetadata(meta, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if enc.SizeBucket != BucketSmall {
		t.Fatalf("unexpected bucket %s", enc.SizeBucket)
	}
	if enc.NameToken == "" || enc.TypeToken == "" {
		t.Fatal("tokens must be populated")
	}

	got, err := DecryptMetadata(enc, key)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if *got != *meta {
		t.Fatalf("metadata mismatch: %+v", got)
	}
}

func TestDecryptRejectsUnknownVersion(t *testing.T) {
	key := fileKey()
	enc, err := EncryptMetadata(&FileMetadata{FileName: "a"}, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	enc.Version = 9
	if _, err := DecryptMetadata(enc, key); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}
