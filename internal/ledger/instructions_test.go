package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"
)

func TestRegisterFileEncoding(t *testing.T) {
	args := RegisterFileArgs{
		FileSize:      4096,
		EncryptedSize: 4124,
		SecurityLevel: SecurityMaximum,
		PrimaryCID:    "QmTestCID",
	}
	for i := range args.FileID {
		args.FileID[i] = byte(i + 1)
	}
	data, err := EncodeRegisterFile(args)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	wantLen := 8 + 16 + 32 + 8 + 8 + 32 + 1 + 32 + 32 + 64
	if len(data) != wantLen {
		t.Fatalf("encoded %d bytes, want %d", len(data), wantLen)
	}
	want := sha256.Sum256([]byte("global:register_file"))
	if !bytes.Equal(data[:8], want[:8]) {
		t.Fatal("discriminator is not the canonical method tag")
	}
	if !bytes.Equal(data[8:24], args.FileID[:]) {
		t.Fatal("file id not at its layout offset")
	}
	if got := binary.LittleEndian.Uint64(data[56:64]); got != args.FileSize {
		t.Fatalf("file size reads back as %d", got)
	}
	if data[104] != uint8(SecurityMaximum) {
		t.Fatalf("security level byte is %d", data[104])
	}
	cidField := data[wantLen-64:]
	if !bytes.HasPrefix(cidField, []byte("QmTestCID")) || cidField[9] != 0 {
		t.Fatal("cid must be zero-padded into its fixed field")
	}
}

func TestRegisterFileRejectsBadArgs(t *testing.T) {
	long := make([]byte, CIDFieldLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EncodeRegisterFile(RegisterFileArgs{PrimaryCID: string(long)})
	if !errors.Is(err, ErrInvalidInstructionArg) {
		t.Fatalf("oversize cid: expected ErrInvalidInstructionArg, got %v", err)
	}
	_, err = EncodeRegisterFile(RegisterFileArgs{SecurityLevel: 5})
	if !errors.Is(err, ErrInvalidInstructionArg) {
		t.Fatalf("bad level: expected ErrInvalidInstructionArg, got %v", err)
	}
}

func TestCreateDelegationEncoding(t *testing.T) {
	key := []byte("bafyproofpackagecid")
	data, err := EncodeCreateDelegation(key, PermissionDownload, 1800000000)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(data) != 8+128+1+8 {
		t.Fatalf("encoded %d bytes", len(data))
	}
	if !bytes.HasPrefix(data[8:], key) {
		t.Fatal("key reference not at its offset")
	}
	if data[8+len(key)] != 0 {
		t.Fatal("key field must be zero-padded")
	}
	if data[136] != uint8(PermissionDownload) {
		t.Fatalf("permission byte is %d", data[136])
	}
	if got := int64(binary.LittleEndian.Uint64(data[137:145])); got != 1800000000 {
		t.Fatalf("expiry reads back as %d", got)
	}
}

func TestCreateDelegationRejectsOversizeKey(t *testing.T) {
	key := make([]byte, EncryptedFileKeyLength+1)
	if _, err := EncodeCreateDelegation(key, PermissionView, 0); !errors.Is(err, ErrInvalidInstructionArg) {
		t.Fatalf("expected ErrInvalidInstructionArg, got %v", err)
	}
	if _, err := EncodeCreateDelegation(nil, PermissionLevel(9), 0); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestNoArgInstructionsAreBareTags(t *testing.T) {
	cases := map[string][]byte{
		MethodArchiveFile:      EncodeArchiveFile(),
		MethodDeleteFile:       EncodeDeleteFile(),
		MethodRecordAccess:     EncodeRecordAccess(),
		MethodFreezeVault:      EncodeFreezeVault(),
		MethodUnfreezeVault:    EncodeUnfreezeVault(),
		MethodRevokeDelegation: EncodeRevokeDelegation(),
	}
	for method, data := range cases {
		if len(data) != 8 {
			t.Fatalf("%s: encoded %d bytes", method, len(data))
		}
		want := sha256.Sum256([]byte("global:" + method))
		if !bytes.Equal(data, want[:8]) {
			t.Fatalf("%s: wrong discriminator", method)
		}
	}
}

func TestDiscriminatorOverride(t *testing.T) {
	original := instructionDiscriminators[MethodRecordAccess]
	defer SetInstructionDiscriminator(MethodRecordAccess, original)

	var custom Discriminator
	copy(custom[:], []byte{9, 9, 9, 9, 9, 9, 9, 9})
	SetInstructionDiscriminator(MethodRecordAccess, custom)
	if !bytes.Equal(EncodeRecordAccess(), custom[:]) {
		t.Fatal("override must take effect")
	}
}
