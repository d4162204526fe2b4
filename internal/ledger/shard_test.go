package ledger

import (
	"errors"
	"testing"
)

func fileIDForIndex(i int) [FileIDLength]byte {
	var id [FileIDLength]byte
	id[0] = byte(i)
	id[1] = byte(i >> 8)
	id[15] = 0xFE
	return id
}

func recordForIndex(i int) PublicKey {
	var pk PublicKey
	pk[0] = byte(i)
	pk[1] = byte(i >> 8)
	pk[31] = 0xFD
	return pk
}

func TestRegisterFilesAcrossShardBoundary(t *testing.T) {
	vs, err := NewVaultSet(testOwner(), testProgram, 1000)
	if err != nil {
		t.Fatalf("vault set: %v", err)
	}

	// One more file than a single shard holds.
	total := FilesPerShard + 5
	for i := 0; i < total; i++ {
		shard, slot, err := vs.RegisterFile(fileIDForIndex(i), recordForIndex(i), 1024, int64(2000+i))
		if err != nil {
			t.Fatalf("file %d: %v", i, err)
		}
		if i < FilesPerShard && (shard != 0 || slot != uint8(i)) {
			t.Fatalf("file %d placed at %d/%d", i, shard, slot)
		}
		if i >= FilesPerShard && shard != 1 {
			t.Fatalf("file %d should spill into shard 1, got %d", i, shard)
		}
	}
	if vs.Master.TotalShards != 2 {
		t.Fatalf("expected 2 shards, have %d", vs.Master.TotalShards)
	}
	if err := vs.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}

	// Every file resolves through the index.
	for i := 0; i < total; i++ {
		record, err := vs.Locate(fileIDForIndex(i))
		if err != nil {
			t.Fatalf("locate %d: %v", i, err)
		}
		if record != recordForIndex(i) {
			t.Fatalf("locate %d returned wrong record", i)
		}
	}
}

func TestRegisterDuplicateFileRejected(t *testing.T) {
	vs, err := NewVaultSet(testOwner(), testProgram, 1000)
	if err != nil {
		t.Fatalf("vault set: %v", err)
	}
	if _, _, err := vs.RegisterFile(fileIDForIndex(1), recordForIndex(1), 10, 2000); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, _, err := vs.RegisterFile(fileIDForIndex(1), recordForIndex(2), 10, 2001); !errors.Is(err, ErrDuplicateFile) {
		t.Fatalf("expected ErrDuplicateFile, got %v", err)
	}
	if err := vs.CheckInvariants(); err != nil {
		t.Fatalf("failed registration must not disturb state: %v", err)
	}
}

func TestRemoveFileKeepsImagesAligned(t *testing.T) {
	vs, err := NewVaultSet(testOwner(), testProgram, 1000)
	if err != nil {
		t.Fatalf("vault set: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, _, err := vs.RegisterFile(fileIDForIndex(i), recordForIndex(i), 100, int64(2000+i)); err != nil {
			t.Fatalf("file %d: %v", i, err)
		}
	}
	if err := vs.RemoveFile(fileIDForIndex(4), 100, 3000); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := vs.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated after removal: %v", err)
	}
	if _, err := vs.Locate(fileIDForIndex(4)); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("removed file must not resolve, got %v", err)
	}
	if err := vs.RemoveFile(fileIDForIndex(4), 100, 3001); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("double removal: expected ErrFileNotFound, got %v", err)
	}
	if vs.Master.TotalFileCount != 9 {
		t.Fatalf("master counts %d files", vs.Master.TotalFileCount)
	}
}

func TestShardCreationBoundedByMaxShards(t *testing.T) {
	vs, err := NewVaultSet(testOwner(), testProgram, 1000)
	if err != nil {
		t.Fatalf("vault set: %v", err)
	}
	for i := 0; i < MaxShards; i++ {
		if _, err := vs.CreateShard(int64(i)); err != nil {
			t.Fatalf("shard %d: %v", i, err)
		}
	}
	if _, err := vs.CreateShard(100); !errors.Is(err, ErrShardSetFull) {
		t.Fatalf("expected ErrShardSetFull, got %v", err)
	}
}

func TestInvariantCheckCatchesDrift(t *testing.T) {
	vs, err := NewVaultSet(testOwner(), testProgram, 1000)
	if err != nil {
		t.Fatalf("vault set: %v", err)
	}
	if _, _, err := vs.RegisterFile(fileIDForIndex(1), recordForIndex(1), 10, 2000); err != nil {
		t.Fatalf("register: %v", err)
	}

	vs.Master.TotalFileCount = 7
	if err := vs.CheckInvariants(); err == nil {
		t.Fatal("drifted master count must fail the invariant check")
	}
}
