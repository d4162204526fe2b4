package ledger

import (
	"fmt"
)

// VaultSet is the client-side planner over a sharded vault: the master, its
// shards and the lookup index held together so file placement can be decided
// and mirrored locally before the corresponding transactions are submitted.
// Mutations are atomic across the three account images: a failure leaves
// every account exactly as it was.
type VaultSet struct {
	Master  *UserVaultMaster
	Shards  map[uint8]*UserVaultShard
	Index   *UserVaultIndex
	Program PublicKey
}

// NewVaultSet plans a fresh sharded vault for an owner.
func NewVaultSet(owner, program PublicKey, timestamp int64) (*VaultSet, error) {
	masterAddr, masterBump, err := DeriveVaultMaster(owner, program)
	if err != nil {
		return nil, err
	}
	_, indexBump, err := DeriveVaultIndex(masterAddr, program)
	if err != nil {
		return nil, err
	}
	return &VaultSet{
		Master: &UserVaultMaster{
			Bump:      masterBump,
			Owner:     owner,
			CreatedAt: timestamp,
			UpdatedAt: timestamp,
		},
		Shards: make(map[uint8]*UserVaultShard),
		Index: &UserVaultIndex{
			Bump:        indexBump,
			VaultMaster: masterAddr,
			Owner:       owner,
			CreatedAt:   timestamp,
			UpdatedAt:   timestamp,
		},
		Program: program,
	}, nil
}

// MasterAddress re-derives the master PDA from the owner.
func (vs *VaultSet) MasterAddress() (PublicKey, error) {
	addr, _, err := DeriveVaultMaster(vs.Master.Owner, vs.Program)
	return addr, err
}

// CreateShard derives and registers the next shard. The master's shard count
// bounds creation; the set never grows past MaxShards.
func (vs *VaultSet) CreateShard(timestamp int64) (*UserVaultShard, error) {
	if !vs.Master.CanCreateShard() {
		return nil, ErrShardSetFull
	}
	masterAddr, err := vs.MasterAddress()
	if err != nil {
		return nil, err
	}
	index := vs.Master.TotalShards
	shardAddr, shardBump, err := DeriveVaultShard(masterAddr, index, vs.Program)
	if err != nil {
		return nil, err
	}
	if _, err := vs.Master.RegisterShard(shardAddr, timestamp); err != nil {
		return nil, err
	}
	shard := &UserVaultShard{
		Bump:        shardBump,
		VaultMaster: masterAddr,
		Owner:       vs.Master.Owner,
		ShardIndex:  index,
		CreatedAt:   timestamp,
		UpdatedAt:   timestamp,
	}
	vs.Shards[index] = shard
	return shard, nil
}

// activeShard returns the shard currently receiving files, creating the
// first or next one as needed.
func (vs *VaultSet) activeShard(timestamp int64) (*UserVaultShard, error) {
	if vs.Master.TotalShards == 0 {
		return vs.CreateShard(timestamp)
	}
	shard, ok := vs.Shards[vs.Master.ActiveShardIndex]
	if !ok {
		return nil, fmt.Errorf("%w: shard %d image missing", ErrMalformedAccountData, vs.Master.ActiveShardIndex)
	}
	if shard.HasCapacity() {
		return shard, nil
	}
	// The active shard is full. Advance to an existing shard with room, or
	// create a new one.
	for idx := uint8(0); idx < vs.Master.TotalShards; idx++ {
		if candidate, ok := vs.Shards[idx]; ok && candidate.HasCapacity() {
			vs.Master.ActiveShardIndex = idx
			return candidate, nil
		}
	}
	return vs.CreateShard(timestamp)
}

// RegisterFile places a file: capacity is confirmed before anything mutates,
// then the shard slot and the index entry are written together. ErrShardSetFull
// means the vault holds MaxShards×FilesPerShard files.
func (vs *VaultSet) RegisterFile(fileID [FileIDLength]byte, fileRecord PublicKey, fileSize uint64, timestamp int64) (shardIndex, slotIndex uint8, err error) {
	if _, _, ok := vs.Index.FindEntry(fileID); ok {
		return 0, 0, ErrDuplicateFile
	}
	if !vs.Index.HasCapacity() {
		return 0, 0, ErrIndexFull
	}
	shard, err := vs.activeShard(timestamp)
	if err != nil {
		return 0, 0, err
	}
	slot, err := shard.AddFile(fileRecord, timestamp)
	if err != nil {
		return 0, 0, err
	}
	if err := vs.Index.AddEntry(fileID, shard.ShardIndex, slot, timestamp); err != nil {
		// Roll the slot back so the shard and index never disagree.
		_ = shard.RemoveFile(slot, timestamp)
		return 0, 0, err
	}
	vs.Master.AddFile(fileSize, timestamp)
	return shard.ShardIndex, slot, nil
}

// RemoveFile drops a file from its shard slot and the index together.
func (vs *VaultSet) RemoveFile(fileID [FileIDLength]byte, fileSize uint64, timestamp int64) error {
	shardIndex, slotIndex, ok := vs.Index.FindEntry(fileID)
	if !ok {
		return ErrFileNotFound
	}
	shard, present := vs.Shards[shardIndex]
	if !present {
		return fmt.Errorf("%w: shard %d image missing", ErrMalformedAccountData, shardIndex)
	}
	record, occupied := shard.FileAt(slotIndex)
	if !occupied {
		return fmt.Errorf("%w: index points at empty slot %d/%d", ErrMalformedAccountData, shardIndex, slotIndex)
	}
	if err := shard.RemoveFile(slotIndex, timestamp); err != nil {
		return err
	}
	if err := vs.Index.RemoveEntry(fileID, timestamp); err != nil {
		// Restore the slot; the two images must move together.
		shard.FileRecords[slotIndex] = record
		shard.FileCount = saturatingAddU8(shard.FileCount, 1)
		return err
	}
	vs.Master.RemoveFile(fileSize, timestamp)
	return nil
}

// Locate resolves a file id to its shard and the file record pointer.
func (vs *VaultSet) Locate(fileID [FileIDLength]byte) (PublicKey, error) {
	shardIndex, slotIndex, ok := vs.Index.FindEntry(fileID)
	if !ok {
		return PublicKey{}, ErrFileNotFound
	}
	shard, present := vs.Shards[shardIndex]
	if !present {
		return PublicKey{}, fmt.Errorf("%w: shard %d image missing", ErrMalformedAccountData, shardIndex)
	}
	record, occupied := shard.FileAt(slotIndex)
	if !occupied {
		return PublicKey{}, fmt.Errorf("%w: index points at empty slot %d/%d", ErrMalformedAccountData, shardIndex, slotIndex)
	}
	return record, nil
}

// CheckInvariants confirms the three account images agree: the per-shard
// file counts, the master's total and the index length must all match, and
// every index entry must point at an occupied slot.
func (vs *VaultSet) CheckInvariants() error {
	var shardTotal uint64
	for idx, shard := range vs.Shards {
		if shard.ShardIndex != idx {
			return fmt.Errorf("%w: shard keyed %d reports index %d", ErrMalformedAccountData, idx, shard.ShardIndex)
		}
		occupied := 0
		for _, pk := range shard.FileRecords {
			if !pk.IsZero() {
				occupied++
			}
		}
		if occupied != int(shard.FileCount) {
			return fmt.Errorf("%w: shard %d counts %d files but %d slots occupied",
				ErrMalformedAccountData, idx, shard.FileCount, occupied)
		}
		shardTotal += uint64(shard.FileCount)
	}
	if shardTotal != vs.Master.TotalFileCount {
		return fmt.Errorf("%w: shards hold %d files, master counts %d",
			ErrMalformedAccountData, shardTotal, vs.Master.TotalFileCount)
	}
	if int(shardTotal) != len(vs.Index.Entries) {
		return fmt.Errorf("%w: shards hold %d files, index lists %d",
			ErrMalformedAccountData, shardTotal, len(vs.Index.Entries))
	}
	for _, e := range vs.Index.Entries {
		shard, present := vs.Shards[e.ShardIndex]
		if !present {
			return fmt.Errorf("%w: index references missing shard %d", ErrMalformedAccountData, e.ShardIndex)
		}
		if _, occupied := shard.FileAt(e.SlotIndex); !occupied {
			return fmt.Errorf("%w: index entry points at empty slot %d/%d",
				ErrMalformedAccountData, e.ShardIndex, e.SlotIndex)
		}
	}
	return nil
}
