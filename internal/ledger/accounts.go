package ledger

import (
	"crypto/sha256"
	"fmt"
)

// Program limits.
const (
	MaxShards       = 10
	FilesPerShard   = 100
	MaxIndexEntries = 1000

	FileIDLength           = 16
	HashLength             = 32
	CIDFieldLength         = 64
	EncryptedFileKeyLength = 128

	discriminatorLength = 8
)

// Discriminator is the 8-byte account or instruction tag.
type Discriminator [discriminatorLength]byte

// accountDiscriminator derives the canonical tag for an account struct name:
// the first 8 bytes of sha256("account:<Name>").
func accountDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:discriminatorLength])
	return d
}

// Account discriminators, keyed by struct name. A deployment whose program
// uses non-canonical tags can override these before decoding.
var accountDiscriminators = map[string]Discriminator{
	"UserVault":       accountDiscriminator("UserVault"),
	"FileRecord":      accountDiscriminator("FileRecord"),
	"Delegation":      accountDiscriminator("Delegation"),
	"UserVaultMaster": accountDiscriminator("UserVaultMaster"),
	"UserVaultShard":  accountDiscriminator("UserVaultShard"),
	"UserVaultIndex":  accountDiscriminator("UserVaultIndex"),
}

// SetAccountDiscriminator overrides the expected tag for an account type.
func SetAccountDiscriminator(name string, d Discriminator) {
	accountDiscriminators[name] = d
}

func checkDiscriminator(c *cursor, name string) {
	var got Discriminator
	c.bytes(got[:])
	if c.err != nil {
		return
	}
	if got != accountDiscriminators[name] {
		c.err = fmt.Errorf("%w: expected %s", ErrWrongAccountType, name)
	}
}

// FileStatus mirrors the on-chain file lifecycle enum.
type FileStatus uint8

const (
	FileActive FileStatus = iota
	FileArchived
	FileDeleted
)

// VaultStatus mirrors the on-chain vault lifecycle enum.
type VaultStatus uint8

const (
	VaultActive VaultStatus = iota
	VaultFrozen
	VaultDeleted
)

// ShardStatus mirrors the on-chain shard lifecycle enum.
type ShardStatus uint8

const (
	ShardActive ShardStatus = iota
	ShardFullStatus
	ShardArchived
)

// SecurityLevel is the on-chain 0-indexed level. The client-side key
// derivation numbers its levels 1..3; ClientLevel and SecurityLevelFromClient
// convert between the two conventions.
type SecurityLevel uint8

const (
	SecurityStandard SecurityLevel = iota
	SecurityEnhanced
	SecurityMaximum
)

// ClientLevel converts to the 1-indexed numbering the key derivation uses.
func (s SecurityLevel) ClientLevel() int { return int(s) + 1 }

// SecurityLevelFromClient converts a 1-indexed client level.
func SecurityLevelFromClient(level int) (SecurityLevel, error) {
	if level < 1 || level > 3 {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSecurityLevel, level)
	}
	return SecurityLevel(level - 1), nil
}

// PermissionLevel mirrors the on-chain delegation permission enum.
type PermissionLevel uint8

const (
	PermissionView PermissionLevel = iota
	PermissionDownload
	PermissionReshare
)

func (p PermissionLevel) String() string {
	switch p {
	case PermissionView:
		return "view"
	case PermissionDownload:
		return "download"
	case PermissionReshare:
		return "reshare"
	}
	return fmt.Sprintf("permission(%d)", uint8(p))
}

func validEnum(c *cursor, value, max uint8, what string) {
	if c.err == nil && value > max {
		c.fail("%s out of range: %d", what, value)
	}
}

// UserVault is the legacy single-account vault: owner, master key commitment
// and aggregate counters.
type UserVault struct {
	Bump                uint8
	Owner               PublicKey
	MasterKeyCommitment [HashLength]byte
	FileCount           uint64
	TotalStorage        uint64
	CreatedAt           int64
	UpdatedAt           int64
	Status              VaultStatus
	Reserved            [64]byte
}

// UserVaultSize is the full account size including the discriminator.
const UserVaultSize = discriminatorLength + 1 + 32 + 32 + 8 + 8 + 8 + 8 + 1 + 64

func DecodeUserVault(data []byte) (*UserVault, error) {
	c := newCursor(data)
	checkDiscriminator(c, "UserVault")
	var v UserVault
	v.Bump = c.u8()
	v.Owner = c.pubkey()
	c.bytes(v.MasterKeyCommitment[:])
	v.FileCount = c.u64()
	v.TotalStorage = c.u64()
	v.CreatedAt = c.i64()
	v.UpdatedAt = c.i64()
	v.Status = VaultStatus(c.u8())
	c.bytes(v.Reserved[:])
	validEnum(c, uint8(v.Status), uint8(VaultDeleted), "vault status")
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &v, nil
}

func (v *UserVault) Encode() []byte {
	w := newWriter(UserVaultSize)
	d := accountDiscriminators["UserVault"]
	w.bytes(d[:])
	w.u8(v.Bump)
	w.pubkey(v.Owner)
	w.bytes(v.MasterKeyCommitment[:])
	w.u64(v.FileCount)
	w.u64(v.TotalStorage)
	w.i64(v.CreatedAt)
	w.i64(v.UpdatedAt)
	w.u8(uint8(v.Status))
	w.bytes(v.Reserved[:])
	return w.buf
}

func (v *UserVault) IsActive() bool { return v.Status == VaultActive }
func (v *UserVault) IsFrozen() bool { return v.Status == VaultFrozen }

// AddFile updates the aggregate counters for a newly registered file.
func (v *UserVault) AddFile(fileSize uint64, timestamp int64) {
	v.FileCount = saturatingAddU64(v.FileCount, 1)
	v.TotalStorage = saturatingAddU64(v.TotalStorage, fileSize)
	v.UpdatedAt = timestamp
}

// RemoveFile reverses AddFile with saturating arithmetic.
func (v *UserVault) RemoveFile(fileSize uint64, timestamp int64) {
	v.FileCount = saturatingSubU64(v.FileCount, 1)
	v.TotalStorage = saturatingSubU64(v.TotalStorage, fileSize)
	v.UpdatedAt = timestamp
}

// FileRecord carries a file's commitments, storage locations and sharing
// state.
type FileRecord struct {
	Bump                    uint8
	Vault                   PublicKey
	Owner                   PublicKey
	FileID                  [FileIDLength]byte
	FilenameHash            [HashLength]byte
	FileSize                uint64
	EncryptedSize           uint64
	MimeTypeHash            [HashLength]byte
	SecurityLevel           SecurityLevel
	EncryptionCommitment    [HashLength]byte
	CriticalBytesCommitment [HashLength]byte
	PrimaryCID              [CIDFieldLength]byte
	RedundancyCID           [CIDFieldLength]byte
	ProviderCount           uint8
	CreatedAt               int64
	AccessedAt              int64
	Status                  FileStatus
	IsShared                bool
	DelegationCount         uint8
	Reserved                [32]byte
}

const FileRecordSize = discriminatorLength + 1 + 32 + 32 + 16 + 32 + 8 + 8 + 32 + 1 + 32 + 32 + 64 + 64 + 1 + 8 + 8 + 1 + 1 + 1 + 32

func DecodeFileRecord(data []byte) (*FileRecord, error) {
	c := newCursor(data)
	checkDiscriminator(c, "FileRecord")
	var r FileRecord
	r.Bump = c.u8()
	r.Vault = c.pubkey()
	r.Owner = c.pubkey()
	c.bytes(r.FileID[:])
	c.bytes(r.FilenameHash[:])
	r.FileSize = c.u64()
	r.EncryptedSize = c.u64()
	c.bytes(r.MimeTypeHash[:])
	r.SecurityLevel = SecurityLevel(c.u8())
	c.bytes(r.EncryptionCommitment[:])
	c.bytes(r.CriticalBytesCommitment[:])
	c.bytes(r.PrimaryCID[:])
	c.bytes(r.RedundancyCID[:])
	r.ProviderCount = c.u8()
	r.CreatedAt = c.i64()
	r.AccessedAt = c.i64()
	r.Status = FileStatus(c.u8())
	r.IsShared = c.bool()
	r.DelegationCount = c.u8()
	c.bytes(r.Reserved[:])
	validEnum(c, uint8(r.SecurityLevel), uint8(SecurityMaximum), "security level")
	validEnum(c, uint8(r.Status), uint8(FileDeleted), "file status")
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *FileRecord) Encode() []byte {
	w := newWriter(FileRecordSize)
	d := accountDiscriminators["FileRecord"]
	w.bytes(d[:])
	w.u8(r.Bump)
	w.pubkey(r.Vault)
	w.pubkey(r.Owner)
	w.bytes(r.FileID[:])
	w.bytes(r.FilenameHash[:])
	w.u64(r.FileSize)
	w.u64(r.EncryptedSize)
	w.bytes(r.MimeTypeHash[:])
	w.u8(uint8(r.SecurityLevel))
	w.bytes(r.EncryptionCommitment[:])
	w.bytes(r.CriticalBytesCommitment[:])
	w.bytes(r.PrimaryCID[:])
	w.bytes(r.RedundancyCID[:])
	w.u8(r.ProviderCount)
	w.i64(r.CreatedAt)
	w.i64(r.AccessedAt)
	w.u8(uint8(r.Status))
	w.bool(r.IsShared)
	w.u8(r.DelegationCount)
	w.bytes(r.Reserved[:])
	return w.buf
}

func (r *FileRecord) IsActive() bool   { return r.Status == FileActive }
func (r *FileRecord) IsArchived() bool { return r.Status == FileArchived }

// RecordAccess updates the access timestamp.
func (r *FileRecord) RecordAccess(timestamp int64) { r.AccessedAt = timestamp }

// AddDelegation bumps the delegation count and flags the file shared.
func (r *FileRecord) AddDelegation() {
	r.DelegationCount = saturatingAddU8(r.DelegationCount, 1)
	r.IsShared = true
}

// RemoveDelegation reverses AddDelegation; the shared flag clears when the
// last delegation goes away.
func (r *FileRecord) RemoveDelegation() {
	r.DelegationCount = saturatingSubU8(r.DelegationCount, 1)
	if r.DelegationCount == 0 {
		r.IsShared = false
	}
}

// PrimaryCIDString decodes the zero-padded primary CID field.
func (r *FileRecord) PrimaryCIDString() string { return cidToString(r.PrimaryCID) }

// RedundancyCIDString decodes the zero-padded redundancy CID field; empty
// when no redundancy copy was registered.
func (r *FileRecord) RedundancyCIDString() string { return cidToString(r.RedundancyCID) }

func cidToString(cid [CIDFieldLength]byte) string {
	end := len(cid)
	for end > 0 && cid[end-1] == 0 {
		end--
	}
	return string(cid[:end])
}

// CIDToField zero-pads a CID string into the fixed on-chain field.
func CIDToField(cid string) ([CIDFieldLength]byte, error) {
	var out [CIDFieldLength]byte
	if len(cid) > CIDFieldLength {
		return out, fmt.Errorf("%w: cid longer than %d bytes", ErrInvalidInstructionArg, CIDFieldLength)
	}
	copy(out[:], cid)
	return out, nil
}

// Delegation grants a grantee access to one file record.
type Delegation struct {
	Bump             uint8
	FileRecord       PublicKey
	Grantor          PublicKey
	Grantee          PublicKey
	EncryptedFileKey [EncryptedFileKeyLength]byte
	PermissionLevel  PermissionLevel
	ExpiresAt        int64
	CreatedAt        int64
	IsActive         bool
	IsAccepted       bool
	AccessCount      uint64
	LastAccessedAt   int64
	Reserved         [32]byte
}

const DelegationSize = discriminatorLength + 1 + 32 + 32 + 32 + 128 + 1 + 8 + 8 + 1 + 1 + 8 + 8 + 32

func DecodeDelegation(data []byte) (*Delegation, error) {
	c := newCursor(data)
	checkDiscriminator(c, "Delegation")
	var d Delegation
	d.Bump = c.u8()
	d.FileRecord = c.pubkey()
	d.Grantor = c.pubkey()
	d.Grantee = c.pubkey()
	c.bytes(d.EncryptedFileKey[:])
	d.PermissionLevel = PermissionLevel(c.u8())
	d.ExpiresAt = c.i64()
	d.CreatedAt = c.i64()
	d.IsActive = c.bool()
	d.IsAccepted = c.bool()
	d.AccessCount = c.u64()
	d.LastAccessedAt = c.i64()
	c.bytes(d.Reserved[:])
	validEnum(c, uint8(d.PermissionLevel), uint8(PermissionReshare), "permission level")
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Delegation) Encode() []byte {
	w := newWriter(DelegationSize)
	disc := accountDiscriminators["Delegation"]
	w.bytes(disc[:])
	w.u8(d.Bump)
	w.pubkey(d.FileRecord)
	w.pubkey(d.Grantor)
	w.pubkey(d.Grantee)
	w.bytes(d.EncryptedFileKey[:])
	w.u8(uint8(d.PermissionLevel))
	w.i64(d.ExpiresAt)
	w.i64(d.CreatedAt)
	w.bool(d.IsActive)
	w.bool(d.IsAccepted)
	w.u64(d.AccessCount)
	w.i64(d.LastAccessedAt)
	w.bytes(d.Reserved[:])
	return w.buf
}

// IsExpired reports whether a non-zero expiry has passed. Zero means no
// expiry.
func (d *Delegation) IsExpired(now int64) bool {
	return d.ExpiresAt > 0 && now > d.ExpiresAt
}

// IsValid reports whether the delegation is active and unexpired.
func (d *Delegation) IsValid(now int64) bool { return d.IsActive && !d.IsExpired(now) }

func (d *Delegation) CanDownload() bool {
	return d.PermissionLevel == PermissionDownload || d.PermissionLevel == PermissionReshare
}

func (d *Delegation) CanReshare() bool { return d.PermissionLevel == PermissionReshare }

// RecordAccess bumps the access counter.
func (d *Delegation) RecordAccess(timestamp int64) {
	d.AccessCount = saturatingAddU64(d.AccessCount, 1)
	d.LastAccessedAt = timestamp
}

// UserVaultMaster is the controller account of the sharded vault.
type UserVaultMaster struct {
	Bump             uint8
	Owner            PublicKey
	TotalFileCount   uint64
	TotalShards      uint8
	ActiveShardIndex uint8
	TotalStorage     uint64
	ShardPointers    [MaxShards]PublicKey
	CreatedAt        int64
	UpdatedAt        int64
	Reserved         [64]byte
}

const UserVaultMasterSize = discriminatorLength + 1 + 32 + 8 + 1 + 1 + 8 + 32*MaxShards + 8 + 8 + 64

func DecodeUserVaultMaster(data []byte) (*UserVaultMaster, error) {
	c := newCursor(data)
	checkDiscriminator(c, "UserVaultMaster")
	var m UserVaultMaster
	m.Bump = c.u8()
	m.Owner = c.pubkey()
	m.TotalFileCount = c.u64()
	m.TotalShards = c.u8()
	m.ActiveShardIndex = c.u8()
	m.TotalStorage = c.u64()
	for i := range m.ShardPointers {
		m.ShardPointers[i] = c.pubkey()
	}
	m.CreatedAt = c.i64()
	m.UpdatedAt = c.i64()
	c.bytes(m.Reserved[:])
	if c.err == nil && m.TotalShards > MaxShards {
		c.fail("total shards %d exceeds %d", m.TotalShards, MaxShards)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *UserVaultMaster) Encode() []byte {
	w := newWriter(UserVaultMasterSize)
	d := accountDiscriminators["UserVaultMaster"]
	w.bytes(d[:])
	w.u8(m.Bump)
	w.pubkey(m.Owner)
	w.u64(m.TotalFileCount)
	w.u8(m.TotalShards)
	w.u8(m.ActiveShardIndex)
	w.u64(m.TotalStorage)
	for i := range m.ShardPointers {
		w.pubkey(m.ShardPointers[i])
	}
	w.i64(m.CreatedAt)
	w.i64(m.UpdatedAt)
	w.bytes(m.Reserved[:])
	return w.buf
}

// NeedsNewShard reports whether a fresh shard must be created before the next
// file registration.
func (m *UserVaultMaster) NeedsNewShard(activeShardFileCount uint8) bool {
	if m.TotalShards == 0 {
		return true
	}
	return activeShardFileCount >= FilesPerShard
}

func (m *UserVaultMaster) CanCreateShard() bool { return m.TotalShards < MaxShards }

// RegisterShard appends a shard pointer and makes it active.
func (m *UserVaultMaster) RegisterShard(shard PublicKey, timestamp int64) (uint8, error) {
	if !m.CanCreateShard() {
		return 0, ErrShardSetFull
	}
	index := m.TotalShards
	m.ShardPointers[index] = shard
	m.TotalShards = saturatingAddU8(m.TotalShards, 1)
	m.ActiveShardIndex = index
	m.UpdatedAt = timestamp
	return index, nil
}

// AddFile updates the aggregate counters for a file placed in any shard.
func (m *UserVaultMaster) AddFile(fileSize uint64, timestamp int64) {
	m.TotalFileCount = saturatingAddU64(m.TotalFileCount, 1)
	m.TotalStorage = saturatingAddU64(m.TotalStorage, fileSize)
	m.UpdatedAt = timestamp
}

// RemoveFile reverses AddFile with saturating arithmetic.
func (m *UserVaultMaster) RemoveFile(fileSize uint64, timestamp int64) {
	m.TotalFileCount = saturatingSubU64(m.TotalFileCount, 1)
	m.TotalStorage = saturatingSubU64(m.TotalStorage, fileSize)
	m.UpdatedAt = timestamp
}

// ActiveShard returns the pointer to the shard currently receiving files.
func (m *UserVaultMaster) ActiveShard() (PublicKey, bool) {
	return m.Shard(m.ActiveShardIndex)
}

// Shard returns the pointer at the given index, if the shard exists.
func (m *UserVaultMaster) Shard(index uint8) (PublicKey, bool) {
	if index >= m.TotalShards {
		return PublicKey{}, false
	}
	pk := m.ShardPointers[index]
	if pk.IsZero() {
		return PublicKey{}, false
	}
	return pk, true
}

// UserVaultShard is a storage unit holding up to FilesPerShard file record
// pointers. Removal leaves holes; slots are never compacted.
type UserVaultShard struct {
	Bump        uint8
	VaultMaster PublicKey
	Owner       PublicKey
	ShardIndex  uint8
	FileCount   uint8
	Status      ShardStatus
	FileRecords [FilesPerShard]PublicKey
	CreatedAt   int64
	UpdatedAt   int64
	Reserved    [32]byte
}

const UserVaultShardSize = discriminatorLength + 1 + 32 + 32 + 1 + 1 + 1 + 32*FilesPerShard + 8 + 8 + 32

func DecodeUserVaultShard(data []byte) (*UserVaultShard, error) {
	c := newCursor(data)
	checkDiscriminator(c, "UserVaultShard")
	var s UserVaultShard
	s.Bump = c.u8()
	s.VaultMaster = c.pubkey()
	s.Owner = c.pubkey()
	s.ShardIndex = c.u8()
	s.FileCount = c.u8()
	s.Status = ShardStatus(c.u8())
	for i := range s.FileRecords {
		s.FileRecords[i] = c.pubkey()
	}
	s.CreatedAt = c.i64()
	s.UpdatedAt = c.i64()
	c.bytes(s.Reserved[:])
	validEnum(c, uint8(s.Status), uint8(ShardArchived), "shard status")
	if c.err == nil && s.FileCount > FilesPerShard {
		c.fail("file count %d exceeds %d", s.FileCount, FilesPerShard)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *UserVaultShard) Encode() []byte {
	w := newWriter(UserVaultShardSize)
	d := accountDiscriminators["UserVaultShard"]
	w.bytes(d[:])
	w.u8(s.Bump)
	w.pubkey(s.VaultMaster)
	w.pubkey(s.Owner)
	w.u8(s.ShardIndex)
	w.u8(s.FileCount)
	w.u8(uint8(s.Status))
	for i := range s.FileRecords {
		w.pubkey(s.FileRecords[i])
	}
	w.i64(s.CreatedAt)
	w.i64(s.UpdatedAt)
	w.bytes(s.Reserved[:])
	return w.buf
}

func (s *UserVaultShard) IsActive() bool { return s.Status == ShardActive }

func (s *UserVaultShard) IsFull() bool {
	return s.FileCount >= FilesPerShard || s.Status == ShardFullStatus
}

func (s *UserVaultShard) HasCapacity() bool {
	return s.IsActive() && s.FileCount < FilesPerShard
}

// AddFile places a file record pointer in the next slot and returns the slot
// index. The shard flips to Full when it hits capacity.
func (s *UserVaultShard) AddFile(fileRecord PublicKey, timestamp int64) (uint8, error) {
	if !s.HasCapacity() {
		return 0, ErrShardFull
	}
	slot := s.FileCount
	s.FileRecords[slot] = fileRecord
	s.FileCount = saturatingAddU8(s.FileCount, 1)
	s.UpdatedAt = timestamp
	if s.FileCount >= FilesPerShard {
		s.Status = ShardFullStatus
	}
	return slot, nil
}

// RemoveFile empties a slot without compacting. A full shard reactivates.
func (s *UserVaultShard) RemoveFile(slot uint8, timestamp int64) error {
	if int(slot) >= FilesPerShard {
		return fmt.Errorf("%w: slot %d", ErrFileNotFound, slot)
	}
	if s.FileRecords[slot].IsZero() {
		return ErrSlotEmpty
	}
	s.FileRecords[slot] = PublicKey{}
	s.FileCount = saturatingSubU8(s.FileCount, 1)
	s.UpdatedAt = timestamp
	if s.Status == ShardFullStatus {
		s.Status = ShardActive
	}
	return nil
}

// FileAt returns the pointer in a slot, if occupied.
func (s *UserVaultShard) FileAt(slot uint8) (PublicKey, bool) {
	if int(slot) >= FilesPerShard {
		return PublicKey{}, false
	}
	pk := s.FileRecords[slot]
	if pk.IsZero() {
		return PublicKey{}, false
	}
	return pk, true
}

// FindFileSlot locates a file record pointer within the shard.
func (s *UserVaultShard) FindFileSlot(fileRecord PublicKey) (uint8, bool) {
	for i, pk := range s.FileRecords {
		if pk == fileRecord {
			return uint8(i), true
		}
	}
	return 0, false
}

// AllFiles lists the occupied slots in slot order.
func (s *UserVaultShard) AllFiles() []PublicKey {
	out := make([]PublicKey, 0, s.FileCount)
	for _, pk := range s.FileRecords {
		if !pk.IsZero() {
			out = append(out, pk)
		}
	}
	return out
}

// Archive flips the shard read-only.
func (s *UserVaultShard) Archive(timestamp int64) {
	s.Status = ShardArchived
	s.UpdatedAt = timestamp
}

// IndexEntry maps a file id to its shard and slot.
type IndexEntry struct {
	FileID     [FileIDLength]byte
	ShardIndex uint8
	SlotIndex  uint8
}

const indexEntrySize = FileIDLength + 1 + 1

// UserVaultIndex is the lookup table over all shards. The entries vector is
// length-prefixed on the wire; EntryCount is the program's own counter and
// the two must agree.
type UserVaultIndex struct {
	Bump        uint8
	VaultMaster PublicKey
	Owner       PublicKey
	EntryCount  uint16
	CreatedAt   int64
	UpdatedAt   int64
	Entries     []IndexEntry
	Reserved    [32]byte
}

func DecodeUserVaultIndex(data []byte) (*UserVaultIndex, error) {
	c := newCursor(data)
	checkDiscriminator(c, "UserVaultIndex")
	var idx UserVaultIndex
	idx.Bump = c.u8()
	idx.VaultMaster = c.pubkey()
	idx.Owner = c.pubkey()
	idx.EntryCount = c.u16()
	idx.CreatedAt = c.i64()
	idx.UpdatedAt = c.i64()
	length := c.u32()
	if c.err == nil && length > MaxIndexEntries {
		c.fail("index length %d exceeds %d", length, MaxIndexEntries)
	}
	if c.err == nil {
		idx.Entries = make([]IndexEntry, 0, length)
		for i := uint32(0); i < length; i++ {
			var e IndexEntry
			c.bytes(e.FileID[:])
			e.ShardIndex = c.u8()
			e.SlotIndex = c.u8()
			if c.err != nil {
				break
			}
			idx.Entries = append(idx.Entries, e)
		}
	}
	c.bytes(idx.Reserved[:])
	if c.err == nil && int(idx.EntryCount) != len(idx.Entries) {
		c.fail("entry count %d disagrees with vector length %d", idx.EntryCount, len(idx.Entries))
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (idx *UserVaultIndex) Encode() []byte {
	w := newWriter(discriminatorLength + 1 + 32 + 32 + 2 + 8 + 8 + 4 + len(idx.Entries)*indexEntrySize + 32)
	d := accountDiscriminators["UserVaultIndex"]
	w.bytes(d[:])
	w.u8(idx.Bump)
	w.pubkey(idx.VaultMaster)
	w.pubkey(idx.Owner)
	w.u16(idx.EntryCount)
	w.i64(idx.CreatedAt)
	w.i64(idx.UpdatedAt)
	w.u32(uint32(len(idx.Entries)))
	for _, e := range idx.Entries {
		w.bytes(e.FileID[:])
		w.u8(e.ShardIndex)
		w.u8(e.SlotIndex)
	}
	w.bytes(idx.Reserved[:])
	return w.buf
}

func (idx *UserVaultIndex) HasCapacity() bool { return len(idx.Entries) < MaxIndexEntries }

// AddEntry appends a mapping; duplicate file ids are rejected.
func (idx *UserVaultIndex) AddEntry(fileID [FileIDLength]byte, shard, slot uint8, timestamp int64) error {
	if !idx.HasCapacity() {
		return ErrIndexFull
	}
	if _, _, ok := idx.FindEntry(fileID); ok {
		return ErrDuplicateFile
	}
	idx.Entries = append(idx.Entries, IndexEntry{FileID: fileID, ShardIndex: shard, SlotIndex: slot})
	idx.EntryCount = uint16(saturatingAddU64(uint64(idx.EntryCount), 1))
	idx.UpdatedAt = timestamp
	return nil
}

// RemoveEntry drops a mapping by swapping the last entry into its place.
func (idx *UserVaultIndex) RemoveEntry(fileID [FileIDLength]byte, timestamp int64) error {
	for i, e := range idx.Entries {
		if e.FileID == fileID {
			last := len(idx.Entries) - 1
			idx.Entries[i] = idx.Entries[last]
			idx.Entries = idx.Entries[:last]
			idx.EntryCount = uint16(saturatingSubU64(uint64(idx.EntryCount), 1))
			idx.UpdatedAt = timestamp
			return nil
		}
	}
	return ErrFileNotFound
}

// FindEntry locates a file id, returning its shard and slot.
func (idx *UserVaultIndex) FindEntry(fileID [FileIDLength]byte) (shard, slot uint8, ok bool) {
	for _, e := range idx.Entries {
		if e.FileID == fileID {
			return e.ShardIndex, e.SlotIndex, true
		}
	}
	return 0, 0, false
}

// CountFilesInShard tallies index entries pointing into one shard.
func (idx *UserVaultIndex) CountFilesInShard(shard uint8) int {
	n := 0
	for _, e := range idx.Entries {
		if e.ShardIndex == shard {
			n++
		}
	}
	return n
}

func saturatingAddU64(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}
	return a + b
}

func saturatingSubU64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func saturatingAddU8(a, b uint8) uint8 {
	if a > 255-b {
		return 255
	}
	return a + b
}

func saturatingSubU8(a, b uint8) uint8 {
	if b > a {
		return 0
	}
	return a - b
}
