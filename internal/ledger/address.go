package ledger

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
)

// Seed limits enforced by the runtime.
const (
	maxSeedLength = 32
	maxSeeds      = 16
)

// pdaMarker is appended after the program id when hashing address candidates.
var pdaMarker = []byte("ProgramDerivedAddress")

// Seed prefixes, one per account type.
var (
	seedVault       = []byte("vault")
	seedFile        = []byte("file")
	seedDelegation  = []byte("delegation")
	seedVaultMaster = []byte("vault_master")
	seedVaultShard  = []byte("vault_shard")
	seedVaultIndex  = []byte("vault_index")
)

// FindProgramAddress searches bump seeds from 255 downward for the first
// candidate hash that does not decode as an ed25519 curve point. Derivation
// is deterministic: same seeds and program always yield the same address and
// bump.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	if len(seeds) >= maxSeeds {
		return PublicKey{}, 0, fmt.Errorf("%w: %d", ErrTooManySeeds, len(seeds))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, 0, fmt.Errorf("%w: %d bytes", ErrSeedTooLong, len(seed))
		}
	}
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(program[:])
		h.Write(pdaMarker)
		var candidate PublicKey
		copy(candidate[:], h.Sum(nil))
		if !onCurve(candidate) {
			return candidate, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// onCurve reports whether the 32 bytes decode as a valid ed25519 point. A
// program address must not, so nobody holds a private key for it.
func onCurve(pk PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// DeriveVault derives the legacy single-vault address for an owner.
func DeriveVault(owner, program PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedVault, owner[:]}, program)
}

// DeriveFileRecord derives a file record address under a vault.
func DeriveFileRecord(vault PublicKey, fileID [FileIDLength]byte, program PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedFile, vault[:], fileID[:]}, program)
}

// DeriveDelegation derives the delegation address for a file record and
// grantee pair.
func DeriveDelegation(fileRecord, grantee, program PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedDelegation, fileRecord[:], grantee[:]}, program)
}

// DeriveVaultMaster derives the sharded-vault controller address.
func DeriveVaultMaster(owner, program PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedVaultMaster, owner[:]}, program)
}

// DeriveVaultShard derives a shard address under a master.
func DeriveVaultShard(master PublicKey, shardIndex uint8, program PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedVaultShard, master[:], {shardIndex}}, program)
}

// DeriveVaultIndex derives the lookup-table address under a master.
func DeriveVaultIndex(master, program PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{seedVaultIndex, master[:]}, program)
}
