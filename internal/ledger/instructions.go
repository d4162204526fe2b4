package ledger

import (
	"crypto/sha256"
	"fmt"
)

// instructionDiscriminator derives the canonical tag for a program method:
// the first 8 bytes of sha256("global:<snake_case_name>").
func instructionDiscriminator(method string) Discriminator {
	sum := sha256.Sum256([]byte("global:" + method))
	var d Discriminator
	copy(d[:], sum[:discriminatorLength])
	return d
}

// Instruction methods by wire name.
const (
	MethodInitializeVault   = "initialize_vault"
	MethodRotateMasterKey   = "rotate_master_key"
	MethodFreezeVault       = "freeze_vault"
	MethodUnfreezeVault     = "unfreeze_vault"
	MethodRegisterFile      = "register_file"
	MethodUpdateFileStorage = "update_file_storage"
	MethodArchiveFile       = "archive_file"
	MethodDeleteFile        = "delete_file"
	MethodRecordAccess      = "record_access"
	MethodCreateDelegation  = "create_delegation"
	MethodRevokeDelegation  = "revoke_delegation"
	MethodUpdateDelegation  = "update_delegation"
)

var instructionDiscriminators = map[string]Discriminator{
	MethodInitializeVault:   instructionDiscriminator(MethodInitializeVault),
	MethodRotateMasterKey:   instructionDiscriminator(MethodRotateMasterKey),
	MethodFreezeVault:       instructionDiscriminator(MethodFreezeVault),
	MethodUnfreezeVault:     instructionDiscriminator(MethodUnfreezeVault),
	MethodRegisterFile:      instructionDiscriminator(MethodRegisterFile),
	MethodUpdateFileStorage: instructionDiscriminator(MethodUpdateFileStorage),
	MethodArchiveFile:       instructionDiscriminator(MethodArchiveFile),
	MethodDeleteFile:        instructionDiscriminator(MethodDeleteFile),
	MethodRecordAccess:      instructionDiscriminator(MethodRecordAccess),
	MethodCreateDelegation:  instructionDiscriminator(MethodCreateDelegation),
	MethodRevokeDelegation:  instructionDiscriminator(MethodRevokeDelegation),
	MethodUpdateDelegation:  instructionDiscriminator(MethodUpdateDelegation),
}

// SetInstructionDiscriminator overrides the tag for one method, for programs
// deployed with non-canonical discriminators.
func SetInstructionDiscriminator(method string, d Discriminator) {
	instructionDiscriminators[method] = d
}

func methodTag(method string) []byte {
	d := instructionDiscriminators[method]
	return d[:]
}

// EncodeInitializeVault builds the initialize_vault instruction data.
func EncodeInitializeVault(masterKeyCommitment [HashLength]byte) []byte {
	w := newWriter(discriminatorLength + HashLength)
	w.bytes(methodTag(MethodInitializeVault))
	w.bytes(masterKeyCommitment[:])
	return w.buf
}

// EncodeRotateMasterKey builds the rotate_master_key instruction data.
func EncodeRotateMasterKey(newCommitment [HashLength]byte) []byte {
	w := newWriter(discriminatorLength + HashLength)
	w.bytes(methodTag(MethodRotateMasterKey))
	w.bytes(newCommitment[:])
	return w.buf
}

// EncodeFreezeVault builds the freeze_vault instruction data.
func EncodeFreezeVault() []byte {
	w := newWriter(discriminatorLength)
	w.bytes(methodTag(MethodFreezeVault))
	return w.buf
}

// EncodeUnfreezeVault builds the unfreeze_vault instruction data.
func EncodeUnfreezeVault() []byte {
	w := newWriter(discriminatorLength)
	w.bytes(methodTag(MethodUnfreezeVault))
	return w.buf
}

// RegisterFileArgs are the arguments of register_file in wire order.
type RegisterFileArgs struct {
	FileID                  [FileIDLength]byte
	FilenameHash            [HashLength]byte
	FileSize                uint64
	EncryptedSize           uint64
	MimeTypeHash            [HashLength]byte
	SecurityLevel           SecurityLevel
	EncryptionCommitment    [HashLength]byte
	CriticalBytesCommitment [HashLength]byte
	PrimaryCID              string
}

// EncodeRegisterFile builds the register_file instruction data. The CID is
// zero-padded into its fixed field; longer CIDs are rejected.
func EncodeRegisterFile(args RegisterFileArgs) ([]byte, error) {
	if args.SecurityLevel > SecurityMaximum {
		return nil, fmt.Errorf("%w: security level %d", ErrInvalidInstructionArg, args.SecurityLevel)
	}
	cid, err := CIDToField(args.PrimaryCID)
	if err != nil {
		return nil, err
	}
	w := newWriter(discriminatorLength + FileIDLength + HashLength + 8 + 8 + HashLength + 1 + HashLength + HashLength + CIDFieldLength)
	w.bytes(methodTag(MethodRegisterFile))
	w.bytes(args.FileID[:])
	w.bytes(args.FilenameHash[:])
	w.u64(args.FileSize)
	w.u64(args.EncryptedSize)
	w.bytes(args.MimeTypeHash[:])
	w.u8(uint8(args.SecurityLevel))
	w.bytes(args.EncryptionCommitment[:])
	w.bytes(args.CriticalBytesCommitment[:])
	w.bytes(cid[:])
	return w.buf, nil
}

// EncodeUpdateFileStorage builds the update_file_storage instruction data.
func EncodeUpdateFileStorage(redundancyCID string, providerCount uint8) ([]byte, error) {
	cid, err := CIDToField(redundancyCID)
	if err != nil {
		return nil, err
	}
	w := newWriter(discriminatorLength + CIDFieldLength + 1)
	w.bytes(methodTag(MethodUpdateFileStorage))
	w.bytes(cid[:])
	w.u8(providerCount)
	return w.buf, nil
}

// EncodeArchiveFile builds the archive_file instruction data.
func EncodeArchiveFile() []byte {
	w := newWriter(discriminatorLength)
	w.bytes(methodTag(MethodArchiveFile))
	return w.buf
}

// EncodeDeleteFile builds the delete_file instruction data.
func EncodeDeleteFile() []byte {
	w := newWriter(discriminatorLength)
	w.bytes(methodTag(MethodDeleteFile))
	return w.buf
}

// EncodeRecordAccess builds the record_access instruction data.
func EncodeRecordAccess() []byte {
	w := newWriter(discriminatorLength)
	w.bytes(methodTag(MethodRecordAccess))
	return w.buf
}

// EncodeCreateDelegation builds the create_delegation instruction data. The
// 128-byte key field carries the serialized delegation package reference,
// zero-padded.
func EncodeCreateDelegation(encryptedFileKey []byte, permission PermissionLevel, expiresAt int64) ([]byte, error) {
	if len(encryptedFileKey) > EncryptedFileKeyLength {
		return nil, fmt.Errorf("%w: encrypted file key is %d bytes, limit %d",
			ErrInvalidInstructionArg, len(encryptedFileKey), EncryptedFileKeyLength)
	}
	if permission > PermissionReshare {
		return nil, fmt.Errorf("%w: permission %d", ErrUnknownPermission, permission)
	}
	var key [EncryptedFileKeyLength]byte
	copy(key[:], encryptedFileKey)
	w := newWriter(discriminatorLength + EncryptedFileKeyLength + 1 + 8)
	w.bytes(methodTag(MethodCreateDelegation))
	w.bytes(key[:])
	w.u8(uint8(permission))
	w.i64(expiresAt)
	return w.buf, nil
}

// EncodeRevokeDelegation builds the revoke_delegation instruction data.
func EncodeRevokeDelegation() []byte {
	w := newWriter(discriminatorLength)
	w.bytes(methodTag(MethodRevokeDelegation))
	return w.buf
}

// EncodeUpdateDelegation builds the update_delegation instruction data.
func EncodeUpdateDelegation(permission PermissionLevel, expiresAt int64) ([]byte, error) {
	if permission > PermissionReshare {
		return nil, fmt.Errorf("%w: permission %d", ErrUnknownPermission, permission)
	}
	w := newWriter(discriminatorLength + 1 + 8)
	w.bytes(methodTag(MethodUpdateDelegation))
	w.u8(uint8(permission))
	w.i64(expiresAt)
	return w.buf, nil
}
