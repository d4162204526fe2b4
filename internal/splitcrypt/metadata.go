package splitcrypt

import (
	"encoding/json"
	"fmt"

	"blockdrive/go-sdk/internal/bytesutil"
)

// EncryptMetadata seals a small JSON-serializable structure and returns the
// ciphertext and IV base64-encoded for storage alongside the file record.
func EncryptMetadata(v any, key []byte) (ciphertext, iv string, err error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("splitcrypt: metadata marshal failed: %w", err)
	}
	enc, err := Encrypt(payload, key)
	if err != nil {
		return "", "", err
	}
	return bytesutil.ToBase64(enc.Ciphertext), bytesutil.ToBase64(enc.IV), nil
}

// DecryptMetadata reverses EncryptMetadata into out.
func DecryptMetadata(ciphertext, iv string, key []byte, out any) error {
	rawCipher, err := bytesutil.FromBase64(ciphertext)
	if err != nil {
		return err
	}
	rawIV, err := bytesutil.FromBase64(iv)
	if err != nil {
		return err
	}
	plaintext, _, err := Decrypt(rawCipher, rawIV, key, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("splitcrypt: metadata unmarshal failed: %w", err)
	}
	return nil
}
