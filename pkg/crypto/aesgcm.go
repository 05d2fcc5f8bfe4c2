package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidAESKeySize    = errors.New("invalid AES key size")
	ErrInvalidSealedFormat  = errors.New("invalid sealed format, expecting base64 encoded nonce+ciphertext")
	ErrCiphertextTooShort   = errors.New("ciphertext too short, cannot extract nonce")
	ErrCredentialSealFailed = errors.New("credential sealing failed")
	ErrCredentialOpenFailed = errors.New("credential decryption failed")
)

const (
	// AES-256 requires a 32-byte key.
	aes256KeyBytes = 32
	// GCM standard nonce size.
	gcmNonceSizeBytes = 12
)

func newGCM(aesKeyHex string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(aesKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode AES key from hex: %w", err)
	}
	if len(key) != aes256KeyBytes {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAESKeySize, aes256KeyBytes, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher block: %w", err)
	}
	return cipher.NewGCM(block)
}

// SealAESGCM encrypts plaintext with AES-GCM and returns a base64 URL encoded
// string carrying: nonce (12 bytes) + ciphertext. The aesKeyHex is the
// 32-byte AES key, hex-encoded. Used to seal the bearer credential at rest.
func SealAESGCM(aesKeyHex string, plaintext []byte) (string, error) {
	aesgcm, err := newGCM(aesKeyHex)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcmNonceSizeBytes)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialSealFailed, err)
	}

	sealed := aesgcm.Seal(nonce, nonce, plaintext, nil) // No additional authenticated data (AAD)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// OpenAESGCM decrypts a base64 URL encoded string produced by SealAESGCM.
func OpenAESGCM(aesKeyHex string, sealedB64 string) ([]byte, error) {
	aesgcm, err := newGCM(aesKeyHex)
	if err != nil {
		return nil, err
	}

	sealed, err := base64.URLEncoding.DecodeString(sealedB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSealedFormat, err)
	}
	if len(sealed) < gcmNonceSizeBytes {
		return nil, fmt.Errorf("%w: length %d, minimum %d", ErrCiphertextTooShort, len(sealed), gcmNonceSizeBytes)
	}

	nonce := sealed[:gcmNonceSizeBytes]
	ciphertext := sealed[gcmNonceSizeBytes:]

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Do not wrap further: the underlying error is a generic
		// "cipher: message authentication failed", which already indicates a
		// bad key or tampered value.
		return nil, ErrCredentialOpenFailed
	}
	return plaintext, nil
}
