// Package cryptoutil implements the two leaf components of the backup
// pipeline's crypto layer: password-to-key derivation and the
// AES-256-GCM AEAD primitive. DeriveKey is deliberately a bare SHA-256
// hash rather than a work-factor KDF such as PBKDF2 or Argon2; see
// DESIGN.md for why that limitation is kept rather than silently fixed.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/WKHAllen/encrypted-backup/internal/apperrors"
)

// KeySize is the length in bytes of the derived symmetric key.
const KeySize = 32

// NonceSize is the length in bytes of the AES-GCM nonce prepended to
// every ciphertext.
const NonceSize = 12

// TagSize is the length in bytes of the AES-GCM authentication tag.
const TagSize = 16

// DeriveKey maps a password to a 32-byte symmetric key via SHA-256. It is
// deterministic, pure, and never fails.
func DeriveKey(password []byte) [KeySize]byte {
	return sha256.Sum256(password)
}

// Encrypt runs AES-256-GCM over plaintext with a freshly sampled 96-bit
// nonce and empty AAD, returning nonce‖ciphertext‖tag. A fresh nonce is
// sampled from crypto/rand on every call, so concurrent callers never
// need to coordinate to preserve nonce uniqueness.
func Encrypt(key [KeySize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apperrors.NewCryptoError(fmt.Errorf("could not create AES cipher: %w", err))
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewCryptoError(fmt.Errorf("could not create GCM mode: %w", err))
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperrors.NewCryptoError(fmt.Errorf("could not generate nonce: %w", err))
	}

	// Seal's dst argument becomes the prefix of the returned slice, so
	// passing nonce here produces nonce‖ciphertext‖tag directly.
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	return sealed, nil
}

// Decrypt splits the leading NonceSize bytes of blob off as the nonce and
// runs the inverse AES-256-GCM transform over the remainder. It fails
// with a CryptoError if the blob is shorter than NonceSize, the tag does
// not verify, or the cipher reports any internal error. No plaintext is
// ever returned alongside an error.
func Decrypt(key [KeySize]byte, blob []byte) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, apperrors.NewCryptoError(fmt.Errorf("blob shorter than nonce size (%d bytes)", NonceSize))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apperrors.NewCryptoError(fmt.Errorf("could not create AES cipher: %w", err))
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewCryptoError(fmt.Errorf("could not create GCM mode: %w", err))
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.NewCryptoError(fmt.Errorf("could not decrypt data with the provided key, the password is likely incorrect: %w", err))
	}

	return plaintext, nil
}
