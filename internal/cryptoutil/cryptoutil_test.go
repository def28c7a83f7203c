package cryptoutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WKHAllen/encrypted-backup/internal/apperrors"
	"github.com/WKHAllen/encrypted-backup/internal/cryptoutil"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	k1 := cryptoutil.DeriveKey([]byte("hunter2"))
	k2 := cryptoutil.DeriveKey([]byte("hunter2"))
	assert.Equal(t, k1, k2)
}

func TestDeriveKeyDiffersByPassword(t *testing.T) {
	k1 := cryptoutil.DeriveKey([]byte("hunter2"))
	k2 := cryptoutil.DeriveKey([]byte("hunter3"))
	assert.NotEqual(t, k1, k2)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := cryptoutil.DeriveKey([]byte("correct horse battery staple"))
	plaintext := []byte("Hello, encrypted file!")

	ciphertext, err := cryptoutil.Encrypt(key, plaintext)
	require.NoError(t, err)

	// nonce (12) + plaintext (22) + tag (16) = 50, matching the general
	// Nonce||Ciphertext||Tag framing (ciphertext length always equals
	// plaintext length under GCM).
	assert.Len(t, ciphertext, cryptoutil.NonceSize+len(plaintext)+cryptoutil.TagSize)
	assert.NotEqual(t, plaintext, ciphertext[cryptoutil.NonceSize:len(ciphertext)-cryptoutil.TagSize])

	got, err := cryptoutil.Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	key := cryptoutil.DeriveKey([]byte("password"))

	ciphertext, err := cryptoutil.Encrypt(key, nil)
	require.NoError(t, err)
	assert.Len(t, ciphertext, cryptoutil.NonceSize+cryptoutil.TagSize)

	got, err := cryptoutil.Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	key := cryptoutil.DeriveKey([]byte("right password"))
	wrongKey := cryptoutil.DeriveKey([]byte("wrong password"))

	ciphertext, err := cryptoutil.Encrypt(key, []byte("top secret"))
	require.NoError(t, err)

	_, err = cryptoutil.Decrypt(wrongKey, ciphertext)
	require.Error(t, err)
	assert.True(t, apperrors.IsCryptoError(err))
}

func TestDecryptTooShortBlobFails(t *testing.T) {
	key := cryptoutil.DeriveKey([]byte("password"))

	_, err := cryptoutil.Decrypt(key, []byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, apperrors.IsCryptoError(err))
}

func TestEncryptNoncesAreUnique(t *testing.T) {
	key := cryptoutil.DeriveKey([]byte("password"))
	plaintext := []byte("same plaintext every time")

	first, err := cryptoutil.Encrypt(key, plaintext)
	require.NoError(t, err)
	second, err := cryptoutil.Encrypt(key, plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, first[:cryptoutil.NonceSize], second[:cryptoutil.NonceSize])
	assert.NotEqual(t, first, second)
}
