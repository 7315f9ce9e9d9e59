package security

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the XChaCha20-Poly1305 nonce length. The 192-bit nonce makes random
// nonces safe for any realistic number of messages under one key.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrAuthentication is returned when a ciphertext fails to open: wrong key, tampered
// ciphertext, nonce or associated data, or a malformed nonce.
var ErrAuthentication = errors.New("authentication failed")

// Encrypt seals plaintext under key with a fresh random nonce. aad is authenticated
// but not encrypted; the same aad must be passed to Decrypt.
func Encrypt(plaintext []byte, key *Key, aad []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("security: nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

// Decrypt opens ciphertext. It never returns plaintext that failed authentication.
func Decrypt(ciphertext, nonce []byte, key *Key, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, ErrAuthentication
	}
	if len(nonce) != NonceSize || len(ciphertext) < aead.Overhead() {
		return nil, ErrAuthentication
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
