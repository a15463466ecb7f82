// Package crypto holds the client-side envelope: AES-256-GCM encryption with
// keys that never have to reach the server.
//
// Keys, ciphertexts and nonces all travel as standard base64 text so that they
// can be stored in text columns and appended to a URL fragment.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard nonce size
)

var (
	// ErrDecryption covers both a wrong key and tampered or malformed data.
	ErrDecryption = errors.New("decryption failed")
	ErrInvalidKey = errors.New("invalid key: must be 32 bytes")
)

// Key is raw AES-256 key material.
type Key []byte

var encoding = base64.StdEncoding

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() (Key, error) {
	key := make(Key, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return key, nil
}

// ExportKey encodes the raw key bytes as base64.
func ExportKey(key Key) string {
	return encoding.EncodeToString(key)
}

// ImportKey reverses ExportKey.
func ImportKey(s string) (Key, error) {
	raw, err := encoding.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return nil, ErrInvalidKey
	}
	return Key(raw), nil
}

// Encrypt seals plaintext under key with a fresh random nonce. The GCM tag is
// appended to the returned ciphertext.
func Encrypt(plaintext string, key Key) (ciphertext, nonce string, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", "", err
	}

	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	return encoding.EncodeToString(sealed), encoding.EncodeToString(iv), nil
}

// Decrypt opens ciphertext with key and nonce. Every failure past key
// validation is reported as ErrDecryption without further detail.
func Decrypt(ciphertext string, key Key, nonce string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed, err := encoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryption
	}
	iv, err := encoding.DecodeString(nonce)
	if err != nil || len(iv) != NonceSize {
		return "", ErrDecryption
	}

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}
	return gcm, nil
}
