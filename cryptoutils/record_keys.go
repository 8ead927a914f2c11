package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// RecordKeySize is the symmetric key length in bytes (256-bit).
const RecordKeySize = 32

// gcmNonceSize is the standard 12-byte GCM nonce length.
const gcmNonceSize = 12

var (
	// ErrEntropyUnavailable is returned when the system's secure random
	// source cannot be read.
	ErrEntropyUnavailable = errors.New("secure random source unavailable")

	// ErrEncryptionFailure is returned on any cipher error while sealing
	// a record payload.
	ErrEncryptionFailure = errors.New("record encryption failed")

	// ErrDecryptionFailure is returned when the authentication check
	// fails, the key is wrong, or the ciphertext is malformed. Always
	// terminal: retrying with the same key cannot succeed.
	ErrDecryptionFailure = errors.New("record decryption failed")
)

// GenerateRecordKey produces fresh 256-bit key material from the system's
// cryptographically secure random source. A new key is generated for
// every record at creation time.
func GenerateRecordKey() ([]byte, error) {
	key := make([]byte, RecordKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return key, nil
}

// SealRecord encrypts a record payload with AES-256-GCM. The random nonce
// is prepended to the ciphertext, so OpenRecord needs only the returned
// bytes and the key.
func SealRecord(plaintext, key []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailure, err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenRecord decrypts a payload sealed by SealRecord. The GCM tag check
// makes a wrong key or corrupted ciphertext fail with
// ErrDecryptionFailure, which callers must keep distinct from a
// not-found condition upstream.
func OpenRecord(sealed, key []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}

	if len(sealed) < gcmNonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailure)
	}

	nonce, ciphertext := sealed[:gcmNonceSize], sealed[gcmNonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != RecordKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", RecordKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}
