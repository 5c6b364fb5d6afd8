package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// EnvelopeKeySize is the AES-256 key size in bytes.
	EnvelopeKeySize = 32
	// EnvelopeNonceSize is the GCM nonce size in bytes.
	EnvelopeNonceSize = 12
	// EnvelopeTagSize is the GCM authentication tag size in bytes.
	EnvelopeTagSize = 16
)

// EnvelopeKey is the key material that opens a sealed envelope.
// The ciphertext itself is stored off-system; the tag is kept separate from it.
type EnvelopeKey struct {
	Key []byte
	IV  []byte
	Tag []byte
}

// SealEnvelope encrypts plaintext under a fresh AES-256-GCM key.
// Returns the detached ciphertext (without tag) and the key material.
func SealEnvelope(plaintext []byte) ([]byte, *EnvelopeKey, error) {
	key := make([]byte, EnvelopeKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	nonce := make([]byte, EnvelopeNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - EnvelopeTagSize

	return sealed[:split], &EnvelopeKey{
		Key: key,
		IV:  nonce,
		Tag: sealed[split:],
	}, nil
}

// OpenEnvelope decrypts a detached ciphertext with its key material.
func OpenEnvelope(ciphertext []byte, k *EnvelopeKey) ([]byte, error) {
	if k == nil {
		return nil, errors.New("missing envelope key")
	}
	if len(k.IV) != EnvelopeNonceSize {
		return nil, errors.New("invalid nonce size")
	}
	if len(k.Tag) != EnvelopeTagSize {
		return nil, errors.New("invalid tag size")
	}

	gcm, err := newGCM(k.Key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(k.Tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, k.Tag...)

	plaintext, err := gcm.Open(nil, k.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != EnvelopeKeySize {
		return nil, errors.New("invalid key size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Digest returns the SHA-256 hash of data.
func Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// HashFile returns the SHA-256 hash of a file's contents.
func HashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
