package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const keySize = 32

// ErrDecryptFailed is returned when a ciphertext fails authentication,
// typically because it was produced under a different key.
var ErrDecryptFailed = errors.New("decryption failed: wrong key or corrupted data")

// Cipher provides authenticated encryption over wallet mnemonics.
// The key is fixed at construction and immutable for the process lifetime.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// LoadCipher builds a Cipher from the base64-encoded ESCROW_SECRET_KEY value.
// A missing or malformed key is fatal on mainnet. Elsewhere a fresh key is
// generated and logged so the operator can pin it; encrypted data does not
// survive a restart until the logged key is set in the environment.
func LoadCipher(encodedKey string, mainnet bool, log *zap.Logger) (*Cipher, error) {
	if encodedKey != "" {
		key, err := base64.StdEncoding.DecodeString(encodedKey)
		if err == nil && len(key) == keySize {
			return NewCipher(key)
		}
		if mainnet {
			return nil, fmt.Errorf("ESCROW_SECRET_KEY is malformed: want base64 of %d bytes", keySize)
		}
		log.Warn("ESCROW_SECRET_KEY is malformed, generating a throwaway key")
	} else if mainnet {
		return nil, errors.New("ESCROW_SECRET_KEY is required on mainnet")
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	log.Warn("generated development encryption key, set ESCROW_SECRET_KEY to persist it",
		zap.String("key", base64.StdEncoding.EncodeToString(key)),
	)
	return NewCipher(key)
}

// Encrypt seals plaintext and returns a base64 blob with the nonce prefixed.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrDecryptFailed
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
