package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// Keychain encrypts credential fields with the newest key and decrypts with
// any key in the ordered list, so key rotation never locks out stored
// secrets. The index of the key that decrypted a value tells callers whether
// the record still needs re-encryption.
type Keychain struct {
	keys [][]byte
}

// NewKeychain derives AES-256 keys from the provided key strings, newest
// first. At least one key is required.
func NewKeychain(keys []string) (*Keychain, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one encryption key is required")
	}
	derived := make([][]byte, 0, len(keys))
	for i, key := range keys {
		if key == "" {
			return nil, fmt.Errorf("encryption key %d is empty", i)
		}
		sum := sha256.Sum256([]byte(key))
		derived = append(derived, sum[:])
	}
	return &Keychain{keys: derived}, nil
}

// Encrypt seals plaintext with the primary key, returning the ciphertext and
// the random nonce used.
func (k *Keychain) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := gcmFor(k.keys[0])
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext, trying each key in order. It returns the index of
// the key that succeeded; a non-zero index means the value was sealed under a
// retired key and should be rotated.
func (k *Keychain) Decrypt(ciphertext, nonce []byte) (plaintext []byte, keyIndex int, err error) {
	for i, key := range k.keys {
		gcm, gcmErr := gcmFor(key)
		if gcmErr != nil {
			return nil, 0, gcmErr
		}
		if len(nonce) != gcm.NonceSize() {
			continue
		}
		if opened, openErr := gcm.Open(nil, nonce, ciphertext, nil); openErr == nil {
			return opened, i, nil
		}
	}
	return nil, 0, errors.New("no configured key decrypts this value")
}

func gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("building gcm: %w", err)
	}
	return gcm, nil
}
