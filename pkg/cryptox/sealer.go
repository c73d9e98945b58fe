package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrSealKeySize = errors.New("cryptox: sealing key must be 32 bytes")
	ErrUnseal      = errors.New("cryptox: unable to unseal")
)

// Sealer encrypts small blobs (refresh tokens, signing keys at rest) with
// XChaCha20-Poly1305. The key lives in a memguard enclave and is only
// decrypted into locked memory for the duration of a single operation.
type Sealer struct {
	key *memguard.Enclave
}

// NewSealer copies key into an enclave. The caller's slice is wiped.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrSealKeySize
	}
	return &Sealer{key: memguard.NewEnclave(key)}, nil
}

// NewRandomSealer creates a sealer with a fresh random key. Anything sealed
// with it is unreadable after a restart.
func NewRandomSealer() *Sealer {
	return &Sealer{key: memguard.NewEnclaveRandom(chacha20poly1305.KeySize)}
}

// ParseSealKey decodes a base64 (std or url) 32-byte key from configuration.
func ParseSealKey(encoded string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != chacha20poly1305.KeySize {
				return nil, ErrSealKeySize
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("cryptox: sealing key is not valid base64")
}

// Seal encrypts plaintext and binds it to aad. Output is nonce||ciphertext.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("cryptox: open sealing key: %w", err)
	}
	defer buf.Destroy()

	aead, err := chacha20poly1305.NewX(buf.Bytes())
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptox: nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal. Any tampering or a wrong aad yields ErrUnseal.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("cryptox: open sealing key: %w", err)
	}
	defer buf.Destroy()

	aead, err := chacha20poly1305.NewX(buf.Bytes())
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrUnseal
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrUnseal
	}
	return plaintext, nil
}

// SealString is Seal with base64url output, for values carried in headers
// and cookies.
func (s *Sealer) SealString(plaintext, aad []byte) (string, error) {
	sealed, err := s.Seal(plaintext, aad)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// OpenString reverses SealString.
func (s *Sealer) OpenString(sealed string, aad []byte) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrUnseal
	}
	return s.Open(raw, aad)
}
