package tenant

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

const nonceSize = 12 // standard GCM nonce length

// Sealer encrypts provider tokens at rest with AES-256-GCM.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives a 32-byte key from secret using SHA-256.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("credential key is required")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext; the 12-byte nonce is prepended to the ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext produced by Seal (nonce || ciphertext).
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}
	return plaintext, nil
}

// SealCredential fills the encrypted token fields from the plaintext ones.
func (s *Sealer) SealCredential(c *ProviderCredential) error {
	access, err := s.Seal([]byte(c.AccessToken))
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.Seal([]byte(c.RefreshToken))
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	c.EncryptedAccessToken = access
	c.EncryptedRefreshToken = refresh
	return nil
}

// OpenCredential fills the plaintext token fields from the encrypted ones.
func (s *Sealer) OpenCredential(c *ProviderCredential) error {
	access, err := s.Open(c.EncryptedAccessToken)
	if err != nil {
		return fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.Open(c.EncryptedRefreshToken)
	if err != nil {
		return fmt.Errorf("open refresh token: %w", err)
	}
	c.AccessToken = string(access)
	c.RefreshToken = string(refresh)
	return nil
}
