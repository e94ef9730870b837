// Package vapid implements sender identification for Web Push (RFC 8292).
package vapid

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/webpush-gateway/internal/base64url"
)

const (
	// PublicKeySize is the length of an uncompressed P-256 point.
	PublicKeySize = 65
	// PrivateKeySize is the length of a P-256 scalar.
	PrivateKeySize = 32
)

var (
	ErrInvalidPublicKey  = errors.New("invalid VAPID public key")
	ErrInvalidPrivateKey = errors.New("invalid VAPID private key")
	ErrKeyMismatch       = errors.New("VAPID public key does not match private key")
)

// KeyPair is the process-wide signing identity. It is immutable after construction.
type KeyPair struct {
	private *ecdsa.PrivateKey
	public  []byte
}

// ParseKeyPair imports base64url encoded raw keys and checks that they belong together.
func ParseKeyPair(publicB64, privateB64 string) (*KeyPair, error) {
	publicRaw, err := base64url.Decode(strings.TrimSpace(publicB64))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	privateRaw, err := base64url.Decode(strings.TrimSpace(privateB64))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	return NewKeyPair(publicRaw, privateRaw)
}

// NewKeyPair builds a key pair from a 65-byte uncompressed public point and a 32-byte scalar.
func NewKeyPair(publicRaw, privateRaw []byte) (*KeyPair, error) {
	if len(publicRaw) != PublicKeySize || publicRaw[0] != 0x04 {
		return nil, fmt.Errorf("%w: want %d byte uncompressed point, got %d bytes", ErrInvalidPublicKey, PublicKeySize, len(publicRaw))
	}
	if len(privateRaw) != PrivateKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPrivateKey, PrivateKeySize, len(privateRaw))
	}

	if _, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), publicRaw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	private, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), privateRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	derived, err := private.PublicKey.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if !bytes.Equal(derived, publicRaw) {
		return nil, ErrKeyMismatch
	}

	return &KeyPair{
		private: private,
		public:  bytes.Clone(publicRaw),
	}, nil
}

// GenerateKeyPair creates a new random P-256 identity.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	return NewKeyPair(key.PublicKey().Bytes(), key.Bytes())
}

// PublicKey returns a copy of the uncompressed public point.
func (k *KeyPair) PublicKey() []byte {
	if k == nil {
		return nil
	}
	return bytes.Clone(k.public)
}

// PublicKeyString is the base64url public key handed to browsers as applicationServerKey.
func (k *KeyPair) PublicKeyString() string {
	if k == nil {
		return ""
	}
	return base64url.Encode(k.public)
}

// PrivateKeyString is the base64url raw scalar, used only by the key generator.
func (k *KeyPair) PrivateKeyString() string {
	if k == nil {
		return ""
	}
	raw, err := k.private.Bytes()
	if err != nil {
		return ""
	}
	return base64url.Encode(raw)
}

func (k *KeyPair) signer() *ecdsa.PrivateKey {
	return k.private
}
