// Package encryption implements the Web Push message encryption of RFC 8291 on top of the
// aes128gcm content coding of RFC 8188. Only single-record messages are produced.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// RecordSize is the rs header field. Push services expect 4096 for single-record bodies;
	// it is not derived from the payload length.
	RecordSize uint32 = 4096
	// FinalRecordDelimiter terminates the plaintext of the last (and only) record.
	FinalRecordDelimiter byte = 0x02

	SaltSize       = 16
	PublicKeySize  = 65
	AuthSecretSize = 16
	HeaderSize     = SaltSize + 4 + 1 + PublicKeySize

	keySize   = 16
	nonceSize = 12
	ikmSize   = 32
	tagSize   = 16
)

var (
	keyInfoPrefix = []byte("WebPush: info\x00")
	cekInfo       = []byte("Content-Encoding: aes128gcm\x00")
	nonceInfo     = []byte("Content-Encoding: nonce\x00")
)

var (
	ErrInvalidReceiverKey = errors.New("invalid subscription p256dh key")
	ErrInvalidAuthSecret  = errors.New("invalid subscription auth secret")
	ErrInvalidMessage     = errors.New("invalid aes128gcm message")
)

// Message is one encrypted push message. Body() gives its wire form.
type Message struct {
	Salt       []byte
	PublicKey  []byte
	Ciphertext []byte
}

// Body frames the message as salt || rs || idlen || keyid || ciphertext.
func (m *Message) Body() []byte {
	body := make([]byte, 0, HeaderSize+len(m.Ciphertext))
	body = append(body, m.Salt...)
	body = binary.BigEndian.AppendUint32(body, RecordSize)
	body = append(body, byte(len(m.PublicKey)))
	body = append(body, m.PublicKey...)
	return append(body, m.Ciphertext...)
}

// Encryptor produces aes128gcm bodies. A fresh ephemeral key and salt are drawn for every
// call; nothing is cached between messages.
type Encryptor struct {
	random io.Reader
}

func NewEncryptor() *Encryptor {
	return &Encryptor{random: rand.Reader}
}

// Encrypt seals plaintext for the subscriber identified by its p256dh key and auth secret.
// The size is not checked here; push services answer 413 for bodies they will not carry.
func (e *Encryptor) Encrypt(plaintext, receiverKey, authSecret []byte) (*Message, error) {
	curve := ecdh.P256()

	receiver, err := curve.NewPublicKey(receiverKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceiverKey, err)
	}
	if len(authSecret) != AuthSecretSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidAuthSecret, AuthSecretSize, len(authSecret))
	}

	ephemeral, err := curve.GenerateKey(e.random)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	sharedSecret, err := ephemeral.ECDH(receiver)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(e.random, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	senderKey := ephemeral.PublicKey().Bytes()
	aead, nonce, err := deriveCipher(sharedSecret, authSecret, salt, receiver.Bytes(), senderKey)
	if err != nil {
		return nil, err
	}

	record := make([]byte, 0, len(plaintext)+1)
	record = append(record, plaintext...)
	record = append(record, FinalRecordDelimiter)

	return &Message{
		Salt:       salt,
		PublicKey:  senderKey,
		Ciphertext: aead.Seal(nil, nonce, record, nil),
	}, nil
}

// Decrypt is the user agent side of Encrypt. It opens a single-record body with the
// subscriber's private key and auth secret.
func Decrypt(body []byte, receiver *ecdh.PrivateKey, authSecret []byte) ([]byte, error) {
	if receiver == nil {
		return nil, fmt.Errorf("%w: receiver key is required", ErrInvalidReceiverKey)
	}
	if len(body) < SaltSize+5 {
		return nil, fmt.Errorf("%w: body too short", ErrInvalidMessage)
	}

	salt := body[:SaltSize]
	keyLen := int(body[SaltSize+4])
	offset := SaltSize + 5 + keyLen
	if len(body) < offset+tagSize+1 {
		return nil, fmt.Errorf("%w: body too short for key id", ErrInvalidMessage)
	}

	sender, err := ecdh.P256().NewPublicKey(body[SaltSize+5 : offset])
	if err != nil {
		return nil, fmt.Errorf("%w: sender key: %v", ErrInvalidMessage, err)
	}
	sharedSecret, err := receiver.ECDH(sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	aead, nonce, err := deriveCipher(sharedSecret, authSecret, salt, receiver.PublicKey().Bytes(), sender.Bytes())
	if err != nil {
		return nil, err
	}

	record, err := aead.Open(nil, nonce, body[offset:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	end := len(record) - 1
	for end >= 0 && record[end] == 0 {
		end--
	}
	if end < 0 || record[end] != FinalRecordDelimiter {
		return nil, fmt.Errorf("%w: missing final record delimiter", ErrInvalidMessage)
	}

	return record[:end], nil
}

// deriveCipher runs the RFC 8291 key schedule. The key info order is receiver key then
// sender key; swapping them yields ciphertext no browser can open.
func deriveCipher(sharedSecret, authSecret, salt, receiverKey, senderKey []byte) (cipher.AEAD, []byte, error) {
	keyInfo := make([]byte, 0, len(keyInfoPrefix)+len(receiverKey)+len(senderKey))
	keyInfo = append(keyInfo, keyInfoPrefix...)
	keyInfo = append(keyInfo, receiverKey...)
	keyInfo = append(keyInfo, senderKey...)

	ikm, err := expand(sharedSecret, authSecret, keyInfo, ikmSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive input keying material: %w", err)
	}
	cek, err := expand(ikm, salt, cekInfo, keySize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive content encryption key: %w", err)
	}
	nonce, err := expand(ikm, salt, nonceInfo, nonceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive nonce: %w", err)
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return aead, nonce, nil
}

func expand(secret, salt, info []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}
