package codec

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher authenticated-encrypts a frame's command body, keyed by a
// member's private key and nonced by the frame id. Frame ids are strictly
// increasing per sender (§4.1), which is exactly the uniqueness property
// an AEAD nonce needs — no counter of our own to maintain.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte pre-shared member key.
func NewCipher(key [chacha20poly1305.KeySize]byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func nonceFromFrameId(frameId uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSize-8:], frameId)
	return nonce
}

// Seal authenticates and encrypts plaintext. headerBytes is passed as
// additional authenticated data so tampering with the cleartext headers
// is also detected, even though the headers themselves stay unencrypted.
func (c *Cipher) Seal(frameId uint64, headerBytes, plaintext []byte) []byte {
	nonce := nonceFromFrameId(frameId)
	return c.aead.Seal(nil, nonce[:], plaintext, headerBytes)
}

// Open authenticates and decrypts ciphertext. Any failure — wrong key,
// tampered body, tampered headers, wrong frame id — comes back as
// ErrDecryptionFailed; the caller logs and drops the frame.
func (c *Cipher) Open(frameId uint64, headerBytes, ciphertext []byte) ([]byte, error) {
	nonce := nonceFromFrameId(frameId)
	pt, err := c.aead.Open(nil, nonce[:], ciphertext, headerBytes)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}

// Overhead returns the AEAD tag size added to the plaintext.
func (c *Cipher) Overhead() int { return c.aead.Overhead() }
