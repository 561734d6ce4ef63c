package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// Envelope magic numbers.
const (
	MagicGCM       = "GCM3NCR0"
	MagicLegacyCBC = "3NCR0PTD"

	saltSize   = 16
	nonceSize  = 12
	kdfRounds  = 100000
	keyLength  = 32
	tagSize    = 16
	headerSize = len(MagicGCM) + saltSize + nonceSize
)

// ErrNoPassword is returned when encrypted content is read without a password.
var ErrNoPassword = errors.New("object is encrypted but no password is configured")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfRounds, keyLength, sha256.New)
}

// Seal encrypts data as magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func Seal(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+len(data)+tagSize)
	out = append(out, MagicGCM...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Encrypted reports whether data starts with a known envelope magic.
func Encrypted(data []byte) bool {
	return envelope(data) != ""
}

func envelope(data []byte) string {
	if len(data) < 8 {
		return ""
	}
	switch string(data[:8]) {
	case MagicGCM:
		return MagicGCM
	case MagicLegacyCBC:
		return MagicLegacyCBC
	}
	return ""
}

// Open decrypts an envelope produced by Seal or by the older CBC writer.
// Data without a known magic is returned unchanged.
func Open(data []byte, password string) ([]byte, error) {
	kind := envelope(data)
	if kind == "" {
		return data, nil
	}
	if password == "" {
		return nil, ErrNoPassword
	}
	log.Debug().Str("encryption_format", kind).Int("size", len(data)).Msg("decrypting object")
	if kind == MagicGCM {
		return openGCM(data, password)
	}
	return openLegacyCBC(data, password)
}

func openGCM(data []byte, password string) ([]byte, error) {
	if len(data) < headerSize+tagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	salt := data[8 : 8+saltSize]
	nonce := data[8+saltSize : headerSize]

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// openLegacyCBC reads magic(8) + hash(32) + length(8) + salt(16) + iv(16) + ciphertext.
func openLegacyCBC(data []byte, password string) ([]byte, error) {
	if len(data) < 8+32+8+16+16 {
		return nil, fmt.Errorf("legacy CBC data too short: %d bytes", len(data))
	}
	storedHash := data[8:40]
	length := binary.BigEndian.Uint64(data[40:48])
	encrypted := data[48:]
	if uint64(len(encrypted)) != length {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", length, len(encrypted))
	}
	sum := sha256.Sum256(encrypted)
	if !bytes.Equal(storedHash, sum[:]) {
		return nil, fmt.Errorf("hash verification failed - data corrupted")
	}

	salt, iv, ciphertext := encrypted[:16], encrypted[16:32], encrypted[32:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of block size")
	}
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return removePKCS7Padding(plaintext)
}

func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", n)
	}
	for i := len(data) - n; i < len(data); i++ {
		if data[i] != byte(n) {
			return nil, fmt.Errorf("invalid padding at position %d", i)
		}
	}
	return data[:len(data)-n], nil
}
