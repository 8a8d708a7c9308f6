package fetch

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Encrypted-at-rest container formats used by the upload pipeline. The
// magic number selects the layout; keys are always PBKDF2-SHA256 with
// 100000 iterations.
const (
	containerMagicGCM = "GCM3NCR0"
	containerMagicCBC = "3NCR0PTD"

	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 32
)

func isEncryptedContainer(prefix []byte) bool {
	if len(prefix) < 8 {
		return false
	}
	magic := string(prefix[:8])
	return magic == containerMagicGCM || magic == containerMagicCBC
}

// decryptContainer decrypts a whole container buffer, auto-detecting the
// format from its magic number. Returns the plaintext and the format name.
func decryptContainer(data []byte, password string) ([]byte, string, error) {
	if len(data) < 8 {
		return nil, "", fmt.Errorf("encrypted container too short: %d bytes", len(data))
	}
	switch string(data[:8]) {
	case containerMagicGCM:
		plain, err := decryptGCM(data, password)
		return plain, containerMagicGCM, err
	case containerMagicCBC:
		plain, err := decryptCBC(data, password)
		return plain, containerMagicCBC, err
	default:
		return nil, "", fmt.Errorf("unknown container magic %q", data[:8])
	}
}

// decryptGCM handles the GCM layout:
// magic(8) + salt(16) + nonce(12) + ciphertext||tag(16).
func decryptGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 8+16+12+16 {
		return nil, fmt.Errorf("GCM container too short: %d bytes", len(data))
	}
	salt := data[8:24]
	nonce := data[24:36]
	sealed := data[36:]

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}

// decryptCBC handles the legacy CBC layout:
// magic(8) + hash(32) + length(8) + salt(16) + iv(16) + ciphertext.
func decryptCBC(data []byte, password string) ([]byte, error) {
	if len(data) < 8+32+8+16+16 {
		return nil, fmt.Errorf("CBC container too short: %d bytes", len(data))
	}
	storedHash := data[8:40]
	length := binary.BigEndian.Uint64(data[40:48])
	encrypted := data[48:]

	if uint64(len(encrypted)) != length {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", length, len(encrypted))
	}
	calculated := sha256.Sum256(encrypted)
	if !bytes.Equal(storedHash, calculated[:]) {
		return nil, fmt.Errorf("hash verification failed - data corrupted")
	}

	salt := encrypted[:16]
	iv := encrypted[16:32]
	ciphertext := encrypted[32:]

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of block size")
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	plain := make([]byte, len(ciphertext))
	mode.CryptBlocks(plain, ciphertext)

	return removePKCS7Padding(plain)
}

func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", padding)
	}
	for i := len(data) - padding; i < len(data); i++ {
		if data[i] != byte(padding) {
			return nil, fmt.Errorf("invalid padding at position %d", i)
		}
	}
	return data[:len(data)-padding], nil
}
