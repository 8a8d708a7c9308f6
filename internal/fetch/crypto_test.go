package fetch

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func encryptGCMContainer(t *testing.T, plain []byte, password string) []byte {
	t.Helper()
	salt := make([]byte, 16)
	nonce := make([]byte, 12)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(nonce); err != nil {
		t.Fatal(err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	sealed := gcm.Seal(nil, nonce, plain, nil)

	out := append([]byte(containerMagicGCM), salt...)
	out = append(out, nonce...)
	return append(out, sealed...)
}

func encryptCBCContainer(t *testing.T, plain []byte, password string) []byte {
	t.Helper()
	salt := make([]byte, 16)
	iv := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatal(err)
	}

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	encrypted := append(append(append([]byte{}, salt...), iv...), ciphertext...)
	hash := sha256.Sum256(encrypted)

	out := append([]byte(containerMagicCBC), hash[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(len(encrypted)))
	return append(out, encrypted...)
}

func TestDecryptGCMContainerRoundTrip(t *testing.T) {
	plain := []byte("%PDF-1.4 pretend document body")
	container := encryptGCMContainer(t, plain, "s3cret")

	if !isEncryptedContainer(container[:8]) {
		t.Fatal("isEncryptedContainer = false for GCM magic")
	}

	got, format, err := decryptContainer(container, "s3cret")
	if err != nil {
		t.Fatalf("decryptContainer: %v", err)
	}
	if format != containerMagicGCM {
		t.Errorf("format = %q, want %q", format, containerMagicGCM)
	}
	if !bytes.Equal(got, plain) {
		t.Error("decrypted plaintext mismatch")
	}
}

func TestDecryptGCMWrongPassword(t *testing.T) {
	container := encryptGCMContainer(t, []byte("data"), "right")
	if _, _, err := decryptContainer(container, "wrong"); err == nil {
		t.Error("decryptContainer with wrong password succeeded")
	}
}

func TestDecryptCBCContainerRoundTrip(t *testing.T) {
	plain := []byte("legacy container payload")
	container := encryptCBCContainer(t, plain, "pw")

	if !isEncryptedContainer(container[:8]) {
		t.Fatal("isEncryptedContainer = false for CBC magic")
	}

	got, format, err := decryptContainer(container, "pw")
	if err != nil {
		t.Fatalf("decryptContainer: %v", err)
	}
	if format != containerMagicCBC {
		t.Errorf("format = %q, want %q", format, containerMagicCBC)
	}
	if !bytes.Equal(got, plain) {
		t.Error("decrypted plaintext mismatch")
	}
}

func TestDecryptCBCDetectsCorruption(t *testing.T) {
	container := encryptCBCContainer(t, []byte("payload"), "pw")
	container[len(container)-1] ^= 0xff
	if _, _, err := decryptContainer(container, "pw"); err == nil {
		t.Error("decryptContainer on corrupted CBC container succeeded")
	}
}

func TestIsEncryptedContainerPlainPDF(t *testing.T) {
	if isEncryptedContainer([]byte("%PDF-1.7\n")) {
		t.Error("plain PDF header detected as encrypted container")
	}
	if isEncryptedContainer([]byte("%PD")) {
		t.Error("short prefix detected as encrypted container")
	}
}

func TestDecryptContainerUnknownMagic(t *testing.T) {
	if _, _, err := decryptContainer([]byte("NOTMAGIC-rest"), "pw"); err == nil {
		t.Error("unknown magic accepted")
	}
}
