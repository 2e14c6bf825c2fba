// Package cryptox holds the password hashing and at-rest encryption
// primitives used by the user directory.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/resvault/internal/common"
)

var ErrInvalidPadding = errors.New("invalid padding")

// DeriveKey stretches password with argon2id into a 32-byte key.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// HashPassword returns the verifier stored for password under salt.
func HashPassword(password string, salt []byte) []byte {
	pw := []byte(password)
	key := DeriveKey(pw, salt)
	defer common.WipeByteArray(pw)
	defer common.WipeByteArray(key)
	return MakeVerifier(key)
}

// CheckPassword compares in constant time.
func CheckPassword(password string, salt, verifier []byte) bool {
	return subtle.ConstantTimeCompare(HashPassword(password, salt), verifier) == 1
}

// EncryptCBC encrypts plaintext with AES-CBC and PKCS#7 padding. key must
// be 16, 24 or 32 bytes and iv one block long.
func EncryptCBC(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, errors.New("iv length must equal block size")
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptCBC reverses EncryptCBC.
func DecryptCBC(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(iv) != bs {
		return nil, errors.New("iv length must equal block size")
	}
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, bs)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, c := range data[len(data)-n:] {
		if int(c) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
