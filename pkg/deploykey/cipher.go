package deploykey

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	// ErrInvalidCiphertext is returned when ciphertext is empty or not a whole
	// number of AES blocks.
	ErrInvalidCiphertext = errors.New("ciphertext is not a whole number of blocks")
	// ErrInvalidPadding is returned when decrypted content does not end in
	// valid PKCS#7 padding. This is what a wrong key or IV usually produces.
	ErrInvalidPadding = errors.New("bad decrypt: invalid padding")
)

// Encrypt encrypts plaintext with AES-256-CBC and PKCS#7 padding. The output
// is what `openssl aes-256-cbc -K <key> -iv <iv>` produces: raw ciphertext
// with no salt header.
func Encrypt(plaintext []byte, params CipherParams) ([]byte, error) {
	block, err := newBlock(params)
	if err != nil {
		return nil, err
	}
	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext), len(plaintext)+padLen)
	copy(padded, plaintext)
	padded = append(padded, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, params.IV).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt reverses Encrypt. It is compatible with
// `openssl aes-256-cbc -K <key> -iv <iv> -d`.
func Decrypt(ciphertext []byte, params CipherParams) ([]byte, error) {
	block, err := newBlock(params)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, params.IV).CryptBlocks(plaintext, ciphertext)
	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		return nil, ErrInvalidPadding
	}
	for _, b := range plaintext[len(plaintext)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return plaintext[:len(plaintext)-padLen], nil
}

func newBlock(params CipherParams) (cipher.Block, error) {
	if len(params.Key) != KeySize {
		return nil, fmt.Errorf("cipher key must be %d bytes; got %d", KeySize, len(params.Key))
	}
	if len(params.IV) != IVSize {
		return nil, fmt.Errorf("initialization vector must be %d bytes; got %d", IVSize, len(params.IV))
	}
	return aes.NewCipher(params.Key)
}
