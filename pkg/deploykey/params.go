package deploykey

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeySize is the size in bytes of an AES-256 key.
	KeySize = 32
	// IVSize is the size in bytes of a CBC initialization vector.
	IVSize = aes.BlockSize
)

// ErrMissingCipherParams is returned when the cipher key or initialization
// vector was not supplied at all.
var ErrMissingCipherParams = errors.New("cipher key and initialization vector are required")

// CipherParams holds the AES-256-CBC key and initialization vector used to
// encrypt a deploy key.
type CipherParams struct {
	Key []byte
	IV  []byte
}

// ParseCipherParams decodes a hex-encoded key and IV in the format accepted by
// `openssl enc -K <key> -iv <iv>`. The key must decode to exactly KeySize
// bytes and the IV to exactly IVSize bytes.
func ParseCipherParams(keyHex, ivHex string) (CipherParams, error) {
	keyHex = strings.TrimSpace(keyHex)
	ivHex = strings.TrimSpace(ivHex)
	if keyHex == "" || ivHex == "" {
		return CipherParams{}, ErrMissingCipherParams
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return CipherParams{}, fmt.Errorf("cipher key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return CipherParams{}, fmt.Errorf(
			"cipher key must be %d bytes (%d hex characters); got %d bytes",
			KeySize, KeySize*2, len(key),
		)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return CipherParams{}, fmt.Errorf("initialization vector is not valid hex: %w", err)
	}
	if len(iv) != IVSize {
		return CipherParams{}, fmt.Errorf(
			"initialization vector must be %d bytes (%d hex characters); got %d bytes",
			IVSize, IVSize*2, len(iv),
		)
	}
	return CipherParams{Key: key, IV: iv}, nil
}

// GenerateCipherParams returns a random key and IV.
func GenerateCipherParams() (CipherParams, error) {
	p := CipherParams{
		Key: make([]byte, KeySize),
		IV:  make([]byte, IVSize),
	}
	if _, err := rand.Read(p.Key); err != nil {
		return CipherParams{}, fmt.Errorf("error generating cipher key: %w", err)
	}
	if _, err := rand.Read(p.IV); err != nil {
		return CipherParams{}, fmt.Errorf("error generating initialization vector: %w", err)
	}
	return p, nil
}

// KeyHex returns the key hex-encoded.
func (p CipherParams) KeyHex() string {
	return hex.EncodeToString(p.Key)
}

// IVHex returns the initialization vector hex-encoded.
func (p CipherParams) IVHex() string {
	return hex.EncodeToString(p.IV)
}

// String never reveals the parameters, so CipherParams is safe to log.
func (p CipherParams) String() string {
	return "CipherParams{[redacted]}"
}

// GoString implements fmt.GoStringer so %#v is redacted too.
func (p CipherParams) GoString() string {
	return p.String()
}
