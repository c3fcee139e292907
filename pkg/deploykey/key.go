package deploykey

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// RestrictedMode is the permission set a decrypted deploy key is left with:
// readable by its owner and nobody else. ssh refuses keys that are readable by
// others.
const RestrictedMode os.FileMode = 0o400

// ErrEmptyKey is returned when decryption produced no key material.
var ErrEmptyKey = errors.New("deploy key is empty")

// Verify checks that data is a usable, unencrypted SSH private key.
func Verify(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyKey
	}
	if _, err := ssh.ParseRawPrivateKey(data); err != nil {
		var passErr *ssh.PassphraseMissingError
		if errors.As(err, &passErr) {
			return errors.New("deploy key is protected by a passphrase")
		}
		return fmt.Errorf("deploy key is not a valid SSH private key: %w", err)
	}
	return nil
}

// Restrict sets the key at path to RestrictedMode. It fails if there is no
// file at path.
func Restrict(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error restricting permissions of deploy key %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("error restricting permissions of deploy key %q: not a regular file", path)
	}
	if err = os.Chmod(path, RestrictedMode); err != nil {
		return fmt.Errorf("error restricting permissions of deploy key %q: %w", path, err)
	}
	return nil
}

// Remove deletes the key at path. A key that is already gone is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing deploy key %q: %w", path, err)
	}
	return nil
}

// SSHCommand returns the value for GIT_SSH_COMMAND that makes git use the key
// at keyPath. Git runs this value through a shell, so paths containing
// whitespace or quotes are single-quoted.
func SSHCommand(keyPath string) string {
	return "ssh -i " + shellQuote(keyPath)
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// GenerateDeployKey creates a new ed25519 deploy key. It returns the private
// key in OpenSSH PEM format and the public key as an authorized_keys line
// carrying comment.
func GenerateDeployKey(comment string) ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("error generating ed25519 key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("error converting public key: %w", err)
	}
	authorized := bytes.TrimSpace(ssh.MarshalAuthorizedKey(sshPub))
	if comment != "" {
		authorized = append(authorized, ' ')
		authorized = append(authorized, comment...)
	}
	authorized = append(authorized, '\n')
	return pem.EncodeToMemory(block), authorized, nil
}
