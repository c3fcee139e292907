package deploykey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	libExec "github.com/jupyterhub/binderhub-deployer/internal/exec"
	libIO "github.com/jupyterhub/binderhub-deployer/internal/io"
	"github.com/jupyterhub/binderhub-deployer/internal/io/fs"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
)

const (
	// ModeNative decrypts in process.
	ModeNative = "native"
	// ModeOpenSSL decrypts by shelling out to the openssl CLI.
	ModeOpenSSL = "openssl"

	// maxEncryptedKeySize bounds how much of the encrypted file is read. Deploy
	// keys are a few kilobytes at most.
	maxEncryptedKeySize = 1 << 20

	// decryptedMode is the mode a freshly decrypted key is written with, before
	// it is restricted further.
	decryptedMode os.FileMode = 0o600
)

// Decrypter decrypts an encrypted deploy key file.
type Decrypter interface {
	// DecryptFile decrypts the file at in and writes the plaintext key to out.
	// On failure nothing is written to out.
	DecryptFile(ctx context.Context, in, out string, params CipherParams) error
}

// NewDecrypter returns the Decrypter for the provided mode.
func NewDecrypter(mode, opensslCommand string, verify bool) (Decrypter, error) {
	switch mode {
	case ModeNative, "":
		return &NativeDecrypter{Verify: verify}, nil
	case ModeOpenSSL:
		return &OpenSSLDecrypter{Command: opensslCommand, Verify: verify}, nil
	default:
		return nil, fmt.Errorf("unknown decrypt mode %q", mode)
	}
}

// NativeDecrypter decrypts AES-256-CBC encrypted files without any external
// tools.
type NativeDecrypter struct {
	// Verify requires the plaintext to parse as an SSH private key.
	Verify bool
}

// DecryptFile implements Decrypter.
func (n *NativeDecrypter) DecryptFile(
	ctx context.Context,
	in string,
	out string,
	params CipherParams,
) error {
	logger := logging.LoggerFromContext(ctx)
	ciphertext, err := libIO.LimitReadFile(in, maxEncryptedKeySize)
	if err != nil {
		return fmt.Errorf("error reading encrypted deploy key: %w", err)
	}
	logger.Trace("read encrypted deploy key", "path", in, "bytes", len(ciphertext))
	plaintext, err := Decrypt(ciphertext, params)
	if err != nil {
		return fmt.Errorf("error decrypting %q: %w", in, err)
	}
	if err = check(plaintext, n.Verify); err != nil {
		return err
	}
	if err = fs.WriteFileAtomic(out, plaintext, decryptedMode); err != nil {
		return fmt.Errorf("error writing decrypted deploy key: %w", err)
	}
	return nil
}

// OpenSSLDecrypter decrypts by running
// `openssl aes-256-cbc -K <key> -iv <iv> -in <in> -out <out> -d`.
type OpenSSLDecrypter struct {
	// Command is the openssl executable. It defaults to "openssl".
	Command string
	// Verify requires the plaintext to parse as an SSH private key.
	Verify bool
}

// DecryptFile implements Decrypter. openssl writes into a temporary file next
// to out, which is only moved into place once it has succeeded.
func (o *OpenSSLDecrypter) DecryptFile(
	ctx context.Context,
	in string,
	out string,
	params CipherParams,
) (err error) {
	command := o.Command
	if command == "" {
		command = "openssl"
	}
	if _, err = os.Stat(in); err != nil {
		return fmt.Errorf("error reading encrypted deploy key: %w", err)
	}
	tmp, err := fs.TempFileFor(out)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	cmd := exec.CommandContext(
		ctx,
		command,
		"aes-256-cbc",
		"-K", params.KeyHex(),
		"-iv", params.IVHex(),
		"-in", in,
		"-out", tmp,
		"-d",
	)
	if _, err = libExec.Exec(cmd); err != nil {
		// The command line carries the key and IV. Report the exit code and
		// openssl's own diagnostics, not the command.
		var exitErr *libExec.ExitError
		if errors.As(err, &exitErr) {
			exitErr.Command = fmt.Sprintf("%s aes-256-cbc -d -in %s", command, in)
		}
		return fmt.Errorf("error decrypting %q: %w", in, err)
	}
	plaintext, err := libIO.LimitReadFile(tmp, maxEncryptedKeySize)
	if err != nil {
		return fmt.Errorf("error reading decrypted deploy key: %w", err)
	}
	if err = check(plaintext, o.Verify); err != nil {
		return err
	}
	if err = os.Chmod(tmp, decryptedMode); err != nil {
		return fmt.Errorf("error setting permissions on decrypted deploy key: %w", err)
	}
	if err = fs.SimpleAtomicMove(tmp, out); err != nil {
		return fmt.Errorf("error writing decrypted deploy key: %w", err)
	}
	return nil
}

// check rejects empty output always and unparseable keys when verify is set.
func check(plaintext []byte, verify bool) error {
	if !verify {
		if len(plaintext) == 0 {
			return ErrEmptyKey
		}
		return nil
	}
	return Verify(plaintext)
}
