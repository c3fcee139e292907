package deploy

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/jupyterhub/binderhub-deployer/pkg/deploykey"
	"github.com/jupyterhub/binderhub-deployer/pkg/registry"
)

// Config is configuration for the Deploy Invoker. It is read from environment
// variables; the variable names match what the CI environment provides.
type Config struct {
	// RegistryUsername and RegistryPassword are the container registry
	// credentials.
	RegistryUsername string `envconfig:"DOCKER_USERNAME"`
	RegistryPassword string `envconfig:"DOCKER_PASSWORD"`
	// Registry is the registry host. Empty means Docker Hub.
	Registry string `envconfig:"DOCKER_REGISTRY"`
	// RegistryLoginMode selects how to log in: "cli" or "native".
	RegistryLoginMode string `envconfig:"REGISTRY_LOGIN_MODE" default:"cli"`
	// RegistryLoginCommand is the CLI used in "cli" mode.
	RegistryLoginCommand string `envconfig:"REGISTRY_LOGIN_COMMAND" default:"docker"`
	// RegistryInsecure permits plain HTTP in "native" mode.
	RegistryInsecure bool `envconfig:"REGISTRY_INSECURE" default:"false"`
	// DockerConfigDir is where "native" mode stores credentials. Empty means
	// Docker's default.
	DockerConfigDir string `envconfig:"DOCKER_CONFIG"`

	// CommitRange is forwarded verbatim to the build entry point.
	CommitRange string `envconfig:"TRAVIS_COMMIT_RANGE"`

	// EncryptedKeyPath is the committed, encrypted deploy key.
	EncryptedKeyPath string `envconfig:"DEPLOY_KEY_ENCRYPTED_PATH" default:"travis.enc"`
	// KeyPath is where the decrypted deploy key is written.
	KeyPath string `envconfig:"DEPLOY_KEY_PATH" default:"travis"`
	// DecryptMode selects how to decrypt: "native" or "openssl".
	DecryptMode string `envconfig:"DECRYPT_MODE" default:"native"`
	// OpenSSLCommand is the CLI used in "openssl" mode.
	OpenSSLCommand string `envconfig:"OPENSSL_COMMAND" default:"openssl"`
	// VerifyKey requires the decrypted key to parse as an SSH private key.
	VerifyKey bool `envconfig:"DEPLOY_KEY_VERIFY" default:"true"`
	// CleanupKey removes the decrypted key once the run is over.
	CleanupKey bool `envconfig:"DEPLOY_KEY_CLEANUP" default:"false"`
	// CipherKey and CipherIV are used when no positional arguments are given.
	CipherKey string `envconfig:"DEPLOY_KEY_CIPHER_KEY"`
	CipherIV  string `envconfig:"DEPLOY_KEY_CIPHER_IV"`

	// BuildDir is the directory the build entry point runs in.
	BuildDir string `envconfig:"BUILD_DIR" default:"helm-chart"`
	// BuildEntrypoint is the build program.
	BuildEntrypoint string `envconfig:"BUILD_ENTRYPOINT" default:"./build.py"`
	// BuildArgs are passed to the entry point ahead of the fixed flags.
	BuildArgs []string `envconfig:"BUILD_ARGS"`

	// StepTimeout bounds each step. Zero means no timeout.
	StepTimeout time.Duration `envconfig:"STEP_TIMEOUT" default:"0s"`
}

// ConfigFromEnv returns a Config populated from environment variables.
func ConfigFromEnv() (Config, error) {
	cfg := Config{}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("error reading configuration from environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the Config for values that can never work.
func (c Config) Validate() error {
	var errs []error
	switch c.RegistryLoginMode {
	case registry.ModeCLI, registry.ModeNative:
	default:
		errs = append(errs, fmt.Errorf("unknown registry login mode %q", c.RegistryLoginMode))
	}
	switch c.DecryptMode {
	case deploykey.ModeNative, deploykey.ModeOpenSSL:
	default:
		errs = append(errs, fmt.Errorf("unknown decrypt mode %q", c.DecryptMode))
	}
	if c.EncryptedKeyPath == "" {
		errs = append(errs, errors.New("DEPLOY_KEY_ENCRYPTED_PATH must not be empty"))
	}
	if c.KeyPath == "" {
		errs = append(errs, errors.New("DEPLOY_KEY_PATH must not be empty"))
	}
	if c.BuildDir == "" {
		errs = append(errs, errors.New("BUILD_DIR must not be empty"))
	}
	if c.BuildEntrypoint == "" {
		errs = append(errs, errors.New("BUILD_ENTRYPOINT must not be empty"))
	}
	if c.StepTimeout < 0 {
		errs = append(errs, fmt.Errorf("STEP_TIMEOUT must not be negative; got %s", c.StepTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// CipherParams resolves the cipher key and IV. Positional arguments take
// precedence; when there are none, the DEPLOY_KEY_CIPHER_KEY and
// DEPLOY_KEY_CIPHER_IV environment variables are used. Any other number of
// arguments is an error.
func (c Config) CipherParams(args []string) (deploykey.CipherParams, error) {
	switch len(args) {
	case 2:
		return deploykey.ParseCipherParams(args[0], args[1])
	case 0:
		if c.CipherKey == "" || c.CipherIV == "" {
			return deploykey.CipherParams{}, deploykey.ErrMissingCipherParams
		}
		return deploykey.ParseCipherParams(c.CipherKey, c.CipherIV)
	default:
		return deploykey.CipherParams{}, fmt.Errorf(
			"%w: expected 2 arguments, got %d",
			deploykey.ErrMissingCipherParams,
			len(args),
		)
	}
}
