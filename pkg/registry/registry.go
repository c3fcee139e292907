// Package registry authenticates to container registries so that images can
// be pushed by later build steps.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-containerregistry/pkg/logs"

	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
)

const (
	// ModeCLI logs in with a docker-compatible CLI.
	ModeCLI = "cli"
	// ModeNative logs in without any external tools and stores the result in
	// the Docker credential cache.
	ModeNative = "native"
)

// ErrMissingCredentials is returned when the username or password is empty.
var ErrMissingCredentials = errors.New("registry username and password are required")

// Credentials identify a principal on a container registry.
type Credentials struct {
	// Registry is the registry host, optionally with a port. The empty string
	// means Docker Hub.
	Registry string
	Username string
	Password string
}

func (c Credentials) validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// displayName is how the registry is referred to in logs and errors.
func (c Credentials) displayName() string {
	if c.Registry == "" {
		return "Docker Hub"
	}
	return c.Registry
}

// Loginer authenticates to a container registry and leaves the host in a
// state where later tools can use the registry without credentials.
type Loginer interface {
	Login(ctx context.Context, creds Credentials) error
}

// LoginerOptions configures NewLoginer.
type LoginerOptions struct {
	// Command is the CLI used by ModeCLI.
	Command string
	// ConfigDir is the Docker configuration directory used by ModeNative. The
	// empty string means Docker's default.
	ConfigDir string
	// Insecure permits plain HTTP in ModeNative.
	Insecure bool
}

// NewLoginer returns the Loginer for the provided mode.
func NewLoginer(mode string, opts LoginerOptions) (Loginer, error) {
	switch mode {
	case ModeCLI, "":
		return &CLILoginer{Command: opts.Command}, nil
	case ModeNative:
		return &NativeLoginer{
			ConfigDir: opts.ConfigDir,
			Insecure:  opts.Insecure,
		}, nil
	default:
		return nil, fmt.Errorf("unknown registry login mode %q", mode)
	}
}

// ConfigureLogging routes go-containerregistry's internal loggers to logger
// when it is verbose enough to show them.
func ConfigureLogging(logger *logging.Logger) {
	if logger.Enabled(logging.WarnLevel) {
		logs.Warn = logger.StdLog(logging.WarnLevel)
	}
	if logger.Enabled(logging.DebugLevel) {
		logs.Debug = logger.StdLog(logging.DebugLevel)
	}
	if logger.Enabled(logging.TraceLevel) {
		logs.Progress = logger.StdLog(logging.TraceLevel)
	}
}
