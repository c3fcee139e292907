package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/jupyterhub/binderhub-deployer/pkg/build"
	"github.com/jupyterhub/binderhub-deployer/pkg/deploykey"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
	"github.com/jupyterhub/binderhub-deployer/pkg/registry"
)

// GitSSHCommandEnvVar is read by git to decide how to run ssh.
const GitSSHCommandEnvVar = "GIT_SSH_COMMAND"

// Names of the Deploy Invoker's steps, in execution order.
const (
	StepRegistryLogin = "registry-login"
	StepDecryptKey    = "decrypt-deploy-key"
	StepRestrictKey   = "restrict-deploy-key"
	StepConfigureSSH  = "configure-git-ssh"
	StepBuild         = "build"
)

// Invoker logs in to the registry, decrypts and locks down the deploy key,
// points git at it, and hands over to the build entry point.
type Invoker struct {
	cfg    Config
	params deploykey.CipherParams

	invocationDir    string
	encryptedKeyPath string
	keyPath          string
	buildDir         string
	buildEntrypoint  string

	loginer   registry.Loginer
	decrypter deploykey.Decrypter
	builder   build.Runner

	pipeline *Pipeline
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithLoginer replaces the registry Loginer chosen by configuration.
func WithLoginer(l registry.Loginer) InvokerOption {
	return func(i *Invoker) {
		i.loginer = l
	}
}

// WithDecrypter replaces the Decrypter chosen by configuration.
func WithDecrypter(d deploykey.Decrypter) InvokerOption {
	return func(i *Invoker) {
		i.decrypter = d
	}
}

// WithBuildRunner replaces the build Runner.
func WithBuildRunner(r build.Runner) InvokerOption {
	return func(i *Invoker) {
		i.builder = r
	}
}

// WithInvocationDir sets the directory relative paths are resolved against.
// It defaults to the current working directory.
func WithInvocationDir(dir string) InvokerOption {
	return func(i *Invoker) {
		i.invocationDir = dir
	}
}

// NewInvoker validates cfg, resolves every path it names against the
// invocation directory and returns an Invoker ready to Run.
func NewInvoker(
	cfg Config,
	params deploykey.CipherParams,
	opts ...InvokerOption,
) (*Invoker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	i := &Invoker{
		cfg:    cfg,
		params: params,
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.invocationDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error determining working directory: %w", err)
		}
		i.invocationDir = wd
	}
	var err error
	if i.invocationDir, err = filepath.Abs(i.invocationDir); err != nil {
		return nil, fmt.Errorf("error resolving invocation directory: %w", err)
	}
	i.encryptedKeyPath = resolve(i.invocationDir, cfg.EncryptedKeyPath)
	i.keyPath = resolve(i.invocationDir, cfg.KeyPath)
	i.buildDir = resolve(i.invocationDir, cfg.BuildDir)
	i.buildEntrypoint = cfg.BuildEntrypoint
	if strings.ContainsRune(cfg.BuildEntrypoint, filepath.Separator) {
		i.buildEntrypoint = resolve(i.buildDir, cfg.BuildEntrypoint)
	}

	if i.loginer == nil {
		if i.loginer, err = registry.NewLoginer(
			cfg.RegistryLoginMode,
			registry.LoginerOptions{
				Command:   cfg.RegistryLoginCommand,
				ConfigDir: cfg.DockerConfigDir,
				Insecure:  cfg.RegistryInsecure,
			},
		); err != nil {
			return nil, err
		}
	}
	if i.decrypter == nil {
		if i.decrypter, err = deploykey.NewDecrypter(
			cfg.DecryptMode,
			cfg.OpenSSLCommand,
			cfg.VerifyKey,
		); err != nil {
			return nil, err
		}
	}
	if i.builder == nil {
		i.builder = build.NewExecRunner()
	}

	i.pipeline = NewPipeline(
		cfg.StepTimeout,
		Step{Name: StepRegistryLogin, Run: i.login},
		Step{Name: StepDecryptKey, Run: i.decryptKey},
		Step{Name: StepRestrictKey, Run: i.restrictKey},
		Step{Name: StepConfigureSSH, Run: i.configureSSH},
		Step{Name: StepBuild, Run: i.build},
	)
	return i, nil
}

// resolve returns path unchanged if it is absolute and otherwise joins it to
// dir the way a shell would after changing into dir. Symlinks are left for
// the operating system to follow.
func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// Steps returns the names of the steps Run executes, in order.
func (i *Invoker) Steps() []string {
	return i.pipeline.StepNames()
}

// KeyPath returns the absolute path the decrypted deploy key is written to.
func (i *Invoker) KeyPath() string {
	return i.keyPath
}

// Run executes the steps. It returns the first error encountered, wrapped in a
// *StepError. When key cleanup is enabled, a key written by this run is
// removed before Run returns, whatever the outcome.
func (i *Invoker) Run(ctx context.Context) (err error) {
	logger := logging.LoggerFromContext(ctx).WithValues("run", ulid.Make().String())
	ctx = logging.ContextWithLogger(ctx, logger)
	logger.Info(
		"starting deploy",
		"invocationDir", i.invocationDir,
		"commitRange", i.cfg.CommitRange,
	)
	if i.cfg.CommitRange == "" {
		logger.Warn("commit range is empty", "envVar", "TRAVIS_COMMIT_RANGE")
	}
	state := &State{
		InvocationDir: i.invocationDir,
		KeyPath:       i.keyPath,
		Env:           map[string]string{},
	}
	if i.cfg.CleanupKey {
		defer func() {
			if !state.KeyWritten {
				return
			}
			if rmErr := deploykey.Remove(state.KeyPath); rmErr != nil {
				logger.Error(rmErr, "error cleaning up deploy key")
				if err == nil {
					err = rmErr
				}
				return
			}
			logger.Debug("removed deploy key", "path", state.KeyPath)
		}()
	}
	return i.pipeline.Run(ctx, state)
}

func (i *Invoker) login(ctx context.Context, _ *State) error {
	return i.loginer.Login(ctx, registry.Credentials{
		Registry: i.cfg.Registry,
		Username: i.cfg.RegistryUsername,
		Password: i.cfg.RegistryPassword,
	})
}

func (i *Invoker) decryptKey(ctx context.Context, state *State) error {
	if err := i.decrypter.DecryptFile(
		ctx,
		i.encryptedKeyPath,
		state.KeyPath,
		i.params,
	); err != nil {
		return err
	}
	state.KeyWritten = true
	logging.LoggerFromContext(ctx).Debug(
		"decrypted deploy key",
		"from", i.encryptedKeyPath,
		"to", state.KeyPath,
	)
	return nil
}

func (i *Invoker) restrictKey(_ context.Context, state *State) error {
	return deploykey.Restrict(state.KeyPath)
}

func (i *Invoker) configureSSH(ctx context.Context, state *State) error {
	state.Env[GitSSHCommandEnvVar] = deploykey.SSHCommand(state.KeyPath)
	logging.LoggerFromContext(ctx).Debug(
		"configured git to use deploy key",
		GitSSHCommandEnvVar, state.Env[GitSSHCommandEnvVar],
	)
	return nil
}

func (i *Invoker) build(ctx context.Context, state *State) error {
	return i.builder.Run(ctx, build.Request{
		Dir:         i.buildDir,
		Entrypoint:  i.buildEntrypoint,
		LeadingArgs: i.cfg.BuildArgs,
		CommitRange: i.cfg.CommitRange,
		Env:         state.Env,
	})
}
