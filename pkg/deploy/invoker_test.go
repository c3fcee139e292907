package deploy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	libExec "github.com/jupyterhub/binderhub-deployer/internal/exec"
	"github.com/jupyterhub/binderhub-deployer/pkg/build"
	"github.com/jupyterhub/binderhub-deployer/pkg/deploykey"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
	"github.com/jupyterhub/binderhub-deployer/pkg/registry"
)

const recordingEntrypoint = `#!/bin/sh
pwd > invocation.pwd
printf '%s\n' "$@" > invocation.args
printf '%s' "$GIT_SSH_COMMAND" > invocation.ssh
exit ${BUILD_EXIT_CODE:-0}
`

type mockLoginer struct {
	events *[]string
	creds  registry.Credentials
	err    error
}

func (m *mockLoginer) Login(_ context.Context, creds registry.Credentials) error {
	*m.events = append(*m.events, StepRegistryLogin)
	m.creds = creds
	return m.err
}

type recordingDecrypter struct {
	events *[]string
	deploykey.Decrypter
}

func (r *recordingDecrypter) DecryptFile(
	ctx context.Context,
	in string,
	out string,
	params deploykey.CipherParams,
) error {
	*r.events = append(*r.events, StepDecryptKey)
	return r.Decrypter.DecryptFile(ctx, in, out, params)
}

type recordingRunner struct {
	events *[]string
	req    build.Request
	build.Runner
}

func (r *recordingRunner) Run(ctx context.Context, req build.Request) error {
	*r.events = append(*r.events, StepBuild)
	r.req = req
	return r.Runner.Run(ctx, req)
}

// testHarness is a checkout-like directory holding an encrypted deploy key
// and a recording build entry point.
type testHarness struct {
	root    string
	params  deploykey.CipherParams
	events  []string
	loginer *mockLoginer
	runner  *recordingRunner
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{root: t.TempDir()}
	var err error
	h.params, err = deploykey.ParseCipherParams(testKeyHex, testIVHex)
	require.NoError(t, err)

	private, _, err := deploykey.GenerateDeployKey("test")
	require.NoError(t, err)
	ciphertext, err := deploykey.Encrypt(private, h.params)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "travis.enc"), ciphertext, 0o644))

	buildDir := filepath.Join(h.root, "helm-chart")
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(buildDir, "build.py"),
		[]byte(recordingEntrypoint),
		0o755,
	))

	h.loginer = &mockLoginer{events: &h.events}
	h.runner = &recordingRunner{
		events: &h.events,
		Runner: &build.ExecRunner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}},
	}
	return h
}

func (h *testHarness) newInvoker(
	t *testing.T,
	cfg Config,
	params deploykey.CipherParams,
) *Invoker {
	t.Helper()
	invoker, err := NewInvoker(
		cfg,
		params,
		WithInvocationDir(h.root),
		WithLoginer(h.loginer),
		WithDecrypter(&recordingDecrypter{
			events:    &h.events,
			Decrypter: &deploykey.NativeDecrypter{Verify: cfg.VerifyKey},
		}),
		WithBuildRunner(h.runner),
	)
	require.NoError(t, err)
	return invoker
}

func TestNewInvoker(t *testing.T) {
	root := t.TempDir()
	testCases := []struct {
		name       string
		mutate     func(*Config)
		assertions func(*testing.T, *Invoker, error)
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
			assertions: func(t *testing.T, i *Invoker, err error) {
				require.NoError(t, err)
				require.Equal(
					t,
					[]string{
						StepRegistryLogin,
						StepDecryptKey,
						StepRestrictKey,
						StepConfigureSSH,
						StepBuild,
					},
					i.Steps(),
				)
				require.Equal(t, filepath.Join(root, "travis"), i.KeyPath())
				require.Equal(t, filepath.Join(root, "travis.enc"), i.encryptedKeyPath)
				require.Equal(t, filepath.Join(root, "helm-chart"), i.buildDir)
				require.Equal(t, filepath.Join(root, "helm-chart", "build.py"), i.buildEntrypoint)
				require.IsType(t, &registry.CLILoginer{}, i.loginer)
				require.IsType(t, &deploykey.NativeDecrypter{}, i.decrypter)
				require.IsType(t, &build.ExecRunner{}, i.builder)
			},
		},
		{
			name: "absolute paths are kept",
			mutate: func(c *Config) {
				c.KeyPath = "/run/secrets/deploy"
				c.BuildEntrypoint = "/usr/local/bin/chartpress"
			},
			assertions: func(t *testing.T, i *Invoker, err error) {
				require.NoError(t, err)
				require.Equal(t, "/run/secrets/deploy", i.KeyPath())
				require.Equal(t, "/usr/local/bin/chartpress", i.buildEntrypoint)
			},
		},
		{
			name: "bare entry point is looked up on PATH",
			mutate: func(c *Config) {
				c.BuildEntrypoint = "chartpress"
			},
			assertions: func(t *testing.T, i *Invoker, err error) {
				require.NoError(t, err)
				require.Equal(t, "chartpress", i.buildEntrypoint)
			},
		},
		{
			name: "relative paths may leave the invocation directory",
			mutate: func(c *Config) {
				c.KeyPath = "../travis"
				c.BuildDir = "chart/../helm-chart"
			},
			assertions: func(t *testing.T, i *Invoker, err error) {
				require.NoError(t, err)
				require.Equal(t, filepath.Join(filepath.Dir(root), "travis"), i.KeyPath())
				require.Equal(t, filepath.Join(root, "helm-chart"), i.buildDir)
			},
		},
		{
			name: "native modes",
			mutate: func(c *Config) {
				c.RegistryLoginMode = registry.ModeNative
				c.DecryptMode = deploykey.ModeOpenSSL
			},
			assertions: func(t *testing.T, i *Invoker, err error) {
				require.NoError(t, err)
				require.IsType(t, &registry.NativeLoginer{}, i.loginer)
				require.IsType(t, &deploykey.OpenSSLDecrypter{}, i.decrypter)
			},
		},
		{
			name: "invalid configuration",
			mutate: func(c *Config) {
				c.DecryptMode = "gpg"
			},
			assertions: func(t *testing.T, _ *Invoker, err error) {
				require.ErrorContains(t, err, "invalid configuration")
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			cfg := testConfig()
			testCase.mutate(&cfg)
			i, err := NewInvoker(cfg, deploykey.CipherParams{}, WithInvocationDir(root))
			testCase.assertions(t, i, err)
		})
	}
}

func TestInvokerRun(t *testing.T) {
	wrongParams, err := deploykey.ParseCipherParams(
		strings.Repeat("ab", deploykey.KeySize),
		testIVHex,
	)
	require.NoError(t, err)

	testCases := []struct {
		name       string
		setup      func(*testing.T, *testHarness) (Config, deploykey.CipherParams)
		assertions func(*testing.T, *testHarness, *Invoker, error)
	}{
		{
			name: "success",
			setup: func(_ *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				cfg := testConfig()
				cfg.RegistryUsername = "jupyterhubbot"
				cfg.RegistryPassword = "hunter2"
				cfg.CommitRange = "a1b2c3d...e4f5a6b"
				return cfg, h.params
			},
			assertions: func(t *testing.T, h *testHarness, i *Invoker, err error) {
				require.NoError(t, err)
				require.Equal(
					t,
					[]string{StepRegistryLogin, StepDecryptKey, StepBuild},
					h.events,
				)
				require.Equal(
					t,
					registry.Credentials{Username: "jupyterhubbot", Password: "hunter2"},
					h.loginer.creds,
				)

				// The decrypted key is owner-read-only and usable
				info, err := os.Stat(i.KeyPath())
				require.NoError(t, err)
				require.Equal(t, deploykey.RestrictedMode, info.Mode().Perm())
				key, err := os.ReadFile(i.KeyPath())
				require.NoError(t, err)
				require.NoError(t, deploykey.Verify(key))

				buildDir := filepath.Join(h.root, "helm-chart")
				pwd, err := os.ReadFile(filepath.Join(buildDir, "invocation.pwd"))
				require.NoError(t, err)
				expectedDir, err := filepath.EvalSymlinks(buildDir)
				require.NoError(t, err)
				actualDir, err := filepath.EvalSymlinks(strings.TrimSpace(string(pwd)))
				require.NoError(t, err)
				require.Equal(t, expectedDir, actualDir)

				args, err := os.ReadFile(filepath.Join(buildDir, "invocation.args"))
				require.NoError(t, err)
				require.Equal(
					t,
					"--commit-range\na1b2c3d...e4f5a6b\n--push\n--publish-chart\n",
					string(args),
				)

				ssh, err := os.ReadFile(filepath.Join(buildDir, "invocation.ssh"))
				require.NoError(t, err)
				require.Equal(t, "ssh -i "+filepath.Join(h.root, "travis"), string(ssh))

				// The process environment is left alone
				require.NotEqual(t, string(ssh), os.Getenv(GitSSHCommandEnvVar))
			},
		},
		{
			name: "failing login never reaches decryption",
			setup: func(_ *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				h.loginer.err = errors.New("unauthorized: incorrect username or password")
				return testConfig(), h.params
			},
			assertions: func(t *testing.T, h *testHarness, i *Invoker, err error) {
				var stepErr *StepError
				require.True(t, errors.As(err, &stepErr))
				require.Equal(t, StepRegistryLogin, stepErr.Step)
				require.Equal(t, []string{StepRegistryLogin}, h.events)
				require.NoFileExists(t, i.KeyPath())
			},
		},
		{
			name: "wrong cipher parameters never reach the build",
			setup: func(_ *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				return testConfig(), wrongParams
			},
			assertions: func(t *testing.T, h *testHarness, i *Invoker, err error) {
				var stepErr *StepError
				require.True(t, errors.As(err, &stepErr))
				require.Equal(t, StepDecryptKey, stepErr.Step)
				require.Equal(t, []string{StepRegistryLogin, StepDecryptKey}, h.events)
				// No plaintext, corrupted or otherwise, is left behind
				require.NoFileExists(t, i.KeyPath())
			},
		},
		{
			name: "missing encrypted key",
			setup: func(t *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				require.NoError(t, os.Remove(filepath.Join(h.root, "travis.enc")))
				return testConfig(), h.params
			},
			assertions: func(t *testing.T, h *testHarness, _ *Invoker, err error) {
				require.ErrorIs(t, err, os.ErrNotExist)
				require.NotContains(t, h.events, StepBuild)
			},
		},
		{
			name: "missing build directory",
			setup: func(t *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				require.NoError(t, os.RemoveAll(filepath.Join(h.root, "helm-chart")))
				return testConfig(), h.params
			},
			assertions: func(t *testing.T, _ *testHarness, _ *Invoker, err error) {
				var stepErr *StepError
				require.True(t, errors.As(err, &stepErr))
				require.Equal(t, StepBuild, stepErr.Step)
				require.ErrorContains(t, err, "error changing into build directory")
			},
		},
		{
			name: "build exit code is preserved",
			setup: func(t *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				t.Setenv("BUILD_EXIT_CODE", "3")
				return testConfig(), h.params
			},
			assertions: func(t *testing.T, _ *testHarness, i *Invoker, err error) {
				var exitErr *libExec.ExitError
				require.True(t, errors.As(err, &exitErr))
				require.Equal(t, 3, exitErr.ExitCode)
				// Without cleanup the key outlives the run
				require.FileExists(t, i.KeyPath())
			},
		},
		{
			name: "cleanup removes the key after a failed build",
			setup: func(t *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				t.Setenv("BUILD_EXIT_CODE", "1")
				cfg := testConfig()
				cfg.CleanupKey = true
				return cfg, h.params
			},
			assertions: func(t *testing.T, h *testHarness, i *Invoker, err error) {
				require.Error(t, err)
				require.Contains(t, h.events, StepBuild)
				require.NoFileExists(t, i.KeyPath())
			},
		},
		{
			name: "cleanup leaves a key this run did not write",
			setup: func(t *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				require.NoError(t, os.WriteFile(filepath.Join(h.root, "travis"), []byte("old"), 0o600))
				h.loginer.err = errors.New("network unreachable")
				cfg := testConfig()
				cfg.CleanupKey = true
				return cfg, h.params
			},
			assertions: func(t *testing.T, _ *testHarness, i *Invoker, err error) {
				require.Error(t, err)
				require.FileExists(t, i.KeyPath())
			},
		},
		{
			name: "symlinked entry point",
			setup: func(t *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				toolsDir := filepath.Join(h.root, "tools")
				require.NoError(t, os.MkdirAll(toolsDir, 0o755))
				entrypoint := filepath.Join(h.root, "helm-chart", "build.py")
				require.NoError(t, os.Rename(entrypoint, filepath.Join(toolsDir, "build.py")))
				require.NoError(t, os.Symlink("../tools/build.py", entrypoint))
				cfg := testConfig()
				cfg.CommitRange = "HEAD~1..HEAD"
				return cfg, h.params
			},
			assertions: func(t *testing.T, h *testHarness, _ *Invoker, err error) {
				require.NoError(t, err)
				// The entry point still runs from the build directory
				args, err := os.ReadFile(filepath.Join(h.root, "helm-chart", "invocation.args"))
				require.NoError(t, err)
				require.Equal(
					t,
					"--commit-range\nHEAD~1..HEAD\n--push\n--publish-chart\n",
					string(args),
				)
			},
		},
		{
			name: "symlinked encrypted key",
			setup: func(t *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				secretsDir := t.TempDir()
				target := filepath.Join(secretsDir, "travis.enc")
				link := filepath.Join(h.root, "travis.enc")
				require.NoError(t, os.Rename(link, target))
				require.NoError(t, os.Symlink(target, link))
				return testConfig(), h.params
			},
			assertions: func(t *testing.T, h *testHarness, i *Invoker, err error) {
				require.NoError(t, err)
				require.Contains(t, h.events, StepBuild)
				key, err := os.ReadFile(i.KeyPath())
				require.NoError(t, err)
				require.NoError(t, deploykey.Verify(key))
			},
		},
		{
			name: "key path outside the invocation directory",
			setup: func(_ *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				cfg := testConfig()
				cfg.KeyPath = "../travis"
				return cfg, h.params
			},
			assertions: func(t *testing.T, h *testHarness, i *Invoker, err error) {
				require.NoError(t, err)
				keyPath := filepath.Join(filepath.Dir(h.root), "travis")
				require.Equal(t, keyPath, i.KeyPath())
				require.FileExists(t, keyPath)
				ssh, err := os.ReadFile(filepath.Join(h.root, "helm-chart", "invocation.ssh"))
				require.NoError(t, err)
				require.Equal(t, "ssh -i "+keyPath, string(ssh))
			},
		},
		{
			name: "commit range is forwarded verbatim",
			setup: func(_ *testing.T, h *testHarness) (Config, deploykey.CipherParams) {
				cfg := testConfig()
				cfg.CommitRange = "--push"
				cfg.BuildArgs = []string{"--no-push"}
				return cfg, h.params
			},
			assertions: func(t *testing.T, h *testHarness, _ *Invoker, err error) {
				require.NoError(t, err)
				require.Equal(
					t,
					[]string{"--no-push", "--commit-range", "--push", "--push", "--publish-chart"},
					h.runner.req.Args(),
				)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			h := newTestHarness(t)
			cfg, params := testCase.setup(t, h)
			invoker := h.newInvoker(t, cfg, params)
			err := invoker.Run(testContext())
			testCase.assertions(t, h, invoker, err)
		})
	}
}

func TestInvokerRunWarnsOnEmptyCommitRange(t *testing.T) {
	h := newTestHarness(t)
	invoker := h.newInvoker(t, testConfig(), h.params)
	buf := &bytes.Buffer{}
	logger, err := logging.NewLoggerTo(buf, logging.WarnLevel, logging.JSONFormat)
	require.NoError(t, err)

	require.NoError(t, invoker.Run(logging.ContextWithLogger(context.Background(), logger)))
	require.Contains(t, buf.String(), `"msg":"commit range is empty"`)
	require.Contains(t, buf.String(), `"level":"WARN"`)
	// Nothing below warn is written
	require.NotContains(t, buf.String(), "starting deploy")
}
