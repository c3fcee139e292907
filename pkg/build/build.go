// Package build invokes the external program that builds and publishes the
// chart. What that program does is entirely its own business; this package
// only fixes how it is called.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	libExec "github.com/jupyterhub/binderhub-deployer/internal/exec"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
	libOS "github.com/jupyterhub/binderhub-deployer/pkg/os"
)

const (
	FlagCommitRange  = "--commit-range"
	FlagPush         = "--push"
	FlagPublishChart = "--publish-chart"
)

// Request describes one invocation of the build entry point.
type Request struct {
	// Dir is the working directory the entry point runs in.
	Dir string
	// Entrypoint is the program to run. A relative path containing a separator
	// is resolved against Dir, as a shell would after changing into Dir.
	Entrypoint string
	// LeadingArgs are passed before the fixed flags, e.g. a subcommand.
	LeadingArgs []string
	// CommitRange is forwarded verbatim.
	CommitRange string
	// Env holds variables added to, or replacing those in, the inherited
	// environment.
	Env map[string]string
}

// Args returns the arguments the entry point is invoked with. --push and
// --publish-chart are always present.
func (r Request) Args() []string {
	args := make([]string, 0, len(r.LeadingArgs)+4)
	args = append(args, r.LeadingArgs...)
	return append(
		args,
		FlagCommitRange, r.CommitRange,
		FlagPush,
		FlagPublishChart,
	)
}

// Runner runs the build entry point.
type Runner interface {
	Run(ctx context.Context, req Request) error
}

// ExecRunner runs the entry point as a child process, streaming its output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns an ExecRunner attached to this process's stdout and
// stderr.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run implements Runner. When the entry point exits non-zero, the returned
// error is an *exec.ExitError carrying its exit code.
func (e *ExecRunner) Run(ctx context.Context, req Request) error {
	info, err := os.Stat(req.Dir)
	if err != nil {
		return fmt.Errorf("error changing into build directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("error changing into build directory: %q is not a directory", req.Dir)
	}
	if req.Entrypoint == "" {
		return fmt.Errorf("no build entry point specified")
	}
	cmd := exec.CommandContext(ctx, req.Entrypoint, req.Args()...)
	cmd.Dir = req.Dir
	cmd.Env = libOS.MergeEnv(os.Environ(), req.Env)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	logging.LoggerFromContext(ctx).Info(
		"invoking build entry point",
		"dir", req.Dir,
		"entrypoint", req.Entrypoint,
		"args", req.Args(),
	)
	if err = libExec.Run(cmd); err != nil {
		return fmt.Errorf("build entry point failed: %w", err)
	}
	return nil
}
