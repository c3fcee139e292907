package main

import (
	"context"
	"errors"
	"os"

	libExec "github.com/jupyterhub/binderhub-deployer/internal/exec"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
	libOS "github.com/jupyterhub/binderhub-deployer/pkg/os"
)

func main() {
	ctx, cancel := libOS.NotifyOnShutdown(context.Background())
	err := Execute(ctx)
	cancel()
	if err != nil {
		os.Exit(fail(logging.LoggerFromContext(ctx), err))
	}
}

// fail logs err and returns the exit code the process should end with.
func fail(logger *logging.Logger, err error) int {
	logger.Error(err, "deployer failed")
	return exitCode(err)
}

// exitCode returns the exit code of the child process that caused err, or 1
// if no child process was involved.
func exitCode(err error) int {
	var exitErr *libExec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode > 0 {
		return exitErr.ExitCode
	}
	return 1
}
