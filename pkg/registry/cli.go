package registry

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	libExec "github.com/jupyterhub/binderhub-deployer/internal/exec"
	"github.com/jupyterhub/binderhub-deployer/pkg/logging"
)

const defaultLoginCommand = "docker"

// CLILoginer runs `<command> login --username <user> --password-stdin
// [registry]`. The password is written to the command's stdin so that it never
// appears in a process listing.
type CLILoginer struct {
	// Command is the docker-compatible executable. It defaults to "docker".
	Command string
}

// Login implements Loginer.
func (c *CLILoginer) Login(ctx context.Context, creds Credentials) error {
	if err := creds.validate(); err != nil {
		return err
	}
	command := c.Command
	if command == "" {
		command = defaultLoginCommand
	}
	args := []string{"login", "--username", creds.Username, "--password-stdin"}
	if creds.Registry != "" {
		args = append(args, creds.Registry)
	}
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = strings.NewReader(creds.Password)
	out, err := libExec.Exec(cmd)
	if err != nil {
		return fmt.Errorf("error logging in to %s: %w", creds.displayName(), err)
	}
	logging.LoggerFromContext(ctx).Debug(
		"registry login output",
		"registry", creds.displayName(),
		"output", strings.TrimSpace(string(out)),
	)
	return nil
}
