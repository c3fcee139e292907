package exec

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExitError is returned when a command executed by Exec or Run fails. It
// carries the command line, whatever output was captured, and the command's
// exit code.
type ExitError struct {
	// Command is the command line that was executed.
	Command string
	// Output is the combined stdout and stderr captured from the command. It is
	// empty for commands whose output was streamed rather than captured.
	Output []byte
	// ExitCode is the command's exit code, or -1 if the command did not start
	// or was terminated by a signal.
	ExitCode int
	err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("error executing cmd [%s]", e.Command)
	if len(e.Output) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, e.Output)
	} else if e.err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.err)
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.err
}

// Exec runs the provided command and returns its combined output. If the
// command fails, the error is an *ExitError.
func Exec(cmd *exec.Cmd) ([]byte, error) {
	res, err := cmd.CombinedOutput()
	if err != nil {
		return res, newExitError(cmd, res, err)
	}
	return res, nil
}

// Run runs the provided command without capturing its output. Callers set
// cmd.Stdout and cmd.Stderr to wherever the output should go. If the command
// fails, the error is an *ExitError.
func Run(cmd *exec.Cmd) error {
	if err := cmd.Run(); err != nil {
		return newExitError(cmd, nil, err)
	}
	return nil
}

func newExitError(cmd *exec.Cmd, output []byte, err error) *ExitError {
	exitErr := &ExitError{
		Command:  strings.Join(cmd.Args, " "),
		Output:   output,
		ExitCode: -1,
		err:      err,
	}
	if cmd.Path != "" && len(cmd.Args) > 0 {
		// Prefer the resolved path so the command line is unambiguous.
		exitErr.Command = strings.Join(append([]string{cmd.Path}, cmd.Args[1:]...), " ")
	}
	var execExitErr *exec.ExitError
	if errors.As(err, &execExitErr) {
		exitErr.ExitCode = execExitErr.ExitCode()
	}
	return exitErr
}
