// Package launcher starts the supervised child with its standard input
// connected to a fresh pipe and hands back the pipe's write end.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrSetup marks failures that leave the supervisor unable to run.
var ErrSetup = errors.New("setup failure")

// Child is a started child process whose stdin is fed through Console.
type Child struct {
	Pid int
	// Console is the write end of the child's stdin pipe.
	Console *os.File

	process *os.Process
}

// Launch creates a pipe and starts name with args, the pipe's read end
// substituted for the child's stdin. The child inherits the supervisor's
// stdout and stderr. The read end is closed in the parent before Launch
// returns, so once the child exits writes to Console fail with EPIPE.
//
// The caller owns the child and must reap it; Launch never calls Wait.
//
// Parameters:
//   - name: The executable, resolved through PATH when it has no slash
//   - args: The arguments after the program name
//
// Returns:
//   - The started Child
//   - An error wrapping ErrSetup if the pipe, lookup or exec fails
func Launch(name string, args ...string) (*Child, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrSetup, name, err)
	}

	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdin pipe: %w", ErrSetup, err)
	}

	cmd := &exec.Cmd{
		Path:   path,
		Args:   append([]string{name}, args...),
		Stdin:  stdinRead,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	if err := cmd.Start(); err != nil {
		_ = stdinRead.Close()
		_ = stdinWrite.Close()
		return nil, fmt.Errorf("%w: start %s: %w", ErrSetup, path, err)
	}

	if err := stdinRead.Close(); err != nil {
		_ = stdinWrite.Close()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("%w: close stdin read end: %w", ErrSetup, err)
	}

	return &Child{
		Pid:     cmd.Process.Pid,
		Console: stdinWrite,
		process: cmd.Process,
	}, nil
}

// Kill sends SIGKILL to the child. It is used when setup fails after the
// child has already started.
func (c *Child) Kill() error {
	return c.process.Kill()
}

// Abort kills the child and reaps it. It is used when setup fails after the
// child has started, before any event loop owns it.
func (c *Child) Abort() error {
	_ = c.Console.Close()
	if err := c.process.Kill(); err != nil {
		return err
	}

	_, err := c.process.Wait()
	return err
}
