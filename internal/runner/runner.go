// Package runner executes external commands (package managers, git, crontab, python)
// and provides the bounded retry wrapper used for network-bound steps.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"devsetup/internal/logger"
)

// Cmd describes one external command invocation.
type Cmd struct {
	Name  string
	Args  []string
	Dir   string    // working directory; empty means the current one
	Stdin io.Reader // optional input, e.g. a crontab body
	Env   []string  // extra KEY=value pairs appended to the process environment
}

// String renders the command the way it is logged.
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner runs commands and returns their combined output.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) ([]byte, error)
}

// Command is a convenience constructor for Cmd.
func Command(name string, args ...string) Cmd {
	return Cmd{Name: name, Args: args}
}

// Exec runs commands on the host through os/exec.
type Exec struct{}

// Run executes cmd and returns stdout and stderr combined.
// A non-zero exit is returned as an error that carries the trimmed output.
func (Exec) Run(ctx context.Context, cmd Cmd) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	logger.Debug("[DEBUG] Running command: %s\n", cmd)

	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	if err := c.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s: %w: %s", cmd.Name, err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// LookPath reports whether an executable is available on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
