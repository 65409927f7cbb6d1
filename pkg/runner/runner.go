// Package runner executes external host tools (virt-customize, qm, pvesh, sh)
// and captures their output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/syntax"
)

// Command describes a single process invocation.
type Command struct {
	Name string
	Args []string
	Env  []string // Extra KEY=VALUE pairs appended to the current environment
	Dir  string

	// OnLine, when set, receives every stdout line as it is produced.
	OnLine func(line string)
}

// String returns the command as a copy-pasteable shell line.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Env)+len(c.Args)+1)
	for _, kv := range c.Env {
		key, value, _ := strings.Cut(kv, "=")
		parts = append(parts, key+"="+Quote(value))
	}
	parts = append(parts, Quote(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, Quote(arg))
	}
	return strings.Join(parts, " ")
}

// Quote shell-quotes s only when it needs it. Plain words such as
// "virtio,bridge=vmbr0" are left alone.
func Quote(s string) string {
	if s != "" && strings.Trim(s, safeChars) == "" {
		return s
	}
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		// Strings with NUL bytes cannot be quoted; show them raw.
		return s
	}
	return q
}

const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./:,=@%+"

// Result holds the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// ExitError is returned when a command ran but did not succeed.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg != "" {
		return fmt.Sprintf("%s failed: %s", e.Command, msg)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner runs commands. Implementations must be safe for sequential reuse.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	LookPath(file string) (string, error)
}

// Exec is the Runner backed by os/exec.
type Exec struct {
	logger *log.Logger
}

// NewExec creates a Runner that logs each command line at debug level.
func NewExec(logger *log.Logger) *Exec {
	return &Exec{logger: logger}
}

// LookPath finds the path to an executable.
func (e *Exec) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run executes cmd and waits for it to finish.
func (e *Exec) Run(ctx context.Context, cmd Command) (*Result, error) {
	if e.logger != nil {
		e.logger.Debug("exec", "cmd", cmd.String())
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	var lines *lineWriter
	if cmd.OnLine != nil {
		lines = &lineWriter{onLine: cmd.OnLine}
		c.Stdout = io.MultiWriter(&stdout, lines)
	} else {
		c.Stdout = &stdout
	}
	c.Stderr = &stderr

	err := c.Run()
	if lines != nil {
		lines.Flush()
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
		}
		exitErr := &ExitError{
			Command:  cmd.Name,
			ExitCode: -1,
			Stderr:   res.Stderr,
			Err:      err,
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitErr.ExitCode = ee.ExitCode()
		}
		return res, exitErr
	}

	return res, nil
}

// lineWriter splits a byte stream into lines.
type lineWriter struct {
	buf    bytes.Buffer
	onLine func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(data[:i]), "\r")
		w.buf.Next(i + 1)
		w.onLine(line)
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.onLine(strings.TrimRight(w.buf.String(), "\r"))
		w.buf.Reset()
	}
}
