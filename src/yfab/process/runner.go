// Package process runs external tools and streams their combined output
// line by line.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/bitswalk/yfab/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the process package
func SetLogger(l *logs.Logger) {
	log = l
}

// tailLines is how much trailing output is attached to a failed Result
const tailLines = 20

// Command describes one external tool invocation
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   map[string]string
	Stdin io.Reader
}

// String renders the command for logs. Arguments are shown as-is, so
// callers must not log commands that carry secrets.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of one invocation
type Result struct {
	Succeeded bool   `json:"succeeded"`
	ExitCode  int    `json:"exit_code"`
	ErrorText string `json:"error_text,omitempty"`
}

// Failed builds an unsuccessful Result carrying the given text
func Failed(format string, args ...interface{}) Result {
	return Result{ExitCode: -1, ErrorText: fmt.Sprintf(format, args...)}
}

// LineFunc receives each non-blank output line
type LineFunc func(line string)

// Runner executes commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Command, onLine LineFunc) Result
}

// ExecRunner runs commands on the host with os/exec
type ExecRunner struct{}

// NewExecRunner creates a host runner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run spawns the command with stdout and stderr attached to the same pipe
// so lines arrive in emission order. The context is only consulted before
// spawning: a running tool is never killed, it ends when it exits.
func (r *ExecRunner) Run(ctx context.Context, c Command, onLine LineFunc) Result {
	if err := ctx.Err(); err != nil {
		return Failed("not started: %v", err)
	}
	if c.Name == "" {
		return Failed("no command specified")
	}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return Failed("failed to create output pipe: %v", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	log.Debug("Starting command", "cmd", c.Name, "dir", c.Dir)

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		if errors.Is(err, exec.ErrNotFound) {
			return Failed("%s: command not found", c.Name)
		}
		return Failed("failed to start %s: %v", c.Name, err)
	}
	// The child holds its own copy of the write end; closing ours lets the
	// scanner see EOF once the child exits.
	pw.Close()

	tail := newTail(tailLines)
	scanErr := Scan(pr, func(line string) {
		tail.add(line)
		if onLine != nil {
			onLine(line)
		}
	})
	pr.Close()

	waitErr := cmd.Wait()
	return resultFrom(c, waitErr, scanErr, tail)
}

func resultFrom(c Command, waitErr, scanErr error, tail *tail) Result {
	if waitErr == nil && scanErr == nil {
		return Result{Succeeded: true}
	}

	res := Result{ExitCode: -1}
	var msg string
	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		msg = fmt.Sprintf("%s: %v", c.Name, exitErr)
	case waitErr != nil:
		msg = fmt.Sprintf("%s: %v", c.Name, waitErr)
	default:
		res.ExitCode = 0
		msg = fmt.Sprintf("%s: reading output: %v", c.Name, scanErr)
	}

	if out := tail.String(); out != "" {
		msg = msg + "\n" + out
	}
	res.ErrorText = msg
	return res
}

// Scan splits r into lines on \n, \r\n or a bare \r, trims surrounding
// whitespace and calls fn for every non-blank line.
func Scan(r io.Reader, fn LineFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}

// scanLines is bufio.ScanLines extended to treat a lone carriage return
// as a terminator, which is how dd and git redraw their progress.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// \r: swallow a following \n so CRLF yields one line
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// need one more byte to tell \r from \r\n
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tail keeps the last n lines seen
type tail struct {
	lines []string
	max   int
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, "\n")
}
