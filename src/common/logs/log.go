// Package logs provides the logging facility for yfab.
// Logs go to stderr so that stdout stays free for command output, or to
// systemd journald when yfab runs unattended (e.g. `yfab serve` as a unit).
package logs

import (
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

// LogOutput defines the output destination for logs
type LogOutput string

const (
	// OutputStderr sends logs to standard error
	OutputStderr LogOutput = "stderr"
	// OutputStdout sends logs to standard output
	OutputStdout LogOutput = "stdout"
	// OutputJournald sends logs to systemd journald
	OutputJournald LogOutput = "journald"
	// OutputAuto uses stderr on a terminal, journald when detached and available
	OutputAuto LogOutput = "auto"
)

// Logger wraps the charm log.Logger with additional configuration
type Logger struct {
	*log.Logger
	output LogOutput
}

// Config holds the configuration for the logger
type Config struct {
	Output LogOutput
	// Level sets the minimum log level (debug, info, warn, error)
	Level  string
	Prefix string
	// Writer overrides Output when set (tests, embedding)
	Writer io.Writer
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Output: OutputAuto,
		Level:  "info",
	}
}

func journaldAvailable() bool {
	if _, err := exec.LookPath("systemd-cat"); err != nil {
		return false
	}
	if _, err := os.Stat("/run/systemd/journal/socket"); err != nil {
		return false
	}
	return true
}

// ParseLevel converts a string level to log.Level, defaulting to info
func ParseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func resolveOutput(out LogOutput) (io.Writer, LogOutput) {
	switch out {
	case OutputStdout:
		return os.Stdout, OutputStdout
	case OutputJournald:
		if journaldAvailable() {
			return newJournaldWriter(), OutputJournald
		}
		return os.Stderr, OutputStderr
	case OutputAuto:
		if !term.IsTerminal(int(os.Stderr.Fd())) && journaldAvailable() {
			return newJournaldWriter(), OutputJournald
		}
		return os.Stderr, OutputStderr
	default:
		return os.Stderr, OutputStderr
	}
}

// New creates a new Logger with the given configuration
func New(cfg Config) *Logger {
	writer, output := cfg.Writer, cfg.Output
	if writer == nil {
		writer, output = resolveOutput(cfg.Output)
	}

	logger := log.NewWithOptions(writer, log.Options{
		Level:           ParseLevel(cfg.Level),
		Prefix:          cfg.Prefix,
		ReportTimestamp: output != OutputJournald,
	})

	return &Logger{
		Logger: logger,
		output: output,
	}
}

// NewDefault creates a new Logger with default configuration
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Output returns the current output destination
func (l *Logger) Output() LogOutput {
	return l.output
}

// journaldWriter pipes each log record through systemd-cat
type journaldWriter struct {
	identifier string
}

func newJournaldWriter() *journaldWriter {
	return &journaldWriter{identifier: "yfab"}
}

// Write implements io.Writer. Records that systemd-cat rejects fall back to stderr.
func (w *journaldWriter) Write(p []byte) (int, error) {
	cmd := exec.Command("systemd-cat", "-t", w.identifier)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return os.Stderr.Write(p)
	}
	if err := cmd.Start(); err != nil {
		return os.Stderr.Write(p)
	}

	n, _ := stdin.Write(p)
	stdin.Close()
	_ = cmd.Wait()

	return n, nil
}
