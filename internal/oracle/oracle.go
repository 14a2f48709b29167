// Package oracle bridges to an external watermark binary (audiowmark or a
// compatible CLI) for the actual embed/detect DSP work. awmkit never
// reimplements the watermarking algorithm itself — it shells out to the
// oracle binary, preferring anonymous pipes over temp files and retrying a
// call with temp files whenever its pipe invocation fails.
package oracle

import (
	"context"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/SakuzyPeng/awmkit/internal/message"
)

// MessageLen is the wire length of a watermark message, re-exported from
// internal/message so callers only need to import one package for it.
const MessageLen = message.Len

// IOMode selects how the engine talks to the oracle binary.
type IOMode int

const (
	// IOPipe streams stdin/stdout/stderr through OS pipes. Default mode.
	IOPipe IOMode = iota
	// IOFile shells the oracle binary with on-disk temp files. Used when
	// AWMKIT_DISABLE_PIPE_IO is set or ForceFileIO(true) was called. A pipe
	// call that fails is retried in file mode, but the engine's mode itself
	// never switches: the next call tries pipes again.
	IOFile
)

// Engine invokes the external watermark oracle binary.
type Engine struct {
	BinaryPath string
	Strength   int    // 1-30, clamped
	KeyFile    string // optional path to an oracle-native key file

	forceFileIO bool

	fallbackOnce sync.Once
	fallbackWarn func(operation string, err error)
}

// BinaryNotFoundError reports that no oracle binary could be located.
type BinaryNotFoundError struct {
	Searched []string
}

func (e *BinaryNotFoundError) Error() string {
	return "oracle: audiowmark binary not found (searched: " + strings.Join(e.Searched, ", ") + ")"
}

// ExecError wraps an oracle binary invocation failure with its captured
// stderr, so callers can log or classify the underlying cause.
type ExecError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Stderr != "" {
		return "oracle: " + e.Op + ": " + strings.TrimSpace(e.Stderr)
	}
	if e.Err != nil {
		return "oracle: " + e.Op + ": " + e.Err.Error()
	}
	return "oracle: " + e.Op + ": failed"
}

func (e *ExecError) Unwrap() error { return e.Err }

// NewEngine resolves the oracle binary from PATH (or an explicit override)
// and returns an Engine with default strength 10.
func NewEngine(binaryOverride string) (*Engine, error) {
	path, err := resolveBinary(binaryOverride)
	if err != nil {
		return nil, err
	}
	return &Engine{BinaryPath: path, Strength: 10}, nil
}

func resolveBinary(override string) (string, error) {
	if override != "" {
		if abs, err := filepath.Abs(override); err == nil {
			if _, statErr := exec.LookPath(abs); statErr == nil {
				return abs, nil
			}
		}
		if _, err := exec.LookPath(override); err == nil {
			return override, nil
		}
	}
	if path, err := exec.LookPath("audiowmark"); err == nil {
		return path, nil
	}
	searched := []string{"audiowmark"}
	if override != "" {
		searched = append([]string{override}, searched...)
	}
	return "", &BinaryNotFoundError{Searched: searched}
}

// WithStrength clamps and sets the embed strength (1-30).
func (e *Engine) WithStrength(strength int) *Engine {
	if strength < 1 {
		strength = 1
	}
	if strength > 30 {
		strength = 30
	}
	e.Strength = strength
	return e
}

// WithKeyFile sets an oracle-native key file path passed via --key.
func (e *Engine) WithKeyFile(path string) *Engine {
	e.KeyFile = path
	return e
}

// ForceFileIO disables pipe I/O unconditionally, mirroring
// AWMKIT_DISABLE_PIPE_IO=1.
func (e *Engine) ForceFileIO(v bool) *Engine {
	e.forceFileIO = v
	return e
}

func (e *Engine) ioMode() IOMode {
	if e.forceFileIO || disablePipeIOEnv() {
		return IOFile
	}
	return IOPipe
}

// sigpipeOnce guards the process-wide SIGPIPE ignore below. A closed read
// end on the oracle's stdout/stderr pipe would otherwise raise SIGPIPE on
// our next write and kill the process outright instead of surfacing as a
// normal write error.
var sigpipeOnce sync.Once

func ensureSigpipeIgnoredOnce() {
	sigpipeOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}

func (e *Engine) command(ctx context.Context, args ...string) *exec.Cmd {
	ensureSigpipeIgnoredOnce()
	return exec.CommandContext(ctx, e.BinaryPath, args...)
}

func (e *Engine) keyArgs() []string {
	if e.KeyFile == "" {
		return nil
	}
	return []string{"--key", e.KeyFile}
}
