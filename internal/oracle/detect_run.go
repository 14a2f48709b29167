package oracle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Detect extracts a watermark message from the audio at inputPath, if any.
// A nil result with a nil error means the oracle binary ran successfully
// but found no watermark.
func (e *Engine) Detect(ctx context.Context, inputPath string) (*DetectResult, error) {
	if e.ioMode() == IOFile {
		return e.detectFile(ctx, inputPath)
	}
	result, err := e.detectPipe(ctx, inputPath)
	if err == nil {
		return result, nil
	}
	if !shouldFallbackPipeError(err) {
		return nil, err
	}
	e.warnPipeFallback("detect", err)
	return e.detectFile(ctx, inputPath)
}

func (e *Engine) detectFile(ctx context.Context, inputPath string) (*DetectResult, error) {
	args := []string{"get"}
	args = append(args, e.keyArgs()...)
	args = append(args, inputPath)

	cmd := e.command(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr != nil && stderr.Len() == 0 {
		return nil, &ExecError{Op: "detect (file)", Err: runErr}
	}
	return parseDetectOutput(stdout.String(), stderr.String()), nil
}

func (e *Engine) detectPipe(ctx context.Context, inputPath string) (*DetectResult, error) {
	args := []string{"get"}
	args = append(args, e.keyArgs()...)
	args = append(args, "-")

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("oracle: open %s: %w", inputPath, err)
	}
	defer in.Close()

	cmd := e.command(ctx, args...)
	var stdout bytes.Buffer
	stderrBytes, runErr := runPiped(ctx, cmd, in, &stdout)
	if runErr != nil {
		if execErr, ok := runErr.(*ExecError); ok && !isPipeCompatibilityError(execErr.Stderr) {
			// Non-zero exit for a reason other than pipe incompatibility
			// (e.g. "no watermark found") is not itself a failure — fall
			// through and let output parsing decide match/no-match.
			return parseDetectOutput(stdout.String(), string(stderrBytes)), nil
		}
		return nil, runErr
	}
	return parseDetectOutput(stdout.String(), string(stderrBytes)), nil
}

// DetectBytes is Detect's in-memory counterpart.
func (e *Engine) DetectBytes(ctx context.Context, inputWav []byte) (*DetectResult, error) {
	if e.ioMode() == IOFile {
		return e.detectBytesFile(ctx, inputWav)
	}
	result, err := e.detectBytesPipe(ctx, inputWav)
	if err == nil {
		return result, nil
	}
	if !shouldFallbackPipeError(err) {
		return nil, err
	}
	e.warnPipeFallback("detect-bytes", err)
	return e.detectBytesFile(ctx, inputWav)
}

func (e *Engine) detectBytesPipe(ctx context.Context, inputWav []byte) (*DetectResult, error) {
	args := []string{"get"}
	args = append(args, e.keyArgs()...)
	args = append(args, "-")

	cmd := e.command(ctx, args...)
	var stdout bytes.Buffer
	stderrBytes, runErr := runPiped(ctx, cmd, bytes.NewReader(inputWav), &stdout)
	if runErr != nil {
		if execErr, ok := runErr.(*ExecError); ok && !isPipeCompatibilityError(execErr.Stderr) {
			return parseDetectOutput(stdout.String(), string(stderrBytes)), nil
		}
		return nil, runErr
	}
	return parseDetectOutput(stdout.String(), string(stderrBytes)), nil
}

func (e *Engine) detectBytesFile(ctx context.Context, inputWav []byte) (*DetectResult, error) {
	dir, cleanup, err := newTempDir("awmkit-detect")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputPath := filepath.Join(dir, "input.wav")
	if err := os.WriteFile(inputPath, inputWav, 0o600); err != nil {
		return nil, fmt.Errorf("oracle: write temp input: %w", err)
	}
	return e.detectFile(ctx, inputPath)
}
