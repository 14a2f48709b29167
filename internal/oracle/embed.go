package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Embed writes message (MessageLen bytes) into the audio at inputPath,
// producing outputPath. It tries pipe I/O first and falls back to a
// temp-file invocation whenever the pipe attempt fails with an *ExecError;
// only the first fallback is logged.
func (e *Engine) Embed(ctx context.Context, inputPath, outputPath string, message []byte) error {
	if len(message) != MessageLen {
		return fmt.Errorf("oracle: embed message must be %d bytes, got %d", MessageLen, len(message))
	}
	hexMsg := hex.EncodeToString(message)

	if e.ioMode() == IOFile {
		return e.embedFile(ctx, inputPath, outputPath, hexMsg)
	}
	err := e.embedPipe(ctx, inputPath, outputPath, hexMsg)
	if err == nil {
		return nil
	}
	if !shouldFallbackPipeError(err) {
		return err
	}
	e.warnPipeFallback("embed", err)
	return e.embedFile(ctx, inputPath, outputPath, hexMsg)
}

func (e *Engine) embedFile(ctx context.Context, inputPath, outputPath, hexMsg string) error {
	args := []string{"add", "--strength", strconv.Itoa(e.Strength)}
	args = append(args, e.keyArgs()...)
	args = append(args, inputPath, outputPath, hexMsg)

	cmd := e.command(ctx, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ExecError{Op: "embed (file)", Stderr: string(out), Err: err}
	}
	return nil
}

func (e *Engine) embedPipe(ctx context.Context, inputPath, outputPath, hexMsg string) error {
	args := []string{"add", "--strength", strconv.Itoa(e.Strength),
		"--input-format", "wav-pipe", "--output-format", "wav-pipe"}
	args = append(args, e.keyArgs()...)
	args = append(args, "-", "-", hexMsg)

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("oracle: open %s: %w", inputPath, err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("oracle: create %s: %w", outputPath, err)
	}

	cmd := e.command(ctx, args...)
	_, runErr := runPiped(ctx, cmd, in, out)
	closeErr := out.Close()
	if runErr != nil {
		os.Remove(outputPath)
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("oracle: close %s: %w", outputPath, closeErr)
	}

	if err := validateWavOutputFile(outputPath); err != nil {
		return err
	}
	return normalizeWavPipeFileInPlace(outputPath)
}

// EmbedBytes is Embed's in-memory counterpart: input and output are WAV
// byte buffers instead of file paths. File-mode fallback still round-trips
// through a temp directory, since the oracle binary itself only accepts
// paths or "-" for stdio.
func (e *Engine) EmbedBytes(ctx context.Context, inputWav []byte, message []byte) ([]byte, error) {
	if len(message) != MessageLen {
		return nil, fmt.Errorf("oracle: embed message must be %d bytes, got %d", MessageLen, len(message))
	}
	hexMsg := hex.EncodeToString(message)

	if e.ioMode() == IOFile {
		return e.embedBytesFile(ctx, inputWav, hexMsg)
	}
	out, err := e.embedBytesPipe(ctx, inputWav, hexMsg)
	if err == nil {
		return out, nil
	}
	if !shouldFallbackPipeError(err) {
		return nil, err
	}
	e.warnPipeFallback("embed-bytes", err)
	return e.embedBytesFile(ctx, inputWav, hexMsg)
}

func (e *Engine) embedBytesPipe(ctx context.Context, inputWav []byte, hexMsg string) ([]byte, error) {
	args := []string{"add", "--strength", strconv.Itoa(e.Strength),
		"--input-format", "wav-pipe", "--output-format", "wav-pipe"}
	args = append(args, e.keyArgs()...)
	args = append(args, "-", "-", hexMsg)

	cmd := e.command(ctx, args...)
	var stdout bytes.Buffer
	if _, err := runPiped(ctx, cmd, bytes.NewReader(inputWav), &stdout); err != nil {
		return nil, err
	}
	if !looksLikeWavStream(stdout.Bytes()) {
		return nil, &ExecError{Op: "embed-bytes (pipe)", Err: fmt.Errorf("pipe output is not a valid WAV stream")}
	}
	return normalizeOracleOutput(stdout.Bytes()), nil
}

func (e *Engine) embedBytesFile(ctx context.Context, inputWav []byte, hexMsg string) ([]byte, error) {
	dir, cleanup, err := newTempDir("awmkit-embed")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputPath := filepath.Join(dir, "input.wav")
	outputPath := filepath.Join(dir, "output.wav")
	if err := os.WriteFile(inputPath, inputWav, 0o600); err != nil {
		return nil, fmt.Errorf("oracle: write temp input: %w", err)
	}
	if err := e.embedFile(ctx, inputPath, outputPath, hexMsg); err != nil {
		return nil, err
	}
	return os.ReadFile(outputPath)
}

func newTempDir(prefix string) (string, func(), error) {
	dir, err := os.MkdirTemp("", prefix+"-"+uuid.NewString())
	if err != nil {
		return "", func() {}, fmt.Errorf("oracle: create temp dir: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

