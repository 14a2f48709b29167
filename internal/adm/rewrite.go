package adm

import (
	"fmt"
	"io"
	"os"

	"github.com/SakuzyPeng/awmkit/internal/pcm"
)

// DecodePCM reads and de-interleaves the file's data chunk into a canonical
// PCM buffer, using the already-parsed chunk index rather than re-walking
// the container.
func DecodePCM(path string, idx *ChunkIndex) (*pcm.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("adm: open %s: %w", path, err)
	}
	defer f.Close()

	raw := make([]byte, idx.DataChunk.Size)
	if _, err := f.ReadAt(raw, int64(idx.DataChunk.DataOffset)); err != nil {
		return nil, fmt.Errorf("adm: read data chunk: %w", err)
	}

	format, err := pcm.FormatFromBitsPerSample(int(idx.Fmt.BitsPerSample))
	if err != nil {
		return nil, err
	}
	chans, err := pcm.DecodePCMData(raw, int(idx.Fmt.Channels), format)
	if err != nil {
		return nil, err
	}
	return pcm.New(chans, idx.Fmt.SampleRate, format)
}

// Transform mutates a decoded PCM buffer in place, returning the buffer to
// write back. It MUST NOT change sample count, channel count, sample rate,
// or sample format — RewriteWithTransform rejects any transform that does.
type Transform func(*pcm.Buffer) (*pcm.Buffer, error)

// RewriteWithTransform copies input to output byte-for-byte, then replaces
// only the data chunk's bytes with transform's output re-encoded at the
// original PCM format. Every other chunk — bext, axml, chna, unknown
// chunks, padding — survives untouched.
func RewriteWithTransform(input, output string, idx *ChunkIndex, transform Transform) error {
	if input == output {
		return fmt.Errorf("adm: input and output must be different files for ADM/BWF rewrite")
	}

	original, err := DecodePCM(input, idx)
	if err != nil {
		return err
	}
	// Snapshot the shape first: transform may mutate original in place.
	before := &pcm.Buffer{
		Channels:   append([][]int32(nil), original.Channels...),
		SampleRate: original.SampleRate,
		Format:     original.Format,
	}
	processed, err := transform(original)
	if err != nil {
		return err
	}
	if err := validateShapeUnchanged(before, processed); err != nil {
		return err
	}

	replacement, err := pcm.EncodePCMData(processed.Channels, processed.Format)
	if err != nil {
		return err
	}
	if uint64(len(replacement)) != idx.DataChunk.Size {
		return fmt.Errorf("adm: processed data size mismatch: expected %d, got %d", idx.DataChunk.Size, len(replacement))
	}

	if err := copyFile(input, output); err != nil {
		return err
	}
	return replaceDataChunkBytes(output, idx, replacement)
}

func validateShapeUnchanged(original, processed *pcm.Buffer) error {
	if original.NumChannels() != processed.NumChannels() {
		return fmt.Errorf("adm: channel count changed after transform: %d -> %d", original.NumChannels(), processed.NumChannels())
	}
	if original.NumSamples() != processed.NumSamples() {
		return fmt.Errorf("adm: sample count changed after transform: %d -> %d", original.NumSamples(), processed.NumSamples())
	}
	if original.SampleRate != processed.SampleRate {
		return fmt.Errorf("adm: sample rate changed after transform: %d -> %d", original.SampleRate, processed.SampleRate)
	}
	if original.Format != processed.Format {
		return fmt.Errorf("adm: sample format changed after transform: %s -> %s", original.Format, processed.Format)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("adm: open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("adm: create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("adm: copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

func replaceDataChunkBytes(path string, idx *ChunkIndex, replacement []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("adm: open %s for data chunk write: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(replacement, int64(idx.DataChunk.DataOffset)); err != nil {
		return fmt.Errorf("adm: write data chunk: %w", err)
	}
	return f.Sync()
}
