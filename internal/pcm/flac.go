package pcm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pchchv/flac"
)

// FromFLAC decodes r (a FLAC stream) into a canonical Buffer. Only decoding
// is supported — awmkit never writes FLAC, since every output path (direct
// WAV write, wav-pipe to the oracle, ADM data-chunk rewrite) is WAV, so the
// only thing this package needs from the FLAC codec in the pack is reading
// an operator's source file before embedding.
func FromFLAC(r io.Reader) (*Buffer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("pcm: open flac stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	numChannels := int(info.NChannels)
	format, err := flacSampleFormat(int(info.BitsPerSample))
	if err != nil {
		return nil, err
	}

	chans := make([][]int32, numChannels)
	for c := range chans {
		chans[c] = make([]int32, 0, info.NSamples)
	}

	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pcm: decode flac frame: %w", err)
		}
		for c := 0; c < numChannels && c < len(f.Subframes); c++ {
			chans[c] = append(chans[c], f.Subframes[c].Samples...)
		}
	}

	return New(chans, info.SampleRate, format)
}

func flacSampleFormat(bits int) (SampleFormat, error) {
	switch bits {
	case 16:
		return Int16, nil
	case 24:
		return Int24, nil
	case 32:
		return Int32, nil
	default:
		return 0, fmt.Errorf("pcm: unsupported flac bit depth %d", bits)
	}
}

// FromFile loads path as WAV or FLAC, dispatching on its extension.
func FromFile(path string) (*Buffer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("pcm: open %s: %w", path, err)
		}
		defer f.Close()
		return FromFLAC(f)
	default:
		return FromWav(path)
	}
}

// ToFile writes the buffer to path as WAV, regardless of path's extension
// (awmkit never writes FLAC; see FromFLAC's doc comment).
func (b *Buffer) ToFile(path string) error {
	return b.ToWav(path)
}
