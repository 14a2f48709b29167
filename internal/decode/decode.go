// Package decode bridges arbitrary container/codec input into the
// canonical PCM buffer via an external FFmpeg binary. There is no FFmpeg
// binding in the dependency pack to link against directly, so this mirrors
// internal/materializer's exec-based approach: shell out, stream stdout,
// drain stderr line by line.
package decode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/SakuzyPeng/awmkit/internal/pcm"
)

// ContainerUnsupportedError reports a container format FFmpeg was built
// without a demuxer for.
type ContainerUnsupportedError struct {
	Name string
}

func (e *ContainerUnsupportedError) Error() string {
	return fmt.Sprintf("decode: container %q unsupported by this ffmpeg build", e.Name)
}

// DecoderUnavailableError reports a codec FFmpeg was built without a
// decoder for.
type DecoderUnavailableError struct {
	Name string
}

func (e *DecoderUnavailableError) Error() string {
	return fmt.Sprintf("decode: decoder %q unavailable in this ffmpeg build", e.Name)
}

// NoAudioTrackError reports that the input has no decodable audio stream.
type NoAudioTrackError struct {
	Path string
}

func (e *NoAudioTrackError) Error() string {
	return fmt.Sprintf("decode: no decodable audio track found in %s", e.Path)
}

// Capabilities mirrors the backend's container/codec support flags.
type Capabilities struct {
	Backend      string
	EAC3Decode   bool
	ContainerMP4 bool
	ContainerMKV bool
	ContainerTS  bool
}

// DetectCapabilities probes the local ffmpeg binary for demuxer and decoder
// support. A failure to locate or run ffmpeg yields an all-false
// Capabilities rather than an error, matching the "backend unavailable"
// behavior of the prior implementation.
func DetectCapabilities(ctx context.Context) Capabilities {
	caps := Capabilities{Backend: "ffmpeg"}
	demuxers, err := runCaptured(ctx, "ffmpeg", "-hide_banner", "-demuxers")
	if err != nil {
		return caps
	}
	caps.ContainerMP4 = hasToken(demuxers, " mov,mp4,")
	caps.ContainerMKV = hasToken(demuxers, " matroska,")
	caps.ContainerTS = hasToken(demuxers, " mpegts ") || hasToken(demuxers, " mpegts,")

	decoders, err := runCaptured(ctx, "ffmpeg", "-hide_banner", "-decoders")
	if err == nil {
		caps.EAC3Decode = hasToken(decoders, " eac3 ")
	}
	return caps
}

func hasToken(haystack, token string) bool {
	return strings.Contains(haystack, token)
}

func runCaptured(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return buf.String(), nil
}

// mapContainerError checks path's extension against the detected
// capabilities and returns a ContainerUnsupportedError when FFmpeg lacks
// the matching demuxer.
func mapContainerError(path string, caps Capabilities) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".m2ts", ".m2t":
		if !caps.ContainerTS {
			return &ContainerUnsupportedError{Name: "mpegts"}
		}
	case ".mkv", ".mka":
		if !caps.ContainerMKV {
			return &ContainerUnsupportedError{Name: "matroska"}
		}
	case ".mp4", ".m4a", ".mov":
		if !caps.ContainerMP4 {
			return &ContainerUnsupportedError{Name: "mov/mp4"}
		}
	}
	return nil
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Channels   int    `json:"channels"`
	SampleRate string `json:"sample_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

func probeAudioStream(ctx context.Context, path string) (probeStream, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_name,codec_type,channels,sample_rate",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return probeStream{}, fmt.Errorf("ffprobe: %w", err)
	}
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return probeStream{}, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "audio" {
			return s, nil
		}
	}
	return probeStream{}, &NoAudioTrackError{Path: path}
}

// DecodeMediaToPCM demuxes and decodes path's best audio stream into a
// canonical 16-bit PCM buffer, preserving its original channel count and
// sample rate. Any container FFmpeg can demux and any codec it can decode
// is accepted; unsupported containers/codecs fail with
// ContainerUnsupportedError / DecoderUnavailableError.
func DecodeMediaToPCM(ctx context.Context, path string) (*pcm.Buffer, error) {
	caps := DetectCapabilities(ctx)
	if err := mapContainerError(path, caps); err != nil {
		return nil, err
	}

	stream, err := probeAudioStream(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(stream.CodecName, "eac3") && !caps.EAC3Decode {
		return nil, &DecoderUnavailableError{Name: "eac3"}
	}
	channels := stream.Channels
	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("decode: invalid stream metadata channels=%d sampleRate=%q", channels, stream.SampleRate)
	}

	raw, err := runFFmpegRawPCM(ctx, path, channels, sampleRate)
	if err != nil {
		return nil, err
	}
	return deinterleaveS16LE(raw, channels, uint32(sampleRate))
}

func runFFmpegRawPCM(ctx context.Context, path string, channels, sampleRate int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", path,
		"-map", "0:a:0",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decode: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("decode: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("decode: start ffmpeg: %w", err)
	}

	var pcmBytes []byte
	var readErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pcmBytes, readErr = io.ReadAll(stdout)
	}()
	go func() {
		defer wg.Done()
		logFFmpegStderr(stderr)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("decode: ffmpeg: %w", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("decode: read ffmpeg stdout: %w", readErr)
	}
	if len(pcmBytes) == 0 {
		return nil, fmt.Errorf("decode: no decodable audio samples found")
	}
	return pcmBytes, nil
}

func logFFmpegStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	for sc.Scan() {
		log.Printf("[decode ffmpeg] %s", sc.Text())
	}
}

func deinterleaveS16LE(raw []byte, channels int, sampleRate uint32) (*pcm.Buffer, error) {
	const bytesPerSample = 2
	frameBytes := bytesPerSample * channels
	if frameBytes == 0 || len(raw)%frameBytes != 0 {
		raw = raw[:len(raw)-(len(raw)%frameBytes)]
	}
	numFrames := len(raw) / frameBytes
	chans := make([][]int32, channels)
	for c := range chans {
		chans[c] = make([]int32, numFrames)
	}
	for i := 0; i < numFrames; i++ {
		base := i * frameBytes
		for c := 0; c < channels; c++ {
			off := base + c*bytesPerSample
			chans[c][i] = int32(int16(binary.LittleEndian.Uint16(raw[off : off+2])))
		}
	}
	return pcm.New(chans, sampleRate, pcm.Int16)
}
