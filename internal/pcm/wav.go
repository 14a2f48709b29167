package pcm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

const (
	wavFmtPCM        = 1
	wavFmtIEEEFloat  = 3
	wavFmtExtensible = 0xFFFE
)

// FromWavBytes parses a RIFF/WAVE byte stream into a canonical Buffer,
// first applying NormalizePipeBytes so wav-pipe's 0xFFFFFFFF size markers
// don't confuse the chunk walk.
func FromWavBytes(data []byte) (*Buffer, error) {
	data = NormalizePipeBytes(data)
	if len(data) < 44 {
		return nil, fmt.Errorf("pcm: wav data too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" && string(data[0:4]) != "RF64" {
		return nil, fmt.Errorf("pcm: not a RIFF/RF64 stream")
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("pcm: missing WAVE form type")
	}

	var (
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		formatTag     uint16
		dataOffset    int
		dataSize      int
		haveFmt       bool
		haveData      bool
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("pcm: fmt chunk too short")
			}
			formatTag = binary.LittleEndian.Uint16(data[body : body+2])
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			dataOffset = body
			dataSize = size
			haveData = true
		}
		padded := size + (size & 1)
		next := body + padded
		if next <= pos {
			break
		}
		pos = next
	}

	if !haveFmt || !haveData {
		return nil, fmt.Errorf("pcm: missing fmt or data chunk")
	}
	if channels == 0 {
		return nil, fmt.Errorf("pcm: fmt chunk declares zero channels")
	}

	format, err := sampleFormatFor(formatTag, bitsPerSample)
	if err != nil {
		return nil, err
	}

	bytesPerSample := int(bitsPerSample) / 8
	blockAlign := bytesPerSample * int(channels)
	if blockAlign == 0 || dataSize%blockAlign != 0 {
		return nil, fmt.Errorf("pcm: data size %d not a multiple of block align %d", dataSize, blockAlign)
	}
	frameCount := dataSize / blockAlign

	chans := make([][]int32, channels)
	for c := range chans {
		chans[c] = make([]int32, frameCount)
	}
	raw := data[dataOffset : dataOffset+dataSize]
	if err := decodeInterleaved(raw, chans, bytesPerSample, format); err != nil {
		return nil, err
	}
	return New(chans, sampleRate, format)
}

func sampleFormatFor(formatTag uint16, bitsPerSample uint16) (SampleFormat, error) {
	switch formatTag {
	case wavFmtPCM, wavFmtExtensible:
		switch bitsPerSample {
		case 16:
			return Int16, nil
		case 24:
			return Int24, nil
		case 32:
			return Int32, nil
		default:
			return 0, fmt.Errorf("pcm: unsupported PCM bit depth %d", bitsPerSample)
		}
	case wavFmtIEEEFloat:
		if bitsPerSample != 32 {
			return 0, fmt.Errorf("pcm: unsupported float bit depth %d", bitsPerSample)
		}
		return Float32, nil
	default:
		return 0, fmt.Errorf("pcm: unsupported wav format tag 0x%04X", formatTag)
	}
}

func decodeInterleaved(raw []byte, chans [][]int32, bytesPerSample int, format SampleFormat) error {
	numChannels := len(chans)
	frameCount := len(chans[0])
	for i := 0; i < frameCount; i++ {
		for c := 0; c < numChannels; c++ {
			off := (i*numChannels + c) * bytesPerSample
			if off+bytesPerSample > len(raw) {
				return fmt.Errorf("pcm: truncated sample data")
			}
			chans[c][i] = decodeSample(raw[off:off+bytesPerSample], format)
		}
	}
	return nil
}

func decodeSample(b []byte, format SampleFormat) int32 {
	switch format {
	case Int16:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case Int24:
		v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		if v&0x800000 != 0 {
			v |= 0xFF000000
		}
		return int32(v)
	case Int32:
		return int32(binary.LittleEndian.Uint32(b))
	case Float32:
		bits := binary.LittleEndian.Uint32(b)
		f := math.Float32frombits(bits)
		return scaleFloatToInt32(f)
	default:
		return 0
	}
}

// scaleFloatToInt32 scales a [-1.0, 1.0] float sample into the full i32
// range, matching the "Float32 is stored pre-scaled into i32" contract in
// spec.md's PCM buffer entity.
func scaleFloatToInt32(f float32) int32 {
	scaled := float64(f) * float64(math.MaxInt32)
	if scaled > float64(math.MaxInt32) {
		return math.MaxInt32
	}
	if scaled < float64(math.MinInt32) {
		return math.MinInt32
	}
	return int32(scaled)
}

func encodeSample(buf []byte, sample int32, format SampleFormat) {
	switch format {
	case Int16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(sample)))
	case Int24:
		buf[0] = byte(sample)
		buf[1] = byte(sample >> 8)
		buf[2] = byte(sample >> 16)
	case Int32:
		binary.LittleEndian.PutUint32(buf, uint32(sample))
	case Float32:
		f := float32(float64(sample) / float64(math.MaxInt32))
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
	}
}

// DecodePCMData de-interleaves a raw little-endian PCM byte slice into
// per-channel int32 samples, for callers (e.g. internal/adm) that parse
// their own container framing but want the shared sample codec.
func DecodePCMData(raw []byte, channels int, format SampleFormat) ([][]int32, error) {
	bytesPerSample := format.BitsPerSample() / 8
	blockAlign := bytesPerSample * channels
	if blockAlign == 0 || len(raw)%blockAlign != 0 {
		return nil, fmt.Errorf("pcm: data size %d not a multiple of block align %d", len(raw), blockAlign)
	}
	frameCount := len(raw) / blockAlign
	chans := make([][]int32, channels)
	for c := range chans {
		chans[c] = make([]int32, frameCount)
	}
	if err := decodeInterleaved(raw, chans, bytesPerSample, format); err != nil {
		return nil, err
	}
	return chans, nil
}

// EncodePCMData interleaves per-channel int32 samples into a raw
// little-endian PCM byte slice, the inverse of DecodePCMData.
func EncodePCMData(chans [][]int32, format SampleFormat) ([]byte, error) {
	bytesPerSample := format.BitsPerSample() / 8
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("pcm: unsupported sample format %s", format)
	}
	channels := len(chans)
	if channels == 0 {
		return nil, fmt.Errorf("pcm: no channels to encode")
	}
	frameCount := len(chans[0])
	blockAlign := bytesPerSample * channels
	out := make([]byte, frameCount*blockAlign)
	frame := make([]byte, bytesPerSample)
	for i := 0; i < frameCount; i++ {
		for c := 0; c < channels; c++ {
			encodeSample(frame, chans[c][i], format)
			copy(out[(i*channels+c)*bytesPerSample:], frame)
		}
	}
	return out, nil
}

// FormatFromBitsPerSample maps an integer-PCM bit depth to a SampleFormat.
func FormatFromBitsPerSample(bits int) (SampleFormat, error) {
	switch bits {
	case 16:
		return Int16, nil
	case 24:
		return Int24, nil
	case 32:
		return Int32, nil
	default:
		return 0, fmt.Errorf("pcm: unsupported integer PCM bit depth %d", bits)
	}
}

// ToWavBytes serializes the buffer to a standard RIFF/WAVE byte stream:
// integer PCM for Int16/Int24/Int32, IEEE float for Float32.
func (b *Buffer) ToWavBytes() ([]byte, error) {
	bytesPerSample := b.Format.BitsPerSample() / 8
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("pcm: unsupported sample format %s", b.Format)
	}
	numChannels := b.NumChannels()
	blockAlign := bytesPerSample * numChannels
	dataSize := b.NumSamples() * blockAlign
	byteRate := int(b.SampleRate) * blockAlign

	formatTag := uint16(wavFmtPCM)
	if b.Format == Float32 {
		formatTag = wavFmtIEEEFloat
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	writeUint32(&buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32(&buf, 16)
	writeUint16(&buf, formatTag)
	writeUint16(&buf, uint16(numChannels))
	writeUint32(&buf, b.SampleRate)
	writeUint32(&buf, uint32(byteRate))
	writeUint16(&buf, uint16(blockAlign))
	writeUint16(&buf, uint16(b.Format.BitsPerSample()))

	buf.WriteString("data")
	writeUint32(&buf, uint32(dataSize))

	frame := make([]byte, bytesPerSample)
	n := b.NumSamples()
	for i := 0; i < n; i++ {
		for c := 0; c < numChannels; c++ {
			encodeSample(frame, b.Channels[c][i], b.Format)
			buf.Write(frame)
		}
	}
	return buf.Bytes(), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// ToWav writes the buffer as a WAV file at path.
func (b *Buffer) ToWav(path string) error {
	data, err := b.ToWavBytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pcm: write %s: %w", path, err)
	}
	return nil
}

// FromWav reads and parses a WAV file at path.
func FromWav(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pcm: read %s: %w", path, err)
	}
	return FromWavBytes(data)
}
