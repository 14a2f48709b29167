// Package proof builds tamper-evident, content-addressed descriptors of an
// audio file: a deterministic PCM hash plus an acoustic fingerprint, used
// downstream to tell an exact byte-identical copy from a re-encoded one.
package proof

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/SakuzyPeng/awmkit/internal/pcm"
)

// AudioProof is a content-addressed summary of one decoded audio file.
type AudioProof struct {
	SampleRate  uint32
	Channels    uint32
	SampleCount uint64
	PCMSha256   string
	Chromaprint []uint32
	FPConfigID  uint8
}

// Fingerprinter computes an acoustic fingerprint over mono/stereo i16
// samples, the same input shape a chromaprint-compatible tool expects.
// Implementations shell out to an external binary (e.g. fpcalc) since no
// pure-Go chromaprint implementation is available.
type Fingerprinter interface {
	Fingerprint(sampleRate uint32, channels uint32, samples []int16) (fingerprint []uint32, configID uint8, err error)
}

// BuildAudioProof decodes path, hashes its canonical PCM representation,
// and fingerprints it through fp.
func BuildAudioProof(path string, fp Fingerprinter) (*AudioProof, error) {
	buf, err := pcm.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("proof: decode %s: %w", path, err)
	}
	return buildFromBuffer(buf, fp)
}

func buildFromBuffer(buf *pcm.Buffer, fp Fingerprinter) (*AudioProof, error) {
	channels := uint32(buf.NumChannels())
	sampleCount := uint64(buf.NumSamples())
	interleaved := buf.InterleavedSamples()

	pcmSha256 := PCMSha256ForInterleaved(buf.SampleRate, channels, sampleCount, interleaved)
	samples16 := toI16Samples(interleaved, buf.Format)
	if len(samples16) == 0 {
		return nil, fmt.Errorf("proof: cannot build audio proof for empty audio")
	}

	chromaprint, configID, err := fp.Fingerprint(buf.SampleRate, channels, samples16)
	if err != nil {
		return nil, fmt.Errorf("proof: fingerprint: %w", err)
	}
	if len(chromaprint) == 0 {
		return nil, fmt.Errorf("proof: chromaprint fingerprint is empty")
	}

	return &AudioProof{
		SampleRate:  buf.SampleRate,
		Channels:    channels,
		SampleCount: sampleCount,
		PCMSha256:   pcmSha256,
		Chromaprint: chromaprint,
		FPConfigID:  configID,
	}, nil
}

// PCMSha256ForInterleaved hashes the sample-rate, channel count, sample
// count, and every interleaved sample — so a re-encode that changes any of
// those inputs changes the hash, even if the audible content is identical.
func PCMSha256ForInterleaved(sampleRate, channels uint32, sampleCount uint64, interleaved []int32) string {
	h := sha256.New()
	var u32 [4]byte
	var u64 [8]byte

	binary.LittleEndian.PutUint32(u32[:], sampleRate)
	h.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], channels)
	h.Write(u32[:])
	binary.LittleEndian.PutUint64(u64[:], sampleCount)
	h.Write(u64[:])
	for _, sample := range interleaved {
		binary.LittleEndian.PutUint32(u32[:], uint32(sample))
		h.Write(u32[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toI16Samples(samples []int32, format pcm.SampleFormat) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = sampleToI16(s, format)
	}
	return out
}

func sampleToI16(sample int32, format pcm.SampleFormat) int16 {
	var scaled int32
	switch format {
	case pcm.Int16:
		scaled = sample
	case pcm.Int24:
		scaled = sample >> 8
	default: // Int32, Float32 (already represented as scaled int32 samples)
		scaled = sample >> 16
	}
	const min32 = int32(-32768)
	const max32 = int32(32767)
	if scaled < min32 {
		return -32768
	}
	if scaled > max32 {
		return 32767
	}
	return int16(scaled)
}
