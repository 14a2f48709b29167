// Package pcm implements the canonical PCM buffer — planar i32 samples per
// channel plus rate and format — along with WAV read/write, FLAC read, and
// the two WAV-pipe size-field normalizers the oracle bridge and general
// byte-stream loading each need. Grounded on
// original_source/src/multichannel.rs.
package pcm

import "fmt"

// SampleFormat identifies how a canonical i32 sample should be interpreted.
// Int24 values occupy the low 24 bits of the i32, sign-extended; Float32
// values are stored pre-scaled into an i32 range.
type SampleFormat int

const (
	Int16 SampleFormat = iota
	Int24
	Int32
	Float32
)

func (f SampleFormat) String() string {
	switch f {
	case Int16:
		return "Int16"
	case Int24:
		return "Int24"
	case Int32:
		return "Int32"
	case Float32:
		return "Float32"
	default:
		return "Unknown"
	}
}

// BitsPerSample returns the on-wire bit depth for f.
func (f SampleFormat) BitsPerSample() int {
	switch f {
	case Int16:
		return 16
	case Int24:
		return 24
	case Int32, Float32:
		return 32
	default:
		return 0
	}
}

// ChannelLayout names a recognized multichannel speaker configuration.
type ChannelLayout int

const (
	LayoutStereo ChannelLayout = iota
	LayoutSurround51
	LayoutSurround512
	LayoutSurround71
	LayoutSurround712
	LayoutSurround714
	LayoutSurround916
	LayoutCustom
)

func (l ChannelLayout) String() string {
	switch l {
	case LayoutStereo:
		return "stereo"
	case LayoutSurround51:
		return "5.1"
	case LayoutSurround512:
		return "5.1.2"
	case LayoutSurround71:
		return "7.1"
	case LayoutSurround712:
		return "7.1.2"
	case LayoutSurround714:
		return "7.1.4"
	case LayoutSurround916:
		return "9.1.6"
	default:
		return "custom"
	}
}

// LayoutFromChannelCount infers a ChannelLayout from a bare channel count,
// following the table in spec.md C8. Layouts that don't disambiguate by
// count alone (5.1 vs. other 6-channel beds) default to the first match in
// the reference table.
func LayoutFromChannelCount(n int) ChannelLayout {
	switch n {
	case 2:
		return LayoutStereo
	case 6:
		return LayoutSurround51
	case 8:
		return LayoutSurround512 // disambiguated from 7.1 by caller when ADM labels are available
	case 10:
		return LayoutSurround712
	case 12:
		return LayoutSurround714
	case 16:
		return LayoutSurround916
	default:
		return LayoutCustom
	}
}

// Buffer is the canonical PCM representation: one equal-length i32 sequence
// per channel, a sample rate, and a sample format.
type Buffer struct {
	Channels   [][]int32
	SampleRate uint32
	Format     SampleFormat
}

// New validates that every channel in channels has equal length and
// constructs a Buffer.
func New(channels [][]int32, sampleRate uint32, format SampleFormat) (*Buffer, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("pcm: buffer must have at least one channel")
	}
	n := len(channels[0])
	for i, ch := range channels {
		if len(ch) != n {
			return nil, fmt.Errorf("pcm: channel %d has length %d, want %d", i, len(ch), n)
		}
	}
	return &Buffer{Channels: channels, SampleRate: sampleRate, Format: format}, nil
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// NumSamples returns the per-channel sample count.
func (b *Buffer) NumSamples() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Layout infers this buffer's ChannelLayout from its channel count.
func (b *Buffer) Layout() ChannelLayout { return LayoutFromChannelCount(b.NumChannels()) }

// InterleavedSamples returns samples interleaved frame-by-frame:
// [ch0[0], ch1[0], ..., chN[0], ch0[1], ch1[1], ...].
func (b *Buffer) InterleavedSamples() []int32 {
	n := b.NumSamples()
	c := b.NumChannels()
	out := make([]int32, 0, n*c)
	for i := 0; i < n; i++ {
		for ch := 0; ch < c; ch++ {
			out = append(out, b.Channels[ch][i])
		}
	}
	return out
}

// ChannelSamples returns channel i's samples.
func (b *Buffer) ChannelSamples(i int) ([]int32, error) {
	if i < 0 || i >= len(b.Channels) {
		return nil, fmt.Errorf("pcm: channel index %d out of range", i)
	}
	return b.Channels[i], nil
}

// ReplaceChannelSamples overwrites channel i's samples with samples, which
// must have the same length as the buffer's existing channels.
func (b *Buffer) ReplaceChannelSamples(i int, samples []int32) error {
	if i < 0 || i >= len(b.Channels) {
		return fmt.Errorf("pcm: channel index %d out of range", i)
	}
	if len(samples) != b.NumSamples() {
		return fmt.Errorf("pcm: replacement channel length %d, want %d", len(samples), b.NumSamples())
	}
	b.Channels[i] = samples
	return nil
}

// SplitStereoPairs extracts (left, right) sample slices for the given
// channel index pair, copying so the caller owns independent slices (per
// spec.md §9's "one owner at a time" PCM-buffer ownership rule).
func (b *Buffer) SplitStereoPairs(left, right int) ([]int32, []int32, error) {
	l, err := b.ChannelSamples(left)
	if err != nil {
		return nil, nil, err
	}
	r, err := b.ChannelSamples(right)
	if err != nil {
		return nil, nil, err
	}
	lc := make([]int32, len(l))
	rc := make([]int32, len(r))
	copy(lc, l)
	copy(rc, r)
	return lc, rc, nil
}

// MergeStereoPairs builds a new 2-channel Buffer from independently-owned
// left/right sample slices.
func MergeStereoPairs(left, right []int32, sampleRate uint32, format SampleFormat) (*Buffer, error) {
	return New([][]int32{left, right}, sampleRate, format)
}
