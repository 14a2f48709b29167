// Package adm indexes and rewrites RIFF/RF64/BW64 ADM/BWF audio files,
// preserving every chunk byte-for-byte except the PCM data chunk.
package adm

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Container identifies the outer RIFF form.
type Container int

const (
	ContainerRIFF Container = iota
	ContainerRF64
	ContainerBW64
)

func (c Container) String() string {
	switch c {
	case ContainerRF64:
		return "RF64"
	case ContainerBW64:
		return "BW64"
	default:
		return "RIFF"
	}
}

// ChunkEntry records one chunk's position and size within the file.
type ChunkEntry struct {
	ID         [4]byte
	HeaderOffset uint64
	DataOffset   uint64
	Size         uint64
	PaddedSize   uint64
}

// PCMFormat is the subset of the fmt chunk awmkit cares about.
type PCMFormat struct {
	Channels       uint16
	SampleRate     uint32
	BitsPerSample  uint16
	BlockAlign     uint16
	BytesPerSample uint16
}

// ChunkIndex is the result of walking a file's chunk structure once.
type ChunkIndex struct {
	Container Container
	FileSize  uint64
	Chunks    []ChunkEntry
	Fmt       PCMFormat
	DataChunk ChunkEntry
	HasBext   bool
	HasAxml   bool
	HasChna   bool
	HasIXML   bool
}

// IsADMOrBWF reports whether the file carries ADM object-routing metadata
// (axml) or channel-numbering metadata (chna). A file with only bext is
// plain BWF and doesn't need this path — the ordinary WAV decode suffices.
func (idx *ChunkIndex) IsADMOrBWF() bool {
	return idx.HasAxml || idx.HasChna
}

const u32Max = 0xFFFFFFFF

var (
	sigRIFF = [4]byte{'R', 'I', 'F', 'F'}
	sigRF64 = [4]byte{'R', 'F', '6', '4'}
	sigBW64 = [4]byte{'B', 'W', '6', '4'}
	sigWAVE = [4]byte{'W', 'A', 'V', 'E'}
	sigDS64 = [4]byte{'d', 's', '6', '4'}
	sigFMT  = [4]byte{'f', 'm', 't', ' '}
	sigDATA = [4]byte{'d', 'a', 't', 'a'}
	sigAXML = [4]byte{'a', 'x', 'm', 'l'}
	sigCHNA = [4]byte{'c', 'h', 'n', 'a'}
	sigBEXT = [4]byte{'b', 'e', 'x', 't'}
	sigIXML = [4]byte{'i', 'X', 'M', 'L'}
)

// ParseChunkIndex walks path's RIFF/RF64/BW64 chunk structure. It returns
// (nil, nil) for a file that isn't a recognized RIFF/WAVE container at all,
// distinguishing "not a WAV-family file" from a malformed one.
func ParseChunkIndex(path string) (*ChunkIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("adm: open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("adm: stat %s: %w", path, err)
	}
	fileSize := uint64(info.Size())
	if fileSize < 12 {
		return nil, nil
	}

	var header [12]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("adm: read RIFF header: %w", err)
	}
	var sig, form [4]byte
	copy(sig[:], header[0:4])
	copy(form[:], header[8:12])

	var container Container
	switch sig {
	case sigRIFF:
		container = ContainerRIFF
	case sigRF64:
		container = ContainerRF64
	case sigBW64:
		container = ContainerBW64
	default:
		return nil, nil
	}
	if form != sigWAVE {
		return nil, nil
	}

	parseEnd := fileSize
	if container == ContainerRIFF {
		riffSize := uint64(binary.LittleEndian.Uint32(header[4:8]))
		end := 8 + riffSize
		if end < fileSize {
			parseEnd = end
		}
	} else if binary.LittleEndian.Uint32(header[4:8]) != u32Max {
		return nil, fmt.Errorf("adm: RF64/BW64 header requires 0xFFFFFFFF size marker")
	}

	cursor := uint64(12)
	var dataSizeOverride *uint64

	if container == ContainerRF64 || container == ContainerBW64 {
		id, size, err := readChunkHeader(f, cursor)
		if err != nil {
			return nil, err
		}
		if id != sigDS64 {
			return nil, fmt.Errorf("adm: RF64/BW64 requires ds64 as first chunk")
		}
		if size < 28 {
			return nil, fmt.Errorf("adm: invalid ds64 chunk: payload shorter than 28 bytes")
		}
		if cursor+8+uint64(size) > fileSize {
			return nil, fmt.Errorf("adm: ds64 chunk size %d exceeds file size", size)
		}
		payload := make([]byte, size)
		if _, err := f.ReadAt(payload, int64(cursor+8)); err != nil {
			return nil, fmt.Errorf("adm: read ds64 payload: %w", err)
		}
		riffSize64 := binary.LittleEndian.Uint64(payload[0:8])
		dataSize64 := binary.LittleEndian.Uint64(payload[8:16])
		dataSizeOverride = &dataSize64

		end := 8 + riffSize64
		if end < fileSize {
			parseEnd = end
		} else {
			parseEnd = fileSize
		}
		cursor += 8 + uint64(size) + uint64(size&1)
	}

	var chunks []ChunkEntry
	for cursor+8 <= parseEnd && cursor+8 <= fileSize {
		id, sizeField, err := readChunkHeader(f, cursor)
		if err != nil {
			return nil, err
		}
		size := uint64(sizeField)
		if id == sigDATA && size == u32Max {
			if dataSizeOverride == nil {
				return nil, fmt.Errorf("adm: data chunk uses RF64 size marker but ds64 has no size")
			}
			size = *dataSizeOverride
		}
		dataOffset := cursor + 8
		padded := size + (size & 1)
		next := dataOffset + padded
		if next > fileSize {
			return nil, fmt.Errorf("adm: chunk %s exceeds file size", fourCCString(id))
		}
		chunks = append(chunks, ChunkEntry{
			ID:           id,
			HeaderOffset: cursor,
			DataOffset:   dataOffset,
			Size:         size,
			PaddedSize:   padded,
		})
		cursor = next
	}

	fmtChunk, ok := findChunk(chunks, sigFMT)
	if !ok {
		return nil, fmt.Errorf("adm: missing fmt chunk in ADM/BWF candidate")
	}
	dataChunk, ok := findChunk(chunks, sigDATA)
	if !ok {
		return nil, fmt.Errorf("adm: missing data chunk in ADM/BWF candidate")
	}
	pcmFmt, err := readPCMFormat(f, fmtChunk)
	if err != nil {
		return nil, err
	}
	if pcmFmt.BlockAlign == 0 || dataChunk.Size%uint64(pcmFmt.BlockAlign) != 0 {
		return nil, fmt.Errorf("adm: data chunk is not aligned to block_align=%d bytes", pcmFmt.BlockAlign)
	}

	idx := &ChunkIndex{
		Container: container,
		FileSize:  fileSize,
		Chunks:    chunks,
		Fmt:       pcmFmt,
		DataChunk: dataChunk,
	}
	for _, c := range chunks {
		switch c.ID {
		case sigBEXT:
			idx.HasBext = true
		case sigAXML:
			idx.HasAxml = true
		case sigCHNA:
			idx.HasChna = true
		case sigIXML:
			idx.HasIXML = true
		}
	}
	return idx, nil
}

// ProbeADMOrBWF parses path and returns its ChunkIndex only if it actually
// carries ADM metadata (axml/chna), after a structural XML-well-formedness
// check of the axml payload. It returns (nil, nil) for anything else
// (not RIFF/WAVE, or RIFF/WAVE without ADM chunks).
func ProbeADMOrBWF(path string) (*ChunkIndex, error) {
	idx, err := ParseChunkIndex(path)
	if err != nil {
		return nil, err
	}
	if idx == nil || !idx.IsADMOrBWF() {
		return nil, nil
	}
	if idx.HasAxml {
		axml, err := ReadChunkPayload(path, idx, sigAXML)
		if err != nil {
			return nil, fmt.Errorf("adm: read axml chunk: %w", err)
		}
		if _, err := ParseADMMaps(axml); err != nil {
			return nil, fmt.Errorf("adm: axml is not well-formed XML: %w", err)
		}
	}
	return idx, nil
}

func findChunk(chunks []ChunkEntry, id [4]byte) (ChunkEntry, bool) {
	for _, c := range chunks {
		if c.ID == id {
			return c, true
		}
	}
	return ChunkEntry{}, false
}

func readChunkHeader(f *os.File, offset uint64) (id [4]byte, size uint32, err error) {
	var header [8]byte
	if _, err := f.ReadAt(header[:], int64(offset)); err != nil {
		return id, 0, fmt.Errorf("adm: read chunk header at %d: %w", offset, err)
	}
	copy(id[:], header[0:4])
	size = binary.LittleEndian.Uint32(header[4:8])
	return id, size, nil
}

const pcmFormatTag = 1
const extensibleFormatTag = 0xFFFE

var pcmGUIDTail = [14]byte{0, 0, 0, 0, 16, 0, 128, 0, 0, 170, 0, 56, 155, 113}

func readPCMFormat(f *os.File, chunk ChunkEntry) (PCMFormat, error) {
	if chunk.Size < 16 {
		return PCMFormat{}, fmt.Errorf("adm: invalid fmt chunk: payload shorter than 16 bytes")
	}
	payload := make([]byte, chunk.Size)
	if _, err := f.ReadAt(payload, int64(chunk.DataOffset)); err != nil {
		return PCMFormat{}, fmt.Errorf("adm: read fmt chunk: %w", err)
	}

	formatTag := binary.LittleEndian.Uint16(payload[0:2])
	channels := binary.LittleEndian.Uint16(payload[2:4])
	sampleRate := binary.LittleEndian.Uint32(payload[4:8])
	blockAlign := binary.LittleEndian.Uint16(payload[12:14])
	bitsPerSample := binary.LittleEndian.Uint16(payload[14:16])
	if channels == 0 || sampleRate == 0 || blockAlign == 0 {
		return PCMFormat{}, fmt.Errorf("adm: invalid fmt chunk: zero channels/sample_rate/block_align")
	}
	if bitsPerSample != 16 && bitsPerSample != 24 && bitsPerSample != 32 {
		return PCMFormat{}, fmt.Errorf("adm: unsupported bits_per_sample=%d; expected 16/24/32", bitsPerSample)
	}

	isPCM := false
	switch formatTag {
	case pcmFormatTag:
		isPCM = true
	case extensibleFormatTag:
		if len(payload) < 40 {
			return PCMFormat{}, fmt.Errorf("adm: invalid extensible fmt chunk: payload shorter than 40 bytes")
		}
		subformat := payload[24:40]
		isPCM = subformat[0] == 1 && subformat[1] == 0 && bytesEqual(subformat[2:], pcmGUIDTail[:])
	}
	if !isPCM {
		return PCMFormat{}, fmt.Errorf("adm: unsupported PCM format tag=0x%04X; only integer PCM is supported", formatTag)
	}

	bytesPerSample := bitsPerSample / 8
	expectedBlock := channels * bytesPerSample
	if expectedBlock != blockAlign {
		return PCMFormat{}, fmt.Errorf("adm: block_align mismatch: got %d, expected %d", blockAlign, expectedBlock)
	}

	return PCMFormat{
		Channels:       channels,
		SampleRate:     sampleRate,
		BitsPerSample:  bitsPerSample,
		BlockAlign:     blockAlign,
		BytesPerSample: bytesPerSample,
	}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fourCCString(id [4]byte) string {
	return string(id[:])
}

// ReadChunkPayload reads a single chunk's raw bytes (by 4CC) from path,
// using an already-parsed index to locate it.
func ReadChunkPayload(path string, idx *ChunkIndex, id [4]byte) ([]byte, error) {
	chunk, ok := findChunk(idx.Chunks, id)
	if !ok {
		return nil, fmt.Errorf("adm: chunk %s not present", fourCCString(id))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("adm: open %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, chunk.Size)
	if _, err := f.ReadAt(buf, int64(chunk.DataOffset)); err != nil {
		return nil, fmt.Errorf("adm: read chunk %s: %w", fourCCString(id), err)
	}
	return buf, nil
}
