package oracle

import "encoding/binary"

// looksLikeWavStream reports whether bytes open with a RIFF/RF64/BW64 +
// WAVE header, without validating anything past the 12-byte container
// signature.
func looksLikeWavStream(b []byte) bool {
	if len(b) < 12 {
		return false
	}
	sig := string(b[0:4])
	return (sig == "RIFF" || sig == "RF64" || sig == "BW64") && string(b[8:12]) == "WAVE"
}

// normalizeOracleOutput repairs a wav-pipe stream's streaming-unknown-size
// RIFF/data markers (0xFFFFFFFF) into real sizes based on the number of
// bytes actually present. Unlike internal/pcm.NormalizePipeBytes, this does
// not consult the fmt chunk's block_align — the data chunk's size is set to
// the literal remaining byte count. This is intentionally the simpler,
// non-block-aligned sibling documented in DESIGN.md's Open Question #3; the
// two must not be collapsed into one implementation.
func normalizeOracleOutput(data []byte) []byte {
	if len(data) < 12 || string(data[0:4]) != "RIFF" {
		return data
	}
	if data[4] != 0xFF || data[5] != 0xFF || data[6] != 0xFF || data[7] != 0xFF {
		return data
	}

	out := make([]byte, len(data))
	copy(out, data)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))

	pos := 12
	for pos+8 <= len(out) {
		id := string(out[pos : pos+4])
		chunkSize := binary.LittleEndian.Uint32(out[pos+4 : pos+8])

		if id == "data" {
			dataSize := uint32(len(out) - (pos + 8))
			binary.LittleEndian.PutUint32(out[pos+4:pos+8], dataSize)
			break
		}

		padded := int(chunkSize) + int(chunkSize&1)
		next := pos + 8 + padded
		if next <= pos {
			break
		}
		pos = next
	}
	return out
}
