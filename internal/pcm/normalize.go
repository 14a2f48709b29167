package pcm

import "encoding/binary"

// NormalizePipeBytes repairs wav-pipe's streaming RIFF/data size markers
// (written as 0xFFFFFFFF because the true length isn't known until the
// stream ends). If data is already a normal, non-0xFFFFFFFF-sized RIFF/WAVE
// stream, it is returned unchanged (no copy) — this is the idempotence
// invariant spec.md §8.11 requires.
//
// When normalization is needed, the RIFF size is set to len(data)-8 and,
// once a data chunk declaring 0xFFFFFFFF is found, its size is set to
// (remaining bytes) truncated down to a whole multiple of the fmt chunk's
// block_align — stripping any trailing WAV pad byte. This mirrors
// original_source/src/multichannel.rs's normalize_wav_pipe_sizes, which is
// a distinct, stricter algorithm from the oracle-stdout-only normalizer in
// internal/oracle (see DESIGN.md Open Question #3).
func NormalizePipeBytes(data []byte) []byte {
	if len(data) < 12 {
		return data
	}
	sig := string(data[0:4])
	if (sig != "RIFF" && sig != "RF64" && sig != "BW64") || string(data[8:12]) != "WAVE" {
		return data
	}
	if data[4] != 0xFF || data[5] != 0xFF || data[6] != 0xFF || data[7] != 0xFF {
		return data
	}

	patched := make([]byte, len(data))
	copy(patched, data)
	binary.LittleEndian.PutUint32(patched[4:8], uint32(len(patched)-8))

	var blockAlign uint16
	pos := 12
	for pos+8 <= len(patched) {
		id := string(patched[pos : pos+4])
		chunkSize := binary.LittleEndian.Uint32(patched[pos+4 : pos+8])

		if id == "fmt " && pos+20+2 <= len(patched) {
			blockAlign = binary.LittleEndian.Uint16(patched[pos+20 : pos+22])
		}

		if id == "data" {
			if chunkSize == 0xFFFFFFFF {
				raw := uint32(len(patched) - (pos + 8))
				dataSize := raw
				if blockAlign > 0 {
					dataSize = raw - (raw % uint32(blockAlign))
				}
				binary.LittleEndian.PutUint32(patched[pos+4:pos+8], dataSize)
			}
			break
		}

		padded := int(chunkSize) + int(chunkSize&1)
		next := pos + 8 + padded
		if next <= pos {
			break
		}
		pos = next
	}
	return patched
}
