package oracle

import (
	"encoding/binary"
	"fmt"
	"os"
)

// validateWavOutputFile checks that an oracle-produced output file opens
// with a recognizable RIFF/RF64/BW64 + WAVE header.
func validateWavOutputFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("oracle: open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := f.Read(header); err != nil {
		return fmt.Errorf("oracle: read output header: %w", err)
	}
	if !looksLikeWavStream(header) {
		return &ExecError{Op: "embed (pipe)", Err: fmt.Errorf("pipe output is not a valid WAV stream")}
	}
	return nil
}

// normalizeWavPipeFileInPlace applies normalizeOracleOutput's RIFF/data
// size repair directly to a file on disk, rather than buffering it in
// memory first, for the streaming embed-to-file path.
func normalizeWavPipeFileInPlace(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("oracle: open %s for size repair: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("oracle: stat %s: %w", path, err)
	}
	fileLen := info.Size()
	if fileLen < 12 {
		return nil
	}

	header := make([]byte, 12)
	if _, err := f.ReadAt(header, 0); err != nil {
		return fmt.Errorf("oracle: read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil
	}
	if header[4] != 0xFF || header[5] != 0xFF || header[6] != 0xFF || header[7] != 0xFF {
		return nil
	}

	var riffSize [4]byte
	binary.LittleEndian.PutUint32(riffSize[:], uint32(fileLen-8))
	if _, err := f.WriteAt(riffSize[:], 4); err != nil {
		return fmt.Errorf("oracle: write riff size: %w", err)
	}

	pos := int64(12)
	for pos+8 <= fileLen {
		chunkHeader := make([]byte, 8)
		if _, err := f.ReadAt(chunkHeader, pos); err != nil {
			return fmt.Errorf("oracle: read chunk header: %w", err)
		}
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if string(chunkHeader[0:4]) == "data" {
			var dataSize [4]byte
			binary.LittleEndian.PutUint32(dataSize[:], uint32(fileLen-(pos+8)))
			if _, err := f.WriteAt(dataSize[:], pos+4); err != nil {
				return fmt.Errorf("oracle: write data size: %w", err)
			}
			break
		}

		padded := int64(chunkSize) + int64(chunkSize&1)
		next := pos + 8 + padded
		if next <= pos {
			break
		}
		pos = next
	}
	return nil
}
