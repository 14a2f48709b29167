package evidence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// compressThreshold is the raw blob size above which a chromaprint
// fingerprint is brotli-compressed before being stored. Most fingerprints
// are well under this; only long recordings produce large enough
// fingerprint sequences to be worth the extra CPU at read time.
const compressThreshold = 4096

// encodeChromaprintBlob packs a fingerprint as little-endian u32s,
// brotli-compressing it when that raw form exceeds compressThreshold.
func encodeChromaprintBlob(fingerprint []uint32) (blob []byte, compressed bool) {
	raw := make([]byte, len(fingerprint)*4)
	for i, v := range fingerprint {
		binary.LittleEndian.PutUint32(raw[i*4:], v)
	}
	if len(raw) <= compressThreshold {
		return raw, false
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(raw); err != nil {
		return raw, false
	}
	if err := w.Close(); err != nil {
		return raw, false
	}
	return buf.Bytes(), true
}

// decodeChromaprintBlob reverses encodeChromaprintBlob.
func decodeChromaprintBlob(blob []byte, compressed bool) ([]uint32, error) {
	raw := blob
	if compressed {
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(blob)))
		if err != nil {
			return nil, fmt.Errorf("brotli decompress: %w", err)
		}
		raw = decoded
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid chromaprint blob length %d", len(raw))
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}
