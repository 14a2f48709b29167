package adm

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/SakuzyPeng/awmkit/internal/pcm"
)

func buildADMRiffWave() []byte {
	var fmtPayload []byte
	fmtPayload = append(fmtPayload, 1, 0) // PCM
	fmtPayload = append(fmtPayload, 2, 0) // channels
	fmtPayload = append(fmtPayload, 0x80, 0xBB, 0, 0)
	fmtPayload = append(fmtPayload, 0, 0x70, 0x06, 0)
	fmtPayload = append(fmtPayload, 6, 0)  // block align
	fmtPayload = append(fmtPayload, 24, 0) // bits

	dataPayload := []byte{
		1, 0, 0, 2, 0, 0,
		3, 0, 0, 4, 0, 0,
		5, 0, 0, 6, 0, 0,
	}

	var chunks []byte
	chunks = pushChunk(chunks, sigFMT, fmtPayload, nil)
	chunks = pushChunk(chunks, sigBEXT, []byte("bextv1"), nil)
	chunks = pushChunk(chunks, sigAXML, []byte("<adm/>"), nil)
	chunks = pushChunk(chunks, sigCHNA, []byte{1, 0, 0, 0}, nil)
	chunks = pushChunk(chunks, [4]byte{'z', 'z', 'z', 'z'}, []byte{9, 8, 7, 6, 5}, nil)
	chunks = pushChunk(chunks, sigDATA, dataPayload, nil)

	out := make([]byte, 0, 12+len(chunks))
	out = append(out, sigRIFF[:]...)
	riffSize := uint32(len(chunks) + 4)
	out = append(out, byte(riffSize), byte(riffSize>>8), byte(riffSize>>16), byte(riffSize>>24))
	out = append(out, sigWAVE[:]...)
	out = append(out, chunks...)
	return out
}

func TestRewriteWithTransformPreservesNonDataChunks(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.wav")
	outputPath := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(inputPath, buildADMRiffWave(), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	idx, err := ParseChunkIndex(inputPath)
	if err != nil || idx == nil {
		t.Fatalf("ParseChunkIndex: idx=%v err=%v", idx, err)
	}

	err = RewriteWithTransform(inputPath, outputPath, idx, func(buf *pcm.Buffer) (*pcm.Buffer, error) {
		buf.Channels[0][0] += 111
		return buf, nil
	})
	if err != nil {
		t.Fatalf("RewriteWithTransform: %v", err)
	}

	before, err := os.ReadFile(inputPath)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	after, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("length changed: %d -> %d", len(before), len(after))
	}

	offset := int(idx.DataChunk.DataOffset)
	size := int(idx.DataChunk.Size)
	zeroedBefore := append([]byte(nil), before...)
	zeroedAfter := append([]byte(nil), after...)
	for i := offset; i < offset+size; i++ {
		zeroedBefore[i] = 0
		zeroedAfter[i] = 0
	}
	if !bytes.Equal(zeroedBefore, zeroedAfter) {
		t.Fatalf("non-data bytes changed after rewrite")
	}
	if bytes.Equal(before[offset:offset+size], after[offset:offset+size]) {
		t.Fatalf("expected data chunk bytes to change")
	}
}

func TestRewriteWithTransformRejectsChannelCountChange(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "in.wav")
	outputPath := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(inputPath, buildADMRiffWave(), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	idx, err := ParseChunkIndex(inputPath)
	if err != nil || idx == nil {
		t.Fatalf("ParseChunkIndex: idx=%v err=%v", idx, err)
	}

	err = RewriteWithTransform(inputPath, outputPath, idx, func(buf *pcm.Buffer) (*pcm.Buffer, error) {
		buf.Channels = buf.Channels[:1]
		return buf, nil
	})
	if err == nil {
		t.Fatalf("expected error for channel count change")
	}
}

func TestRewriteWithTransformRejectsSameInputOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "same.wav")
	if err := os.WriteFile(path, buildADMRiffWave(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	idx, err := ParseChunkIndex(path)
	if err != nil || idx == nil {
		t.Fatalf("ParseChunkIndex: idx=%v err=%v", idx, err)
	}
	err = RewriteWithTransform(path, path, idx, func(buf *pcm.Buffer) (*pcm.Buffer, error) { return buf, nil })
	if err == nil {
		t.Fatalf("expected error for same input/output path")
	}
}
