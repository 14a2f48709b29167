package proof

import (
	"context"
	"math"
	"testing"
)

func TestNormalizeSampleIsBounded(t *testing.T) {
	value := normalizeSample(math.MaxInt16)
	if !(value > 0.99 && value <= 1.0) {
		t.Fatalf("normalizeSample(MaxInt16) = %v, want in (0.99, 1.0]", value)
	}
}

func TestSnrAnalysisOKHelperSetsStatus(t *testing.T) {
	value := snrOK(12.34)
	if value.Status != SnrStatusOK {
		t.Fatalf("status = %q, want %q", value.Status, SnrStatusOK)
	}
	if value.SNRdB == nil || *value.SNRdB != 12.34 {
		t.Fatalf("unexpected SNRdB: %v", value.SNRdB)
	}
}

func TestSnrAnalysisUnavailableHelperSetsDetail(t *testing.T) {
	value := snrUnavailable("empty_audio")
	if value.Status != SnrStatusUnavailable {
		t.Fatalf("status = %q, want %q", value.Status, SnrStatusUnavailable)
	}
	if value.Detail == nil || *value.Detail != "empty_audio" {
		t.Fatalf("unexpected detail: %v", value.Detail)
	}
	if value.SNRdB != nil {
		t.Fatalf("expected nil SNRdB for unavailable status")
	}
}

func TestClampFloatBounds(t *testing.T) {
	if got := clampFloat(-1000, -60, 120); got != -60 {
		t.Fatalf("clampFloat below range = %v, want -60", got)
	}
	if got := clampFloat(1000, -60, 120); got != 120 {
		t.Fatalf("clampFloat above range = %v, want 120", got)
	}
	if got := clampFloat(10, -60, 120); got != 10 {
		t.Fatalf("clampFloat within range = %v, want 10", got)
	}
}

func TestAnalyzeSNRUnavailableWhenInputUndecodable(t *testing.T) {
	result := AnalyzeSNR(context.Background(), "/nonexistent/input.wav", "/nonexistent/output.wav")
	if result.Status != SnrStatusUnavailable {
		t.Fatalf("status = %q, want %q", result.Status, SnrStatusUnavailable)
	}
	if result.SNRdB != nil {
		t.Fatalf("expected nil SNRdB when decode fails")
	}
}

func TestBytesToI16LETruncatesOddTrailingByte(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03}
	got := bytesToI16LE(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 decoded sample, got %d", len(got))
	}
	if got[0] != int16(0x0201) {
		t.Fatalf("unexpected decoded sample: %d", got[0])
	}
}
