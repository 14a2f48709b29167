package tag

import (
	"errors"
	"testing"
)

func TestNewPadsAndChecksums(t *testing.T) {
	tg, err := New("AB3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tg.Identity() != "AB3" {
		t.Fatalf("Identity() = %q, want AB3", tg.Identity())
	}
	if len(tg.String()) != Len {
		t.Fatalf("String() length = %d, want %d", len(tg.String()), Len)
	}
	if err := tg.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestNewRejectsTooLong(t *testing.T) {
	if _, err := New("ABCDEFGH"); err == nil {
		t.Fatalf("expected error for 8-char identity")
	}
}

func TestNewRejectsInvalidChar(t *testing.T) {
	if _, err := New("A1B"); err == nil {
		t.Fatalf("expected error for invalid character '1'")
	}
}

func TestParseRoundTrip(t *testing.T) {
	tg, err := New("HENRY")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	parsed, err := Parse(tg.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Identity() != "HENRY" {
		t.Fatalf("Identity() = %q, want HENRY", parsed.Identity())
	}
}

func TestParseDetectsChecksumMismatch(t *testing.T) {
	tg, err := New("HENRY")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := tg.String()
	// Flip the checksum character to something else valid-but-wrong.
	broken := s[:Len-1] + flipChar(s[Len-1])
	_, err = Parse(broken)
	if err == nil {
		t.Fatalf("expected checksum mismatch error")
	}
	var cm *ChecksumMismatchError
	if !errors.As(err, &cm) {
		t.Fatalf("expected *ChecksumMismatchError, got %T", err)
	}
}

func flipChar(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}

func TestPackedRoundTrip(t *testing.T) {
	tg, err := New("PACKED")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	packed := tg.ToPacked()
	unpacked, err := FromPacked(packed)
	if err != nil {
		t.Fatalf("FromPacked: %v", err)
	}
	if unpacked.String() != tg.String() {
		t.Fatalf("round trip mismatch: got %q want %q", unpacked.String(), tg.String())
	}
}

func TestFromPackedDetectsCorruption(t *testing.T) {
	tg, err := New("PACKED")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	packed := tg.ToPacked()
	packed[0] ^= 0xFF
	if _, err := FromPacked(packed); err == nil {
		t.Fatalf("expected error decoding corrupted packed tag")
	}
}
