package evidence

import (
	"path/filepath"
	"testing"

	"github.com/SakuzyPeng/awmkit/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "awmkit.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := Open(db)
	if err != nil {
		t.Fatalf("evidence.Open: %v", err)
	}
	return s
}

func sampleRecord(identity string, keySlot uint8, sha256 string) *NewRecord {
	return &NewRecord{
		FilePath:         "/tmp/a.wav",
		Tag:              "ABCDEFGH",
		Identity:         identity,
		Version:          2,
		KeySlot:          keySlot,
		TimestampMinutes: 1234,
		MessageHex:       "00112233445566778899aabbccddeeff",
		SampleRate:       44_100,
		Channels:         2,
		SampleCount:      10_000,
		PCMSha256:        sha256,
		Chromaprint:      []uint32{1, 2, 3, 4},
		FPConfigID:       1,
	}
}

func TestChromaprintBlobRoundtrip(t *testing.T) {
	src := []uint32{0, 1, 42, 4294967295}
	blob, compressed := encodeChromaprintBlob(src)
	decoded, err := decodeChromaprintBlob(blob, compressed)
	if err != nil {
		t.Fatalf("decodeChromaprintBlob: %v", err)
	}
	if len(decoded) != len(src) {
		t.Fatalf("length mismatch: got %d, want %d", len(decoded), len(src))
	}
	for i := range src {
		if decoded[i] != src[i] {
			t.Fatalf("decoded[%d] = %d, want %d", i, decoded[i], src[i])
		}
	}
}

func TestChromaprintBlobCompressesLargeFingerprints(t *testing.T) {
	src := make([]uint32, 4096)
	for i := range src {
		src[i] = uint32(i)
	}
	blob, compressed := encodeChromaprintBlob(src)
	if !compressed {
		t.Fatalf("expected a large fingerprint to be compressed")
	}
	decoded, err := decodeChromaprintBlob(blob, compressed)
	if err != nil {
		t.Fatalf("decodeChromaprintBlob: %v", err)
	}
	if len(decoded) != len(src) {
		t.Fatalf("length mismatch: got %d, want %d", len(decoded), len(src))
	}
	for i := range src {
		if decoded[i] != src[i] {
			t.Fatalf("decoded[%d] = %d, want %d", i, decoded[i], src[i])
		}
	}
}

func TestUniqueConstraintIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)
	first := sampleRecord("TESTER", 0, "abc")
	second := sampleRecord("TESTER", 0, "abc")

	inserted, err := s.Insert(first)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.Insert(second)
	if err != nil || inserted {
		t.Fatalf("duplicate insert: inserted=%v err=%v, want false", inserted, err)
	}

	candidates, err := s.ListCandidates("TESTER", 0)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("len(candidates) = %d, want 1", len(candidates))
	}
}

func TestListCandidatesFiltersByIdentityAndSlot(t *testing.T) {
	s := openTestStore(t)
	target := sampleRecord("TARGET", 2, "s1")
	otherID := sampleRecord("OTHER", 2, "s2")
	otherSlot := sampleRecord("TARGET", 1, "s3")

	for _, rec := range []*NewRecord{target, otherID, otherSlot} {
		if _, err := s.Insert(rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	candidates, err := s.ListCandidates("TARGET", 2)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("len(candidates) = %d, want 1", len(candidates))
	}
	if candidates[0].Identity != "TARGET" || candidates[0].KeySlot != 2 {
		t.Fatalf("unexpected candidate: %+v", candidates[0])
	}
}

func TestRemoveByIDDeletesExactlyOneRow(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(sampleRecord("TESTER", 0, "a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	candidates, err := s.ListCandidates("TESTER", 0)
	if err != nil || len(candidates) != 1 {
		t.Fatalf("ListCandidates: %v %v", candidates, err)
	}

	removed, err := s.RemoveByID(candidates[0].ID)
	if err != nil || !removed {
		t.Fatalf("RemoveByID: removed=%v err=%v", removed, err)
	}
	removedAgain, err := s.RemoveByID(candidates[0].ID)
	if err != nil || removedAgain {
		t.Fatalf("RemoveByID (already gone): removed=%v err=%v", removedAgain, err)
	}
}

func TestClearFilteredRequiresFilterWhenMandated(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(sampleRecord("TESTER", 0, "a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.ClearFiltered("", true); err == nil {
		t.Fatalf("expected an error for unfiltered clear when mustHaveFilter is set")
	}
	n, err := s.ClearFiltered("TESTER", true)
	if err != nil {
		t.Fatalf("ClearFiltered: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed %d rows, want 1", n)
	}
}
