package aggregate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/SakuzyPeng/awmkit/internal/keystore"
	"github.com/SakuzyPeng/awmkit/internal/message"
	"github.com/SakuzyPeng/awmkit/internal/store"
	"github.com/SakuzyPeng/awmkit/internal/tag"
)

func newTestKeyStore(t *testing.T) *keystore.KeyStore {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "awmkit.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	fb, err := keystore.NewFileBackend(filepath.Join(dir, "keys"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	return keystore.New(fb, db)
}

func testKey(b byte) []byte {
	key := make([]byte, message.KeyLen)
	for i := range key {
		key[i] = b
	}
	return key
}

func encodeFor(t *testing.T, slot byte, key []byte) []byte {
	t.Helper()
	tg, err := tag.New("SAKUZY")
	if err != nil {
		t.Fatalf("tag.New: %v", err)
	}
	raw, err := message.EncodeWithTimestamp(1, slot, tg, key, 29049600)
	if err != nil {
		t.Fatalf("message.EncodeWithTimestamp: %v", err)
	}
	return raw
}

// encodeLegacyFor builds a message under the pre-slot-byte wire layout (10-byte
// authenticated region, 6-byte MAC, implicit slot 0), mirroring an older
// encoder, so ResolveDecodeSlot's DecodeAny fallback can be exercised.
func encodeLegacyFor(t *testing.T, key []byte) []byte {
	t.Helper()
	tg, err := tag.New("SAKUZY")
	if err != nil {
		t.Fatalf("tag.New: %v", err)
	}
	buf := make([]byte, message.Len)
	buf[0] = 1
	binary.BigEndian.PutUint32(buf[1:5], 29049600)
	packed := tg.ToPacked()
	copy(buf[5:10], packed[:])
	h := hmac.New(sha256.New, key)
	h.Write(buf[:10])
	mac := h.Sum(nil)[:6]
	copy(buf[10:], mac)
	return buf
}

func TestResolveDecodeSlotRecoversLegacyLayoutMessage(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.SaveSlot(0, testKey(6)); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	raw := encodeLegacyFor(t, testKey(6))

	decoded, invalid := ResolveDecodeSlot(raw, ks)
	if invalid != nil {
		t.Fatalf("ResolveDecodeSlot: unexpected invalid: %v", invalid)
	}
	if !decoded.Message.Legacy {
		t.Fatalf("expected decoded message to be marked Legacy")
	}
	// The legacy layout carries no real slot byte; ResolveDecodeSlot peeks
	// whatever byte 10 happens to be (here, the first MAC byte) as its hint,
	// so whether that coincidentally equals slot 0 determines Matched vs
	// Recovered. Either is correct as long as slot 0 is what decoded it.
	if decoded.SlotUsed != 0 {
		t.Fatalf("SlotUsed = %d, want 0", decoded.SlotUsed)
	}
	if decoded.Status != SlotMatched && decoded.Status != SlotRecovered {
		t.Fatalf("Status = %q, want Matched or Recovered", decoded.Status)
	}
}

func TestResolveDecodeSlotMatchedWhenHintKeyDecodes(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.SaveSlot(3, testKey(7)); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	raw := encodeFor(t, 3, testKey(7))

	decoded, invalid := ResolveDecodeSlot(raw, ks)
	if invalid != nil {
		t.Fatalf("ResolveDecodeSlot: unexpected invalid: %v", invalid)
	}
	if decoded.Status != SlotMatched {
		t.Fatalf("Status = %q, want %q", decoded.Status, SlotMatched)
	}
	if decoded.SlotUsed != 3 || decoded.SlotHint != 3 {
		t.Fatalf("slot hint/used = %d/%d, want 3/3", decoded.SlotHint, decoded.SlotUsed)
	}
	if decoded.ScanCount != 1 {
		t.Fatalf("ScanCount = %d, want 1", decoded.ScanCount)
	}
}

func TestResolveDecodeSlotRecoveredWhenAnotherSlotDecodes(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.SaveSlot(1, testKey(9)); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	// Encode under slot 3's hint byte but with slot 1's key, mimicking a
	// message whose hinted slot was later reassigned.
	raw := encodeFor(t, 3, testKey(9))

	decoded, invalid := ResolveDecodeSlot(raw, ks)
	if invalid != nil {
		t.Fatalf("ResolveDecodeSlot: unexpected invalid: %v", invalid)
	}
	if decoded.Status != SlotRecovered {
		t.Fatalf("Status = %q, want %q", decoded.Status, SlotRecovered)
	}
	if decoded.SlotUsed != 1 || decoded.SlotHint != 3 {
		t.Fatalf("slot hint/used = %d/%d, want 3/1", decoded.SlotHint, decoded.SlotUsed)
	}
}

func TestResolveDecodeSlotMissingKeyWhenHintSlotUnconfigured(t *testing.T) {
	ks := newTestKeyStore(t)
	raw := encodeFor(t, 5, testKey(1))

	decoded, invalid := ResolveDecodeSlot(raw, ks)
	if decoded != nil {
		t.Fatalf("expected no successful decode, got %+v", decoded)
	}
	if invalid.Status != SlotMissingKey {
		t.Fatalf("Status = %q, want %q", invalid.Status, SlotMissingKey)
	}
	if invalid.SlotHint != 5 {
		t.Fatalf("SlotHint = %d, want 5", invalid.SlotHint)
	}
}

func TestResolveDecodeSlotMismatchWhenNoConfiguredKeyDecodes(t *testing.T) {
	ks := newTestKeyStore(t)
	if err := ks.SaveSlot(2, testKey(2)); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	raw := encodeFor(t, 2, testKey(9))

	decoded, invalid := ResolveDecodeSlot(raw, ks)
	if decoded != nil {
		t.Fatalf("expected no successful decode, got %+v", decoded)
	}
	if invalid.Status != SlotMismatch {
		t.Fatalf("Status = %q, want %q", invalid.Status, SlotMismatch)
	}
	if invalid.ScanCount != 1 {
		t.Fatalf("ScanCount = %d, want 1", invalid.ScanCount)
	}
}

func TestResolveDecodeSlotAmbiguousWhenTwoSlotsShareKeyMaterial(t *testing.T) {
	ks := newTestKeyStore(t)
	shared := testKey(4)
	if err := ks.SaveSlot(1, shared); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	if err := ks.SaveSlot(2, shared); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	raw := encodeFor(t, 1, shared)

	decoded, invalid := ResolveDecodeSlot(raw, ks)
	if decoded != nil {
		t.Fatalf("expected no successful decode, got %+v", decoded)
	}
	if invalid.Status != SlotAmbiguous {
		t.Fatalf("Status = %q, want %q", invalid.Status, SlotAmbiguous)
	}
}
