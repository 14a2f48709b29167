// Package aggregate reassembles the pieces orchestrator, message, keystore,
// proof, and evidence each compute in isolation into one per-file detect
// outcome: which step's candidate wins, which key slot actually decoded it,
// and whether the decoded audio looks cloned. Grounded on
// original_source/src/bin/awmkit-core/commands/detect.rs
// (resolve_decode_slot, evaluate_clone_check, detect_one).
package aggregate

import (
	"errors"
	"fmt"

	"github.com/SakuzyPeng/awmkit/internal/keystore"
	"github.com/SakuzyPeng/awmkit/internal/message"
)

// SlotStatus classifies how a message's key slot was resolved.
type SlotStatus string

const (
	// SlotMatched means the message decoded under the slot its own
	// slot-hint byte named.
	SlotMatched SlotStatus = "matched"
	// SlotRecovered means the hinted slot's key did not decode the
	// message but a different configured slot did.
	SlotRecovered SlotStatus = "recovered"
	// SlotMissingKey means no key is configured for the hinted slot and
	// no other configured slot decoded the message either.
	SlotMissingKey SlotStatus = "missing_key"
	// SlotMismatch means every configured slot's key was tried and none
	// decoded the message.
	SlotMismatch SlotStatus = "mismatch"
	// SlotAmbiguous means two or more configured slots' keys both
	// decoded the message, which only happens if two slots share key
	// material and MUST be surfaced rather than silently picking one.
	SlotAmbiguous SlotStatus = "ambiguous"
)

// Decoded is a message.Message recovered from a raw oracle detection,
// along with which key slot actually produced it.
type Decoded struct {
	Message   message.Message
	SlotHint  byte
	SlotUsed  byte
	Status    SlotStatus
	ScanCount uint32
}

// InvalidSlotDecode reports that no single configured key slot decoded a
// raw message. It carries no used slot: no single slot won, including in
// the ambiguous case.
type InvalidSlotDecode struct {
	SlotHint  byte
	Status    SlotStatus
	ScanCount uint32
	Err       error
}

func (e *InvalidSlotDecode) Error() string {
	return fmt.Sprintf("aggregate: slot resolution %s (hint=%d, scanned=%d): %v", e.Status, e.SlotHint, e.ScanCount, e.Err)
}

func (e *InvalidSlotDecode) Unwrap() error { return e.Err }

// ResolveDecodeSlot recovers the key slot that authenticated raw, a 16-byte
// message read off the oracle. It reads raw's slot-hint byte first (without
// verifying anything), then tries that slot's key before falling back to
// every other configured slot. Exactly one key decoding the message is
// success; zero or multiple are both failure, the latter because two slots
// sharing key material is itself a finding worth surfacing.
func ResolveDecodeSlot(raw []byte, keyStore *keystore.KeyStore) (*Decoded, *InvalidSlotDecode) {
	_, slotHint, err := message.PeekVersionAndSlot(raw)
	if err != nil {
		return nil, &InvalidSlotDecode{Status: SlotMismatch, Err: err}
	}

	candidateSlots := []int{int(slotHint)}
	for _, s := range keyStore.ListConfiguredSlots() {
		if s != int(slotHint) {
			candidateSlots = append(candidateSlots, s)
		}
	}

	type success struct {
		slot byte
		msg  message.Message
	}
	var successes []success
	var scanCount uint32
	hintKeyMissing := false

	for _, slot := range candidateSlots {
		key, err := keyStore.LoadSlot(slot)
		if err != nil {
			if errors.Is(err, keystore.ErrSlotNotFound) && slot == int(slotHint) {
				hintKeyMissing = true
			}
			continue
		}
		scanCount++
		if msg, err := message.DecodeAny(raw, key); err == nil {
			successes = append(successes, success{slot: byte(slot), msg: msg})
		}
	}

	switch len(successes) {
	case 1:
		slotUsed := successes[0].slot
		status := SlotRecovered
		if slotUsed == slotHint {
			status = SlotMatched
		}
		return &Decoded{
			Message:   successes[0].msg,
			SlotHint:  slotHint,
			SlotUsed:  slotUsed,
			Status:    status,
			ScanCount: scanCount,
		}, nil
	case 0:
		if hintKeyMissing {
			return nil, &InvalidSlotDecode{
				SlotHint:  slotHint,
				Status:    SlotMissingKey,
				ScanCount: scanCount,
				Err:       fmt.Errorf("key not found for slot %d", slotHint),
			}
		}
		return nil, &InvalidSlotDecode{
			SlotHint:  slotHint,
			Status:    SlotMismatch,
			ScanCount: scanCount,
			Err:       fmt.Errorf("decode failed after scanning %d slot(s)", scanCount),
		}
	default:
		return nil, &InvalidSlotDecode{
			SlotHint:  slotHint,
			Status:    SlotAmbiguous,
			ScanCount: scanCount,
			Err:       errors.New("decoded by multiple slots"),
		}
	}
}
