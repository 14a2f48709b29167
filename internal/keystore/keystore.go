// Package keystore manages the 32 logical watermark-signing key slots: an
// active slot, per-slot key material behind a pluggable Backend, and
// human-facing summaries including duplicate-key detection, grounded on
// original_source/src/app/keystore.rs.
package keystore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/SakuzyPeng/awmkit/internal/message"
	"github.com/SakuzyPeng/awmkit/internal/store"
)

// NumSlots is the number of logical key slots (0..31).
const NumSlots = 32

const activeSlotSettingKey = "keystore.active_slot"

// Status strings surfaced in KeySlotSummary, mirroring the prior
// implementation's slot_summaries() text.
const (
	StatusActive      = "active"
	StatusConfigured  = "configured"
	StatusEmpty       = ""
	StatusDuplicate   = "duplicate"
)

// KeySlotSummary describes one of the 32 key slots for display/status
// purposes.
type KeySlotSummary struct {
	Slot             int
	Configured       bool
	Active           bool
	KeyID            string // first 10 hex chars of upper-hex SHA-256 of key material
	Status           string
	DuplicateOfSlots []int
}

// KeyStore manages key slots backed by a Backend for key material and a
// sqlite database (via internal/store) for the active-slot setting.
type KeyStore struct {
	backend Backend
	db      *sql.DB
}

// New wraps backend and db into a KeyStore. db must already have the
// store.Open bootstrap applied.
func New(backend Backend, db *sql.DB) *KeyStore {
	return &KeyStore{backend: backend, db: db}
}

// ActiveSlot returns the currently active key slot, defaulting to 0 when
// unset.
func (ks *KeyStore) ActiveSlot() (int, error) {
	v, ok, err := store.GetSetting(ks.db, activeSlotSettingKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("keystore: corrupt active slot setting %q", v)
	}
	return n, nil
}

// SetActiveSlot persists slot as the active key slot.
func (ks *KeyStore) SetActiveSlot(slot int) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	return store.SetSetting(ks.db, activeSlotSettingKey, strconv.Itoa(slot))
}

func validateSlot(slot int) error {
	if slot < 0 || slot >= NumSlots {
		return fmt.Errorf("keystore: slot %d out of range [0,%d)", slot, NumSlots)
	}
	return nil
}

// LoadSlot returns the key material configured for slot.
func (ks *KeyStore) LoadSlot(slot int) ([]byte, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	return ks.backend.Load(slot)
}

// SaveSlot stores key as slot's key material. key must be message.KeyLen
// bytes.
func (ks *KeyStore) SaveSlot(slot int, key []byte) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	if len(key) != message.KeyLen {
		return &message.InvalidKeyLengthError{Expected: message.KeyLen, Actual: len(key)}
	}
	return ks.backend.Save(slot, key)
}

// ExistsSlot reports whether slot has key material configured.
func (ks *KeyStore) ExistsSlot(slot int) bool {
	if err := validateSlot(slot); err != nil {
		return false
	}
	return ks.backend.Exists(slot)
}

// ListConfiguredSlots returns all slots (0..31) that currently have key
// material, in ascending order.
func (ks *KeyStore) ListConfiguredSlots() []int {
	var out []int
	for s := 0; s < NumSlots; s++ {
		if ks.backend.Exists(s) {
			out = append(out, s)
		}
	}
	return out
}

// DeleteSlotAndReconcileActive deletes slot's key material and, if slot was
// the active slot, reassigns the active slot to slot 0 (if configured) or
// else the lowest remaining configured slot (or 0 if none remain),
// returning the new active slot.
func (ks *KeyStore) DeleteSlotAndReconcileActive(slot int) (int, error) {
	if err := validateSlot(slot); err != nil {
		return 0, err
	}
	active, err := ks.ActiveSlot()
	if err != nil {
		return 0, err
	}
	if err := ks.backend.Delete(slot); err != nil {
		return 0, err
	}
	if slot != active {
		return active, nil
	}
	newActive := ks.fallbackActiveSlot(slot)
	if err := ks.SetActiveSlot(newActive); err != nil {
		return 0, err
	}
	return newActive, nil
}

// fallbackActiveSlot picks a new active slot after deleting deletedSlot:
// slot 0 if configured, else the lowest configured slot, else 0.
func (ks *KeyStore) fallbackActiveSlot(deletedSlot int) int {
	if deletedSlot != 0 && ks.backend.Exists(0) {
		return 0
	}
	configured := ks.ListConfiguredSlots()
	if len(configured) > 0 {
		return configured[0]
	}
	return 0
}

// KeyIDFromMaterial returns the first 10 hex characters of the upper-hex
// SHA-256 digest of key, used as a short human-comparable fingerprint.
func KeyIDFromMaterial(key []byte) string {
	sum := sha256.Sum256(key)
	hexStr := strings.ToUpper(hex.EncodeToString(sum[:]))
	if len(hexStr) > 10 {
		hexStr = hexStr[:10]
	}
	return hexStr
}

// SlotSummaries builds a KeySlotSummary for every slot (0..31), including
// duplicate-key bucketing: any two or more slots whose key material hashes
// to the same KeyID are all marked Status=StatusDuplicate with
// DuplicateOfSlots populated.
func (ks *KeyStore) SlotSummaries() ([]KeySlotSummary, error) {
	active, err := ks.ActiveSlot()
	if err != nil {
		return nil, err
	}
	summaries := make([]KeySlotSummary, NumSlots)
	for s := 0; s < NumSlots; s++ {
		summaries[s] = KeySlotSummary{Slot: s}
		if !ks.backend.Exists(s) {
			continue
		}
		key, err := ks.backend.Load(s)
		if err != nil {
			return nil, fmt.Errorf("keystore: load slot %d for summary: %w", s, err)
		}
		summaries[s].Configured = true
		summaries[s].KeyID = KeyIDFromMaterial(key)
		summaries[s].Active = s == active
		if summaries[s].Active {
			summaries[s].Status = StatusActive
		} else {
			summaries[s].Status = StatusConfigured
		}
	}
	applyDuplicateStatus(summaries)
	return summaries, nil
}

// applyDuplicateStatus buckets summaries by KeyID and marks every member of
// a bucket with more than one slot as duplicate, listing the other slots in
// the bucket.
func applyDuplicateStatus(summaries []KeySlotSummary) {
	buckets := map[string][]int{}
	for _, s := range summaries {
		if s.Configured && s.KeyID != "" {
			buckets[s.KeyID] = append(buckets[s.KeyID], s.Slot)
		}
	}
	for i := range summaries {
		s := &summaries[i]
		if !s.Configured || s.KeyID == "" {
			continue
		}
		bucket := buckets[s.KeyID]
		if len(bucket) <= 1 {
			continue
		}
		s.Status = StatusDuplicate
		others := make([]int, 0, len(bucket)-1)
		for _, slot := range bucket {
			if slot != s.Slot {
				others = append(others, slot)
			}
		}
		sort.Ints(others)
		s.DuplicateOfSlots = others
	}
}

// MigrateLegacyToSlot0 copies legacyKey into slot 0 if slot 0 is currently
// unconfigured. It is a no-op (returns false, nil) if slot 0 already has
// key material, mirroring the prior implementation's one-time migration
// from a single pre-slot signing key into the slot model.
func (ks *KeyStore) MigrateLegacyToSlot0(legacyKey []byte) (migrated bool, err error) {
	if ks.backend.Exists(0) {
		return false, nil
	}
	if err := ks.SaveSlot(0, legacyKey); err != nil {
		return false, err
	}
	return true, nil
}
