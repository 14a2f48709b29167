// Package tagstore maps identities (usernames) to tags in a sqlite table,
// case-insensitively, and derives a deterministic suggested tag from an
// identity's SHA-256 hash. Grounded on
// original_source/src/app/tag_store.rs.
package tagstore

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/SakuzyPeng/awmkit/internal/charset"
	"github.com/SakuzyPeng/awmkit/internal/tag"
)

// MappingExistsError reports that username already maps to a different tag
// and Save was called without force.
type MappingExistsError struct {
	Username    string
	ExistingTag string
}

func (e *MappingExistsError) Error() string {
	return fmt.Sprintf("tagstore: %q already mapped to %q", e.Username, e.ExistingTag)
}

// TagStore is a sqlite-backed, case-insensitive identity-to-tag mapping.
type TagStore struct {
	db *sql.DB
}

// Open wraps db (already bootstrapped via internal/store.Open) with the
// tag_mappings table.
func Open(db *sql.DB) (*TagStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tag_mappings (
			username   TEXT PRIMARY KEY COLLATE NOCASE,
			tag        TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("tagstore: migrate: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_tag_mappings_created_at ON tag_mappings(created_at)`); err != nil {
		return nil, fmt.Errorf("tagstore: migrate index: %w", err)
	}
	return &TagStore{db: db}, nil
}

// LookupTagCI returns the tag mapped to username, case-insensitively.
func (ts *TagStore) LookupTagCI(username string) (string, bool, error) {
	var t string
	err := ts.db.QueryRow(`SELECT tag FROM tag_mappings WHERE username = ? COLLATE NOCASE`, username).Scan(&t)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tagstore: lookup %q: %w", username, err)
	}
	return t, true, nil
}

// SaveIfAbsent inserts username->tagStr only if username has no existing
// mapping, returning whether it inserted.
func (ts *TagStore) SaveIfAbsent(username, tagStr string) (bool, error) {
	existing, ok, err := ts.LookupTagCI(username)
	if err != nil {
		return false, err
	}
	if ok {
		_ = existing
		return false, nil
	}
	if _, err := ts.db.Exec(
		`INSERT INTO tag_mappings (username, tag, created_at) VALUES (?, ?, ?)`,
		username, tagStr, time.Now().UTC().Unix(),
	); err != nil {
		return false, fmt.Errorf("tagstore: insert %q: %w", username, err)
	}
	return true, nil
}

// Save maps username to tagStr. If username is already mapped to the same
// tag, Save is a no-op. If it is mapped to a different tag and force is
// false, Save returns a *MappingExistsError. If force is true, the mapping
// is overwritten.
func (ts *TagStore) Save(username, tagStr string, force bool) error {
	existing, ok, err := ts.LookupTagCI(username)
	if err != nil {
		return err
	}
	if !ok {
		_, err := ts.db.Exec(
			`INSERT INTO tag_mappings (username, tag, created_at) VALUES (?, ?, ?)`,
			username, tagStr, time.Now().UTC().Unix(),
		)
		if err != nil {
			return fmt.Errorf("tagstore: insert %q: %w", username, err)
		}
		return nil
	}
	if existing == tagStr {
		return nil
	}
	if !force {
		return &MappingExistsError{Username: username, ExistingTag: existing}
	}
	if _, err := ts.db.Exec(`UPDATE tag_mappings SET tag = ? WHERE username = ? COLLATE NOCASE`, tagStr, username); err != nil {
		return fmt.Errorf("tagstore: update %q: %w", username, err)
	}
	return nil
}

// Remove deletes username's mapping, if any.
func (ts *TagStore) Remove(username string) error {
	if _, err := ts.db.Exec(`DELETE FROM tag_mappings WHERE username = ? COLLATE NOCASE`, username); err != nil {
		return fmt.Errorf("tagstore: remove %q: %w", username, err)
	}
	return nil
}

// RemoveUsernames deletes mappings for all of usernames in one pass.
func (ts *TagStore) RemoveUsernames(usernames []string) error {
	tx, err := ts.db.Begin()
	if err != nil {
		return fmt.Errorf("tagstore: begin: %w", err)
	}
	defer tx.Rollback()
	for _, u := range usernames {
		if _, err := tx.Exec(`DELETE FROM tag_mappings WHERE username = ? COLLATE NOCASE`, u); err != nil {
			return fmt.Errorf("tagstore: remove %q: %w", u, err)
		}
	}
	return tx.Commit()
}

// Clear removes all mappings.
func (ts *TagStore) Clear() error {
	if _, err := ts.db.Exec(`DELETE FROM tag_mappings`); err != nil {
		return fmt.Errorf("tagstore: clear: %w", err)
	}
	return nil
}

// Suggest derives a deterministic 7-character identity body from username's
// SHA-256 digest, by greedily slicing 5-bit groups off the front of the
// hash until 7 alphabet characters have been produced, then builds a Tag
// from it (computing and appending the checksum character).
//
// This is a hash-to-identity transform, not a cryptographic commitment: it
// exists so operators get a deterministic, collision-resistant-in-practice
// default tag for a username without needing to pick one by hand.
func Suggest(username string) (tag.Tag, error) {
	sum := sha256.Sum256([]byte(username))
	identity := hashToIdentity(sum[:])
	return tag.New(identity)
}

func hashToIdentity(hash []byte) string {
	var out strings.Builder
	var acc uint64
	var accBits uint

	for _, b := range hash {
		acc = acc<<8 | uint64(b)
		accBits += 8
		for accBits >= 5 && out.Len() < tag.BodyLen {
			shift := accBits - 5
			idx := byte((acc >> shift) & 0x1F)
			out.WriteByte(charset.ToChar(idx))
			accBits -= 5
		}
		if out.Len() >= tag.BodyLen {
			break
		}
	}
	return out.String()
}
