// Package evidence persists a per-identity, per-key-slot index of
// (pcm_sha256, Chromaprint fingerprint) records and classifies a probed
// file against that history. Grounded on
// original_source/src/app/evidence_store.rs.
package evidence

import (
	"database/sql"
	"fmt"
	"time"
)

const defaultCandidateLimit = 200

// NewRecord is the input to Insert: a fresh audio proof plus the
// identity/key/message context it was produced under.
type NewRecord struct {
	FilePath         string
	Tag              string
	Identity         string
	Version          uint8
	KeySlot          uint8
	TimestampMinutes uint32
	MessageHex       string
	SampleRate       uint32
	Channels         uint32
	SampleCount      uint64
	PCMSha256        string
	Chromaprint      []uint32
	FPConfigID       uint8
}

// Record is a stored evidence row.
type Record struct {
	ID               int64
	CreatedAt        uint64
	FilePath         string
	Tag              string
	Identity         string
	Version          uint8
	KeySlot          uint8
	TimestampMinutes uint32
	MessageHex       string
	SampleRate       uint32
	Channels         uint32
	SampleCount      uint64
	PCMSha256        string
	Chromaprint      []uint32
	FPConfigID       uint8
}

// Store is a sqlite-backed evidence index.
type Store struct {
	db *sql.DB
}

// Open wraps db (already bootstrapped via internal/store.Open) with the
// audio_evidence table.
func Open(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audio_evidence (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at             INTEGER NOT NULL,
			file_path              TEXT NOT NULL,
			tag                    TEXT NOT NULL,
			identity               TEXT NOT NULL,
			version                INTEGER NOT NULL,
			key_slot               INTEGER NOT NULL,
			timestamp_minutes      INTEGER NOT NULL,
			message_hex            TEXT NOT NULL,
			sample_rate            INTEGER NOT NULL,
			channels               INTEGER NOT NULL,
			sample_count           INTEGER NOT NULL,
			pcm_sha256             TEXT NOT NULL,
			chromaprint_blob       BLOB NOT NULL,
			chromaprint_compressed INTEGER NOT NULL DEFAULT 0,
			fingerprint_len        INTEGER NOT NULL,
			fp_config_id           INTEGER NOT NULL,
			UNIQUE(identity, key_slot, pcm_sha256)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("evidence: migrate: %w", err)
	}
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_audio_evidence_identity_slot_created
		ON audio_evidence(identity, key_slot, created_at DESC)
	`); err != nil {
		return nil, fmt.Errorf("evidence: migrate index: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert adds a new evidence row, returning inserted=false if an identical
// (identity, key_slot, pcm_sha256) row already exists.
func (s *Store) Insert(rec *NewRecord) (inserted bool, err error) {
	blob, compressed := encodeChromaprintBlob(rec.Chromaprint)
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO audio_evidence (
			created_at, file_path, tag, identity, version, key_slot, timestamp_minutes,
			message_hex, sample_rate, channels, sample_count, pcm_sha256,
			chromaprint_blob, chromaprint_compressed, fingerprint_len, fp_config_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), rec.FilePath, rec.Tag, rec.Identity, rec.Version, rec.KeySlot,
		rec.TimestampMinutes, rec.MessageHex, rec.SampleRate, rec.Channels, rec.SampleCount,
		rec.PCMSha256, blob, compressed, len(rec.Chromaprint), rec.FPConfigID,
	)
	if err != nil {
		return false, fmt.Errorf("evidence: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("evidence: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListCandidates returns up to the default limit of records for
// (identity, keySlot), newest first.
func (s *Store) ListCandidates(identity string, keySlot uint8) ([]Record, error) {
	return s.ListCandidatesLimited(identity, keySlot, defaultCandidateLimit)
}

// ListCandidatesLimited is ListCandidates with an explicit row cap.
func (s *Store) ListCandidatesLimited(identity string, keySlot uint8, limit int) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, file_path, tag, identity, version, key_slot, timestamp_minutes,
		       message_hex, sample_rate, channels, sample_count, pcm_sha256,
		       chromaprint_blob, chromaprint_compressed, fp_config_id
		FROM audio_evidence
		WHERE identity = ? AND key_slot = ?
		ORDER BY created_at DESC
		LIMIT ?`, identity, keySlot, limit)
	if err != nil {
		return nil, fmt.Errorf("evidence: list candidates: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListFiltered returns up to limit records matching identity (if non-empty)
// and keySlot (if keySlotSet is true), newest first. Passing identity="" and
// keySlotSet=false lists every stored record.
func (s *Store) ListFiltered(identity string, keySlot uint8, keySlotSet bool, limit int) ([]Record, error) {
	query := `
		SELECT id, created_at, file_path, tag, identity, version, key_slot, timestamp_minutes,
		       message_hex, sample_rate, channels, sample_count, pcm_sha256,
		       chromaprint_blob, chromaprint_compressed, fp_config_id
		FROM audio_evidence WHERE 1=1`
	args := []any{}
	if identity != "" {
		query += ` AND identity = ?`
		args = append(args, identity)
	}
	if keySlotSet {
		query += ` AND key_slot = ?`
		args = append(args, keySlot)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("evidence: list filtered: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RemoveByID deletes one evidence row, reporting whether a row was removed.
func (s *Store) RemoveByID(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM audio_evidence WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("evidence: remove %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("evidence: rows affected: %w", err)
	}
	return n > 0, nil
}

// ClearFiltered deletes every row matching identity (if non-empty) and
// returns the number removed. mustHaveFilter rejects an unfiltered wipe of
// the whole table.
func (s *Store) ClearFiltered(identity string, mustHaveFilter bool) (int64, error) {
	if mustHaveFilter && identity == "" {
		return 0, fmt.Errorf("evidence: clear requires a filter")
	}
	if identity == "" {
		res, err := s.db.Exec(`DELETE FROM audio_evidence`)
		if err != nil {
			return 0, fmt.Errorf("evidence: clear all: %w", err)
		}
		return res.RowsAffected()
	}
	res, err := s.db.Exec(`DELETE FROM audio_evidence WHERE identity = ?`, identity)
	if err != nil {
		return 0, fmt.Errorf("evidence: clear %s: %w", identity, err)
	}
	return res.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var blob []byte
		var compressed bool
		if err := rows.Scan(
			&r.ID, &r.CreatedAt, &r.FilePath, &r.Tag, &r.Identity, &r.Version, &r.KeySlot,
			&r.TimestampMinutes, &r.MessageHex, &r.SampleRate, &r.Channels, &r.SampleCount,
			&r.PCMSha256, &blob, &compressed, &r.FPConfigID,
		); err != nil {
			return nil, fmt.Errorf("evidence: scan: %w", err)
		}
		fp, err := decodeChromaprintBlob(blob, compressed)
		if err != nil {
			return nil, fmt.Errorf("evidence: decode chromaprint for row %d: %w", r.ID, err)
		}
		r.Chromaprint = fp
		out = append(out, r)
	}
	return out, rows.Err()
}
