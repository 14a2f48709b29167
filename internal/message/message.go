// Package message implements the 16-byte authenticated watermark message:
// a version byte, a minute-granularity timestamp, a packed tag, a key-slot
// byte, and an HMAC-SHA256 truncated MAC binding all of the above to a
// per-slot key.
//
// Two wire layouts exist. The modern layout (version 1, this package's
// encode path) authenticates an 11-byte region that includes an explicit
// key-slot byte and truncates the MAC to 5 bytes. An older layout —
// preserved here for decode compatibility only — authenticates a 10-byte
// region with no slot byte (the slot is implicitly 0) and truncates the MAC
// to 6 bytes. DecodeAny tries the modern layout first and falls back to the
// legacy one so a single version byte keeps working across the change; see
// DESIGN.md for why the two layouts coexist.
package message

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/SakuzyPeng/awmkit/internal/tag"
)

const (
	// Len is the total wire length of a message, in bytes, for both layouts.
	Len = 16

	// KeyLen is the required length of a message-signing key.
	KeyLen = 32

	modernAuthLen = 11
	modernMACLen  = 5

	legacyAuthLen = 10
	legacyMACLen  = 6

	minVersion = 1
	maxVersion = 0xFE // 0 and 0xFF are reserved (spec.md C3 edge cases)
)

// InvalidKeyLengthError reports a signing key that is not exactly KeyLen
// bytes.
type InvalidKeyLengthError struct {
	Expected int
	Actual   int
}

func (e *InvalidKeyLengthError) Error() string {
	return fmt.Sprintf("message: invalid key length: expected %d, got %d", e.Expected, e.Actual)
}

// InvalidLengthError reports a message byte slice that is not exactly Len
// bytes.
type InvalidLengthError struct {
	Expected int
	Actual   int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("message: invalid message length: expected %d, got %d", e.Expected, e.Actual)
}

// InvalidVersionError reports a reserved version byte (0 or 0xFF).
type InvalidVersionError struct {
	Version byte
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("message: invalid version byte 0x%02X", e.Version)
}

// MACMismatchError reports that the MAC recomputed over the authenticated
// region did not match the MAC carried in the message.
type MACMismatchError struct{}

func (e *MACMismatchError) Error() string { return "message: MAC verification failed" }

// Message is a decoded, verified watermark message.
type Message struct {
	Version         byte
	KeySlot         byte
	TimestampMinute uint32
	Tag             tag.Tag

	// Legacy reports whether this message was decoded under the legacy
	// (pre-slot-byte, 6-byte MAC) wire layout. KeySlot is always 0 in that
	// case, since the legacy layout carries no slot byte.
	Legacy bool
}

// TimestampUTC returns the message's timestamp as a UTC time, reconstructed
// from its minute-granularity timestamp field.
func (m Message) TimestampUTC() time.Time {
	return time.Unix(int64(m.TimestampMinute)*60, 0).UTC()
}

func validateKey(key []byte) error {
	if len(key) != KeyLen {
		return &InvalidKeyLengthError{Expected: KeyLen, Actual: len(key)}
	}
	return nil
}

func validateVersion(v byte) error {
	if v < minVersion || v > maxVersion {
		return &InvalidVersionError{Version: v}
	}
	return nil
}

// Encode builds a modern-layout message authenticated under key, stamping
// the current time truncated to whole minutes.
func Encode(version byte, slot byte, t tag.Tag, key []byte) ([]byte, error) {
	return EncodeWithTimestamp(version, slot, t, key, uint32(time.Now().UTC().Unix()/60))
}

// EncodeWithTimestamp builds a modern-layout message with an explicit
// minute-granularity timestamp, for testing and for callers replaying a
// known signing time.
func EncodeWithTimestamp(version byte, slot byte, t tag.Tag, key []byte, timestampMinutes uint32) ([]byte, error) {
	if err := validateVersion(version); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	buf := make([]byte, Len)
	buf[0] = version
	binary.BigEndian.PutUint32(buf[1:5], timestampMinutes)
	packed := t.ToPacked()
	copy(buf[5:10], packed[:])
	buf[10] = slot

	mac := computeMAC(buf[:modernAuthLen], key, modernMACLen)
	copy(buf[modernAuthLen:], mac)
	return buf, nil
}

func computeMAC(auth []byte, key []byte, length int) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(auth)
	sum := h.Sum(nil)
	return sum[:length]
}

// Decode verifies and decodes a modern-layout message under key.
func Decode(data []byte, key []byte) (Message, error) {
	if len(data) != Len {
		return Message{}, &InvalidLengthError{Expected: Len, Actual: len(data)}
	}
	if err := validateKey(key); err != nil {
		return Message{}, err
	}
	version := data[0]
	if err := validateVersion(version); err != nil {
		return Message{}, err
	}
	wantMAC := computeMAC(data[:modernAuthLen], key, modernMACLen)
	gotMAC := data[modernAuthLen:Len]
	if subtle.ConstantTimeCompare(wantMAC, gotMAC) != 1 {
		return Message{}, &MACMismatchError{}
	}
	return parseModernBody(data, version)
}

// DecodeAny verifies and decodes a message, trying the modern layout first
// and falling back to the legacy (implicit-slot-0, 6-byte MAC) layout if the
// modern MAC check fails. Use this when reading messages that might have
// been signed by an older encoder under the same key.
func DecodeAny(data []byte, key []byte) (Message, error) {
	if len(data) != Len {
		return Message{}, &InvalidLengthError{Expected: Len, Actual: len(data)}
	}
	if err := validateKey(key); err != nil {
		return Message{}, err
	}
	if msg, err := Decode(data, key); err == nil {
		return msg, nil
	}
	return decodeLegacy(data, key)
}

func decodeLegacy(data []byte, key []byte) (Message, error) {
	version := data[0]
	if err := validateVersion(version); err != nil {
		return Message{}, err
	}
	wantMAC := computeMAC(data[:legacyAuthLen], key, legacyMACLen)
	gotMAC := data[legacyAuthLen:Len]
	if subtle.ConstantTimeCompare(wantMAC, gotMAC) != 1 {
		return Message{}, &MACMismatchError{}
	}
	msg, err := parseBodyCommon(data, version)
	if err != nil {
		return Message{}, err
	}
	msg.KeySlot = 0
	msg.Legacy = true
	return msg, nil
}

func parseModernBody(data []byte, version byte) (Message, error) {
	msg, err := parseBodyCommon(data, version)
	if err != nil {
		return Message{}, err
	}
	msg.KeySlot = data[10]
	return msg, nil
}

func parseBodyCommon(data []byte, version byte) (Message, error) {
	timestampMinutes := binary.BigEndian.Uint32(data[1:5])
	var packed [tag.PackedLen]byte
	copy(packed[:], data[5:10])
	t, err := tag.FromPacked(packed)
	if err != nil {
		return Message{}, fmt.Errorf("message: decode tag: %w", err)
	}
	return Message{
		Version:         version,
		TimestampMinute: timestampMinutes,
		Tag:             t,
	}, nil
}

// PeekVersionAndSlot reads the version and (modern-layout) key-slot byte
// from a message without verifying its MAC, so a caller can pick which key
// to try decoding with. For a legacy-layout message the returned slot is
// meaningless (legacy messages carry no slot byte); callers that need to
// support both should treat slot 0 as the first candidate regardless.
func PeekVersionAndSlot(data []byte) (version byte, slot byte, err error) {
	if len(data) != Len {
		return 0, 0, &InvalidLengthError{Expected: Len, Actual: len(data)}
	}
	version = data[0]
	if err := validateVersion(version); err != nil {
		return 0, 0, err
	}
	return version, data[10], nil
}

// DecodeUnverified parses a message's fields under the modern layout
// without checking its MAC. It exists so a caller holding a message that
// failed to verify under every candidate key can still surface the tag,
// identity, and timestamp it claims for forensic reporting — the MAC
// failure itself already proves the claim unverified.
func DecodeUnverified(data []byte) (Message, error) {
	if len(data) != Len {
		return Message{}, &InvalidLengthError{Expected: Len, Actual: len(data)}
	}
	version := data[0]
	if err := validateVersion(version); err != nil {
		return Message{}, err
	}
	return parseModernBody(data, version)
}
