package adm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// CHNAEntry is one chna UID row: a 1-based PCM track index mapped to the
// audioTrackFormatID that names its speaker role.
type CHNAEntry struct {
	TrackIndex  uint16
	UID         string
	TrackFormat string
	PackFormat  string
}

// ParseCHNA decodes a chna chunk's binary payload per the BWF/ADM fixed
// 40-byte-row layout: a 4-byte header (numUIDs, numTracks) followed by
// numUIDs rows of (trackIndex uint16, UID[12], trackRef[14], packRef[11],
// pad[1]).
func ParseCHNA(payload []byte) ([]CHNAEntry, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("adm: chna chunk too short (%d bytes)", len(payload))
	}
	numUIDs := binary.LittleEndian.Uint16(payload[0:2])
	const rowSize = 40
	need := 4 + int(numUIDs)*rowSize
	if len(payload) < need {
		return nil, fmt.Errorf("adm: chna chunk declares %d UIDs but payload is only %d bytes", numUIDs, len(payload))
	}

	entries := make([]CHNAEntry, 0, numUIDs)
	for i := 0; i < int(numUIDs); i++ {
		base := 4 + i*rowSize
		row := payload[base : base+rowSize]
		entries = append(entries, CHNAEntry{
			TrackIndex:  binary.LittleEndian.Uint16(row[0:2]),
			UID:         trimNulls(row[2:14]),
			TrackFormat: trimNulls(row[14:28]),
			PackFormat:  trimNulls(row[28:39]),
		})
	}
	return entries, nil
}

func trimNulls(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// ResolveChannelLabels combines a file's chna track-index/trackFormat rows
// with its axml maps to produce the (channelIndex, speakerLabel) list the
// route planner's label-driven mode consumes. Rows whose trackFormat can't
// be resolved to a label are omitted — callers treat an incompletely
// labeled bed the same as a file with no ADM metadata for those channels.
func ResolveChannelLabels(entries []CHNAEntry, maps *ADMMaps) []ChannelLabelEntry {
	out := make([]ChannelLabelEntry, 0, len(entries))
	for _, e := range entries {
		label, ok := maps.ResolveTrackToLabel(stripTrackFormatSuffix(e.TrackFormat))
		if !ok {
			continue
		}
		if e.TrackIndex == 0 {
			continue
		}
		out = append(out, ChannelLabelEntry{Channel: int(e.TrackIndex) - 1, Label: label})
	}
	return out
}

// ChannelLabelEntry pairs a zero-based PCM channel index with its resolved
// ADM speakerLabel. It mirrors internal/route.ChannelLabel so callers can
// convert directly without this package importing internal/route.
type ChannelLabelEntry struct {
	Channel int
	Label   string
}
