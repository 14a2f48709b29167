package adm

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ADMMaps holds the three lookup tables axml actually needs for speaker
// label resolution: audioTrackFormatID -> audioStreamFormatID ->
// audioChannelFormatID -> speakerLabel.
type ADMMaps struct {
	trackToStream map[string]string
	streamToChan  map[string]string
	chanToLabel   map[string]string
}

// ResolveTrackToLabel walks AT -> AS -> AC -> speakerLabel for a given
// audioTrackFormatID (with any "_NN" index suffix already stripped).
func (m *ADMMaps) ResolveTrackToLabel(atID string) (string, bool) {
	streamID, ok := m.trackToStream[atID]
	if !ok {
		return "", false
	}
	chanID, ok := m.streamToChan[streamID]
	if !ok {
		return "", false
	}
	label, ok := m.chanToLabel[chanID]
	return label, ok
}

// ParseADMMaps parses an axml chunk's XML payload into the three ADM
// mapping tables. A malformed document is reported as an error (used by
// ProbeADMOrBWF's well-formedness check); a well-formed but incomplete
// document simply yields partial maps, matching the source parser's
// "exit early, keep what was parsed" behavior.
func ParseADMMaps(xmlBytes []byte) (*ADMMaps, error) {
	maps := &ADMMaps{
		trackToStream: map[string]string{},
		streamToChan:  map[string]string{},
		chanToLabel:   map[string]string{},
	}

	dec := xml.NewDecoder(strings.NewReader(string(xmlBytes)))
	var curTrackID, curStreamID, curChanID string
	var inStreamRef, inChanRef, inSpeakerLabel bool

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("adm: parse axml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "audioTrackFormat":
				curTrackID = stripTrackFormatSuffix(attrValue(t, "audioTrackFormatID"))
			case "audioStreamFormat":
				curStreamID = attrValue(t, "audioStreamFormatID")
			case "audioChannelFormat":
				curChanID = attrValue(t, "audioChannelFormatID")
			case "audioStreamFormatIDRef":
				inStreamRef = curTrackID != ""
			case "audioChannelFormatIDRef":
				inChanRef = curStreamID != ""
			case "speakerLabel":
				inSpeakerLabel = curChanID != ""
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "audioTrackFormat":
				curTrackID, inStreamRef = "", false
			case "audioStreamFormat":
				curStreamID, inChanRef = "", false
			case "audioChannelFormat":
				curChanID = ""
			case "audioStreamFormatIDRef":
				inStreamRef = false
			case "audioChannelFormatIDRef":
				inChanRef = false
			case "speakerLabel":
				inSpeakerLabel = false
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch {
			case inStreamRef && curTrackID != "":
				maps.trackToStream[curTrackID] = text
				inStreamRef = false
			case inChanRef && curStreamID != "":
				maps.streamToChan[curStreamID] = text
				inChanRef = false
			case inSpeakerLabel && curChanID != "":
				if _, exists := maps.chanToLabel[curChanID]; !exists {
					maps.chanToLabel[curChanID] = text
				}
				inSpeakerLabel = false
			}
		}
	}
	return maps, nil
}

func attrValue(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// stripTrackFormatSuffix turns "AT_00011001_01" into "AT_00011001" by
// dropping a trailing "_XX" hex index, matching the chna track reference
// (which omits the per-block index).
func stripTrackFormatSuffix(id string) string {
	idx := strings.LastIndex(id, "_")
	if idx < 0 {
		return id
	}
	suffix := id[idx+1:]
	base := id[:idx]
	if suffix == "" || !strings.HasPrefix(base, "AT_") || len(base) <= 3 {
		return id
	}
	for _, c := range suffix {
		if !isHexDigit(byte(c)) {
			return id
		}
	}
	return base
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
