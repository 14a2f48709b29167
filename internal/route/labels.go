package route

import (
	"fmt"

	"github.com/SakuzyPeng/awmkit/internal/pcm"
)

// ChannelLabel pairs a zero-based PCM channel index with the ADM
// speakerLabel resolved for it (see internal/adm's axml/chna chain).
type ChannelLabel struct {
	Channel int
	Label   string
}

type speakerPair struct {
	left, right, name string
}

// speakerPairs is the priority-ordered table of known stereo speaker-label
// pairs: ITU-R BS.2076 standard labels, then Dolby Room-Centric labels, then
// the plain L/R-style labels. Earlier entries win when multiple pairs could
// match the same channels.
var speakerPairs = []speakerPair{
	{"M+030", "M-030", "FL+FR"},
	{"M+060", "M-060", "FLM+FRM"},
	{"M+090", "M-090", "SL+SR"},
	{"M+110", "M-110", "BL+BR"},
	{"M+135", "M-135", "BL+BR"},
	{"U+030", "U-030", "TFL+TFR"},
	{"U+045", "U-045", "TFL+TFR"},
	{"U+060", "U-060", "TFLs+TFRs"},
	{"U+090", "U-090", "TSL+TSR"},
	{"U+110", "U-110", "TBL+TBR"},
	{"U+135", "U-135", "TBL+TBR"},
	{"B+030", "B-030", "BFL+BFR"},
	{"B+045", "B-045", "BFL+BFR"},
	{"RC_L", "RC_R", "FL+FR"},
	{"RC_Ls", "RC_Rs", "SL+SR"},
	{"RC_Lss", "RC_Rss", "SL+SR"},
	{"RC_Lrs", "RC_Rrs", "BL+BR"},
	{"RC_Lts", "RC_Rts", "TFL+TFR"},
	{"RC_Lhs", "RC_Rhs", "TSL+TSR"},
	{"RC_Lbs", "RC_Rbs", "TBL+TBR"},
	{"RC_Lvs", "RC_Rvs", "TML+TMR"},
	{"L", "R", "FL+FR"},
	{"Ls", "Rs", "SL+SR"},
	{"Lss", "Rss", "SL+SR"},
	{"Lrs", "Rrs", "BL+BR"},
	{"Lts", "Rts", "TFL+TFR"},
}

var centreLabels = []string{"M+000", "U+000", "T+000", "RC_C", "C"}

var lfeLabels = []string{"LFE1", "LFE2", "LFE", "LFE+000", "RC_LFE"}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// BuildPlanFromLabels resolves an ADM bed's speakerLabel list into a Plan.
// It greedily consumes recognized stereo pairs in priority order, then
// center-type labels as Mono steps, then LFE labels per lfeMode, and finally
// pairs any remaining unrecognized labels sequentially with a warning.
func BuildPlanFromLabels(labels []ChannelLabel, lfeMode LfeMode) Plan {
	used := make([]bool, len(labels))
	var steps []Step
	var warnings []string

	for _, sp := range speakerPairs {
		li, ri := -1, -1
		for i, cl := range labels {
			if used[i] {
				continue
			}
			if li == -1 && cl.Label == sp.left {
				li = i
			}
			if ri == -1 && cl.Label == sp.right {
				ri = i
			}
		}
		if li != -1 && ri != -1 {
			steps = append(steps, pairStep(labels[li].Channel, labels[ri].Channel, sp.name))
			used[li] = true
			used[ri] = true
		}
	}

	for i, cl := range labels {
		if used[i] {
			continue
		}
		if contains(centreLabels, cl.Label) {
			steps = append(steps, monoStep(cl.Channel, cl.Label+"(mono)"))
			used[i] = true
		}
	}

	type lfeSlot struct {
		index   int
		channel int
		label   string
	}
	var lfeSlots []lfeSlot
	for i, cl := range labels {
		if used[i] {
			continue
		}
		if contains(lfeLabels, cl.Label) {
			lfeSlots = append(lfeSlots, lfeSlot{index: i, channel: cl.Channel, label: cl.Label})
		}
	}

	switch lfeMode {
	case LfeSkip:
		for _, s := range lfeSlots {
			steps = append(steps, skipStep(s.channel, "lfe_skipped"))
			used[s.index] = true
		}
	case LfeMono:
		for _, s := range lfeSlots {
			steps = append(steps, monoStep(s.channel, s.label+"(mono)"))
			used[s.index] = true
		}
	case LfePair:
		if len(lfeSlots) == 2 {
			steps = append(steps, pairStep(lfeSlots[0].channel, lfeSlots[1].channel, lfeSlots[0].label+"+"+lfeSlots[1].label))
			used[lfeSlots[0].index] = true
			used[lfeSlots[1].index] = true
		} else {
			for _, s := range lfeSlots {
				steps = append(steps, monoStep(s.channel, s.label+"(mono)"))
				used[s.index] = true
			}
		}
	}

	var remaining []ChannelLabel
	for i, cl := range labels {
		if !used[i] {
			remaining = append(remaining, cl)
		}
	}
	if len(remaining) > 0 {
		unknown := make([]string, len(remaining))
		for i, cl := range remaining {
			unknown[i] = cl.Label
		}
		warnings = append(warnings, fmt.Sprintf("ADM: unknown speaker label(s) %v; falling back to sequential pairing for these channels", unknown))
	}
	for i := 0; i < len(remaining); i += 2 {
		if i+1 < len(remaining) {
			a, b := remaining[i], remaining[i+1]
			steps = append(steps, pairStep(a.Channel, b.Channel, a.Label+"+"+b.Label+"(unknown)"))
		} else {
			a := remaining[i]
			steps = append(steps, monoStep(a.Channel, a.Label+"(mono/unknown)"))
		}
	}

	return Plan{
		Layout:   pcm.LayoutFromChannelCount(len(labels)),
		Channels: len(labels),
		Steps:    steps,
		Warnings: warnings,
	}
}
