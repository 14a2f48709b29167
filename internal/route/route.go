// Package route plans how a multichannel PCM buffer is decomposed into the
// mono/stereo steps the external watermark oracle actually understands.
// Two planners are exposed: a table-driven one keyed on channel count and
// declared layout, and a speaker-label-driven one for ADM beds (see
// labels.go).
package route

import (
	"fmt"

	"github.com/SakuzyPeng/awmkit/internal/pcm"
)

// StepKind identifies how a route step feeds the oracle.
type StepKind int

const (
	Pair StepKind = iota
	Mono
	Skip
)

func (k StepKind) String() string {
	switch k {
	case Pair:
		return "pair"
	case Mono:
		return "mono"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Step is one unit of oracle work: a stereo pair, a single mono channel, or
// a channel explicitly skipped (LFE in Skip mode). ChannelB is -1 for Mono
// and Skip steps.
type Step struct {
	Name     string
	Kind     StepKind
	ChannelA int
	ChannelB int
}

// LfeMode controls how the low-frequency-effects channel is routed.
type LfeMode int

const (
	LfeSkip LfeMode = iota
	LfeMono
	LfePair
)

// ParseLfeMode maps the AWMKIT_LFE_MODE env value to an LfeMode, defaulting
// to LfeSkip for an empty or unrecognized value.
func ParseLfeMode(s string) LfeMode {
	switch s {
	case "mono":
		return LfeMono
	case "pair":
		return LfePair
	default:
		return LfeSkip
	}
}

// Plan is the ordered set of steps a layout decomposes into, plus any
// non-fatal warnings raised while building it (e.g. falling back to
// sequential pairing for an unrecognized layout/channel-count combination).
type Plan struct {
	Layout   pcm.ChannelLayout
	Channels int
	Steps    []Step
	Warnings []string
}

func pairStep(a, b int, name string) Step { return Step{Name: name, Kind: Pair, ChannelA: a, ChannelB: b} }
func monoStep(a int, name string) Step    { return Step{Name: name, Kind: Mono, ChannelA: a, ChannelB: -1} }
func skipStep(a int, name string) Step    { return Step{Name: name, Kind: Skip, ChannelA: a, ChannelB: -1} }

// core51 builds the FL+FR / FC-LFE / BL+BR steps shared by 5.1 and every
// layout that extends it (5.1.2, 7.1 and beyond).
func core51(lfeMode LfeMode) []Step {
	if lfeMode == LfePair {
		return []Step{
			pairStep(0, 1, "FL+FR"),
			pairStep(2, 3, "FC+LFE"),
			pairStep(4, 5, "BL+BR"),
		}
	}
	var lfe Step
	if lfeMode == LfeMono {
		lfe = monoStep(3, "LFE(mono)")
	} else {
		lfe = skipStep(3, "lfe_skipped")
	}
	return []Step{
		pairStep(0, 1, "FL+FR"),
		monoStep(2, "FC(mono)"),
		lfe,
		pairStep(4, 5, "BL+BR"),
	}
}

func core71(lfeMode LfeMode) []Step {
	return append(core51(lfeMode), pairStep(6, 7, "SL+SR"))
}

// PlanForLayout builds the step list for a declared layout and actual
// channel count. When the channel count doesn't match what the layout
// expects, or the layout isn't one of the known reference shapes, it falls
// back to sequential two-by-two pairing and records a warning.
func PlanForLayout(layout pcm.ChannelLayout, channelCount int, lfeMode LfeMode) Plan {
	steps, ok := tableSteps(layout, channelCount, lfeMode)
	if !ok {
		return sequentialFallback(layout, channelCount)
	}
	return Plan{Layout: layout, Channels: channelCount, Steps: steps}
}

func tableSteps(layout pcm.ChannelLayout, channelCount int, lfeMode LfeMode) ([]Step, bool) {
	switch layout {
	case pcm.LayoutStereo:
		if channelCount != 2 {
			return nil, false
		}
		return []Step{pairStep(0, 1, "FL+FR")}, true
	case pcm.LayoutSurround51:
		if channelCount != 6 {
			return nil, false
		}
		return core51(lfeMode), true
	case pcm.LayoutSurround512:
		if channelCount != 8 {
			return nil, false
		}
		return append(core51(lfeMode), pairStep(6, 7, "TFL+TFR")), true
	case pcm.LayoutSurround71:
		if channelCount != 8 {
			return nil, false
		}
		return core71(lfeMode), true
	case pcm.LayoutSurround712:
		if channelCount != 10 {
			return nil, false
		}
		return append(core71(lfeMode), pairStep(8, 9, "Lts+Rts")), true
	case pcm.LayoutSurround714:
		if channelCount != 12 {
			return nil, false
		}
		steps := core71(lfeMode)
		return append(steps, pairStep(8, 9, "TFL+TFR"), pairStep(10, 11, "TBL+TBR")), true
	case pcm.LayoutSurround916:
		if channelCount != 16 {
			return nil, false
		}
		steps := core71(lfeMode)
		return append(steps,
			pairStep(8, 9, "FLC+FRC"),
			pairStep(10, 11, "TFL+TFR"),
			pairStep(12, 13, "TBL+TBR"),
			pairStep(14, 15, "TSL+TSR"),
		), true
	default:
		return nil, false
	}
}

func sequentialFallback(layout pcm.ChannelLayout, channelCount int) Plan {
	steps := make([]Step, 0, (channelCount+1)/2)
	ch := 0
	for ; ch+1 < channelCount; ch += 2 {
		steps = append(steps, pairStep(ch, ch+1, fmt.Sprintf("ch%d+ch%d", ch, ch+1)))
	}
	if ch < channelCount {
		steps = append(steps, monoStep(ch, fmt.Sprintf("ch%d(mono)", ch)))
	}
	warning := fmt.Sprintf("smart routing fallback for layout %s (%d channels)", layout, channelCount)
	return Plan{Layout: layout, Channels: channelCount, Steps: steps, Warnings: []string{warning}}
}

// IsSilent reports whether every sample's absolute value is below the
// format's silence threshold (roughly -80 dBFS, computed as the format's max
// magnitude divided by 10000, floored at 1).
func IsSilent(samples []int32, format pcm.SampleFormat) bool {
	var maxVal int32
	switch format {
	case pcm.Int16:
		maxVal = 32767
	case pcm.Int24:
		maxVal = 8388607
	default:
		maxVal = 1<<31 - 1
	}
	threshold := maxVal / 10000
	if threshold < 1 {
		threshold = 1
	}
	for _, s := range samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs >= threshold {
			return false
		}
	}
	return true
}
