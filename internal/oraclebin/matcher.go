package oraclebin

import (
	"math/bits"

	"github.com/SakuzyPeng/awmkit/internal/evidence"
)

// itemsPerSecond approximates how many fingerprint items Chromaprint's
// default algorithm emits per second of audio (its overlapping-window FFT
// framing works out to roughly 1 item every 128ms). It has no authoritative
// source in the dependency pack; it is only used to convert a matched item
// count into an approximate duration for the threshold check in
// internal/evidence.Classify, not as an exact timing value.
const itemsPerSecond = 7.8

// perItemBitErrorThreshold is the maximum Hamming distance, in bits out of
// 32, a single aligned pair of fingerprint items may have and still count
// as part of a matched segment. Chromaprint fingerprint items pack acoustic
// features, not random bits, so unrelated audio typically disagrees on
// close to half its bits; well under that marks a genuine match.
const perItemBitErrorThreshold = 10.0

// minMatchItems is the shortest run of matching items SegmentMatcher will
// report, corresponding to roughly minMatchItems/itemsPerSecond seconds.
const minMatchItems = 24

// SegmentMatcher implements evidence.FingerprintMatcher with a from-scratch
// sliding-window Hamming-distance aligner: no Chromaprint matching library
// exists anywhere in the dependency pack (fpcalc only emits fingerprints,
// it does not compare them), so this reimplements the well-known algorithm
// directly against the already-decoded uint32 fingerprints
// internal/evidence.Record stores.
type SegmentMatcher struct{}

// Match implements evidence.FingerprintMatcher.
func (SegmentMatcher) Match(probeFingerprint []uint32, probeConfigID uint8, candidate evidence.Record) ([]evidence.MatchedSegment, error) {
	if candidate.FPConfigID != probeConfigID {
		return nil, nil
	}
	candidateFingerprint := candidate.Chromaprint
	if len(probeFingerprint) == 0 || len(candidateFingerprint) == 0 {
		return nil, nil
	}

	var segments []evidence.MatchedSegment
	for _, run := range bestAlignedRuns(probeFingerprint, candidateFingerprint) {
		duration := float64(run.length) / itemsPerSecond
		segments = append(segments, evidence.MatchedSegment{
			EvidenceID:      candidate.ID,
			DurationSeconds: duration,
			Score:           run.avgBitErrors,
		})
	}
	return segments, nil
}

type alignedRun struct {
	length       int
	avgBitErrors float64
}

// bestAlignedRuns slides candidate against probe across every relative
// offset that produces at least one overlapping item, and for the offset
// with the lowest average bit-error rate over its overlap, extracts the
// contiguous sub-runs of items whose popcount distance stays at or below
// perItemBitErrorThreshold and whose length reaches minMatchItems.
func bestAlignedRuns(probe, candidate []uint32) []alignedRun {
	bestOffset := 0
	bestAvg := -1.0
	minOffset := -(len(candidate) - 1)
	maxOffset := len(probe) - 1

	for offset := minOffset; offset <= maxOffset; offset++ {
		sum, count := 0, 0
		for i := range probe {
			j := i - offset
			if j < 0 || j >= len(candidate) {
				continue
			}
			sum += bits.OnesCount32(probe[i] ^ candidate[j])
			count++
		}
		if count == 0 {
			continue
		}
		avg := float64(sum) / float64(count)
		if bestAvg < 0 || avg < bestAvg {
			bestAvg = avg
			bestOffset = offset
		}
	}
	if bestAvg < 0 {
		return nil
	}

	var runs []alignedRun
	runStart := -1
	runSum := 0
	runLen := 0
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		if runLen >= minMatchItems {
			runs = append(runs, alignedRun{length: runLen, avgBitErrors: float64(runSum) / float64(runLen)})
		}
		_ = end
		runStart = -1
		runSum = 0
		runLen = 0
	}

	for i := range probe {
		j := i - bestOffset
		if j < 0 || j >= len(candidate) {
			flush(i)
			continue
		}
		d := bits.OnesCount32(probe[i] ^ candidate[j])
		if float64(d) > perItemBitErrorThreshold {
			flush(i)
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		runSum += d
		runLen++
	}
	flush(len(probe))
	return runs
}
