package evidence

// VerdictKind identifies which case of CloneVerdict is populated.
type VerdictKind int

const (
	VerdictExact VerdictKind = iota
	VerdictLikely
	VerdictSuspect
	VerdictUnavailable
)

// CloneVerdict is the outcome of classifying a probed file against stored
// evidence. Which of EvidenceID/Score/Duration/Reason are meaningful
// depends on Kind: Exact carries EvidenceID; Likely carries EvidenceID, Score,
// Duration; Suspect carries Reason and optionally Score/Duration;
// Unavailable carries Reason.
type CloneVerdict struct {
	Kind       VerdictKind
	EvidenceID int64
	Score      *float64
	Duration   *float64
	Reason     string
}

func exactVerdict(id int64) CloneVerdict {
	return CloneVerdict{Kind: VerdictExact, EvidenceID: id}
}

func likelyVerdict(id int64, score, duration float64) CloneVerdict {
	return CloneVerdict{Kind: VerdictLikely, EvidenceID: id, Score: &score, Duration: &duration}
}

func suspectVerdict(reason string, score, duration *float64) CloneVerdict {
	return CloneVerdict{Kind: VerdictSuspect, Reason: reason, Score: score, Duration: duration}
}

func unavailableVerdict(reason string) CloneVerdict {
	return CloneVerdict{Kind: VerdictUnavailable, Reason: reason}
}

// MatchedSegment is one fingerprint-matcher hit of a probe against a
// stored candidate.
type MatchedSegment struct {
	EvidenceID      int64
	DurationSeconds float64
	Score           float64
}

// FingerprintMatcher compares a probe fingerprint against one candidate's
// stored fingerprint, returning every matched segment. No pure-Go
// Chromaprint matcher exists in the dependency pack; production callers
// supply internal/oraclebin.SegmentMatcher, a hand-written pure-Go
// sliding-window matcher (unlike fingerprint generation, which
// internal/proof delegates to the external fpcalc tool).
type FingerprintMatcher interface {
	Match(probeFingerprint []uint32, probeConfigID uint8, candidate Record) ([]MatchedSegment, error)
}

const (
	likelyScoreThreshold    = 7.0
	likelyDurationThreshold = 6.0
)

// Classify runs the clone-check classifier for a probed file's PCM hash and
// fingerprint against identity/keySlot's stored evidence.
func Classify(store *Store, identity string, keySlot uint8, probePCMSha256 string, probeFingerprint []uint32, probeConfigID uint8, matcher FingerprintMatcher) CloneVerdict {
	candidates, err := store.ListCandidates(identity, keySlot)
	if err != nil {
		return unavailableVerdict(err.Error())
	}
	if len(candidates) == 0 {
		return suspectVerdict("no_evidence", nil, nil)
	}

	for _, c := range candidates {
		if c.PCMSha256 == probePCMSha256 {
			return exactVerdict(c.ID)
		}
	}

	var best, likely *MatchedSegment
	for _, c := range candidates {
		if c.FPConfigID != probeConfigID {
			continue
		}
		segments, err := matcher.Match(probeFingerprint, probeConfigID, c)
		if err != nil {
			return unavailableVerdict(err.Error())
		}
		for i := range segments {
			seg := segments[i]
			if best == nil || seg.DurationSeconds > best.DurationSeconds ||
				(seg.DurationSeconds == best.DurationSeconds && seg.Score < best.Score) {
				best = &seg
			}
			if seg.Score <= likelyScoreThreshold && seg.DurationSeconds >= likelyDurationThreshold {
				if likely == nil || seg.Score < likely.Score ||
					(seg.Score == likely.Score && seg.DurationSeconds > likely.DurationSeconds) {
					likely = &seg
				}
			}
		}
	}

	if likely != nil {
		return likelyVerdict(likely.EvidenceID, likely.Score, likely.DurationSeconds)
	}
	if best == nil {
		return suspectVerdict("threshold_not_met", nil, nil)
	}
	score, duration := best.Score, best.DurationSeconds
	return suspectVerdict("threshold_not_met", &score, &duration)
}
