package proof

import "fmt"

// NullFingerprinter is a Fingerprinter that always fails. It lets callers
// that only need PCMSha256ForInterleaved (or tests) construct an
// AudioProof pipeline without a real fpcalc binary on hand.
type NullFingerprinter struct{}

func (NullFingerprinter) Fingerprint(sampleRate uint32, channels uint32, samples []int16) ([]uint32, uint8, error) {
	return nil, 0, fmt.Errorf("proof: no fingerprinter configured")
}
