package aggregate

import (
	"context"

	"github.com/SakuzyPeng/awmkit/internal/evidence"
	"github.com/SakuzyPeng/awmkit/internal/keystore"
	"github.com/SakuzyPeng/awmkit/internal/message"
	"github.com/SakuzyPeng/awmkit/internal/oracle"
	"github.com/SakuzyPeng/awmkit/internal/orchestrator"
	"github.com/SakuzyPeng/awmkit/internal/proof"
	"github.com/SakuzyPeng/awmkit/internal/route"
)

// OutcomeKind identifies which case of Outcome is populated, mirroring the
// four-way result of probing one file: a verified message, no watermark at
// all, a message that failed every configured key, or a hard error before
// detection could even run.
type OutcomeKind int

const (
	OutcomeFound OutcomeKind = iota
	OutcomeNotFound
	OutcomeInvalid
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the aggregated result of detecting and key-resolving a single
// file. Exactly the fields relevant to Kind are populated; see each
// field's comment.
type Outcome struct {
	Kind OutcomeKind

	// Detection is the winning step's raw oracle output. Set for Found
	// and Invalid, nil for NotFound and Error.
	Detection *oracle.DetectResult

	// Decoded is the verified message and slot resolution. Set only for
	// Found.
	Decoded *Decoded

	// Unverified is a best-effort, MAC-unchecked parse of the raw message
	// for forensic reporting. Set only for Invalid, and only when the
	// bytes at least parsed as a well-formed wire message.
	Unverified *message.Message

	// SlotFailure carries the resolution detail (status, scan count,
	// error) when Kind is Invalid.
	SlotFailure *InvalidSlotDecode

	// Clone is the clone-check verdict against stored evidence. Set only
	// for Found, and only when an evidence store was supplied.
	Clone *evidence.CloneVerdict

	// Err is the hard failure when Kind is Error (the oracle or decode
	// pipeline itself failed, as opposed to simply finding nothing).
	Err error
}

// BestDetection picks the detection with the fewest bit errors among
// detections that actually produced a candidate, or nil if none did. A
// step that errored out contributes no candidate.
func BestDetection(detections []orchestrator.StepDetection) *oracle.DetectResult {
	var best *oracle.DetectResult
	for _, d := range detections {
		if d.Err != nil || d.Result == nil {
			continue
		}
		if best == nil || d.Result.BitErrors < best.BitErrors {
			best = d.Result
		}
	}
	return best
}

// DetectFile runs the oracle against every detectable route step of path,
// picks the step with the fewest bit errors, resolves which key slot
// authenticated it, and — when evidenceStore, fingerprinter and matcher are
// all non-nil — runs the clone-check classifier against path's prior evidence.
func DetectFile(
	ctx context.Context,
	engine *oracle.Engine,
	keyStore *keystore.KeyStore,
	path string,
	lfeMode route.LfeMode,
	evidenceStore *evidence.Store,
	fingerprinter proof.Fingerprinter,
	matcher evidence.FingerprintMatcher,
	onStepFailure func(*orchestrator.StepFailedError),
) (*Outcome, error) {
	detections, err := orchestrator.DetectMultichannel(ctx, engine, path, lfeMode, onStepFailure)
	if err != nil {
		return &Outcome{Kind: OutcomeError, Err: err}, err
	}

	best := BestDetection(detections)
	if best == nil {
		return &Outcome{Kind: OutcomeNotFound}, nil
	}

	decoded, invalid := ResolveDecodeSlot(best.RawMessage[:], keyStore)
	if invalid != nil {
		out := &Outcome{
			Kind:        OutcomeInvalid,
			Detection:   best,
			SlotFailure: invalid,
		}
		if unverified, err := message.DecodeUnverified(best.RawMessage[:]); err == nil {
			out.Unverified = &unverified
		}
		return out, nil
	}

	out := &Outcome{
		Kind:      OutcomeFound,
		Detection: best,
		Decoded:   decoded,
	}
	if evidenceStore != nil && fingerprinter != nil && matcher != nil {
		verdict := evaluateCloneCheck(path, decoded.Message, evidenceStore, fingerprinter, matcher)
		out.Clone = &verdict
	}
	return out, nil
}

func evaluateCloneCheck(path string, decoded message.Message, store *evidence.Store, fp proof.Fingerprinter, matcher evidence.FingerprintMatcher) evidence.CloneVerdict {
	p, err := proof.BuildAudioProof(path, fp)
	if err != nil {
		return evidence.CloneVerdict{Kind: evidence.VerdictUnavailable, Reason: "proof_error: " + err.Error()}
	}
	return evidence.Classify(store, decoded.Tag.Identity(), decoded.KeySlot, p.PCMSha256, p.Chromaprint, p.FPConfigID, matcher)
}
