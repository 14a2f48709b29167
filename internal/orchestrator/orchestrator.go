// Package orchestrator drives a multichannel embed or detect across a
// route.Plan, dispatching one oracle invocation per detectable step and
// reassembling the result. Grounded on
// original_source/src/media/adm_embed.rs (embed_pairs_via_audiowmark,
// rewrite_adm_with_transform) and internal/supervisor's goroutine/mutex
// idiom for fan-out with per-item error capture.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SakuzyPeng/awmkit/internal/adm"
	"github.com/SakuzyPeng/awmkit/internal/message"
	"github.com/SakuzyPeng/awmkit/internal/metrics"
	"github.com/SakuzyPeng/awmkit/internal/oracle"
	"github.com/SakuzyPeng/awmkit/internal/pcm"
	"github.com/SakuzyPeng/awmkit/internal/route"
)

// StepFailedError reports that one route step's oracle invocation failed.
// Embed/detect orchestration logs and skips a failed step rather than
// aborting the whole file, per the step failure policy; this type is what
// gets logged.
type StepFailedError struct {
	StepName string
	Err      error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("orchestrator: step %q failed: %v", e.StepName, e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }

// EmbedMultichannel embeds message into input, writing output. ADM/BWF
// input is rewritten byte-exact outside the data chunk; anything else is
// decoded, routed, embedded per step, and written as a fresh WAV.
func EmbedMultichannel(ctx context.Context, engine *oracle.Engine, input, output string, msg []byte, lfeMode route.LfeMode, onStepFailure func(*StepFailedError)) error {
	if len(msg) != message.Len {
		return fmt.Errorf("orchestrator: message must be %d bytes, got %d", message.Len, len(msg))
	}

	idx, err := adm.ProbeADMOrBWF(input)
	if err != nil {
		return fmt.Errorf("orchestrator: probe ADM/BWF: %w", err)
	}
	if idx != nil {
		return adm.RewriteWithTransform(input, output, idx, func(buf *pcm.Buffer) (*pcm.Buffer, error) {
			plan := route.PlanForLayout(buf.Layout(), buf.NumChannels(), lfeMode)
			return embedPlan(ctx, engine, buf, msg, plan, onStepFailure)
		})
	}

	buf, err := pcm.FromFile(input)
	if err != nil {
		return fmt.Errorf("orchestrator: decode %s: %w", input, err)
	}
	plan := route.PlanForLayout(buf.Layout(), buf.NumChannels(), lfeMode)
	result, err := embedPlan(ctx, engine, buf, msg, plan, onStepFailure)
	if err != nil {
		return err
	}
	return result.ToWav(output)
}

// stepResult carries one step's outcome back to the assembler: either
// freshly embedded channel samples, or an error to report via
// onStepFailure (the step's original samples pass through unchanged).
type stepResult struct {
	step    route.Step
	samples map[int][]int32
	err     error
}

func embedPlan(ctx context.Context, engine *oracle.Engine, buf *pcm.Buffer, msg []byte, plan route.Plan, onStepFailure func(*StepFailedError)) (*pcm.Buffer, error) {
	out := make([][]int32, buf.NumChannels())
	for i, ch := range buf.Channels {
		cp := make([]int32, len(ch))
		copy(cp, ch)
		out[i] = cp
	}

	gate := oracle.NewStepGate(len(plan.Steps))
	results := make([]stepResult, len(plan.Steps))
	var wg sync.WaitGroup

	for i, step := range plan.Steps {
		i, step := i, step
		if step.Kind == route.Skip {
			results[i] = stepResult{step: step}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := gate.Acquire(ctx)
			if err != nil {
				results[i] = stepResult{step: step, err: err}
				return
			}
			defer release()
			samples, err := embedStep(ctx, engine, buf, step, msg)
			results[i] = stepResult{step: step, samples: samples, err: err}
		}()
	}
	wg.Wait()

	for _, r := range results {
		outcome := "embedded"
		switch {
		case r.step.Kind == route.Skip:
			outcome = "skipped"
		case r.err != nil:
			outcome = "failed"
		}
		metrics.RouteStepsTotal.WithLabelValues(r.step.Kind.String(), outcome).Inc()

		if r.err != nil {
			stepErr := &StepFailedError{StepName: r.step.Name, Err: r.err}
			if onStepFailure != nil {
				onStepFailure(stepErr)
			}
			continue
		}
		for ch, samples := range r.samples {
			out[ch] = samples
		}
	}

	return pcm.New(out, buf.SampleRate, buf.Format)
}

func embedStep(ctx context.Context, engine *oracle.Engine, buf *pcm.Buffer, step route.Step, msg []byte) (map[int][]int32, error) {
	start := time.Now()
	defer func() {
		metrics.OracleInvocationSeconds.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	}()

	switch step.Kind {
	case route.Pair:
		left, right, err := buf.SplitStereoPairs(step.ChannelA, step.ChannelB)
		if err != nil {
			return nil, err
		}
		stereo, err := pcm.MergeStereoPairs(left, right, buf.SampleRate, buf.Format)
		if err != nil {
			return nil, err
		}
		result, err := embedBuffer(ctx, engine, stereo, msg)
		if err != nil {
			return nil, err
		}
		if result.NumChannels() != 2 || result.NumSamples() != len(left) {
			return nil, fmt.Errorf("orchestrator: step %q: unexpected embedded shape %dch/%d samples", step.Name, result.NumChannels(), result.NumSamples())
		}
		return map[int][]int32{step.ChannelA: result.Channels[0], step.ChannelB: result.Channels[1]}, nil

	case route.Mono:
		samples, err := buf.ChannelSamples(step.ChannelA)
		if err != nil {
			return nil, err
		}
		cp := make([]int32, len(samples))
		copy(cp, samples)
		cpDup := make([]int32, len(samples))
		copy(cpDup, samples)
		stereo, err := pcm.New([][]int32{cp, cpDup}, buf.SampleRate, buf.Format)
		if err != nil {
			return nil, err
		}
		result, err := embedBuffer(ctx, engine, stereo, msg)
		if err != nil {
			return nil, err
		}
		if result.NumChannels() != 2 || result.NumSamples() != len(samples) {
			return nil, fmt.Errorf("orchestrator: step %q: unexpected embedded shape %dch/%d samples", step.Name, result.NumChannels(), result.NumSamples())
		}
		return map[int][]int32{step.ChannelA: result.Channels[0]}, nil

	default:
		return nil, fmt.Errorf("orchestrator: step %q has unembeddable kind %v", step.Name, step.Kind)
	}
}

func embedBuffer(ctx context.Context, engine *oracle.Engine, buf *pcm.Buffer, msg []byte) (*pcm.Buffer, error) {
	inputWav, err := buf.ToWavBytes()
	if err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	outputWav, err := engine.EmbedBytes(ctx, inputWav, msg)
	if err != nil {
		return nil, err
	}
	return pcm.FromWavBytes(outputWav)
}
