package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/SakuzyPeng/awmkit/internal/metrics"
	"github.com/SakuzyPeng/awmkit/internal/oracle"
	"github.com/SakuzyPeng/awmkit/internal/pcm"
	"github.com/SakuzyPeng/awmkit/internal/route"
)

// StepDetection is one detectable route step's oracle.DetectResult, or the
// error it failed with.
type StepDetection struct {
	Step   route.Step
	Result *oracle.DetectResult
	Err    error
}

// DetectMultichannel decodes path, plans its route, and runs the oracle's
// detector against every detectable step (Pair/Mono; Skip steps never
// dispatch). A step's failure is reported through onStepFailure and
// otherwise does not stop the other steps from running.
func DetectMultichannel(ctx context.Context, engine *oracle.Engine, path string, lfeMode route.LfeMode, onStepFailure func(*StepFailedError)) ([]StepDetection, error) {
	buf, err := pcm.FromFile(path)
	if err != nil {
		return nil, err
	}
	plan := route.PlanForLayout(buf.Layout(), buf.NumChannels(), lfeMode)
	return detectPlan(ctx, engine, buf, plan, onStepFailure), nil
}

func detectPlan(ctx context.Context, engine *oracle.Engine, buf *pcm.Buffer, plan route.Plan, onStepFailure func(*StepFailedError)) []StepDetection {
	detectable := make([]route.Step, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.Kind != route.Skip {
			detectable = append(detectable, s)
		}
	}

	gate := oracle.NewStepGate(len(detectable))
	out := make([]StepDetection, len(detectable))
	var wg sync.WaitGroup

	for i, step := range detectable {
		i, step := i, step
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := gate.Acquire(ctx)
			if err != nil {
				out[i] = StepDetection{Step: step, Err: err}
				return
			}
			defer release()
			out[i] = StepDetection{Step: step}
			out[i].Result, out[i].Err = detectStep(ctx, engine, buf, step)
		}()
	}
	wg.Wait()

	for _, d := range out {
		outcome := "detected"
		if d.Err != nil {
			outcome = "failed"
		}
		metrics.RouteStepsTotal.WithLabelValues(d.Step.Kind.String(), outcome).Inc()
		if d.Err != nil && onStepFailure != nil {
			onStepFailure(&StepFailedError{StepName: d.Step.Name, Err: d.Err})
		}
	}
	return out
}

func detectStep(ctx context.Context, engine *oracle.Engine, buf *pcm.Buffer, step route.Step) (*oracle.DetectResult, error) {
	start := time.Now()
	defer func() {
		metrics.OracleInvocationSeconds.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	}()

	var stepBuf *pcm.Buffer
	var err error
	switch step.Kind {
	case route.Pair:
		left, right, splitErr := buf.SplitStereoPairs(step.ChannelA, step.ChannelB)
		if splitErr != nil {
			return nil, splitErr
		}
		stepBuf, err = pcm.MergeStereoPairs(left, right, buf.SampleRate, buf.Format)
	case route.Mono:
		samples, chErr := buf.ChannelSamples(step.ChannelA)
		if chErr != nil {
			return nil, chErr
		}
		cp := make([]int32, len(samples))
		copy(cp, samples)
		cpDup := make([]int32, len(samples))
		copy(cpDup, samples)
		stepBuf, err = pcm.New([][]int32{cp, cpDup}, buf.SampleRate, buf.Format)
	}
	if err != nil {
		return nil, err
	}

	wav, err := stepBuf.ToWavBytes()
	if err != nil {
		return nil, err
	}
	return engine.DetectBytes(ctx, wav)
}
