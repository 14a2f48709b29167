package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/SakuzyPeng/awmkit/internal/oracle"
	"github.com/SakuzyPeng/awmkit/internal/pcm"
	"github.com/SakuzyPeng/awmkit/internal/route"
)

// writeIdentityOracle writes a fake oracle binary that copies stdin to
// stdout unchanged, ignoring its arguments — enough to exercise
// orchestrator's step assembly without a real watermark tool.
func writeIdentityOracle(t *testing.T) *oracle.Engine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell-script oracle binary requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-oracle")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat\n"), 0o755); err != nil {
		t.Fatalf("write fake oracle: %v", err)
	}
	return &oracle.Engine{BinaryPath: path, Strength: 10}
}

// writeRecordingOracle writes a fake oracle binary that, in addition to
// passing stdin through to stdout unchanged, saves a copy of every
// invocation's input to its own file under dir — so a concurrent
// embedPlan run doesn't clobber one step's recording with another's.
func writeRecordingOracle(t *testing.T) (engine *oracle.Engine, dir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell-script oracle binary requires a POSIX shell")
	}
	binDir := t.TempDir()
	recDir := t.TempDir()
	path := filepath.Join(binDir, "fake-oracle-recording")
	script := "#!/bin/sh\nf=$(mktemp \"" + recDir + "/call.XXXXXX\")\ncat >\"$f\"\ncat \"$f\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake oracle: %v", err)
	}
	return &oracle.Engine{BinaryPath: path, Strength: 10}, recDir
}

func writeFailingOracle(t *testing.T) *oracle.Engine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell-script oracle binary requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-oracle-fail")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write fake oracle: %v", err)
	}
	e := &oracle.Engine{BinaryPath: path, Strength: 10}
	e.ForceFileIO(true)
	return e
}

func mustBuffer(t *testing.T, channels [][]int32, sampleRate uint32) *pcm.Buffer {
	t.Helper()
	buf, err := pcm.New(channels, sampleRate, pcm.Int16)
	if err != nil {
		t.Fatalf("pcm.New: %v", err)
	}
	return buf
}

func stereoBuffer(t *testing.T) *pcm.Buffer {
	t.Helper()
	left := make([]int32, 2000)
	right := make([]int32, 2000)
	for i := range left {
		left[i] = int32(i % 100)
		right[i] = int32(-(i % 100))
	}
	buf, err := pcm.New([][]int32{left, right}, 48000, pcm.Int16)
	if err != nil {
		t.Fatalf("pcm.New: %v", err)
	}
	return buf
}

func TestEmbedPlanIdentityOraclePreservesShape(t *testing.T) {
	engine := writeIdentityOracle(t)
	buf := stereoBuffer(t)
	plan := route.PlanForLayout(buf.Layout(), buf.NumChannels(), route.LfeSkip)

	result, err := embedPlan(context.Background(), engine, buf, make([]byte, 16), plan, nil)
	if err != nil {
		t.Fatalf("embedPlan: %v", err)
	}
	if result.NumChannels() != buf.NumChannels() || result.NumSamples() != buf.NumSamples() {
		t.Fatalf("shape changed: got %dch/%d samples, want %dch/%d samples",
			result.NumChannels(), result.NumSamples(), buf.NumChannels(), buf.NumSamples())
	}
}

func TestEmbedPlanSkipStepPassesThroughUnchanged(t *testing.T) {
	engine := writeIdentityOracle(t)

	channels := make([][]int32, 6)
	for i := range channels {
		samples := make([]int32, 2000)
		for j := range samples {
			samples[j] = int32(i*1000 + j%50)
		}
		channels[i] = samples
	}
	buf, err := pcm.New(channels, 48000, pcm.Int24)
	if err != nil {
		t.Fatalf("pcm.New: %v", err)
	}
	plan := route.PlanForLayout(buf.Layout(), buf.NumChannels(), route.LfeSkip)

	var skipChannel int = -1
	for _, s := range plan.Steps {
		if s.Kind == route.Skip {
			skipChannel = s.ChannelA
		}
	}
	if skipChannel < 0 {
		t.Fatalf("expected the 5.1 default plan to contain a Skip step")
	}

	result, err := embedPlan(context.Background(), engine, buf, make([]byte, 16), plan, nil)
	if err != nil {
		t.Fatalf("embedPlan: %v", err)
	}
	for i, want := range buf.Channels[skipChannel] {
		if result.Channels[skipChannel][i] != want {
			t.Fatalf("skip channel sample %d changed: got %d, want %d", i, result.Channels[skipChannel][i], want)
		}
	}
}

// TestEmbedPlanMonoStepDuplicatesChannelToStereo guards against feeding the
// oracle a true 1-channel buffer on a Mono route step: audiowmark only
// accepts stereo input, so a Mono step must duplicate its single channel
// into both sides of a 2-channel buffer before calling the oracle.
func TestEmbedPlanMonoStepDuplicatesChannelToStereo(t *testing.T) {
	engine, recDir := writeRecordingOracle(t)

	channels := make([][]int32, 6)
	for i := range channels {
		samples := make([]int32, 2000)
		for j := range samples {
			samples[j] = int32(i*1000 + j%50)
		}
		channels[i] = samples
	}
	buf, err := pcm.New(channels, 48000, pcm.Int24)
	if err != nil {
		t.Fatalf("pcm.New: %v", err)
	}
	plan := route.PlanForLayout(buf.Layout(), buf.NumChannels(), route.LfeSkip)

	var monoStep *route.Step
	for i, s := range plan.Steps {
		if s.Kind == route.Mono {
			monoStep = &plan.Steps[i]
			break
		}
	}
	if monoStep == nil {
		t.Fatalf("expected the 5.1 default plan to contain a Mono step")
	}
	center := buf.Channels[monoStep.ChannelA]

	if _, err := embedPlan(context.Background(), engine, buf, make([]byte, 16), plan, nil); err != nil {
		t.Fatalf("embedPlan: %v", err)
	}

	entries, err := os.ReadDir(recDir)
	if err != nil {
		t.Fatalf("read recording dir: %v", err)
	}
	var found bool
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(recDir, entry.Name()))
		if err != nil {
			t.Fatalf("read recorded invocation: %v", err)
		}
		recorded, err := pcm.FromWavBytes(data)
		if err != nil {
			continue
		}
		if recorded.NumChannels() != 2 || recorded.NumSamples() != len(center) {
			continue
		}
		matches := true
		for i, want := range center {
			if recorded.Channels[0][i] != want || recorded.Channels[1][i] != want {
				matches = false
				break
			}
		}
		if matches {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no recorded oracle invocation carried the center channel duplicated across 2 channels")
	}
}

func TestEmbedPlanStepFailurePreservesOriginalAndReportsError(t *testing.T) {
	engine := writeFailingOracle(t)
	buf := stereoBuffer(t)
	plan := route.PlanForLayout(buf.Layout(), buf.NumChannels(), route.LfeSkip)

	var reported []*StepFailedError
	result, err := embedPlan(context.Background(), engine, buf, make([]byte, 16), plan, func(e *StepFailedError) {
		reported = append(reported, e)
	})
	if err != nil {
		t.Fatalf("embedPlan must not abort on a step failure: %v", err)
	}
	if len(reported) == 0 {
		t.Fatalf("expected the failing step to be reported via onStepFailure")
	}
	for ch := range buf.Channels {
		for i, want := range buf.Channels[ch] {
			if result.Channels[ch][i] != want {
				t.Fatalf("channel %d sample %d changed despite step failure: got %d, want %d", ch, i, result.Channels[ch][i], want)
			}
		}
	}
}
