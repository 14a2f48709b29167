package oracle

import "testing"

func TestParseDetectOutputAllPattern(t *testing.T) {
	stdout := "pattern  all 0101c1d05978131b57f7deb8e22a0b78\n"
	result := parseDetectOutput(stdout, "")
	if result == nil {
		t.Fatalf("expected a detection result")
	}
	if result.Pattern != "all" {
		t.Fatalf("pattern = %q, want all", result.Pattern)
	}
	if !result.MatchFound {
		t.Fatalf("expected MatchFound true")
	}
	if result.DetectScore != nil {
		t.Fatalf("expected no score for legacy output, got %v", *result.DetectScore)
	}
}

func TestParseDetectOutputSinglePatternWithBitErrors(t *testing.T) {
	result := parseDetectOutput("pattern   single 0101c1d05978131b57f7deb8e22a0b78 3\n", "")
	if result == nil {
		t.Fatalf("expected a detection result")
	}
	if result.BitErrors != 3 {
		t.Fatalf("bit errors = %d, want 3", result.BitErrors)
	}
	if result.DetectScore != nil {
		t.Fatalf("integer 4th column must not be parsed as score")
	}
}

func TestParseDetectOutputNewFormatWithScore(t *testing.T) {
	result := parseDetectOutput("pattern  0:00 0101c1d05978131b57f7deb8e22a0b78 2.500 -0.001 CLIP-B\n", "")
	if result == nil {
		t.Fatalf("expected a detection result")
	}
	if result.DetectScore == nil || *result.DetectScore != 2.5 {
		t.Fatalf("unexpected score: %v", result.DetectScore)
	}
}

func TestParseDetectOutputLowScoreIsRejected(t *testing.T) {
	result := parseDetectOutput("pattern  0:00 0101c1d05978131b57f7deb8e22a0b78 0.500 -0.001 CLIP-B\n", "")
	if result != nil {
		t.Fatalf("expected low-confidence pattern line to be skipped, got %+v", result)
	}
}

func TestParseDetectOutputAllZeroMessageIsNoMatch(t *testing.T) {
	result := parseDetectOutput("pattern  all 00000000000000000000000000000000\n", "")
	if result != nil {
		t.Fatalf("expected all-zero message to be treated as no match, got %+v", result)
	}
}

func TestParseDetectOutputNoPatternLine(t *testing.T) {
	if r := parseDetectOutput("no watermark found\n", "some stderr\n"); r != nil {
		t.Fatalf("expected nil result, got %+v", r)
	}
}

func TestParseDetectOutputSearchesStderrToo(t *testing.T) {
	result := parseDetectOutput("", "pattern  all 0101c1d05978131b57f7deb8e22a0b78\n")
	if result == nil {
		t.Fatalf("expected pattern line found in stderr")
	}
}
