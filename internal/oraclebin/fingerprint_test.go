package oraclebin

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeFakeFpcalc writes a shell script standing in for fpcalc that always
// emits a fixed JSON fingerprint, ignoring its input path, so Fingerprint
// can be exercised without a real Chromaprint binary installed.
func writeFakeFpcalc(t *testing.T, fingerprint string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell-script fpcalc requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-fpcalc")
	script := fmt.Sprintf("#!/bin/sh\necho '{\"duration\": 12.3, \"fingerprint\": [%s]}'\n", fingerprint)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake fpcalc: %v", err)
	}
	return path
}

func TestFingerprintParsesFpcalcOutput(t *testing.T) {
	path := writeFakeFpcalc(t, "1, -2, 2147483647, -2147483648")
	f := &FpcalcFingerprinter{BinaryPath: path}

	samples := make([]int16, 2000)
	for i := range samples {
		samples[i] = int16(i % 100)
	}

	fp, configID, err := f.Fingerprint(48000, 2, samples)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if configID != ConfigID {
		t.Fatalf("configID = %d, want %d", configID, ConfigID)
	}
	want := []uint32{1, uint32(int32(-2)), 2147483647, uint32(int32(-2147483648))}
	if len(fp) != len(want) {
		t.Fatalf("fp length = %d, want %d", len(fp), len(want))
	}
	for i := range want {
		if fp[i] != want[i] {
			t.Fatalf("fp[%d] = %d, want %d", i, fp[i], want[i])
		}
	}
}

func TestFingerprintRejectsUnevenChannelSplit(t *testing.T) {
	f := &FpcalcFingerprinter{BinaryPath: "unused"}
	_, _, err := f.Fingerprint(48000, 2, []int16{1, 2, 3})
	if err == nil {
		t.Fatalf("expected an error for a sample count not divisible by channel count")
	}
}

func TestResolveFpcalcFallsBackToPath(t *testing.T) {
	if _, err := resolveFpcalc(""); err == nil {
		return
	}
	if _, err := resolveFpcalc("/definitely/not/a/real/binary"); err == nil {
		t.Fatalf("expected BinaryNotFoundError for a nonexistent override")
	}
}
