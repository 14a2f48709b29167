package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/SakuzyPeng/awmkit/internal/config"
	"github.com/SakuzyPeng/awmkit/internal/evidence"
	"github.com/SakuzyPeng/awmkit/internal/keystore"
	"github.com/SakuzyPeng/awmkit/internal/store"
	"github.com/SakuzyPeng/awmkit/internal/tag"
	"github.com/SakuzyPeng/awmkit/internal/tagstore"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		StateDir:        dir,
		DBPath:          filepath.Join(dir, "awmkit.db"),
		KeysDir:         filepath.Join(dir, "keys"),
		RuntimeCacheDir: filepath.Join(dir, "runtime"),
		OracleStrength:  10,
		LfeMode:         "skip",
	}
	var db *sql.DB
	var err error
	db, err = store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	fb, err := keystore.NewFileBackend(cfg.KeysDir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	ts, err := tagstore.Open(db)
	if err != nil {
		t.Fatalf("tagstore.Open: %v", err)
	}
	es, err := evidence.Open(db)
	if err != nil {
		t.Fatalf("evidence.Open: %v", err)
	}
	return &app{
		cfg:      cfg,
		db:       db,
		keys:     keystore.New(fb, db),
		tags:     ts,
		evidence: es,
	}
}

func TestResolveTagLiteralBypassesStore(t *testing.T) {
	a := newTestApp(t)
	got, err := a.resolveTag("", "SAKUZY_2")
	if err != nil {
		t.Fatalf("resolveTag: %v", err)
	}
	if got.Identity() != "SAKUZY" {
		t.Fatalf("Identity() = %q, want SAKUZY", got.Identity())
	}
}

func TestResolveTagRequiresIdentityOrLiteral(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.resolveTag("", ""); err == nil {
		t.Fatal("expected an error when neither -identity nor -tag-literal is set")
	}
}

func TestResolveTagAssignsAndReusesSuggestion(t *testing.T) {
	a := newTestApp(t)
	first, err := a.resolveTag("alice", "")
	if err != nil {
		t.Fatalf("resolveTag: %v", err)
	}
	second, err := a.resolveTag("alice", "")
	if err != nil {
		t.Fatalf("resolveTag: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("expected a stable suggestion across calls: %q vs %q", first, second)
	}
}

func TestResolveTagHonorsExistingMapping(t *testing.T) {
	a := newTestApp(t)
	want, err := tag.New("EXSTNG")
	if err != nil {
		t.Fatalf("tag.New: %v", err)
	}
	if err := a.tags.Save("bob", want.String(), false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := a.resolveTag("bob", "")
	if err != nil {
		t.Fatalf("resolveTag: %v", err)
	}
	if got.String() != want.String() {
		t.Fatalf("resolveTag = %q, want %q", got, want)
	}
}

func writeFakeOracleBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell-script oracle binary requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-oracle")
	script := "#!/bin/sh\ncat >/dev/null\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake oracle: %v", err)
	}
	return path
}

func TestNewOracleEngineResolvesConfiguredBinary(t *testing.T) {
	a := newTestApp(t)
	a.cfg.OracleBinaryPath = writeFakeOracleBinary(t)
	engine, err := a.newOracleEngine()
	if err != nil {
		t.Fatalf("newOracleEngine: %v", err)
	}
	if engine.BinaryPath != a.cfg.OracleBinaryPath {
		t.Fatalf("BinaryPath = %q, want %q", engine.BinaryPath, a.cfg.OracleBinaryPath)
	}
}

func TestNewOracleEngineErrorsWhenBinaryMissing(t *testing.T) {
	a := newTestApp(t)
	a.cfg.OracleBinaryPath = fmt.Sprintf("/definitely/not/a/real/path/%d", os.Getpid())
	if _, err := a.newOracleEngine(); err == nil {
		t.Fatal("expected an error for a nonexistent oracle binary override")
	}
}

func TestCloneVerdictLabel(t *testing.T) {
	cases := map[evidence.VerdictKind]string{
		evidence.VerdictExact:       "exact",
		evidence.VerdictLikely:      "likely",
		evidence.VerdictSuspect:     "suspect",
		evidence.VerdictUnavailable: "unavailable",
	}
	for kind, want := range cases {
		if got := cloneVerdictLabel(kind); got != want {
			t.Errorf("cloneVerdictLabel(%v) = %q, want %q", kind, got, want)
		}
	}
}
