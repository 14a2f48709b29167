package tagstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/SakuzyPeng/awmkit/internal/store"
)

func newTestTagStore(t *testing.T) *TagStore {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "awmkit.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ts, err := Open(db)
	if err != nil {
		t.Fatalf("tagstore.Open: %v", err)
	}
	return ts
}

func TestSaveAndLookupCaseInsensitive(t *testing.T) {
	ts := newTestTagStore(t)
	if err := ts.Save("Alice", "ALICEXY", false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := ts.LookupTagCI("alice")
	if err != nil {
		t.Fatalf("LookupTagCI: %v", err)
	}
	if !ok || got != "ALICEXY" {
		t.Fatalf("LookupTagCI = %q, %v, want ALICEXY, true", got, ok)
	}
}

func TestSaveConflictWithoutForce(t *testing.T) {
	ts := newTestTagStore(t)
	if err := ts.Save("bob", "TAGONE12", false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	err := ts.Save("bob", "TAGTWO34", false)
	var mexist *MappingExistsError
	if !errors.As(err, &mexist) {
		t.Fatalf("expected *MappingExistsError, got %v", err)
	}
}

func TestSaveForceOverwrites(t *testing.T) {
	ts := newTestTagStore(t)
	if err := ts.Save("carol", "TAGONE12", false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := ts.Save("carol", "TAGTWO34", true); err != nil {
		t.Fatalf("Save with force: %v", err)
	}
	got, _, err := ts.LookupTagCI("carol")
	if err != nil {
		t.Fatalf("LookupTagCI: %v", err)
	}
	if got != "TAGTWO34" {
		t.Fatalf("LookupTagCI = %q, want TAGTWO34", got)
	}
}

func TestSaveSameTagIsNoop(t *testing.T) {
	ts := newTestTagStore(t)
	if err := ts.Save("dave", "TAGONE12", false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := ts.Save("dave", "TAGONE12", false); err != nil {
		t.Fatalf("Save with identical tag should be a no-op, got error: %v", err)
	}
}

func TestSuggestIsDeterministic(t *testing.T) {
	t1, err := Suggest("someuser")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	t2, err := Suggest("someuser")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if t1.String() != t2.String() {
		t.Fatalf("Suggest is not deterministic: %q != %q", t1.String(), t2.String())
	}
	if err := t1.Verify(); err != nil {
		t.Fatalf("suggested tag failed checksum verification: %v", err)
	}
}

func TestSuggestDiffersByUsername(t *testing.T) {
	t1, err := Suggest("alice")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	t2, err := Suggest("bob")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if t1.String() == t2.String() {
		t.Fatalf("Suggest produced identical tags for different usernames")
	}
}

func TestRemoveUsernamesBatch(t *testing.T) {
	ts := newTestTagStore(t)
	for _, u := range []string{"a", "b", "c"} {
		if err := ts.Save(u, "TAGONE12", false); err != nil {
			t.Fatalf("Save(%q): %v", u, err)
		}
	}
	if err := ts.RemoveUsernames([]string{"a", "c"}); err != nil {
		t.Fatalf("RemoveUsernames: %v", err)
	}
	if _, ok, _ := ts.LookupTagCI("a"); ok {
		t.Fatalf("a should have been removed")
	}
	if _, ok, _ := ts.LookupTagCI("b"); !ok {
		t.Fatalf("b should still be present")
	}
}
