package storage

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func tempStore(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs, dir
}

func TestPutAndGet(t *testing.T) {
	s, _ := tempStore(t)
	value := []byte(`{"id":"a"}`)
	if err := s.Put("a", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("value mismatch: got %q", got)
	}
}

func TestKeysRoundTripUnsafeNames(t *testing.T) {
	s, dir := tempStore(t)
	keys := []string{"../escape", "a/b", "plain", ".hidden"}
	for _, k := range keys {
		if err := s.Put(k, []byte("x")); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
	got, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(got)
	sort.Strings(keys)
	if len(got) != len(keys) {
		t.Fatalf("keys = %v, want %v", got, keys)
	}
	for i := range keys {
		if got[i] != keys[i] {
			t.Errorf("keys[%d] = %q, want %q", i, got[i], keys[i])
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); err == nil {
		t.Error("key escaped the store directory")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	s, _ := tempStore(t)
	if err := s.Put("", []byte("x")); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestDeleteAndClear(t *testing.T) {
	s, _ := tempStore(t)
	_ = s.Put("a", []byte("1"))
	_ = s.Put("b", []byte("2"))

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("missing"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := s.Get("a"); err == nil {
		t.Error("expected error reading deleted key")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	keys, _ := s.Keys()
	if len(keys) != 0 {
		t.Errorf("keys after clear = %v", keys)
	}
}

func TestNoTempFilesLeft(t *testing.T) {
	s, dir := tempStore(t)
	_ = s.Put("a", []byte("1"))
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) != valueExt {
			t.Errorf("unexpected file %s", e.Name())
		}
	}
}
