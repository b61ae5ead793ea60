package storage

import (
	"testing"
	"time"

	"github.com/starford/tangle/internal/models"
)

func TestNoteStore_SaveLoad(t *testing.T) {
	for name, p := range map[string]Provider{"mem": NewMem(), "fs": mustFS(t)} {
		t.Run(name, func(t *testing.T) {
			s := NewNoteStore(p)
			notes := []models.Note{
				{ID: "new", Title: "New", Content: "#x", Tags: []string{"x"}, Links: []string{"old"},
					CreatedAt: time.UnixMilli(200), UpdatedAt: time.UnixMilli(300), Dirty: true},
				{ID: "old", Title: "Old", CreatedAt: time.UnixMilli(100), UpdatedAt: time.UnixMilli(100), Deleted: true},
			}
			if err := s.Save(notes, time.UnixMilli(900)); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, wm, err := s.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !wm.Equal(time.UnixMilli(900)) {
				t.Errorf("watermark = %v, want 900ms", wm.UnixMilli())
			}
			if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
				t.Fatalf("loaded = %+v", got)
			}
			if !got[0].UpdatedAt.Equal(time.UnixMilli(300)) || !got[0].Dirty || got[0].Links[0] != "old" {
				t.Errorf("first note = %+v", got[0])
			}
			if !got[1].Deleted || got[1].Tags == nil {
				t.Errorf("second note = %+v", got[1])
			}

			// Full snapshot: a second save drops notes that are gone.
			if err := s.Save(notes[:1], time.Time{}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, wm, _ = s.Load()
			if len(got) != 1 {
				t.Errorf("after resave len = %d, want 1", len(got))
			}
			if !wm.IsZero() {
				t.Errorf("watermark after resave = %v, want zero", wm.UnixMilli())
			}
		})
	}
}

func mustFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}
