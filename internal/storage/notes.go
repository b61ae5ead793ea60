package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/starford/tangle/internal/models"
)

// record is the stored representation of a note. Dates are kept as unix
// milliseconds.
type record struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Links     []string `json:"links"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
	Dirty     bool     `json:"dirty"`
	Deleted   bool     `json:"deleted"`
}

// watermarkKey holds the collection watermark. No note id starts with NUL.
const watermarkKey = "\x00watermark"

type meta struct {
	Watermark int64 `json:"watermark"`
}

// NoteStore loads and saves whole note collections through a Provider.
type NoteStore struct {
	p Provider
}

// NewNoteStore wraps p.
func NewNoteStore(p Provider) *NoteStore {
	return &NoteStore{p: p}
}

// Load fetches every stored note, newest first by creation time, and the
// saved watermark (zero when none was saved).
func (s *NoteStore) Load() ([]models.Note, time.Time, error) {
	keys, err := s.p.Keys()
	if err != nil {
		return nil, time.Time{}, err
	}
	var watermark time.Time
	notes := make([]models.Note, 0, len(keys))
	for _, k := range keys {
		data, err := s.p.Get(k)
		if err != nil {
			return nil, time.Time{}, err
		}
		if k == watermarkKey {
			var m meta
			if err := json.Unmarshal(data, &m); err != nil {
				return nil, time.Time{}, fmt.Errorf("storage: decode watermark: %w", err)
			}
			if m.Watermark > 0 {
				watermark = time.UnixMilli(m.Watermark)
			}
			continue
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, time.Time{}, fmt.Errorf("storage: decode %s: %w", k, err)
		}
		notes = append(notes, models.Note{
			ID:        r.ID,
			Title:     r.Title,
			Content:   r.Content,
			Tags:      nonNil(r.Tags),
			Links:     nonNil(r.Links),
			CreatedAt: time.UnixMilli(r.CreatedAt),
			UpdatedAt: time.UnixMilli(r.UpdatedAt),
			Dirty:     r.Dirty,
			Deleted:   r.Deleted,
		})
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, watermark, nil
}

// Save replaces the stored contents with notes and the watermark.
func (s *NoteStore) Save(notes []models.Note, watermark time.Time) error {
	if err := s.p.Clear(); err != nil {
		return err
	}
	if !watermark.IsZero() {
		data, err := json.Marshal(meta{Watermark: watermark.UnixMilli()})
		if err != nil {
			return fmt.Errorf("storage: encode watermark: %w", err)
		}
		if err := s.p.Put(watermarkKey, data); err != nil {
			return err
		}
	}
	for _, n := range notes {
		data, err := json.Marshal(record{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			Tags:      n.Tags,
			Links:     n.Links,
			CreatedAt: n.CreatedAt.UnixMilli(),
			UpdatedAt: n.UpdatedAt.UnixMilli(),
			Dirty:     n.Dirty,
			Deleted:   n.Deleted,
		})
		if err != nil {
			return fmt.Errorf("storage: encode %s: %w", n.ID, err)
		}
		if err := s.p.Put(n.ID, data); err != nil {
			return err
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
