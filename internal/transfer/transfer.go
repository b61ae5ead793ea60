// Package transfer exports the note collection as JSON and imports JSON
// exports from other devices or tools.
package transfer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/graph"
	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/parser"
)

// Export serializes every live note as a JSON array.
func Export(c *graph.Collection) ([]byte, error) {
	notes := c.Live()
	for i := range notes {
		notes[i].Dirty = false
	}
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("transfer: export: %w", err)
	}
	return data, nil
}

// Decode parses an export. The payload must be a JSON array; records
// missing a string id, title or content are skipped. Timestamps may be unix
// milliseconds (number or numeric string) or date strings; anything else
// becomes now. Imported notes are dirty so they reach the remote store.
func Decode(data []byte, now time.Time) ([]models.Note, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("transfer: %w: %w", apperr.ErrInvalidImport, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("transfer: %w: not a JSON array", apperr.ErrInvalidImport)
	}

	now = models.Stamp(now)
	out := make([]models.Note, 0, len(raw))
	for _, elem := range raw {
		var rec map[string]any
		if err := json.Unmarshal(elem, &rec); err != nil || rec == nil {
			continue
		}
		id, okID := rec["id"].(string)
		title, okTitle := rec["title"].(string)
		content, okContent := rec["content"].(string)
		if !okID || !okTitle || !okContent || id == "" {
			continue
		}
		if deleted, _ := cast.ToBoolE(rec["deleted"]); deleted {
			continue
		}
		out = append(out, models.Note{
			ID:        id,
			Title:     title,
			Content:   content,
			Tags:      parser.Tags(content),
			Links:     StringList(rec["links"]),
			CreatedAt: ParseTime(rec["created_at"], now),
			UpdatedAt: ParseTime(rec["updated_at"], now),
			Dirty:     true,
		})
	}
	return out, nil
}

// Merge adds imported notes whose ids are not yet present and recomputes
// links. It returns the new collection and the number of notes added.
func Merge(c *graph.Collection, imported []models.Note) (*graph.Collection, int) {
	added := 0
	next := c.Apply(func(tx *graph.Tx) {
		for i := len(imported) - 1; i >= 0; i-- {
			n := imported[i]
			if _, exists := tx.Get(n.ID); exists {
				continue
			}
			tx.Put(n)
			added++
		}
	})
	if added == 0 {
		return c, 0
	}
	return graph.RecomputeLinks(next), added
}

// StringList normalizes a list field given either as a comma-joined string
// or as a JSON array.
func StringList(v any) []string {
	switch t := v.(type) {
	case string:
		return models.SplitList(t)
	case []any:
		out := []string{}
		for _, item := range t {
			if s := strings.TrimSpace(cast.ToString(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// ParseTime reads a timestamp given as unix milliseconds (number or decimal
// string) or as a date string, falling back to def.
func ParseTime(v any, def time.Time) time.Time {
	switch t := v.(type) {
	case float64:
		if t > 0 && t < math.MaxInt64 {
			return time.UnixMilli(int64(t))
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms)
		}
		if ts, err := cast.ToTimeE(s); err == nil {
			return models.Stamp(ts)
		}
	}
	return def
}
