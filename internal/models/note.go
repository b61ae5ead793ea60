// Package models defines the domain types for Tangle.
package models

import (
	"strings"
	"time"
)

// Note is a single entry of the knowledge base.
//
// Tags and Links are derived fields: Tags always equals the hashtags found in
// Content, Links holds the ids of notes referenced via [[Title]] markers.
// Slices held by a Note are never mutated in place once the note is stored.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Links     []string  `json:"links"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Dirty     bool      `json:"dirty"`
	Deleted   bool      `json:"deleted"`
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// RemoteNote is the record shape served by GET /api/notes.
type RemoteNote struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Tags      string `json:"tags"`
	Links     string `json:"links"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	Deleted   int    `json:"deleted"`
}

// UpsertRequest is the body accepted by POST /api/notes.
type UpsertRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Tags    string `json:"tags"`
	Links   string `json:"links"`
	Deleted bool   `json:"deleted"`
}

// Stamp truncates t to millisecond precision, the resolution timestamps
// travel with on the wire.
func Stamp(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

// JoinList encodes a list as a comma-joined string.
func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// SplitList decodes a comma-joined string, dropping empty items.
func SplitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ToUpsert converts a local note into the upload body.
func (n Note) ToUpsert() UpsertRequest {
	return UpsertRequest{
		ID:      n.ID,
		Title:   n.Title,
		Content: n.Content,
		Tags:    JoinList(n.Tags),
		Links:   JoinList(n.Links),
		Deleted: n.Deleted,
	}
}

// ToNote converts a downloaded record into a clean local note.
func (r RemoteNote) ToNote() Note {
	return Note{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Tags:      SplitList(r.Tags),
		Links:     SplitList(r.Links),
		CreatedAt: time.UnixMilli(r.CreatedAt),
		UpdatedAt: time.UnixMilli(r.UpdatedAt),
		Deleted:   r.Deleted != 0,
	}
}
