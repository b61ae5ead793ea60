// Package graph maintains the note collection and its derived link graph.
//
// A Collection is an immutable value: every mutation returns a new
// Collection and leaves the receiver untouched, so readers never observe a
// partially applied change.
package graph

import (
	"sort"
	"time"

	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/parser"
)

// Collection is an ordered set of notes indexed by id. Order is display
// order, newest first.
type Collection struct {
	order []string
	notes map[string]models.Note

	// highWater keeps the watermark from moving back when notes are removed.
	highWater time.Time
}

// NewCollection builds a collection holding notes in the given order.
// Later duplicates of an id replace earlier ones in place.
func NewCollection(notes ...models.Note) *Collection {
	c := &Collection{notes: make(map[string]models.Note, len(notes))}
	for _, n := range notes {
		if _, ok := c.notes[n.ID]; !ok {
			c.order = append(c.order, n.ID)
		}
		c.notes[n.ID] = n
	}
	return c
}

// Len returns the number of notes, tombstones included.
func (c *Collection) Len() int {
	return len(c.order)
}

// Get returns the note with the given id.
func (c *Collection) Get(id string) (models.Note, bool) {
	n, ok := c.notes[id]
	return n, ok
}

// Notes returns every note in display order, tombstones included.
func (c *Collection) Notes() []models.Note {
	out := make([]models.Note, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.notes[id])
	}
	return out
}

// Live returns the notes that are not tombstoned.
func (c *Collection) Live() []models.Note {
	out := make([]models.Note, 0, len(c.order))
	for _, id := range c.order {
		if n := c.notes[id]; !n.Deleted {
			out = append(out, n)
		}
	}
	return out
}

// Dirty returns the notes carrying unsynchronized changes, tombstones included.
func (c *Collection) Dirty() []models.Note {
	var out []models.Note
	for _, id := range c.order {
		if n := c.notes[id]; n.Dirty {
			out = append(out, n)
		}
	}
	return out
}

// Watermark returns the newest UpdatedAt the collection has held or been
// advanced to, or the zero time for a fresh empty collection. Removing notes
// never moves it back.
func (c *Collection) Watermark() time.Time {
	max := c.highWater
	for _, n := range c.notes {
		if n.UpdatedAt.After(max) {
			max = n.UpdatedAt
		}
	}
	return max
}

// TitleIndex maps normalized titles of live notes to note ids. When several
// live notes share a normalized title, the one earliest in display order
// owns the slot; DuplicateTitles reports such collisions.
func (c *Collection) TitleIndex() map[string]string {
	idx := make(map[string]string, len(c.order))
	for _, id := range c.order {
		n := c.notes[id]
		if n.Deleted {
			continue
		}
		key := parser.NormalizeTitle(n.Title)
		if _, taken := idx[key]; !taken {
			idx[key] = id
		}
	}
	return idx
}

// DuplicateTitles returns the normalized titles held by more than one live
// note, sorted.
func (c *Collection) DuplicateTitles() []string {
	counts := make(map[string]int)
	for _, n := range c.notes {
		if !n.Deleted {
			counts[parser.NormalizeTitle(n.Title)]++
		}
	}
	var out []string
	for title, n := range counts {
		if n > 1 {
			out = append(out, title)
		}
	}
	sort.Strings(out)
	return out
}

// Backlinks returns the ids of live notes linking to id, in display order.
func (c *Collection) Backlinks(id string) []string {
	out := []string{}
	for _, src := range c.order {
		n := c.notes[src]
		if n.Deleted {
			continue
		}
		for _, target := range n.Links {
			if target == id {
				out = append(out, src)
				break
			}
		}
	}
	return out
}

// Edge is a directed link between two live notes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Edges returns every link between live notes.
func (c *Collection) Edges() []Edge {
	var out []Edge
	for _, src := range c.order {
		n := c.notes[src]
		if n.Deleted {
			continue
		}
		for _, target := range n.Links {
			if t, ok := c.notes[target]; ok && !t.Deleted {
				out = append(out, Edge{Source: src, Target: target})
			}
		}
	}
	return out
}

// Apply returns a copy of c with fn applied to it. fn operates on a private
// working copy; c itself is never modified.
func (c *Collection) Apply(fn func(tx *Tx)) *Collection {
	next := &Collection{
		order: append([]string(nil), c.order...),
		notes: make(map[string]models.Note, len(c.notes)),

		highWater: c.highWater,
	}
	for id, n := range c.notes {
		next.notes[id] = n
	}
	fn(&Tx{c: next})
	return next
}

// Tx is the mutable working copy handed to Apply callbacks.
type Tx struct {
	c *Collection
}

// Get returns the note with the given id.
func (tx *Tx) Get(id string) (models.Note, bool) {
	return tx.c.Get(id)
}

// Notes returns every note of the working copy in display order.
func (tx *Tx) Notes() []models.Note {
	return tx.c.Notes()
}

// Put stores n, keeping its position if the id exists and inserting it at
// the front otherwise.
func (tx *Tx) Put(n models.Note) {
	if _, ok := tx.c.notes[n.ID]; !ok {
		tx.c.order = append([]string{n.ID}, tx.c.order...)
	}
	tx.c.notes[n.ID] = n
}

// Advance raises the watermark to t if t is newer.
func (tx *Tx) Advance(t time.Time) {
	if t.After(tx.c.highWater) {
		tx.c.highWater = t
	}
}

// Remove drops the note with the given id. Its UpdatedAt still counts
// toward the watermark.
func (tx *Tx) Remove(id string) {
	n, ok := tx.c.notes[id]
	if !ok {
		return
	}
	tx.Advance(n.UpdatedAt)
	delete(tx.c.notes, id)
	for i, oid := range tx.c.order {
		if oid == id {
			tx.c.order = append(tx.c.order[:i:i], tx.c.order[i+1:]...)
			break
		}
	}
}
