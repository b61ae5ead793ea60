package graph

import (
	"time"

	"github.com/google/uuid"

	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/parser"
)

// DeletePolicy selects how Delete removes a note.
type DeletePolicy int

const (
	// HardDelete removes the note and unlinks [[Title]] markers pointing at
	// it. Used when no remote store is configured.
	HardDelete DeletePolicy = iota
	// Tombstone keeps the note with Deleted=true until a sync confirms the
	// deletion. Used when a remote store is configured.
	Tombstone
)

// String implements fmt.Stringer.
func (p DeletePolicy) String() string {
	if p == Tombstone {
		return "tombstone"
	}
	return "hard"
}

// Maintainer applies note mutations to a Collection and keeps the derived
// tags and links consistent.
type Maintainer struct {
	policy DeletePolicy
	now    func() time.Time
	newID  func() string
}

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithPolicy sets the deletion policy.
func WithPolicy(p DeletePolicy) Option {
	return func(m *Maintainer) { m.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Maintainer) { m.now = now }
}

// WithIDGenerator overrides note id allocation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Maintainer) { m.newID = fn }
}

// NewMaintainer creates a Maintainer. Defaults: hard delete, wall clock,
// random UUIDs.
func NewMaintainer(opts ...Option) *Maintainer {
	m := &Maintainer{
		policy: HardDelete,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the configured deletion policy.
func (m *Maintainer) Policy() DeletePolicy {
	return m.policy
}

func (m *Maintainer) stamp() time.Time {
	return models.Stamp(m.now())
}

// Create inserts a new note at the front of the collection.
func (m *Maintainer) Create(c *Collection, title, content string) (*Collection, models.Note) {
	now := m.stamp()
	n := models.Note{
		ID:        m.newID(),
		Title:     title,
		Content:   content,
		Tags:      parser.Tags(content),
		Links:     []string{},
		CreatedAt: now,
		UpdatedAt: now,
		Dirty:     true,
	}
	next := RecomputeLinks(c.Apply(func(tx *Tx) { tx.Put(n) }))
	created, _ := next.Get(n.ID)
	return next, created
}

// Update merges p into the note with the given id. A title change renames
// every [[old title]] marker in other live notes. Unknown or tombstoned ids
// leave the collection unchanged.
func (m *Maintainer) Update(c *Collection, id string, p models.Patch) *Collection {
	target, ok := c.Get(id)
	if !ok || target.Deleted {
		return c
	}
	now := m.stamp()

	next := c.Apply(func(tx *Tx) {
		if p.Title != nil && *p.Title != target.Title {
			rewriteOthers(tx, id, now, func(content string) string {
				return parser.RenameLinks(content, target.Title, *p.Title)
			})
			target.Title = *p.Title
		}
		if p.Content != nil && *p.Content != target.Content {
			target.Content = *p.Content
			target.Tags = parser.Tags(target.Content)
		}
		target.UpdatedAt = now
		target.Dirty = true
		tx.Put(target)
	})
	return RecomputeLinks(next)
}

// Delete removes the note with the given id according to the policy.
func (m *Maintainer) Delete(c *Collection, id string) *Collection {
	target, ok := c.Get(id)
	if !ok || target.Deleted {
		return c
	}
	now := m.stamp()

	next := c.Apply(func(tx *Tx) {
		switch m.policy {
		case Tombstone:
			target.Deleted = true
			target.Dirty = true
			target.UpdatedAt = now
			tx.Put(target)
		default:
			tx.Remove(id)
			rewriteOthers(tx, id, now, func(content string) string {
				return parser.Unlink(content, target.Title)
			})
		}
	})
	return RecomputeLinks(next)
}

// rewriteOthers applies fn to the content of every live note except skip.
// Notes whose content changes are re-tagged, stamped and marked dirty.
func rewriteOthers(tx *Tx, skip string, now time.Time, fn func(string) string) {
	for _, n := range tx.Notes() {
		if n.ID == skip || n.Deleted {
			continue
		}
		content := fn(n.Content)
		if content == n.Content {
			continue
		}
		n.Content = content
		n.Tags = parser.Tags(content)
		n.UpdatedAt = now
		n.Dirty = true
		tx.Put(n)
	}
}

// RecomputeLinks rebuilds the title index and re-resolves the links of every
// note against it. Unresolved titles are dropped. Tags are re-derived in the
// same pass so notes loaded from outside keep tags in step with content.
func RecomputeLinks(c *Collection) *Collection {
	idx := c.TitleIndex()
	return c.Apply(func(tx *Tx) {
		for _, n := range tx.Notes() {
			links := []string{}
			seen := make(map[string]struct{})
			for _, title := range parser.LinkTitles(n.Content) {
				id, ok := idx[parser.NormalizeTitle(title)]
				if !ok {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				links = append(links, id)
			}
			n.Links = links
			n.Tags = parser.Tags(n.Content)
			tx.Put(n)
		}
	})
}

// SweepTombstones drops tombstones whose deletion has been acknowledged by
// the remote store.
func SweepTombstones(c *Collection) (*Collection, int) {
	swept := 0
	next := c.Apply(func(tx *Tx) {
		for _, n := range tx.Notes() {
			if n.Deleted && !n.Dirty {
				tx.Remove(n.ID)
				swept++
			}
		}
	})
	return next, swept
}
