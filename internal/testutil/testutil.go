// Package testutil provides shared test helpers: temporary stores and an
// in-memory remote note endpoint.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/notestore"
	"github.com/starford/tangle/internal/storage"
)

// TestDB creates a temporary remote note database that is automatically cleaned up.
func TestDB(t *testing.T) *notestore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tangle-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := notestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestNoteStore creates a local note store in a temporary directory.
func TestNoteStore(t *testing.T) (string, *storage.NoteStore) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, storage.NewNoteStore(fs)
}

// MemRemote is an in-memory remote note endpoint. It stamps updated_at from
// a counter, so every upload is strictly newer than the one before.
type MemRemote struct {
	mu      sync.Mutex
	notes   map[string]models.RemoteNote
	clock   int64
	uploads []string

	// FailUpload makes Upload fail with the returned error for matching ids.
	FailUpload func(id string) error
	// FailDownload makes Download fail when non-nil.
	FailDownload error
}

// NewMemRemote creates an empty remote whose clock starts at start.
func NewMemRemote(start int64) *MemRemote {
	return &MemRemote{notes: make(map[string]models.RemoteNote), clock: start}
}

// Upload implements syncer.Transport.
func (m *MemRemote) Upload(ctx context.Context, req models.UpsertRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpload != nil {
		if err := m.FailUpload(req.ID); err != nil {
			return err
		}
	}
	m.clock++
	created := m.clock
	if old, ok := m.notes[req.ID]; ok {
		created = old.CreatedAt
	}
	deleted := 0
	if req.Deleted {
		deleted = 1
	}
	m.notes[req.ID] = models.RemoteNote{
		ID:        req.ID,
		Title:     req.Title,
		Content:   req.Content,
		Tags:      req.Tags,
		Links:     req.Links,
		CreatedAt: created,
		UpdatedAt: m.clock,
		Deleted:   deleted,
	}
	m.uploads = append(m.uploads, req.ID)
	return nil
}

// Download implements syncer.Transport.
func (m *MemRemote) Download(ctx context.Context, after int64) ([]models.RemoteNote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDownload != nil {
		return nil, m.FailDownload
	}
	var out []models.RemoteNote
	for _, n := range m.notes {
		if n.UpdatedAt > after {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt < out[j].UpdatedAt })
	return out, nil
}

// Put stores a record as if another device had uploaded it, stamping it
// with the next clock value.
func (m *MemRemote) Put(n models.RemoteNote) models.RemoteNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock++
	n.UpdatedAt = m.clock
	if n.CreatedAt == 0 {
		n.CreatedAt = m.clock
	}
	m.notes[n.ID] = n
	return n
}

// Get returns a stored record.
func (m *MemRemote) Get(id string) (models.RemoteNote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	return n, ok
}

// Uploads returns the ids uploaded so far, in order.
func (m *MemRemote) Uploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uploads...)
}

// Unauthorized is a FailUpload helper rejecting every upload with 401.
func Unauthorized(string) error {
	return fmt.Errorf("remote: status 401: %w", apperr.ErrUnauthorized)
}
