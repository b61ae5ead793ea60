// Package workspace owns the local note collection: it serializes
// mutations, persists every new collection, keeps the search index fed and
// runs sync rounds.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/graph"
	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/search"
	"github.com/starford/tangle/internal/storage"
	"github.com/starford/tangle/internal/syncer"
	"github.com/starford/tangle/internal/transfer"
)

// Workspace is safe for concurrent use. Mutations are applied one at a time;
// readers get immutable snapshots.
type Workspace struct {
	mu    sync.Mutex
	coll  *graph.Collection
	maint *graph.Maintainer

	maintOpts []graph.Option
	policy    *graph.DeletePolicy

	store      *storage.NoteStore
	search     *search.Worker
	reconciler *syncer.Reconciler
	syncGroup  singleflight.Group

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithReconciler enables sync. Deletions then use tombstones.
func WithReconciler(r *syncer.Reconciler) Option {
	return func(w *Workspace) { w.reconciler = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithDeletePolicy fixes the deletion policy. Without it the policy follows
// whether sync is enabled.
func WithDeletePolicy(p graph.DeletePolicy) Option {
	return func(w *Workspace) { w.policy = &p }
}

// WithMaintainerOptions passes options to the graph maintainer. The
// deletion policy is set through WithDeletePolicy.
func WithMaintainerOptions(opts ...graph.Option) Option {
	return func(w *Workspace) { w.maintOpts = append(w.maintOpts, opts...) }
}

// WithClock overrides the time source used for imports.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// Open loads the stored collection and starts feeding idx.
func Open(store *storage.NoteStore, idx *search.Worker, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		store:  store,
		search: idx,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	policy := graph.HardDelete
	switch {
	case w.policy != nil:
		policy = *w.policy
	case w.reconciler != nil:
		policy = graph.Tombstone
	}
	if w.reconciler != nil && policy == graph.HardDelete {
		return nil, fmt.Errorf("workspace: hard delete cannot be used with sync")
	}
	w.maint = graph.NewMaintainer(append(w.maintOpts, graph.WithPolicy(policy))...)

	notes, watermark, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("workspace: load: %w", err)
	}
	w.coll = graph.RecomputeLinks(graph.NewCollection(notes...).Apply(func(tx *graph.Tx) {
		tx.Advance(watermark)
	}))
	w.search.Build(w.coll.Notes())

	w.logger.Info("workspace: loaded",
		slog.Int("notes", w.coll.Len()),
		slog.Int("dirty", len(w.coll.Dirty())),
		slog.String("delete_policy", policy.String()))
	return w, nil
}

// Snapshot returns the current collection.
func (w *Workspace) Snapshot() *graph.Collection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.coll
}

// SyncEnabled reports whether a remote store is configured.
func (w *Workspace) SyncEnabled() bool {
	return w.reconciler != nil
}

// commit installs next, persists it and schedules a search rebuild.
// Callers hold w.mu.
func (w *Workspace) commit(next *graph.Collection) error {
	if next == w.coll {
		return nil
	}
	if err := w.store.Save(next.Notes(), next.Watermark()); err != nil {
		return fmt.Errorf("workspace: persist: %w", err)
	}
	w.coll = next
	w.search.Build(next.Notes())
	if dups := next.DuplicateTitles(); len(dups) > 0 {
		w.logger.Warn("workspace: duplicate titles resolve to the most recent note",
			slog.String("titles", strings.Join(dups, ", ")))
	}
	return nil
}

// Get returns a live note.
func (w *Workspace) Get(id string) (models.Note, error) {
	n, ok := w.Snapshot().Get(id)
	if !ok || n.Deleted {
		return models.Note{}, apperr.ErrNotFound
	}
	return n, nil
}

// FindByTitle returns the live note addressed by title through link syntax.
func (w *Workspace) FindByTitle(title string) (models.Note, error) {
	c := w.Snapshot()
	id, ok := c.TitleIndex()[strings.ToLower(title)]
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	n, _ := c.Get(id)
	return n, nil
}

// Backlinks returns the live notes linking to id.
func (w *Workspace) Backlinks(id string) ([]models.Note, error) {
	c := w.Snapshot()
	if n, ok := c.Get(id); !ok || n.Deleted {
		return nil, apperr.ErrNotFound
	}
	ids := c.Backlinks(id)
	out := make([]models.Note, 0, len(ids))
	for _, src := range ids {
		if n, ok := c.Get(src); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Create adds a note.
func (w *Workspace) Create(title, content string) (models.Note, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, n := w.maint.Create(w.coll, title, content)
	if err := w.commit(next); err != nil {
		return models.Note{}, err
	}
	return n, nil
}

// Update applies p to a live note.
func (w *Workspace) Update(id string, p models.Patch) (models.Note, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.maint.Update(w.coll, id, p)
	if next == w.coll {
		return models.Note{}, apperr.ErrNotFound
	}
	if err := w.commit(next); err != nil {
		return models.Note{}, err
	}
	n, _ := next.Get(id)
	return n, nil
}

// Delete removes a live note according to the deletion policy.
func (w *Workspace) Delete(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.maint.Delete(w.coll, id)
	if next == w.coll {
		return apperr.ErrNotFound
	}
	return w.commit(next)
}

// Search queries the index and waits for the results.
func (w *Workspace) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	return w.search.Search(ctx, q)
}

// Export serializes the live notes.
func (w *Workspace) Export() ([]byte, error) {
	return transfer.Export(w.Snapshot())
}

// Import merges notes from an export, skipping ids already present.
func (w *Workspace) Import(data []byte) (int, error) {
	notes, err := transfer.Decode(data, w.now())
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	next, added := transfer.Merge(w.coll, notes)
	if err := w.commit(next); err != nil {
		return 0, err
	}
	w.logger.Info("workspace: imported", slog.Int("records", len(notes)), slog.Int("added", added))
	return added, nil
}

// Sync runs one sync round. Concurrent callers share a single in-flight
// round and its result. Local edits made while the round is on the network
// are preserved: the merge is applied to the collection current at the end
// of the round, and such notes stay dirty.
func (w *Workspace) Sync(ctx context.Context) (syncer.Report, error) {
	if w.reconciler == nil {
		return syncer.Report{}, apperr.ErrSyncDisabled
	}
	v, err, shared := w.syncGroup.Do("sync", func() (any, error) {
		return w.syncOnce(ctx)
	})
	if shared {
		w.logger.Debug("workspace: joined in-flight sync")
	}
	report, _ := v.(syncer.Report)
	return report, err
}

func (w *Workspace) syncOnce(ctx context.Context) (syncer.Report, error) {
	start := time.Now()
	ex, err := w.reconciler.Exchange(ctx, w.Snapshot())
	if err != nil {
		w.logger.Error("workspace: sync aborted", slog.String("error", err.Error()))
		return ex.Report(), err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	next, report := ex.Apply(w.coll)
	if err := w.commit(next); err != nil {
		return report, err
	}
	w.logger.Info("workspace: sync finished",
		slog.Int("uploaded", report.Uploaded),
		slog.Int("upload_failed", report.UploadFailed),
		slog.Int("downloaded", report.Downloaded),
		slog.Int("applied", report.Applied),
		slog.Int("swept", report.Swept),
		slog.Duration("took", time.Since(start)))
	return report, nil
}
