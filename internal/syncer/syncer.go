// Package syncer reconciles the local note collection with a remote note
// store under a last-writer-wins policy with tombstones.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/graph"
	"github.com/starford/tangle/internal/models"
)

// Transport is the remote note endpoint.
type Transport interface {
	// Upload upserts one note. The remote stamps its own updated_at.
	Upload(ctx context.Context, req models.UpsertRequest) error
	// Download returns every remote note, tombstones included, updated
	// strictly after the watermark (unix ms). A zero watermark means all.
	Download(ctx context.Context, after int64) ([]models.RemoteNote, error)
}

// Report summarizes one sync call.
type Report struct {
	Uploaded     int   `json:"uploaded"`
	UploadFailed int   `json:"upload_failed"`
	Downloaded   int   `json:"downloaded"`
	Applied      int   `json:"applied"`
	Acked        int   `json:"acked"`
	Swept        int   `json:"swept"`
	Watermark    int64 `json:"watermark"`
}

// Reconciler runs sync rounds against a Transport.
type Reconciler struct {
	transport   Transport
	logger      *slog.Logger
	concurrency int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithUploadConcurrency bounds parallel uploads. 1 (the default) uploads
// sequentially.
func WithUploadConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New creates a Reconciler.
func New(t Transport, opts ...Option) *Reconciler {
	r := &Reconciler{transport: t, logger: slog.Default(), concurrency: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Exchange is the network outcome of a sync round, ready to be merged into
// the local collection.
type Exchange struct {
	// acked maps each successfully uploaded note id to the UpdatedAt it
	// carried at upload time.
	acked  map[string]time.Time
	remote []models.RemoteNote
	report Report
}

// Report returns the counters gathered so far.
func (e *Exchange) Report() Report {
	return e.report
}

// Sync runs a full round over c and returns the merged collection. On error
// c is returned unchanged.
func (r *Reconciler) Sync(ctx context.Context, c *graph.Collection) (*graph.Collection, Report, error) {
	ex, err := r.Exchange(ctx, c)
	if err != nil {
		return c, ex.Report(), err
	}
	next, report := ex.Apply(c)
	return next, report, nil
}

// Exchange runs the upload and download phases for snapshot c. It does not
// touch any collection; Apply merges the outcome. Uploads already made stay
// made even when a later step fails.
func (r *Reconciler) Exchange(ctx context.Context, c *graph.Collection) (*Exchange, error) {
	ex := &Exchange{acked: make(map[string]time.Time)}

	if err := r.upload(ctx, c, ex); err != nil {
		return ex, err
	}

	watermark := int64(0)
	if wm := c.Watermark(); !wm.IsZero() {
		watermark = wm.UnixMilli()
	}
	ex.report.Watermark = watermark

	remote, err := r.transport.Download(ctx, watermark)
	if err != nil {
		r.logger.Error("sync: download failed", slog.Int64("watermark", watermark), slog.String("error", err.Error()))
		return ex, fmt.Errorf("syncer: download: %w", err)
	}
	ex.remote = remote
	ex.report.Downloaded = len(remote)
	r.logger.Info("sync: download finished",
		slog.Int64("watermark", watermark),
		slog.Int("downloaded", len(remote)))
	return ex, nil
}

type uploadResult struct {
	id        string
	updatedAt time.Time
	err       error
}

// upload sends every dirty note, tombstones included. Per-note failures are
// recorded and leave the note dirty; an authentication rejection aborts the
// round.
func (r *Reconciler) upload(ctx context.Context, c *graph.Collection, ex *Exchange) error {
	batch := c.Dirty()
	if len(batch) == 0 {
		return nil
	}
	results := make([]uploadResult, len(batch))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, n := range batch {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			err := r.transport.Upload(gCtx, n.ToUpsert())
			results[i] = uploadResult{id: n.ID, updatedAt: n.UpdatedAt, err: err}
			if errors.Is(err, apperr.ErrUnauthorized) {
				return err
			}
			return nil
		})
	}
	abortErr := g.Wait()

	for _, res := range results {
		switch {
		case res.id == "":
			// never attempted
		case res.err != nil:
			ex.report.UploadFailed++
			if !errors.Is(res.err, apperr.ErrUnauthorized) && !errors.Is(res.err, context.Canceled) {
				r.logger.Warn("sync: upload failed", slog.String("id", res.id), slog.String("error", res.err.Error()))
			}
		default:
			ex.report.Uploaded++
			ex.acked[res.id] = res.updatedAt
		}
	}
	r.logger.Info("sync: upload finished",
		slog.Int("batch", len(batch)),
		slog.Int("uploaded", ex.report.Uploaded),
		slog.Int("failed", ex.report.UploadFailed))

	if abortErr != nil {
		return fmt.Errorf("syncer: upload: %w", abortErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("syncer: upload: %w", err)
	}
	return nil
}

// Apply merges the exchange into c: remote notes strictly newer than their
// local copy overwrite it, uploaded notes not edited since upload are marked
// clean, acknowledged tombstones are swept and links are recomputed.
func (e *Exchange) Apply(c *graph.Collection) (*graph.Collection, Report) {
	report := e.report

	merged := c.Apply(func(tx *graph.Tx) {
		for _, rn := range e.remote {
			tx.Advance(time.UnixMilli(rn.UpdatedAt))
			local, ok := tx.Get(rn.ID)
			if !ok && rn.Deleted != 0 {
				continue
			}
			if ok && rn.UpdatedAt <= local.UpdatedAt.UnixMilli() {
				continue
			}
			n := rn.ToNote()
			n.Dirty = false
			tx.Put(n)
			report.Applied++
		}

		for id, uploadedAt := range e.acked {
			n, ok := tx.Get(id)
			if !ok || !n.Dirty || !n.UpdatedAt.Equal(uploadedAt) {
				continue
			}
			n.Dirty = false
			tx.Put(n)
			report.Acked++
		}
	})

	swept, count := graph.SweepTombstones(merged)
	report.Swept = count
	return graph.RecomputeLinks(swept), report
}
