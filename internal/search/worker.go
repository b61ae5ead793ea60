package search

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/tangle/internal/models"
)

// ErrClosed is returned by requests made after Close.
var ErrClosed = errors.New("search: worker closed")

// Query is a search request.
type Query struct {
	Text  string   `json:"text"`
	Mode  Mode     `json:"mode"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Response carries the ranked results for one query.
type Response struct {
	Seq     uint64
	Query   Query
	Results []Result
	Err     error
}

type buildReq struct {
	notes []models.Note
	ready chan struct{}
}

type queryReq struct {
	seq   uint64
	q     Query
	reply chan Response
}

// Worker owns an Index on its own goroutine. Callers talk to it only through
// request/response messages, so building or querying never blocks note
// mutation.
//
// Requests are served in arrival order, except that consecutive pending
// builds collapse into the newest one. A query always sees every build
// submitted before it.
type Worker struct {
	logger *slog.Logger

	buildCh chan buildReq
	queryCh chan queryReq
	seq     atomic.Uint64

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewWorker starts a worker with an empty index.
func NewWorker(logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		logger:  logger,
		buildCh: make(chan buildReq, 64),
		queryCh: make(chan queryReq, 64),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.stopped)
	idx := NewIndex()

	// drainBuilds applies the newest pending build, if any.
	drainBuilds := func(first *buildReq) {
		var pending []buildReq
		if first != nil {
			pending = append(pending, *first)
		}
	drain:
		for {
			select {
			case b := <-w.buildCh:
				pending = append(pending, b)
			default:
				break drain
			}
		}
		if len(pending) == 0 {
			return
		}
		start := time.Now()
		idx.Build(pending[len(pending)-1].notes)
		w.logger.Debug("search: index built",
			slog.Int("documents", idx.Len()),
			slog.Int("coalesced", len(pending)),
			slog.Duration("took", time.Since(start)))
		for _, b := range pending {
			close(b.ready)
		}
	}

	for {
		select {
		case <-w.stopCh:
			return

		case b := <-w.buildCh:
			drainBuilds(&b)

		case req := <-w.queryCh:
			drainBuilds(nil)
			results := Rank(idx.Candidates(req.q.Text, req.q.Mode), req.q)
			req.reply <- Response{Seq: req.seq, Query: req.q, Results: results}
		}
	}
}

// Build submits a snapshot to index, discarding any prior index state. The
// returned channel is closed once the snapshot (or a newer one) is live.
func (w *Worker) Build(notes []models.Note) <-chan struct{} {
	ready := make(chan struct{})
	if w.closed.Load() {
		close(ready)
		return ready
	}
	snapshot := append([]models.Note(nil), notes...)
	select {
	case w.buildCh <- buildReq{notes: snapshot, ready: ready}:
	case <-w.stopped:
		close(ready)
	}
	return ready
}

// Query submits q and returns a channel that receives exactly one Response.
func (w *Worker) Query(q Query) <-chan Response {
	reply := make(chan Response, 1)
	seq := w.seq.Add(1)
	if q.Mode == "" {
		q.Mode = ModeAll
	}
	if w.closed.Load() {
		reply <- Response{Seq: seq, Query: q, Err: ErrClosed}
		return reply
	}
	select {
	case w.queryCh <- queryReq{seq: seq, q: q, reply: reply}:
	case <-w.stopped:
		reply <- Response{Seq: seq, Query: q, Err: ErrClosed}
	}
	return reply
}

// Search submits q and waits for its results.
func (w *Worker) Search(ctx context.Context, q Query) ([]Result, error) {
	select {
	case resp := <-w.Query(q):
		return resp.Results, resp.Err
	case <-w.stopped:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker goroutine.
func (w *Worker) Close() {
	if w.closed.CompareAndSwap(false, true) {
		close(w.stopCh)
	}
	<-w.stopped
}
