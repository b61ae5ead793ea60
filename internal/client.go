package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/inbox"
	"github.com/starford/tangle/internal/mcpserver"
	"github.com/starford/tangle/internal/remote"
	"github.com/starford/tangle/internal/search"
	"github.com/starford/tangle/internal/storage"
	"github.com/starford/tangle/internal/syncer"
	"github.com/starford/tangle/internal/workspace"
)

// client is the local side: a workspace over the on-disk note store.
type client struct {
	app    *application
	logger *slog.Logger
	idx    *search.Worker
	ws     *workspace.Workspace
	remote *remote.Client
}

func openClient(opts []Option) (*client, error) {
	app := newApplication(opts)
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app.errOut, cfg.App.LogLevel)
	slog.SetDefault(logger)

	fs, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	wsOpts := []workspace.Option{
		workspace.WithLogger(logger),
		workspace.WithDeletePolicy(cfg.DeletePolicy()),
	}
	var transport *remote.Client
	if cfg.Remote.Enabled() {
		transport = remote.New(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout)
		wsOpts = append(wsOpts, workspace.WithReconciler(syncer.New(transport,
			syncer.WithLogger(logger),
			syncer.WithUploadConcurrency(cfg.Remote.UploadConcurrency))))
	}

	idx := search.NewWorker(logger)
	ws, err := workspace.Open(storage.NewNoteStore(fs), idx, wsOpts...)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	return &client{app: app, logger: logger, idx: idx, ws: ws, remote: transport}, nil
}

func (c *client) Close() {
	c.idx.Close()
}

// watchInbox imports files dropped into the configured inbox until ctx is
// done. It returns immediately when no inbox is configured.
func (c *client) watchInbox(ctx context.Context) error {
	dir := c.app.config.Inbox.Path
	if dir == "" {
		return nil
	}
	return inbox.Watch(ctx, dir, c.logger, c.ws.Import)
}

// followHints signals wake whenever the remote announces a change newer than
// the local watermark. A dropped stream is retried after retry.
func (c *client) followHints(ctx context.Context, retry time.Duration, wake chan<- struct{}) error {
	onHint := func(updatedAt int64) {
		if updatedAt <= c.ws.Snapshot().Watermark().UnixMilli() {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	for {
		err := c.remote.Hints(ctx, onHint)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, apperr.ErrUnauthorized) {
			c.logger.Warn("sync: event stream rejected, polling only", slog.String("error", err.Error()))
			return nil
		}
		if err != nil {
			c.logger.Debug("sync: event stream dropped", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

// RunSync runs one sync round and prints the report. With a positive
// interval it keeps syncing until interrupted, runs an early round whenever
// the remote sends a sync hint, and also watches the inbox.
func RunSync(ctx context.Context, interval time.Duration, opts ...Option) error {
	c, err := openClient(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.ws.SyncEnabled() {
		return fmt.Errorf("sync: %w: set remote.base_url", apperr.ErrSyncDisabled)
	}

	syncOnce := func(ctx context.Context) error {
		report, err := c.ws.Sync(ctx)
		if err != nil {
			return err
		}
		return writeJSONTo(c.app.out, report)
	}

	if interval <= 0 {
		return syncOnce(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	wake := make(chan struct{}, 1)
	g.Go(func() error {
		return c.watchInbox(gCtx)
	})
	g.Go(func() error {
		return c.followHints(gCtx, interval, wake)
	})
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := syncOnce(gCtx); err != nil {
				if errors.Is(err, apperr.ErrUnauthorized) {
					return err
				}
				c.logger.Warn("sync: round failed, retrying", slog.String("error", err.Error()))
			}
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
			case <-wake:
				c.logger.Debug("sync: remote hint, syncing early")
			}
		}
	})
	g.Go(func() error {
		waitForShutdown(gCtx, c.logger)
		cancel()
		return nil
	})
	return g.Wait()
}

// RunSearch prints the results of one query. With interactive set it reads
// one query per line from the input instead, debouncing rapid input.
func RunSearch(ctx context.Context, q search.Query, interactive bool, opts ...Option) error {
	c, err := openClient(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	if q.Limit == 0 {
		q.Limit = c.app.config.Search.Limit
	}
	if !interactive {
		results, err := c.ws.Search(ctx, q)
		if err != nil {
			return err
		}
		return printResults(c.app.out, results)
	}

	out := make(chan search.Response, 1)
	deb := search.NewDebouncer(c.idx, c.app.config.Search.Debounce, func(r search.Response) {
		select {
		case out <- r:
		default:
			// the printer only needs the newest response
			select {
			case <-out:
			default:
			}
			out <- r
		}
	})
	defer deb.Close()

	printCtx, stopPrinter := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case r := <-out:
				if r.Err != nil {
					c.logger.Warn("search: query failed", slog.String("error", r.Err.Error()))
					continue
				}
				_ = printResults(c.app.out, r.Results)
			case <-printCtx.Done():
				return
			}
		}
	}()

	sc := bufio.NewScanner(c.app.in)
	for sc.Scan() {
		q.Text = sc.Text()
		deb.Submit(q)
	}
	// Give the last query its window before exiting.
	select {
	case <-time.After(c.app.config.Search.Debounce + 100*time.Millisecond):
	case <-ctx.Done():
	}
	stopPrinter()
	<-done
	return sc.Err()
}

// RunExport writes the live notes to path, or to the output when path is
// empty or "-".
func RunExport(ctx context.Context, path string, opts ...Option) error {
	c, err := openClient(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	data, err := c.ws.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if path == "" || path == "-" {
		_, err = c.app.out.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	c.logger.Info("export: written", slog.String("path", path), slog.Int("notes", len(c.ws.Snapshot().Live())))
	return nil
}

// RunImport merges an export document read from path, or from the input
// when path is empty or "-".
func RunImport(ctx context.Context, path string, opts ...Option) error {
	c, err := openClient(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	var data []byte
	if path == "" || path == "-" {
		data, err = io.ReadAll(c.app.in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("import: read: %w", err)
	}
	added, err := c.ws.Import(data)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return writeJSONTo(c.app.out, map[string]int{"added": added})
}

// RunMCP serves the workspace as MCP tools over stdio until stdin closes.
func RunMCP(ctx context.Context, version string, opts ...Option) error {
	c, err := openClient(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := c.watchInbox(ctx); err != nil {
			c.logger.Warn("inbox: stopped", slog.String("error", err.Error()))
		}
	}()

	srv := mcpserver.New(c.ws, version, c.app.config.Search.Limit)
	return srv.ServeStdio()
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(w io.Writer, results []search.Result) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "no matches")
		return err
	}
	for _, r := range results {
		tags := ""
		if len(r.Tags) > 0 {
			tags = "  #" + strings.Join(r.Tags, " #")
		}
		if _, err := fmt.Fprintf(w, "%3d  %s  %s%s\n", r.Score, r.ID, r.Title, tags); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
