package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/starford/tangle/internal/apperr"
)

const eventSyncHint = "sync.hint"

// Hints follows GET /api/events and calls fn with the updated_at carried by
// every sync.hint event. It blocks until ctx is done (returning nil) or the
// stream fails.
func (c *Client) Hints(ctx context.Context, fn func(updatedAt int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return fmt.Errorf("remote: build events: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any request timeout.
	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("remote: GET /api/events: %w: %w", apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("remote: GET /api/events: %w", apperr.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("remote: GET /api/events: status %d: %w", resp.StatusCode, apperr.ErrTransport)
	}

	var event string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && event == eventSyncHint:
			var hint struct {
				UpdatedAt int64 `json:"updated_at"`
			}
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &hint); err != nil {
				continue
			}
			fn(hint.UpdatedAt)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("remote: read events: %w: %w", apperr.ErrTransport, err)
	}
	return fmt.Errorf("remote: events stream closed: %w", apperr.ErrTransport)
}
