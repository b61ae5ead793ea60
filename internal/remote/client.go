// Package remote implements the HTTP client for the remote note endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/models"
)

// Client talks to GET/POST /api/notes and GET /api/events with bearer
// authentication.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
}

// New creates a Client. baseURL is the server root, e.g. https://notes.example.com.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

// Upload implements syncer.Transport.
func (c *Client) Upload(ctx context.Context, req models.UpsertRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("remote: encode upload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notes", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remote: build upload: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Download implements syncer.Transport. Tombstones are always requested so
// deletions reach this device.
func (c *Client) Download(ctx context.Context, after int64) ([]models.RemoteNote, error) {
	q := url.Values{}
	q.Set("include_deleted", "1")
	if after > 0 {
		q.Set("updated_after", strconv.FormatInt(after, 10))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/notes?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build download: %w", err)
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var notes []models.RemoteNote
	if err := json.NewDecoder(resp.Body).Decode(&notes); err != nil {
		return nil, fmt.Errorf("remote: decode notes: %w: %w", apperr.ErrTransport, err)
	}
	return notes, nil
}

// do sends req and maps failures: 401 to apperr.ErrUnauthorized, any other
// non-2xx or network error to apperr.ErrTransport.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("remote: %s %s: %w", req.Method, req.URL.Path, ctxErr)
		}
		return nil, fmt.Errorf("remote: %s %s: %w: %w", req.Method, req.URL.Path, apperr.ErrTransport, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("remote: %s %s: %w", req.Method, req.URL.Path, apperr.ErrUnauthorized)
	}
	return nil, fmt.Errorf("remote: %s %s: status %d: %s: %w",
		req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)), apperr.ErrTransport)
}
