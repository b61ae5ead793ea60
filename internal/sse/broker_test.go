package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ch := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d, want 0 after unsubscribe", n)
	}
}

func TestNoteUpsertedWireFormat(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.NoteUpserted(NoteChange{ID: "n1", UpdatedAt: 42})

	msg := recv(t, ch)
	if !strings.HasPrefix(msg, "event: note.upserted\n") {
		t.Errorf("unexpected event line in %q", msg)
	}
	if !strings.Contains(msg, `"id":"n1"`) || !strings.Contains(msg, `"updated_at":42`) {
		t.Errorf("missing data in %q", msg)
	}
	if !strings.HasSuffix(msg, "\n\n") {
		t.Errorf("event not terminated: %q", msg)
	}
}

func TestSyncHintThrottle(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.NoteUpserted(NoteChange{ID: "a", UpdatedAt: 1})
	b.NoteUpserted(NoteChange{ID: "b", UpdatedAt: 2})
	b.NoteUpserted(NoteChange{ID: "c", UpdatedAt: 3, Deleted: true})

	// upsert a, hint, upsert b, upsert c
	var hints, upserts int
	for i := 0; i < 4; i++ {
		msg := recv(t, ch)
		switch {
		case strings.Contains(msg, EventSyncHint):
			hints++
		case strings.Contains(msg, EventNoteUpserted):
			upserts++
		}
	}
	if upserts != 3 {
		t.Errorf("upserts = %d, want 3", upserts)
	}
	if hints != 1 {
		t.Errorf("hints = %d, want 1 (throttled)", hints)
	}
}

func TestServeHTTPStreams(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(Event{Type: "custom", Data: map[string]string{"k": "v"}})

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	select {
	case line := <-lines:
		if line != "event: custom" {
			t.Errorf("first line = %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stream")
	}

	cancel()
	deadline = time.Now().Add(time.Second)
	for b.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not cleaned up after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d after close", n)
	}

	b.Publish(Event{Type: "x"})
	b.NoteUpserted(NoteChange{ID: "x"})
	if _, ok := <-b.Subscribe(); ok {
		t.Fatal("subscribe after close returned an open channel")
	}
}
