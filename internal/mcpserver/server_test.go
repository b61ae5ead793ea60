package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/search"
	"github.com/starford/tangle/internal/storage"
	"github.com/starford/tangle/internal/syncer"
	"github.com/starford/tangle/internal/testutil"
	"github.com/starford/tangle/internal/workspace"
)

func testServer(t *testing.T, opts ...workspace.Option) (*Server, *workspace.Workspace) {
	t.Helper()
	idx := search.NewWorker(nil)
	t.Cleanup(idx.Close)

	ws, err := workspace.Open(storage.NewNoteStore(storage.NewMem()), idx, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return New(ws, "test", 20), ws
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"search_notes":      srv.searchNotes,
		"read_note":         srv.readNote,
		"list_notes":        srv.listNotes,
		"create_note":       srv.createNote,
		"update_note":       srv.updateNote,
		"delete_note":       srv.deleteNote,
		"get_backlinks":     srv.getBacklinks,
		"get_graph":         srv.getGraph,
		"sync_notes":        srv.syncNotes,
		"get_note_contract": srv.getNoteContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func createNote(t *testing.T, srv *Server, title, content string) models.Note {
	t.Helper()
	r := callTool(t, srv, "create_note", map[string]any{"title": title, "content": content})
	if r.IsError {
		t.Fatalf("create_note: %s", resultText(r))
	}
	var n models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &n); err != nil {
		t.Fatalf("decode note: %v", err)
	}
	return n
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)
	n := createNote(t, srv, "Hello", "first note #intro")
	if len(n.Tags) != 1 || n.Tags[0] != "intro" {
		t.Errorf("tags = %v", n.Tags)
	}

	for _, ref := range []string{n.ID, "hello"} {
		r := callTool(t, srv, "read_note", map[string]any{"note": ref})
		if r.IsError {
			t.Fatalf("read_note(%q): %s", ref, resultText(r))
		}
		if !strings.Contains(resultText(r), "first note") {
			t.Errorf("read_note(%q) missing content: %s", ref, resultText(r))
		}
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"note": "nope"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestCreateNoteRequiresTitle(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_note", map[string]any{"content": "x"})
	if !r.IsError {
		t.Error("expected error without title")
	}
}

func TestUpdateNoteRenamesLinks(t *testing.T) {
	srv, ws := testServer(t)
	target := createNote(t, srv, "Old", "")
	src := createNote(t, srv, "Src", "see [[Old]]")

	r := callTool(t, srv, "update_note", map[string]any{"id": target.ID, "title": "New"})
	if r.IsError {
		t.Fatalf("update_note: %s", resultText(r))
	}
	got, _ := ws.Get(src.ID)
	if got.Content != "see [[New]]" {
		t.Errorf("content = %q", got.Content)
	}

	r = callTool(t, srv, "update_note", map[string]any{"id": target.ID})
	if !r.IsError {
		t.Error("expected error for empty patch")
	}
	r = callTool(t, srv, "update_note", map[string]any{"id": "missing", "title": "x"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestDeleteNote(t *testing.T) {
	srv, ws := testServer(t)
	n := createNote(t, srv, "Gone", "")

	r := callTool(t, srv, "delete_note", map[string]any{"id": n.ID})
	if r.IsError {
		t.Fatalf("delete_note: %s", resultText(r))
	}
	if ws.Snapshot().Len() != 0 {
		t.Error("note still present")
	}
	r = callTool(t, srv, "delete_note", map[string]any{"id": n.ID})
	if !r.IsError {
		t.Error("expected error for second delete")
	}
}

func TestListNotes(t *testing.T) {
	srv, _ := testServer(t)
	createNote(t, srv, "A", "")
	createNote(t, srv, "B", "")

	var items []listItem
	r := callTool(t, srv, "list_notes", nil)
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 || items[0].Title != "B" {
		t.Errorf("items = %+v", items)
	}
}

func TestSearchNotes(t *testing.T) {
	srv, _ := testServer(t)
	createNote(t, srv, "Groceries", "milk eggs #home")
	createNote(t, srv, "Work", "eggs benedict meeting #work")

	var res []search.Result
	r := callTool(t, srv, "search_notes", map[string]any{"query": "eggs", "tags": "#work"})
	if r.IsError {
		t.Fatalf("search_notes: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res) != 1 || res[0].Title != "Work" {
		t.Errorf("results = %+v", res)
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, _ := testServer(t)
	createNote(t, srv, "Hub", "")
	createNote(t, srv, "Spoke", "back to [[hub]]")

	r := callTool(t, srv, "get_backlinks", map[string]any{"note": "Hub"})
	if !strings.Contains(resultText(r), "Spoke") {
		t.Errorf("backlinks = %s", resultText(r))
	}

	r = callTool(t, srv, "get_backlinks", map[string]any{"note": "Spoke"})
	if resultText(r) != "no backlinks found" {
		t.Errorf("unexpected backlinks: %s", resultText(r))
	}
}

func TestGetGraph(t *testing.T) {
	srv, _ := testServer(t)
	hub := createNote(t, srv, "Hub", "")
	spoke := createNote(t, srv, "Spoke", "[[Hub]]")

	var view graphView
	r := callTool(t, srv, "get_graph", nil)
	if err := json.Unmarshal([]byte(resultText(r)), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Nodes) != 2 || len(view.Edges) != 1 {
		t.Fatalf("view = %+v", view)
	}
	if view.Edges[0].Source != spoke.ID || view.Edges[0].Target != hub.ID {
		t.Errorf("edge = %+v", view.Edges[0])
	}
}

func TestSyncNotes(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sync_notes", nil)
	if !r.IsError {
		t.Error("expected error when sync is not configured")
	}

	remote := testutil.NewMemRemote(0)
	srv, _ = testServer(t, workspace.WithReconciler(syncer.New(remote)))
	createNote(t, srv, "Shared", "")
	r = callTool(t, srv, "sync_notes", nil)
	if r.IsError {
		t.Fatalf("sync_notes: %s", resultText(r))
	}
	if len(remote.Uploads()) != 1 {
		t.Errorf("uploads = %v", remote.Uploads())
	}
}

func TestNoteContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_note_contract", nil)
	if !strings.Contains(resultText(r), "[[Title]]") {
		t.Error("contract missing link syntax")
	}

	contents, err := srv.readNoteFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != noteFormatURI {
		t.Errorf("unexpected resource: %+v", contents[0])
	}
}
