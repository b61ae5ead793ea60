// Package mcpserver exposes the local note workspace as MCP tools over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tangle/internal/apperr"
	"github.com/starford/tangle/internal/graph"
	"github.com/starford/tangle/internal/models"
	"github.com/starford/tangle/internal/search"
	"github.com/starford/tangle/internal/syncer"
)

const noteFormatURI = "tangle://note-format"

// Workspace is the note workspace the tools operate on.
type Workspace interface {
	Snapshot() *graph.Collection
	Get(id string) (models.Note, error)
	FindByTitle(title string) (models.Note, error)
	Create(title, content string) (models.Note, error)
	Update(id string, p models.Patch) (models.Note, error)
	Delete(id string) error
	Backlinks(id string) ([]models.Note, error)
	Search(ctx context.Context, q search.Query) ([]search.Result, error)
	Sync(ctx context.Context) (syncer.Report, error)
}

// Server wraps the MCP server with the note tools.
type Server struct {
	mcp          *server.MCPServer
	ws           Workspace
	defaultLimit int
}

// New creates a new MCP server with all tools registered. searchLimit caps
// search results when the caller does not pass a limit.
func New(ws Workspace, version string, searchLimit int) *Server {
	s := &Server{ws: ws, defaultLimit: searchLimit}

	s.mcp = server.NewMCPServer(
		"Tangle",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by title, content and tags. Results are ranked by relevance, then recency."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Whitespace-separated terms; every term must match")),
		mcp.WithString("mode", mcp.Description("Fields to search: all, title, content or tags (default all)")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags every result must carry")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note by id or by title."),
		mcp.WithString("note", mcp.Required(), mcp.Description("Note id or exact title (case-insensitive)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note as id and title, most recently created first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. Link other notes with [[Title]] and tag with #tag inside content. "+
			"See the get_note_contract tool or the "+noteFormatURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title; other notes link to it as [[title]]")),
		mcp.WithString("content", mcp.Description("Note body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Change a note's title and/or content. Renaming rewrites [[links]] in every other note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New content")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("note", mcp.Required(), mcp.Description("Note id or exact title")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Return the note graph: live notes as nodes and resolved [[links]] as edges."),
	), s.getGraph)

	s.mcp.AddTool(mcp.NewTool("sync_notes",
		mcp.WithDescription("Run one sync round with the remote note store and report the counts."),
	), s.syncNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format contract. Call this before creating or updating notes."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("How titles, [[links]] and #tags work in notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// resolve finds a live note by id, then by title.
func (s *Server) resolve(ref string) (models.Note, error) {
	if n, err := s.ws.Get(ref); err == nil {
		return n, nil
	}
	return s.ws.FindByTitle(ref)
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := search.ParseMode(req.GetString("mode", string(search.ModeAll)))
	var tags []string
	for _, t := range strings.Split(req.GetString("tags", ""), ",") {
		if t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")); t != "" {
			tags = append(tags, t)
		}
	}

	results, err := s.ws.Search(ctx, search.Query{
		Text:  text,
		Mode:  mode,
		Tags:  tags,
		Limit: req.GetInt("limit", s.defaultLimit),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.resolve(ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", ref)), nil
	}
	return jsonResult(n)
}

type listItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	live := s.ws.Snapshot().Live()
	items := make([]listItem, 0, len(live))
	for _, n := range live {
		items = append(items, listItem{ID: n.ID, Title: n.Title})
	}
	return jsonResult(items)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ws.Create(title, req.GetString("content", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n)
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var p models.Patch
	args := req.GetArguments()
	if v, ok := args["title"].(string); ok {
		p.Title = &v
	}
	if v, ok := args["content"].(string); ok {
		p.Content = &v
	}
	if p.Title == nil && p.Content == nil {
		return mcp.NewToolResultError("nothing to update: pass title and/or content"), nil
	}

	n, err := s.ws.Update(id, p)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n)
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ws.Delete(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.resolve(ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", ref)), nil
	}
	bl, err := s.ws.Backlinks(n.ID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	items := make([]listItem, 0, len(bl))
	for _, b := range bl {
		items = append(items, listItem{ID: b.ID, Title: b.Title})
	}
	return jsonResult(items)
}

type graphView struct {
	Nodes []listItem   `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

func (s *Server) getGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c := s.ws.Snapshot()
	view := graphView{Nodes: []listItem{}, Edges: c.Edges()}
	if view.Edges == nil {
		view.Edges = []graph.Edge{}
	}
	for _, n := range c.Live() {
		view.Nodes = append(view.Nodes, listItem{ID: n.ID, Title: n.Title})
	}
	return jsonResult(view)
}

func (s *Server) syncNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.ws.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}
	return jsonResult(report)
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
