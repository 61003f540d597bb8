// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the prehandler for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/trevanbox/internal/noteservice"
)

const schemaURI = "trevanbox://note-schema"

// Server wraps the MCP server with prehandler tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"TrevanBox Prehandler",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("preprocess_directory",
		mcp.WithDescription("Normalize frontmatter and generate title, tags and description for every "+
			"Markdown note in one or more import directories. Accepts mapped directory names "+
			"(e.g. readwise), 'all', or paths inside the vault."),
		mcp.WithString("directories", mcp.Required(), mcp.Description("Comma-separated directory names or vault-relative paths")),
		mcp.WithBoolean("dry_run", mcp.Description("Compute changes without writing (default false)")),
		mcp.WithBoolean("move_to_inbox", mcp.Description("Move processed notes to the review queue (default false)")),
	), s.preprocessDirectory)

	s.mcp.AddTool(mcp.NewTool("preview_note",
		mcp.WithDescription("Dry-run a single note and return the header it would be written with."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path to the note (must end with .md)")),
	), s.previewNote)

	s.mcp.AddTool(mcp.NewTool("inference_status",
		mcp.WithDescription("Check whether the Ollama service is reachable and the configured model is installed."),
	), s.inferenceStatus)

	s.mcp.AddTool(mcp.NewTool("processing_history",
		mcp.WithDescription("List recently processed notes, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
	), s.processingHistory)

	s.mcp.AddTool(mcp.NewTool("get_note_schema",
		mcp.WithDescription("Returns the canonical note header schema the prehandler writes."),
	), s.getNoteSchema)

	s.mcp.AddResource(
		mcp.NewResource(schemaURI, "Note Schema",
			mcp.WithResourceDescription("Canonical frontmatter schema of processed notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteSchemaResource,
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

func (s *Server) preprocessDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("directories")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var dirs []string
	for _, d := range strings.Split(raw, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}

	summaries, err := s.svc.Process(ctx, noteservice.ProcessRequest{
		Dirs:        dirs,
		DryRun:      req.GetBool("dry_run", false),
		MoveToInbox: req.GetBool("move_to_inbox", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summaries)
}

func (s *Server) previewNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Preview(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preview %s: %v", path, err)), nil
	}
	if !p.Result.Success {
		return mcp.NewToolResultError(fmt.Sprintf("preview %s: %s", path, p.Result.Error)), nil
	}
	return jsonResult(p)
}

func (s *Server) inferenceStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status(ctx))
}

func (s *Server) processingHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.History(req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries)
}

func (s *Server) getNoteSchema(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteSchemaContract), nil
}

func (s *Server) readNoteSchemaResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      schemaURI,
			MIMEType: "text/markdown",
			Text:     NoteSchemaContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
