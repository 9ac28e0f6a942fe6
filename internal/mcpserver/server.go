// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the index inspection and job intake tools for LLM integration.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/synapse/internal/api"
	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
)

const contractURI = "synapse://job-format"

// Server wraps the MCP server with the worker's tools.
type Server struct {
	mcp *server.MCPServer
	svc *api.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *api.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Synapse",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read a note record with its indexing status and status reason."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note ID")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("note_chunks",
		mcp.WithDescription("List the indexed chunks of a note: content hash, position and text."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note ID")),
	), s.noteChunks)

	s.mcp.AddTool(mcp.NewTool("get_usage",
		mcp.WithDescription("Show how many tokens a user has embedded and the limit of their tier."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User ID")),
	), s.getUsage)

	s.mcp.AddTool(mcp.NewTool("enqueue_job",
		mcp.WithDescription("Queue an indexing job. The payload MUST follow the job format "+
			"contract; read it first via get_job_contract or the "+contractURI+" resource."),
		mcp.WithString("queue", mcp.Required(), mcp.Description("Queue name"),
			mcp.Enum(models.QueueCreateSemantics, models.QueueUpdateSemantics,
				models.QueueDeleteSemantics, models.QueuePersistNoteData)),
		mcp.WithString("payload", mcp.Required(), mcp.Description("Job payload as a JSON object string")),
	), s.enqueueJob)

	s.mcp.AddTool(mcp.NewTool("get_job_contract",
		mcp.WithDescription("Returns the job format contract for enqueue_job."),
	), s.getJobContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Job Format Contract",
			mcp.WithResourceDescription("Queues and payloads accepted by the indexing worker."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readJobContractResource,
	)

	return s
}

// Handler serves the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Note(ctx, noteID)
	if err != nil {
		return toolError(noteID, err), nil
	}
	return jsonResult(note), nil
}

func (s *Server) noteChunks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.svc.NoteChunks(ctx, noteID)
	if err != nil {
		return toolError(noteID, err), nil
	}
	if len(resp.Chunks) == 0 {
		return mcp.NewToolResultText("no chunks indexed"), nil
	}
	return jsonResult(resp), nil
}

func (s *Server) getUsage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.Usage(ctx, userID)
	if err != nil {
		return toolError(userID, err), nil
	}
	return jsonResult(m), nil
}

func (s *Server) enqueueJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queueName, err := req.RequireString("queue")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload, err := req.RequireString("payload")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Enqueue(ctx, queueName, []byte(payload)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("queued: %s", queueName)), nil
}

func (s *Server) getJobContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(JobFormatContract), nil
}

func (s *Server) readJobContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     JobFormatContract,
		},
	}, nil
}

func toolError(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}
