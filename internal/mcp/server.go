package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/jobqueue"
	"github.com/ferg-cod3s/fold/internal/memoryservice"
	"github.com/ferg-cod3s/fold/internal/protocol"
	"github.com/ferg-cod3s/fold/internal/search"
	"github.com/ferg-cod3s/fold/internal/store"
)

// Server implements the MCP protocol server exposing Fold's four
// operations (index_project, search, add_memory, get_job_status) over
// JSON-RPC/stdio.
type Server struct {
	store      *store.Store
	memories   *memoryservice.Service
	queue      *jobqueue.Queue
	ranker     *search.Ranker
	embedder   embedding.Embedder
	jsonrpcSrv *protocol.Server
}

// Deps wires the Server's dependencies; all must be already constructed
// (C1, C6, C9, C11, C13) by cmd/fold's startup sequence.
type Deps struct {
	Store    *store.Store
	Memories *memoryservice.Service
	Queue    *jobqueue.Queue
	Ranker   *search.Ranker
	Embedder embedding.Embedder
}

// NewServer creates a new MCP server reading JSON-RPC requests from
// reader and writing responses to writer.
func NewServer(reader io.Reader, writer io.Writer, deps Deps) *Server {
	s := &Server{
		store:    deps.Store,
		memories: deps.Memories,
		queue:    deps.Queue,
		ranker:   deps.Ranker,
		embedder: deps.Embedder,
	}
	s.jsonrpcSrv = protocol.NewServer(reader, writer, s)
	return s
}

// Handle implements protocol.Handler.
func (s *Server) Handle(method string, params json.RawMessage) (interface{}, error) {
	ctx := context.Background()

	switch method {
	case "tools/list":
		return s.handleToolsList(ctx)
	case "tools/call":
		return s.handleToolsCall(ctx, params)
	default:
		return nil, &protocol.Error{
			Code:    protocol.MethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
}

// Serve starts the MCP server (blocking).
func (s *Server) Serve() error {
	return s.jsonrpcSrv.Serve()
}

// Close releases resources held by the server's dependencies.
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Server) handleToolsList(ctx context.Context) (interface{}, error) {
	return map[string]interface{}{
		"tools": GetToolDefinitions(),
	}, nil
}

// toolCallRequest is the tools/call envelope.
type toolCallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req toolCallRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}

	switch req.Name {
	case ToolIndexProject:
		return s.handleIndexProject(ctx, req.Arguments)
	case ToolSearch:
		return s.handleSearch(ctx, req.Arguments)
	case ToolAddMemory:
		return s.handleAddMemory(ctx, req.Arguments)
	case ToolGetJobStatus:
		return s.handleGetJobStatus(ctx, req.Arguments)
	default:
		return nil, &protocol.Error{Code: protocol.MethodNotFound, Message: fmt.Sprintf("unknown tool: %s", req.Name)}
	}
}
