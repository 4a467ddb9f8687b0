// Package mcp exposes Fold's operations as a Model Context Protocol tool
// server over stdio: index_project, search, add_memory, get_job_status.
package mcp

import "encoding/json"

// Tool names exposed by the MCP server.
const (
	ToolIndexProject = "index_project"
	ToolSearch       = "search"
	ToolAddMemory    = "add_memory"
	ToolGetJobStatus = "get_job_status"
)

// IndexProjectRequest is the input for index_project. A project is
// registered (if ProjectID/Slug doesn't already resolve to one) and an
// index_repo or reindex_repo job is enqueued; the job worker (C12) does
// the actual work asynchronously.
type IndexProjectRequest struct {
	ProjectID    string   `json:"project_id,omitempty"`
	Slug         string   `json:"slug,omitempty"`
	Name         string   `json:"name,omitempty"`
	RootPath     string   `json:"root_path,omitempty"`
	RemoteURL    string   `json:"remote_url,omitempty"`
	IncludeGlobs []string `json:"include_globs,omitempty"`
	ExcludeGlobs []string `json:"exclude_globs,omitempty"`
	Reindex      bool     `json:"reindex,omitempty"`
	Author       string   `json:"author,omitempty"`
	Priority     int      `json:"priority,omitempty"`
}

// IndexProjectResponse is the output of index_project.
type IndexProjectResponse struct {
	ProjectID string `json:"project_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

// SearchRequest is the input for search.
type SearchRequest struct {
	ProjectID      string  `json:"project_id,omitempty"`
	Slug           string  `json:"slug,omitempty"`
	Query          string  `json:"query"`
	Limit          int     `json:"limit,omitempty"`
	MemoryType     string  `json:"memory_type,omitempty"`
	IncludeRelated bool    `json:"include_related,omitempty"`
	StrengthWeight float64 `json:"strength_weight,omitempty"`
	HalfLifeDays   float64 `json:"half_life_days,omitempty"`
}

// SearchResponse is the output of search.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
}

// SearchResultItem is one ranked, hydrated memory.
type SearchResultItem struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	FilePath   string                 `json:"file_path,omitempty"`
	Language   string                 `json:"language,omitempty"`
	Relevance  float64                `json:"relevance"`
	Strength   float64                `json:"strength"`
	Score      float64                `json:"score"`
	UpdatedAt  string                 `json:"updated_at"`
	Chunks     []SearchResultChunk    `json:"matched_chunks,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResultChunk is one matched chunk attached to a search result.
type SearchResultChunk struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// AddMemoryRequest is the input for add_memory: a caller-authored memory
// (source=agent) rather than one derived from indexing a file.
type AddMemoryRequest struct {
	ProjectID string   `json:"project_id,omitempty"`
	Slug      string   `json:"slug,omitempty"`
	Kind      string   `json:"kind"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Author    string   `json:"author,omitempty"`
	Context   string   `json:"context,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// AddMemoryResponse is the output of add_memory.
type AddMemoryResponse struct {
	MemoryID string `json:"memory_id"`
}

// GetJobStatusRequest is the input for get_job_status.
type GetJobStatusRequest struct {
	JobID      string `json:"job_id"`
	WithLogs   bool   `json:"with_logs,omitempty"`
	LogLimit   int    `json:"log_limit,omitempty"`
}

// GetJobStatusResponse is the output of get_job_status.
type GetJobStatusResponse struct {
	JobID      string              `json:"job_id"`
	Type       string              `json:"type"`
	Status     string              `json:"status"`
	Priority   int                 `json:"priority"`
	ProjectID  string              `json:"project_id,omitempty"`
	Total      int                 `json:"total"`
	Processed  int                 `json:"processed"`
	Failed     int                 `json:"failed"`
	RetryCount int                 `json:"retry_count"`
	Error      string              `json:"error,omitempty"`
	Result     string              `json:"result,omitempty"`
	CreatedAt  string              `json:"created_at"`
	StartedAt  string              `json:"started_at,omitempty"`
	FinishedAt string              `json:"finished_at,omitempty"`
	Logs       []JobLogEntry       `json:"logs,omitempty"`
}

// JobLogEntry is one append-only log line for a job.
type JobLogEntry struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// ToolDefinition is an MCP tool descriptor.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// GetToolDefinitions returns all tool definitions for the MCP server.
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolIndexProject,
			Description: "Registers a project (if new) and enqueues an index_repo or reindex_repo job; the job worker processes it asynchronously. Use get_job_status to poll progress.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"project_id": {"type": "string"},
					"slug": {"type": "string", "description": "Unique project slug, used if project_id is not already known"},
					"name": {"type": "string"},
					"root_path": {"type": "string", "description": "Filesystem path to the project root, required when registering a new project"},
					"remote_url": {"type": "string"},
					"include_globs": {"type": "array", "items": {"type": "string"}},
					"exclude_globs": {"type": "array", "items": {"type": "string"}},
					"reindex": {"type": "boolean", "description": "Force a full reindex instead of an incremental one"},
					"author": {"type": "string"},
					"priority": {"type": "integer"}
				}
			}`),
		},
		{
			Name:        ToolSearch,
			Description: "Decay-weighted semantic search over a project's indexed memories.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"project_id": {"type": "string"},
					"slug": {"type": "string"},
					"query": {"type": "string"},
					"limit": {"type": "integer", "default": 10, "maximum": 100},
					"memory_type": {"type": "string", "enum": ["codebase", "session", "spec", "decision", "task", "general", "commit", "pr"]},
					"include_related": {"type": "boolean", "description": "Attach up to three of each result's chunks, in file order"},
					"strength_weight": {"type": "number", "minimum": 0, "maximum": 1},
					"half_life_days": {"type": "number"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        ToolAddMemory,
			Description: "Records a caller-authored memory (decision, task note, session summary) not derived from indexing a file.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"project_id": {"type": "string"},
					"slug": {"type": "string"},
					"kind": {"type": "string", "enum": ["session", "spec", "decision", "task", "general"]},
					"title": {"type": "string"},
					"body": {"type": "string"},
					"author": {"type": "string"},
					"context": {"type": "string"},
					"keywords": {"type": "array", "items": {"type": "string"}},
					"tags": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["kind", "title", "body"]
			}`),
		},
		{
			Name:        ToolGetJobStatus,
			Description: "Returns a background job's current status, progress counters, and optionally its log lines.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"job_id": {"type": "string"},
					"with_logs": {"type": "boolean"},
					"log_limit": {"type": "integer"}
				},
				"required": ["job_id"]
			}`),
		},
	}
}
