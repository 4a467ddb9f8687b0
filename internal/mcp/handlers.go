package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/idgen"
	"github.com/ferg-cod3s/fold/internal/jobqueue"
	"github.com/ferg-cod3s/fold/internal/memoryservice"
	"github.com/ferg-cod3s/fold/internal/protocol"
	"github.com/ferg-cod3s/fold/internal/search"
	"github.com/ferg-cod3s/fold/internal/store"
)

// resolveProject finds a project by id or slug, the two ways every tool
// here accepts a project reference.
func (s *Server) resolveProject(ctx context.Context, projectID, slug string) (*store.Project, error) {
	if projectID != "" {
		return s.store.GetProject(ctx, projectID)
	}
	if slug != "" {
		return s.store.GetProjectBySlug(ctx, slug)
	}
	return nil, ferrors.New(ferrors.Validation, "mcp.resolveProject", "either project_id or slug is required")
}

func (s *Server) handleIndexProject(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req IndexProjectRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}

	project, err := s.resolveProject(ctx, req.ProjectID, req.Slug)
	if err != nil {
		if req.RootPath == "" || req.Slug == "" {
			return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "unknown project: root_path and slug are required to register a new one"}
		}
		now := time.Now().UTC()
		p := store.Project{
			ID: idgen.New(), Slug: req.Slug, Name: req.Name, RootPath: req.RootPath,
			RemoteURL: req.RemoteURL, IncludeGlobs: req.IncludeGlobs, ExcludeGlobs: req.ExcludeGlobs,
			CreatedAt: now, UpdatedAt: now,
		}
		if p.Name == "" {
			p.Name = req.Slug
		}
		if insertErr := s.store.InsertProject(ctx, p); insertErr != nil {
			return nil, &protocol.Error{Code: protocol.InternalError, Message: insertErr.Error()}
		}
		project = &p
	}

	jobType := store.JobIndexRepo
	if req.Reindex {
		jobType = store.JobReindexRepo
	}
	priority := req.Priority
	if priority == 0 {
		priority = 5
	}

	job, err := s.queue.Enqueue(ctx, jobqueue.EnqueueInput{
		Type: jobType, ProjectID: project.ID, Priority: priority,
	})
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}

	return IndexProjectResponse{ProjectID: project.ID, JobID: job.ID, Status: string(job.Status)}, nil
}

func (s *Server) handleSearch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req SearchRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}
	if req.Query == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "query is required"}
	}

	project, err := s.resolveProject(ctx, req.ProjectID, req.Slug)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}

	results, err := s.ranker.Search(ctx, project.ID, req.Query, search.SearchParams{
		Limit:          req.Limit,
		MemoryType:     req.MemoryType,
		IncludeRelated: req.IncludeRelated,
		StrengthWeight: req.StrengthWeight,
		HalfLifeDays:   req.HalfLifeDays,
	})
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}

	items := make([]SearchResultItem, len(results))
	for i, r := range results {
		item := SearchResultItem{
			ID: r.Memory.ID, Kind: string(r.Memory.Kind), Title: r.Memory.Title, Body: r.Memory.Body,
			FilePath: r.Memory.FilePath, Language: r.Memory.Language,
			Relevance: r.Relevance, Strength: r.Strength, Score: r.Final,
			UpdatedAt: r.Memory.UpdatedAt.Format(time.RFC3339),
		}
		for _, c := range r.MatchedChunks {
			item.Chunks = append(item.Chunks, SearchResultChunk{ID: c.ID, Content: c.Content, StartLine: c.StartLine, EndLine: c.EndLine})
		}
		items[i] = item
	}

	return SearchResponse{Results: items}, nil
}

func (s *Server) handleAddMemory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req AddMemoryRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}
	if req.Title == "" || req.Body == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "title and body are required"}
	}

	project, err := s.resolveProject(ctx, req.ProjectID, req.Slug)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}

	kind := store.MemoryKind(req.Kind)
	switch kind {
	case store.KindSession, store.KindSpec, store.KindDecision, store.KindTask, store.KindGeneral:
	default:
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: fmt.Sprintf("unsupported kind for add_memory: %q", req.Kind)}
	}

	m, err := s.memories.Add(ctx, memoryservice.AddInput{
		Project: *project, Kind: kind, Source: store.SourceAgent,
		Title: req.Title, Author: req.Author, Keywords: req.Keywords, Tags: req.Tags,
		Context: req.Context, Body: req.Body, Embedder: s.embedder,
	})
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}

	return AddMemoryResponse{MemoryID: m.ID}, nil
}

func (s *Server) handleGetJobStatus(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var req GetJobStatusRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: err.Error()}
	}
	if req.JobID == "" {
		return nil, &protocol.Error{Code: protocol.InvalidParams, Message: "job_id is required"}
	}

	job, err := s.store.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
	}

	resp := GetJobStatusResponse{
		JobID: job.ID, Type: string(job.Type), Status: string(job.Status), Priority: job.Priority,
		ProjectID: job.ProjectID, Total: job.Total, Processed: job.Processed, Failed: job.Failed,
		RetryCount: job.RetryCount, Error: job.Error, Result: job.Result,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}

	if req.WithLogs {
		logs, err := s.store.ListJobLogs(ctx, job.ID)
		if err != nil {
			return nil, &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
		}
		limit := req.LogLimit
		if limit > 0 && limit < len(logs) {
			logs = logs[len(logs)-limit:]
		}
		for _, l := range logs {
			resp.Logs = append(resp.Logs, JobLogEntry{Level: l.Level, Message: l.Message, CreatedAt: l.CreatedAt.Format(time.RFC3339)})
		}
	}

	return resp, nil
}
