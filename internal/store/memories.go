package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ferg-cod3s/fold/internal/ferrors"
)

// InsertMemory creates a new memory row. For source=agent memories, Body
// must be empty: the canonical body lives in the fold tree (spec.md §3
// storage rule); memory service enforces this before calling InsertMemory.
func (s *Store) InsertMemory(ctx context.Context, m Memory) error {
	keywords, _ := json.Marshal(m.Keywords)
	tags, _ := json.Marshal(m.Tags)
	now := time.Now().Unix()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Unix(now, 0)
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, project_id, kind, source, title, author, keywords, tags, context, file_path, language, start_line, end_line, body, content_hash, original_date, created_at, updated_at, retrieval_count, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, string(m.Kind), string(m.Source), m.Title, m.Author, string(keywords), string(tags), m.Context,
		m.FilePath, m.Language, m.StartLine, m.EndLine, nullIfEmpty(m.Body), m.ContentHash, unixOrNil(m.OriginalDate),
		m.CreatedAt.Unix(), m.UpdatedAt.Unix(), m.RetrievalCount, unixOrNil(m.LastAccessed),
	)
	return classify("store.InsertMemory", err)
}

// UpsertMemory inserts or overwrites a memory by id, used when re-indexing a
// file whose deterministic id already exists.
func (s *Store) UpsertMemory(ctx context.Context, m Memory) error {
	existing, err := s.GetMemory(ctx, m.ID)
	if err != nil {
		if errors.Is(err, ferrors.ErrNotFound) {
			return s.InsertMemory(ctx, m)
		}
		return err
	}
	m.CreatedAt = existing.CreatedAt
	m.RetrievalCount = existing.RetrievalCount
	return s.UpdateMemory(ctx, m)
}

const memorySelectCols = "id, project_id, kind, source, title, author, keywords, tags, context, file_path, language, start_line, end_line, body, content_hash, original_date, created_at, updated_at, retrieval_count, last_accessed"

// GetMemory retrieves a memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memorySelectCols+" FROM memories WHERE id = ?", id)
	return scanMemory(row)
}

// GetMemoryByPath looks up a file-sourced memory by its deterministic
// (project, path) identity.
func (s *Store) GetMemoryByPath(ctx context.Context, projectID, filePath string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memorySelectCols+" FROM memories WHERE project_id = ? AND file_path = ?", projectID, filePath)
	return scanMemory(row)
}

func scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var kind, source, keywords, tags string
	var title, author, context, filePath, language, body, contentHash sql.NullString
	var startLine, endLine sql.NullInt64
	var originalDate, lastAccessed sql.NullInt64
	var created, updated int64

	err := row.Scan(&m.ID, &m.ProjectID, &kind, &source, &title, &author, &keywords, &tags, &context,
		&filePath, &language, &startLine, &endLine, &body, &contentHash, &originalDate,
		&created, &updated, &m.RetrievalCount, &lastAccessed)
	if err != nil {
		return nil, classify("store.GetMemory", err)
	}

	m.Kind = MemoryKind(kind)
	m.Source = MemorySource(source)
	json.Unmarshal([]byte(keywords), &m.Keywords)
	json.Unmarshal([]byte(tags), &m.Tags)
	m.Title = title.String
	m.Author = author.String
	m.Context = context.String
	m.FilePath = filePath.String
	m.Language = language.String
	m.StartLine = int(startLine.Int64)
	m.EndLine = int(endLine.Int64)
	m.Body = body.String
	m.ContentHash = contentHash.String
	m.OriginalDate = timePtrFromNull(originalDate)
	m.CreatedAt = time.Unix(created, 0).UTC()
	m.UpdatedAt = time.Unix(updated, 0).UTC()
	m.LastAccessed = timePtrFromNull(lastAccessed)
	return &m, nil
}

// UpdateMemory overwrites a memory's mutable fields.
func (s *Store) UpdateMemory(ctx context.Context, m Memory) error {
	keywords, _ := json.Marshal(m.Keywords)
	tags, _ := json.Marshal(m.Tags)
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET kind=?, source=?, title=?, author=?, keywords=?, tags=?, context=?, file_path=?, language=?,
			start_line=?, end_line=?, body=?, content_hash=?, original_date=?, updated_at=?, retrieval_count=?, last_accessed=?
		WHERE id = ?`,
		string(m.Kind), string(m.Source), m.Title, m.Author, string(keywords), string(tags), m.Context,
		m.FilePath, m.Language, m.StartLine, m.EndLine, nullIfEmpty(m.Body), m.ContentHash, unixOrNil(m.OriginalDate),
		time.Now().Unix(), m.RetrievalCount, unixOrNil(m.LastAccessed), m.ID,
	)
	if err != nil {
		return classify("store.UpdateMemory", err)
	}
	return checkRowsAffected("store.UpdateMemory", res)
}

// DeleteMemory removes a memory; chunks and links cascade.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return classify("store.DeleteMemory", err)
	}
	return checkRowsAffected("store.DeleteMemory", res)
}

// ListMemories returns memories for a project, optionally filtered by kind.
func (s *Store) ListMemories(ctx context.Context, projectID string, kind MemoryKind) ([]Memory, error) {
	query := "SELECT " + memorySelectCols + " FROM memories WHERE project_id = ?"
	args := []interface{}{projectID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("store.ListMemories", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, classify("store.ListMemories", err)
		}
		out = append(out, *m)
	}
	return out, classify("store.ListMemories", rows.Err())
}

func scanMemoryRows(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var kind, source, keywords, tags string
	var title, author, context, filePath, language, body, contentHash sql.NullString
	var startLine, endLine sql.NullInt64
	var originalDate, lastAccessed sql.NullInt64
	var created, updated int64

	err := rows.Scan(&m.ID, &m.ProjectID, &kind, &source, &title, &author, &keywords, &tags, &context,
		&filePath, &language, &startLine, &endLine, &body, &contentHash, &originalDate,
		&created, &updated, &m.RetrievalCount, &lastAccessed)
	if err != nil {
		return nil, err
	}

	m.Kind = MemoryKind(kind)
	m.Source = MemorySource(source)
	json.Unmarshal([]byte(keywords), &m.Keywords)
	json.Unmarshal([]byte(tags), &m.Tags)
	m.Title = title.String
	m.Author = author.String
	m.Context = context.String
	m.FilePath = filePath.String
	m.Language = language.String
	m.StartLine = int(startLine.Int64)
	m.EndLine = int(endLine.Int64)
	m.Body = body.String
	m.ContentHash = contentHash.String
	m.OriginalDate = timePtrFromNull(originalDate)
	m.CreatedAt = time.Unix(created, 0).UTC()
	m.UpdatedAt = time.Unix(updated, 0).UTC()
	m.LastAccessed = timePtrFromNull(lastAccessed)
	return &m, nil
}

// TouchRetrieval increments retrieval_count and bumps last_accessed for a
// set of memory ids, used as the fire-and-forget side effect of search
// (spec.md §4.13 step 7).
func (s *Store) TouchRetrieval(ctx context.Context, ids []string) error {
	now := time.Now().Unix()
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE memories SET retrieval_count = retrieval_count + 1, last_accessed = ? WHERE id = ?", now, id,
		); err != nil {
			return classify("store.TouchRetrieval", err)
		}
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
