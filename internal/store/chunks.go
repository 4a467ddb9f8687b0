package store

import (
	"context"
	"database/sql"
	"time"
)

const chunkSelectCols = "id, memory_id, project_id, node_type, node_name, content, start_line, end_line, start_byte, end_byte, language, content_hash, created_at"

// InsertChunk creates a new chunk row.
func (s *Store) InsertChunk(ctx context.Context, c Chunk) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, memory_id, project_id, node_type, node_name, content, start_line, end_line, start_byte, end_byte, language, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MemoryID, c.ProjectID, string(c.NodeType), c.NodeName, c.Content, c.StartLine, c.EndLine, c.StartByte, c.EndByte,
		c.Language, c.ContentHash, c.CreatedAt.Unix(),
	)
	return classify("store.InsertChunk", err)
}

// InsertChunksBatch inserts many chunks in one transaction.
func (s *Store) InsertChunksBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, memory_id, project_id, node_type, node_name, content, start_line, end_line, start_byte, end_byte, language, content_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET content=excluded.content, start_line=excluded.start_line, end_line=excluded.end_line,
				start_byte=excluded.start_byte, end_byte=excluded.end_byte, content_hash=excluded.content_hash`)
		if err != nil {
			return classify("store.InsertChunksBatch", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.MemoryID, c.ProjectID, string(c.NodeType), c.NodeName, c.Content,
				c.StartLine, c.EndLine, c.StartByte, c.EndByte, c.Language, c.ContentHash, c.CreatedAt.Unix()); err != nil {
				return classify("store.InsertChunksBatch", err)
			}
		}
		return nil
	})
}

// DeleteChunksForMemory removes every chunk belonging to a memory, used
// before re-chunking on reindex (spec.md §9 "Chunk-to-vector mapping").
func (s *Store) DeleteChunksForMemory(ctx context.Context, memoryID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE memory_id = ?", memoryID)
	return classify("store.DeleteChunksForMemory", err)
}

// ListChunksForMemory returns all chunks belonging to a memory, ordered by
// position in the file.
func (s *Store) ListChunksForMemory(ctx context.Context, memoryID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+chunkSelectCols+" FROM chunks WHERE memory_id = ? ORDER BY start_line", memoryID)
	if err != nil {
		return nil, classify("store.ListChunksForMemory", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunk retrieves a single chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+chunkSelectCols+" FROM chunks WHERE id = ?", id)
	var c Chunk
	var nodeType string
	var created int64
	err := row.Scan(&c.ID, &c.MemoryID, &c.ProjectID, &nodeType, &c.NodeName, &c.Content, &c.StartLine, &c.EndLine,
		&c.StartByte, &c.EndByte, &c.Language, &c.ContentHash, &created)
	if err != nil {
		return nil, classify("store.GetChunk", err)
	}
	c.NodeType = ChunkNodeType(nodeType)
	c.CreatedAt = time.Unix(created, 0).UTC()
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var nodeType string
		var created int64
		if err := rows.Scan(&c.ID, &c.MemoryID, &c.ProjectID, &nodeType, &c.NodeName, &c.Content, &c.StartLine, &c.EndLine,
			&c.StartByte, &c.EndByte, &c.Language, &c.ContentHash, &created); err != nil {
			return nil, classify("store.scanChunks", err)
		}
		c.NodeType = ChunkNodeType(nodeType)
		c.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, c)
	}
	return out, classify("store.scanChunks", rows.Err())
}
