package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// InsertProject creates a new project row. The caller assigns p.ID.
func (s *Store) InsertProject(ctx context.Context, p Project) error {
	include, err := json.Marshal(p.IncludeGlobs)
	if err != nil {
		return err
	}
	exclude, err := json.Marshal(p.ExcludeGlobs)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, slug, name, root_path, remote_url, include_globs, exclude_globs, auto_commit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Name, p.RootPath, p.RemoteURL, string(include), string(exclude), boolToInt(p.AutoCommit), now, now,
	)
	return classify("store.InsertProject", err)
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.scanProjectRow(ctx, "SELECT id, slug, name, root_path, remote_url, include_globs, exclude_globs, auto_commit, created_at, updated_at FROM projects WHERE id = ?", id)
}

// GetProjectBySlug retrieves a project by its unique slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	return s.scanProjectRow(ctx, "SELECT id, slug, name, root_path, remote_url, include_globs, exclude_globs, auto_commit, created_at, updated_at FROM projects WHERE slug = ?", slug)
}

func (s *Store) scanProjectRow(ctx context.Context, query, arg string) (*Project, error) {
	var p Project
	var include, exclude string
	var autoCommit int
	var created, updated int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Slug, &p.Name, &p.RootPath, &p.RemoteURL, &include, &exclude, &autoCommit, &created, &updated,
	)
	if err != nil {
		return nil, classify("store.GetProject", err)
	}
	json.Unmarshal([]byte(include), &p.IncludeGlobs)
	json.Unmarshal([]byte(exclude), &p.ExcludeGlobs)
	p.AutoCommit = autoCommit != 0
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

// ListProjects returns all projects ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, slug, name, root_path, remote_url, include_globs, exclude_globs, auto_commit, created_at, updated_at FROM projects ORDER BY name")
	if err != nil {
		return nil, classify("store.ListProjects", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var include, exclude string
		var autoCommit int
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.RootPath, &p.RemoteURL, &include, &exclude, &autoCommit, &created, &updated); err != nil {
			return nil, classify("store.ListProjects", err)
		}
		json.Unmarshal([]byte(include), &p.IncludeGlobs)
		json.Unmarshal([]byte(exclude), &p.ExcludeGlobs)
		p.AutoCommit = autoCommit != 0
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, p)
	}
	return out, classify("store.ListProjects", rows.Err())
}

// UpdateProject overwrites the mutable fields of a project.
func (s *Store) UpdateProject(ctx context.Context, p Project) error {
	include, _ := json.Marshal(p.IncludeGlobs)
	exclude, _ := json.Marshal(p.ExcludeGlobs)
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, root_path = ?, remote_url = ?, include_globs = ?, exclude_globs = ?, auto_commit = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.RootPath, p.RemoteURL, string(include), string(exclude), boolToInt(p.AutoCommit), time.Now().Unix(), p.ID,
	)
	if err != nil {
		return classify("store.UpdateProject", err)
	}
	return checkRowsAffected("store.UpdateProject", res)
}

// DeleteProject removes a project; foreign keys cascade to memories, chunks,
// links, and jobs (spec.md §3 Project "Destroyed" invariant).
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return classify("store.DeleteProject", err)
	}
	return checkRowsAffected("store.DeleteProject", res)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return classify(op, sql.ErrNoRows)
	}
	return nil
}
