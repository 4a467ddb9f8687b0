package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ferg-cod3s/fold/internal/idgen"
)

const linkSelectCols = "id, project_id, source_id, target_id, type, provenance, confidence, created_at"

// InsertLink creates a new link edge. A UNIQUE(project_id, source_id,
// target_id, type) constraint backs the "one edge of each type per pair"
// invariant (spec.md §3 Link).
func (s *Store) InsertLink(ctx context.Context, l Link) (*Link, error) {
	if l.ID == "" {
		l.ID = idgen.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (id, project_id, source_id, target_id, type, provenance, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ProjectID, l.SourceID, l.TargetID, string(l.Type), string(l.Provenance), l.Confidence, l.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, classify("store.InsertLink", err)
	}
	return &l, nil
}

// DeleteLink removes a single link edge by id.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM links WHERE id = ?", id)
	if err != nil {
		return classify("store.DeleteLink", err)
	}
	return checkRowsAffected("store.DeleteLink", res)
}

// ListLinksForMemory returns every link where memoryID is either endpoint,
// used when rewriting a memory's fold-tree "Related" footer.
func (s *Store) ListLinksForMemory(ctx context.Context, memoryID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+linkSelectCols+" FROM links WHERE source_id = ? OR target_id = ? ORDER BY created_at", memoryID, memoryID)
	if err != nil {
		return nil, classify("store.ListLinksForMemory", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// ListLinksByType returns links of a given type within a project.
func (s *Store) ListLinksByType(ctx context.Context, projectID string, t LinkType) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+linkSelectCols+" FROM links WHERE project_id = ? AND type = ? ORDER BY created_at", projectID, string(t))
	if err != nil {
		return nil, classify("store.ListLinksByType", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]Link, error) {
	var out []Link
	for rows.Next() {
		var l Link
		var typ, provenance string
		var created int64
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.SourceID, &l.TargetID, &typ, &provenance, &l.Confidence, &created); err != nil {
			return nil, classify("store.scanLinks", err)
		}
		l.Type = LinkType(typ)
		l.Provenance = LinkProvenance(provenance)
		l.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, l)
	}
	return out, classify("store.scanLinks", rows.Err())
}
