package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ferg-cod3s/fold/internal/idgen"
)

const providerSelectCols = "id, kind, name, endpoint, model, priority, api_key, oauth_token, enabled, last_used, consecutive_errs, last_error, last_error_at, usage_count, created_at, updated_at"

// InsertProvider registers a new LLM or embedding provider.
func (s *Store) InsertProvider(ctx context.Context, p Provider) (*Provider, error) {
	if p.ID == "" {
		p.ID = idgen.New()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (id, kind, name, endpoint, model, priority, api_key, oauth_token, enabled, last_used,
			consecutive_errs, last_error, last_error_at, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Kind), p.Name, p.Endpoint, p.Model, p.Priority, nullIfEmpty(p.APIKey), nullIfEmpty(p.OAuthToken),
		boolToInt(p.Enabled), unixOrNil(p.LastUsed), p.ConsecutiveErrs, nullIfEmpty(p.LastError), unixOrNil(p.LastErrorAt),
		p.UsageCount, p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, classify("store.InsertProvider", err)
	}
	return &p, nil
}

// ListProvidersByKind returns enabled-or-not providers of a kind ordered by
// priority ascending (lowest number tried first), the order the fallback
// chain in internal/llmprovider and internal/embedding walks.
func (s *Store) ListProvidersByKind(ctx context.Context, kind ProviderKind) ([]Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+providerSelectCols+" FROM providers WHERE kind = ? ORDER BY priority ASC", string(kind))
	if err != nil {
		return nil, classify("store.ListProvidersByKind", err)
	}
	defer rows.Close()
	return scanProviders(rows)
}

// GetProvider retrieves a provider by id, credentials included — callers
// serving this to anything outside the provider packages must call
// Provider.Redacted() first.
func (s *Store) GetProvider(ctx context.Context, id string) (*Provider, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+providerSelectCols+" FROM providers WHERE id = ?", id)
	var p Provider
	var kind string
	var enabled int
	var lastUsed, lastErrorAt sql.NullInt64
	var lastError sql.NullString
	var created, updated int64
	err := row.Scan(&p.ID, &kind, &p.Name, &p.Endpoint, &p.Model, &p.Priority, &p.APIKey, &p.OAuthToken, &enabled,
		&lastUsed, &p.ConsecutiveErrs, &lastError, &lastErrorAt, &p.UsageCount, &created, &updated)
	if err != nil {
		return nil, classify("store.GetProvider", err)
	}
	p.Kind = ProviderKind(kind)
	p.Enabled = enabled != 0
	p.LastUsed = timePtrFromNull(lastUsed)
	p.LastError = lastError.String
	p.LastErrorAt = timePtrFromNull(lastErrorAt)
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}

// RecordProviderSuccess resets the consecutive-error count (closing the
// circuit, spec.md §4.5/§4.6 "single success resets") and bumps usage.
func (s *Store) RecordProviderSuccess(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET consecutive_errs = 0, last_used = ?, usage_count = usage_count + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().Unix(), time.Now().Unix(), id,
	)
	if err != nil {
		return classify("store.RecordProviderSuccess", err)
	}
	return checkRowsAffected("store.RecordProviderSuccess", res)
}

// RecordProviderFailure increments the consecutive-error count and stores
// the last error, the signal the circuit breaker trips on after three in a
// row (spec.md §4.5/§4.6).
func (s *Store) RecordProviderFailure(ctx context.Context, id, errMsg string) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET consecutive_errs = consecutive_errs + 1, last_error = ?, last_error_at = ?, updated_at = ?
		WHERE id = ?`,
		errMsg, now, now, id,
	)
	if err != nil {
		return classify("store.RecordProviderFailure", err)
	}
	return checkRowsAffected("store.RecordProviderFailure", res)
}

// UpdateProvider overwrites a provider's configuration fields.
func (s *Store) UpdateProvider(ctx context.Context, p Provider) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET name = ?, endpoint = ?, model = ?, priority = ?, api_key = ?, oauth_token = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Endpoint, p.Model, p.Priority, nullIfEmpty(p.APIKey), nullIfEmpty(p.OAuthToken), boolToInt(p.Enabled),
		time.Now().Unix(), p.ID,
	)
	if err != nil {
		return classify("store.UpdateProvider", err)
	}
	return checkRowsAffected("store.UpdateProvider", res)
}

// DeleteProvider removes a provider configuration.
func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM providers WHERE id = ?", id)
	if err != nil {
		return classify("store.DeleteProvider", err)
	}
	return checkRowsAffected("store.DeleteProvider", res)
}

func scanProviders(rows *sql.Rows) ([]Provider, error) {
	var out []Provider
	for rows.Next() {
		var p Provider
		var kind string
		var enabled int
		var lastUsed, lastErrorAt sql.NullInt64
		var lastError sql.NullString
		var created, updated int64
		if err := rows.Scan(&p.ID, &kind, &p.Name, &p.Endpoint, &p.Model, &p.Priority, &p.APIKey, &p.OAuthToken, &enabled,
			&lastUsed, &p.ConsecutiveErrs, &lastError, &lastErrorAt, &p.UsageCount, &created, &updated); err != nil {
			return nil, classify("store.scanProviders", err)
		}
		p.Kind = ProviderKind(kind)
		p.Enabled = enabled != 0
		p.LastUsed = timePtrFromNull(lastUsed)
		p.LastError = lastError.String
		p.LastErrorAt = timePtrFromNull(lastErrorAt)
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, p)
	}
	return out, classify("store.scanProviders", rows.Err())
}
