package store

import (
	"context"
	"testing"
	"time"

	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/idgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store) Project {
	t.Helper()
	p := Project{ID: idgen.New(), Slug: "acme", Name: "Acme", RootPath: "/repo"}
	require.NoError(t, s.InsertProject(context.Background(), p))
	return p
}

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	got, err := s.GetProjectBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.False(t, got.AutoCommit)

	got.Name = "Acme Corp"
	got.AutoCommit = true
	require.NoError(t, s.UpdateProject(ctx, *got))

	updated, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Name)
	assert.True(t, updated.AutoCommit)

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ferrors.ErrNotFound)
}

func TestMemoryUpsertPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	id := idgen.DeterministicMemoryID("acme", "src/main.go")
	m := Memory{
		ID: id, ProjectID: p.ID, Kind: KindCodebase, Source: SourceFile,
		Title: "main.go", FilePath: "src/main.go", Body: "package main",
		ContentHash: "abc123",
	}
	require.NoError(t, s.InsertMemory(ctx, m))

	first, err := s.GetMemory(ctx, id)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	m.Title = "main.go (renamed)"
	m.ContentHash = "def456"
	require.NoError(t, s.UpsertMemory(ctx, m))

	second, err := s.GetMemory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "main.go (renamed)", second.Title)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
}

func TestMemoryCascadesOnProjectDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	id := idgen.DeterministicMemoryID("acme", "a.go")
	require.NoError(t, s.InsertMemory(ctx, Memory{
		ID: id, ProjectID: p.ID, Kind: KindCodebase, Source: SourceFile, FilePath: "a.go", ContentHash: "x",
	}))

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err := s.GetMemory(ctx, id)
	assert.ErrorIs(t, err, ferrors.ErrNotFound)
}

func TestLinkUniqueConstraint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	src := idgen.DeterministicMemoryID("acme", "a.go")
	dst := idgen.DeterministicMemoryID("acme", "b.go")
	for _, id := range []string{src, dst} {
		require.NoError(t, s.InsertMemory(ctx, Memory{
			ID: id, ProjectID: p.ID, Kind: KindCodebase, Source: SourceFile, FilePath: id, ContentHash: "x",
		}))
	}

	_, err := s.InsertLink(ctx, Link{ProjectID: p.ID, SourceID: src, TargetID: dst, Type: LinkReferences, Provenance: ProvenanceSystem, Confidence: 1})
	require.NoError(t, err)

	_, err = s.InsertLink(ctx, Link{ProjectID: p.ID, SourceID: src, TargetID: dst, Type: LinkReferences, Provenance: ProvenanceSystem, Confidence: 1})
	assert.ErrorIs(t, err, ferrors.ErrConflict)
}

func TestJobClaimIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	jobID := idgen.New()
	require.NoError(t, s.InsertJob(ctx, Job{ID: jobID, Type: JobIndexRepo, Priority: 5}))

	claimed, err := s.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, jobID, claimed.ID)
	assert.Equal(t, JobRunning, claimed.Status)
	assert.Equal(t, "worker-1", claimed.LeaseOwner)

	_, err = s.ClaimNextJob(ctx, "worker-2")
	assert.ErrorIs(t, err, ferrors.ErrNotFound)
}

func TestJobPriorityOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := idgen.New()
	high := idgen.New()
	require.NoError(t, s.InsertJob(ctx, Job{ID: low, Type: JobIndexRepo, Priority: 1}))
	require.NoError(t, s.InsertJob(ctx, Job{ID: high, Type: JobIndexRepo, Priority: 9}))

	claimed, err := s.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, high, claimed.ID)
}

func TestJobRetryBackoffSchedule(t *testing.T) {
	assert.Equal(t, 60*time.Second, NextBackoff(0))
	assert.Equal(t, 120*time.Second, NextBackoff(1))
	assert.Equal(t, 240*time.Second, NextBackoff(2))
	assert.Equal(t, time.Hour, NextBackoff(10))
}

func TestReclaimStaleJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	jobID := idgen.New()
	require.NoError(t, s.InsertJob(ctx, Job{ID: jobID, Type: JobIndexRepo}))
	_, err := s.ClaimNextJob(ctx, "worker-1")
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute)
	_, execErr := s.db.ExecContext(ctx, "UPDATE jobs SET lease_expires = ? WHERE id = ?", expired.Unix(), jobID)
	require.NoError(t, execErr)

	n, err := s.ReclaimStaleJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	j, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobPending, j.Status)
}

func TestProviderRedactedHidesCredentials(t *testing.T) {
	p := Provider{Kind: ProviderLLM, Name: "openai", APIKey: "sk-secret"}
	r := p.Redacted()
	assert.Empty(t, r.APIKey)
	assert.True(t, p.HasCredential())
}

func TestProviderCircuitTripsAfterThreeFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.InsertProvider(ctx, Provider{Kind: ProviderLLM, Name: "openai", APIKey: "sk-x", Enabled: true})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordProviderFailure(ctx, p.ID, "timeout"))
	}

	got, err := s.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ConsecutiveErrs)

	require.NoError(t, s.RecordProviderSuccess(ctx, p.ID))
	got, err = s.GetProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ConsecutiveErrs)
}
