// Package worker is the job worker (C12): a small cooperative pool that
// polls the job queue, dispatches claimed jobs to the indexer by type,
// keeps each job's lease alive, translates per-file failures into
// progress counters, and pauses a job (event-only, no persistent state
// change) when its provider has gone down mid-run.
package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/gitsource"
	"github.com/ferg-cod3s/fold/internal/indexer"
	"github.com/ferg-cod3s/fold/internal/jobqueue"
	"github.com/ferg-cod3s/fold/internal/llmprovider"
	"github.com/ferg-cod3s/fold/internal/observability"
	"github.com/ferg-cod3s/fold/internal/store"
)

// leaseTimeout mirrors store.jobs.go's LOCK_TIMEOUT; kept alive here too
// since the worker's keep-alive cadence is derived from it (spec.md §4.12:
// "renews the lease every LOCK_TIMEOUT/3").
const leaseTimeout = 300 * time.Second

// healthCheckInterval is spec.md §4.5's HEALTH_CHECK_INTERVAL, reused by
// the worker as its provider-down re-probe sleep (spec.md §4.12).
const healthCheckInterval = 60 * time.Second

// pollInterval bounds how often an idle worker asks the queue for work.
const pollInterval = 2 * time.Second

// Pool runs Concurrency workers, each polling jobqueue.Claim in a loop.
type Pool struct {
	store       *store.Store
	queue       *jobqueue.Queue
	pipeline    *indexer.Pipeline
	gitsource   *gitsource.Source
	llm         *llmprovider.Chain
	embedder    embedding.Embedder
	bus         *eventbus.Bus
	errHandler  *observability.ErrorHandler // nil disables Sentry/metrics reporting of job failures
	ownerPrefix string
	concurrency int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config wires the Pool's dependencies.
type Config struct {
	Store       *store.Store
	Queue       *jobqueue.Queue
	Pipeline    *indexer.Pipeline
	GitSource   *gitsource.Source // nil disables index_history jobs
	LLM         *llmprovider.Chain
	Embedder    embedding.Embedder
	Bus         *eventbus.Bus
	ErrHandler  *observability.ErrorHandler // nil disables Sentry/metrics reporting of job failures
	OwnerPrefix string                      // identifies this process in job leases, e.g. hostname:pid
	Concurrency int                         // number of cooperative workers; default 1
}

// New creates a worker pool from cfg.
func New(cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.OwnerPrefix == "" {
		cfg.OwnerPrefix = "fold-worker"
	}
	return &Pool{
		store:       cfg.Store,
		queue:       cfg.Queue,
		pipeline:    cfg.Pipeline,
		gitsource:   cfg.GitSource,
		llm:         cfg.LLM,
		embedder:    cfg.Embedder,
		bus:         cfg.Bus,
		errHandler:  cfg.ErrHandler,
		ownerPrefix: cfg.OwnerPrefix,
		concurrency: cfg.Concurrency,
	}
}

// Start launches the pool's workers in the background. Call Stop to
// cancel them and wait for in-flight jobs to reach a cooperative point.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		owner := p.ownerPrefix
		if p.concurrency > 1 {
			owner = owner + "-" + strconv.Itoa(i)
		}
		go p.run(runCtx, owner)
	}

	p.wg.Add(1)
	go p.reclaimLoop(runCtx)
}

// reclaimLoop periodically reclaims jobs whose lease has gone stale, so
// a crashed worker's jobs return to pending without waiting for another
// worker's claim attempt to trigger it incidentally.
func (p *Pool) reclaimLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(leaseTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.queue.ReclaimStale(ctx)
		}
	}
}

// Stop cancels every worker and blocks until they exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, owner string) {
	defer p.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := p.queue.Claim(ctx, owner)
			if err != nil || job == nil {
				continue
			}
			p.execute(ctx, owner, *job)
		}
	}
}

// execute runs one claimed job to completion, keeping its lease alive
// and pausing on provider outages, per spec.md §4.12.
func (p *Pool) execute(ctx context.Context, owner string, job store.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	leaseDone := make(chan struct{})
	go p.keepAlive(jobCtx, owner, job, leaseDone)
	defer close(leaseDone)

	switch job.Type {
	case store.JobIndexRepo, store.JobReindexRepo:
		p.runIndex(jobCtx, owner, job)
	case store.JobIndexHistory:
		p.runHistory(jobCtx, owner, job)
	case store.JobSyncMetadata:
		// Metadata sync dispatches through the same indexer pipeline as a
		// full index run; there is no separate metadata-only path yet.
		p.runIndex(jobCtx, owner, job)
	default:
		_ = p.queue.Fail(ctx, job, "unknown job type: "+string(job.Type), 0)
	}
}

// runHistory dispatches an index_history job to gitsource, which has no
// provider-outage pause path of its own (commit ingestion only calls an
// LLM-free, optionally-unauthenticated GitHub API), so it runs to
// completion in one pass.
func (p *Pool) runHistory(ctx context.Context, owner string, job store.Job) {
	if p.gitsource == nil {
		_ = p.queue.Fail(ctx, job, "index_history is disabled: no git source configured", 0)
		return
	}
	project, err := p.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		p.reportFailure(ctx, job, "worker.runHistory", err)
		_ = p.queue.Fail(ctx, job, err.Error(), defaultMaxRetries)
		return
	}

	result, err := p.gitsource.IndexHistory(ctx, *project, func(completed, total int) {
		_ = p.queue.ReportProgress(ctx, job, owner, completed, total-completed)
	})
	if err != nil {
		p.reportFailure(ctx, job, "worker.runHistory", err)
		_ = p.queue.Fail(ctx, job, err.Error(), defaultMaxRetries)
		return
	}

	_ = p.queue.ReportProgress(ctx, job, owner, result.Indexed, result.Errors)
	if result.Errors > 0 && result.Indexed == 0 {
		_ = p.queue.Fail(ctx, job, "every commit in the run failed", defaultMaxRetries)
		return
	}
	_ = p.queue.Complete(ctx, job, historyResultJSON(result))
}

// keepAlive renews job's lease every LOCK_TIMEOUT/3 until done is closed,
// matching spec.md §4.12's renewal cadence.
func (p *Pool) keepAlive(ctx context.Context, owner string, job store.Job, done <-chan struct{}) {
	ticker := time.NewTicker(leaseTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.queue.ReportProgress(ctx, job, owner, job.Processed, job.Failed)
		}
	}
}

// runIndex dispatches an index_repo/reindex_repo job to the indexer
// pipeline, pausing (event-only) on provider outage and reporting
// completion or failure via the job queue on exit.
func (p *Pool) runIndex(ctx context.Context, owner string, job store.Job) {
	project, err := p.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		p.reportFailure(ctx, job, "worker.runIndex", err)
		_ = p.queue.Fail(ctx, job, err.Error(), defaultMaxRetries)
		return
	}

	for {
		if down, pauseErr := p.providersDown(ctx); pauseErr == nil && down {
			p.publishPause(job)
			select {
			case <-ctx.Done():
				return
			case <-time.After(healthCheckInterval):
			}
			continue
		}

		result, err := p.pipeline.IndexProject(ctx, *project, owner, func(completed, total int, path string) {
			_ = p.queue.ReportProgress(ctx, job, owner, completed, total-completed)
		})
		if err != nil {
			if kind, ok := ferrors.KindOf(err); ok && kind == ferrors.ProviderExhausted {
				p.publishPause(job)
				select {
				case <-ctx.Done():
					return
				case <-time.After(healthCheckInterval):
				}
				continue
			}
			p.reportFailure(ctx, job, "worker.runIndex", err)
			_ = p.queue.Fail(ctx, job, err.Error(), defaultMaxRetries)
			return
		}

		_ = p.queue.ReportProgress(ctx, job, owner, result.Indexed+result.Skipped, result.Errors)
		if result.Errors > 0 && result.Indexed == 0 && result.Skipped == 0 {
			_ = p.queue.Fail(ctx, job, "every file in the run failed", defaultMaxRetries)
			return
		}
		_ = p.queue.Complete(ctx, job, resultJSON(result))
		return
	}
}

// defaultMaxRetries bounds how many times a failed index job is
// rescheduled before it is left in the failed state for an operator.
const defaultMaxRetries = 5

// providersDown reports whether the LLM chain or the embedder's
// provider chain is fully circuit-open, the worker's signal to pause
// rather than burn through per-file retries (spec.md §4.12).
func (p *Pool) providersDown(ctx context.Context) (bool, error) {
	if p.llm != nil {
		down, err := p.llm.AllDown(ctx)
		if err != nil {
			return false, err
		}
		if down {
			return true, nil
		}
	}
	if fe, ok := p.embedder.(interface {
		AllDown(ctx context.Context) (bool, error)
	}); ok {
		return fe.AllDown(ctx)
	}
	return false, nil
}

// reportFailure logs a terminal job failure through the error handler,
// when one is configured, so it reaches Sentry/metrics the same way an
// MCP-surfaced error would.
func (p *Pool) reportFailure(ctx context.Context, job store.Job, jobType string, err error) {
	if p.errHandler == nil || err == nil {
		return
	}
	p.errHandler.HandleError(ctx, err, observability.ErrorContext{
		Method:    jobType,
		ErrorType: "job_failure",
		Extra:     map[string]interface{}{"job_id": job.ID, "project_id": job.ProjectID},
	})
}

func (p *Pool) publishPause(job store.Job) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{
		Kind:      eventbus.KindProviderDown,
		ProjectID: job.ProjectID,
		Payload:   map[string]interface{}{"job_id": job.ID},
	})
}

func resultJSON(r indexer.IndexProjectResult) string {
	b, err := json.Marshal(map[string]interface{}{
		"total":   r.Total,
		"indexed": r.Indexed,
		"skipped": r.Skipped,
		"errors":  r.Errors,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}

func historyResultJSON(r gitsource.Result) string {
	b, err := json.Marshal(map[string]interface{}{
		"total":   r.Total,
		"indexed": r.Indexed,
		"errors":  r.Errors,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}
