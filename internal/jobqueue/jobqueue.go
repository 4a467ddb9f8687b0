// Package jobqueue implements C11 on top of the metadata store's job
// tables (C1 already carries the atomic claim transaction, retry/backoff
// scheduling, and stale-lease reclaim — see internal/store/jobs.go). This
// package adds the parts spec.md §4.11 assigns to "the job queue" that are
// about observability rather than storage: progress reporting and log
// append both publish on the event bus (C4) so a worker's progress is
// visible to MCP subscribers without polling the database. Every JobType
// is submitted through the one generic Enqueue.
package jobqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/idgen"
	"github.com/ferg-cod3s/fold/internal/store"
)

// Queue wraps the metadata store's job tables with event-bus publication.
type Queue struct {
	store *store.Store
	bus   *eventbus.Bus
}

// New creates a Queue.
func New(s *store.Store, bus *eventbus.Bus) *Queue {
	return &Queue{store: s, bus: bus}
}

// EnqueueInput describes a new job submission.
type EnqueueInput struct {
	Type      store.JobType
	ProjectID string
	Priority  int
	Total     int
}

// Enqueue inserts a new pending job and publishes job:queued.
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*store.Job, error) {
	now := time.Now().UTC()
	j := store.Job{
		ID: idgen.New(), Type: in.Type, Status: store.JobPending, Priority: in.Priority,
		ProjectID: in.ProjectID, Total: in.Total, ScheduledAt: now, CreatedAt: now,
	}
	if err := q.store.InsertJob(ctx, j); err != nil {
		return nil, err
	}
	q.publish(eventbus.KindJobQueued, in.ProjectID, j)
	return &j, nil
}

// Claim atomically claims the next eligible job for owner and publishes
// job:started.
func (q *Queue) Claim(ctx context.Context, owner string) (*store.Job, error) {
	j, err := q.store.ClaimNextJob(ctx, owner)
	if err != nil {
		return nil, err
	}
	if j != nil {
		q.publish(eventbus.KindJobStarted, j.ProjectID, j)
	}
	return j, nil
}

// ReportProgress updates processed/failed counters, renews the lease, and
// publishes job:progress.
func (q *Queue) ReportProgress(ctx context.Context, job store.Job, owner string, processed, failed int) error {
	if err := q.store.UpdateJobProgress(ctx, job.ID, processed, failed); err != nil {
		return err
	}
	if err := q.store.RenewLease(ctx, job.ID, owner); err != nil {
		return err
	}
	q.publish(eventbus.KindJobProgress, job.ProjectID, map[string]interface{}{
		"job_id": job.ID, "processed": processed, "failed": failed, "total": job.Total,
	})
	return nil
}

// AppendLog inserts a log row and publishes job:log, as spec.md §4.11
// requires ("inserts a log row and publishes a job:log event").
func (q *Queue) AppendLog(ctx context.Context, jobID, level, message string, metadata map[string]interface{}) error {
	metaJSON := "{}"
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err == nil {
			metaJSON = string(b)
		}
	}
	l := store.JobLog{JobID: jobID, Level: level, Message: message, Metadata: metaJSON, CreatedAt: time.Now().UTC()}
	if err := q.store.AppendJobLog(ctx, l); err != nil {
		return err
	}
	q.publish(eventbus.KindJobLog, "", map[string]interface{}{
		"job_id": jobID, "level": level, "message": message, "metadata": metadata,
	})
	return nil
}

// Complete marks a job completed and publishes job:completed.
func (q *Queue) Complete(ctx context.Context, job store.Job, resultJSON string) error {
	if err := q.store.CompleteJob(ctx, job.ID, resultJSON); err != nil {
		return err
	}
	q.publish(eventbus.KindJobCompleted, job.ProjectID, job.ID)
	return nil
}

// Fail marks a job failed, scheduling a retry if attempts remain, and
// publishes job:failed either way.
func (q *Queue) Fail(ctx context.Context, job store.Job, errMsg string, maxRetries int) error {
	if err := q.store.FailJob(ctx, job.ID, errMsg); err != nil {
		return err
	}
	if job.RetryCount < maxRetries {
		if err := q.store.RetryJob(ctx, job.ID); err != nil {
			return err
		}
	}
	q.publish(eventbus.KindJobFailed, job.ProjectID, map[string]interface{}{"job_id": job.ID, "error": errMsg})
	return nil
}

// ReclaimStale reclaims jobs whose lease has expired, as a periodic
// maintenance sweep the worker (C12) runs alongside its poll loop.
func (q *Queue) ReclaimStale(ctx context.Context) (int64, error) {
	return q.store.ReclaimStaleJobs(ctx)
}

func (q *Queue) publish(kind eventbus.Kind, projectID string, payload interface{}) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(eventbus.Event{Kind: kind, ProjectID: projectID, Payload: payload, At: time.Now().UTC()})
}
