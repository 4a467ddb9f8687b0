package store

import (
	"context"
	"database/sql"
	"time"
)

// LeaseTimeout is how long a claimed job may run before its lease is
// considered stale and eligible for reclaim by another worker (spec.md
// §5 "LOCK_TIMEOUT").
const LeaseTimeout = 300 * time.Second

const jobSelectCols = "id, type, status, priority, project_id, total, processed, failed, lease_owner, lease_expires, retry_count, scheduled_at, created_at, started_at, finished_at, result, error"

// InsertJob enqueues a new job in the pending state.
func (s *Store) InsertJob(ctx context.Context, j Job) error {
	now := time.Now()
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = now
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, priority, project_id, total, processed, failed, lease_owner, lease_expires,
			retry_count, scheduled_at, created_at, started_at, finished_at, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Type), string(j.Status), j.Priority, nullIfEmpty(j.ProjectID), j.Total, j.Processed, j.Failed,
		nullIfEmpty(j.LeaseOwner), unixOrNil(j.LeaseExpires), j.RetryCount, j.ScheduledAt.Unix(), j.CreatedAt.Unix(),
		unixOrNil(j.StartedAt), unixOrNil(j.FinishedAt), nullIfEmpty(j.Result), nullIfEmpty(j.Error),
	)
	return classify("store.InsertJob", err)
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobSelectCols+" FROM jobs WHERE id = ?", id)
	return scanJob(row)
}

// ClaimNextJob atomically selects the highest-priority pending job whose
// scheduled_at has arrived (oldest created_at breaks ties), marks it running
// under the given owner's lease, and returns it. Runs inside a single
// transaction so two workers can never claim the same job (spec.md §4.11
// "claim protocol").
func (s *Store) ClaimNextJob(ctx context.Context, owner string) (*Job, error) {
	var claimed *Job
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		row := tx.QueryRowContext(ctx, `
			SELECT `+jobSelectCols+` FROM jobs
			WHERE status = ? AND scheduled_at <= ?
			ORDER BY priority DESC, created_at ASC
			LIMIT 1`,
			string(JobPending), now.Unix(),
		)
		j, err := scanJob(row)
		if err != nil {
			return err
		}
		leaseExpires := now.Add(LeaseTimeout)
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, lease_owner = ?, lease_expires = ?, started_at = ?
			WHERE id = ? AND status = ?`,
			string(JobRunning), owner, leaseExpires.Unix(), now.Unix(), j.ID, string(JobPending),
		)
		if err != nil {
			return classify("store.ClaimNextJob", err)
		}
		if err := checkRowsAffected("store.ClaimNextJob", res); err != nil {
			return err
		}
		j.Status = JobRunning
		j.LeaseOwner = owner
		j.LeaseExpires = &leaseExpires
		j.StartedAt = &now
		claimed = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReclaimStaleJobs resets any running job whose lease has expired back to
// pending, so another worker can pick it up (spec.md §5 stale-lease
// reclaim). Returns the number of jobs reclaimed.
func (s *Store) ReclaimStaleJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, lease_owner = NULL, lease_expires = NULL
		WHERE status = ? AND lease_expires IS NOT NULL AND lease_expires < ?`,
		string(JobPending), string(JobRunning), time.Now().Unix(),
	)
	if err != nil {
		return 0, classify("store.ReclaimStaleJobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("store.ReclaimStaleJobs", err)
	}
	return n, nil
}

// RenewLease extends a running job's lease, called periodically by the
// worker holding it as a keep-alive (spec.md §5 "lease-renewal").
func (s *Store) RenewLease(ctx context.Context, jobID, owner string) error {
	leaseExpires := time.Now().Add(LeaseTimeout)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET lease_expires = ? WHERE id = ? AND lease_owner = ? AND status = ?`,
		leaseExpires.Unix(), jobID, owner, string(JobRunning),
	)
	if err != nil {
		return classify("store.RenewLease", err)
	}
	return checkRowsAffected("store.RenewLease", res)
}

// NextBackoff computes the retry delay for a given attempt count:
// min(3600s, 60s * 2^attempt) (spec.md §4.11 retry schedule).
func NextBackoff(attempt int) time.Duration {
	d := 60 * time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}

// RetryJob reverts a failed job to pending with an incremented retry count
// and a scheduled_at pushed out by the exponential backoff schedule.
func (s *Store) RetryJob(ctx context.Context, jobID string) error {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	retryCount := j.RetryCount + 1
	scheduledAt := time.Now().Add(NextBackoff(retryCount))
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, lease_owner = NULL, lease_expires = NULL, retry_count = ?, scheduled_at = ?
		WHERE id = ?`,
		string(JobPending), retryCount, scheduledAt.Unix(), jobID,
	)
	if err != nil {
		return classify("store.RetryJob", err)
	}
	return checkRowsAffected("store.RetryJob", res)
}

// CompleteJob marks a job completed with its result payload.
func (s *Store) CompleteJob(ctx context.Context, jobID, result string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = ?, finished_at = ?, lease_owner = NULL, lease_expires = NULL
		WHERE id = ?`,
		string(JobCompleted), result, time.Now().Unix(), jobID,
	)
	if err != nil {
		return classify("store.CompleteJob", err)
	}
	return checkRowsAffected("store.CompleteJob", res)
}

// FailJob marks a job failed and records its error; RetryJob may later move
// it back to pending.
func (s *Store) FailJob(ctx context.Context, jobID, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, finished_at = ?, lease_owner = NULL, lease_expires = NULL
		WHERE id = ?`,
		string(JobFailed), errMsg, time.Now().Unix(), jobID,
	)
	if err != nil {
		return classify("store.FailJob", err)
	}
	return checkRowsAffected("store.FailJob", res)
}

// UpdateJobProgress bumps processed/failed counters for a running job,
// called from report_progress (spec.md §4.11).
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, processed, failed int) error {
	res, err := s.db.ExecContext(ctx, "UPDATE jobs SET processed = ?, failed = ? WHERE id = ?", processed, failed, jobID)
	if err != nil {
		return classify("store.UpdateJobProgress", err)
	}
	return checkRowsAffected("store.UpdateJobProgress", res)
}

// ListJobs returns jobs for a project (or all projects if projectID is
// empty), most recent first.
func (s *Store) ListJobs(ctx context.Context, projectID string, status JobStatus) ([]Job, error) {
	query := "SELECT " + jobSelectCols + " FROM jobs WHERE 1=1"
	var args []interface{}
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("store.ListJobs", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, classify("store.ListJobs", err)
		}
		out = append(out, *j)
	}
	return out, classify("store.ListJobs", rows.Err())
}

// AppendJobLog records one audit line for a job, used by append_log
// (spec.md §4.11) which also publishes a job:log event.
func (s *Store) AppendJobLog(ctx context.Context, l JobLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO job_logs (job_id, level, message, metadata, created_at) VALUES (?, ?, ?, ?, ?)",
		l.JobID, l.Level, l.Message, nullIfEmpty(l.Metadata), l.CreatedAt.Unix(),
	)
	return classify("store.AppendJobLog", err)
}

// ListJobLogs returns the audit trail for a job in chronological order.
func (s *Store) ListJobLogs(ctx context.Context, jobID string) ([]JobLog, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, job_id, level, message, metadata, created_at FROM job_logs WHERE job_id = ? ORDER BY id", jobID)
	if err != nil {
		return nil, classify("store.ListJobLogs", err)
	}
	defer rows.Close()

	var out []JobLog
	for rows.Next() {
		var l JobLog
		var metadata sql.NullString
		var created int64
		if err := rows.Scan(&l.ID, &l.JobID, &l.Level, &l.Message, &metadata, &created); err != nil {
			return nil, classify("store.ListJobLogs", err)
		}
		l.Metadata = metadata.String
		l.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, l)
	}
	return out, classify("store.ListJobLogs", rows.Err())
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var typ, status string
	var projectID, leaseOwner, result, errMsg sql.NullString
	var leaseExpires, startedAt, finishedAt sql.NullInt64
	var scheduledAt, createdAt int64

	err := row.Scan(&j.ID, &typ, &status, &j.Priority, &projectID, &j.Total, &j.Processed, &j.Failed,
		&leaseOwner, &leaseExpires, &j.RetryCount, &scheduledAt, &createdAt, &startedAt, &finishedAt, &result, &errMsg)
	if err != nil {
		return nil, classify("store.scanJob", err)
	}
	j.Type = JobType(typ)
	j.Status = JobStatus(status)
	j.ProjectID = projectID.String
	j.LeaseOwner = leaseOwner.String
	j.LeaseExpires = timePtrFromNull(leaseExpires)
	j.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	j.StartedAt = timePtrFromNull(startedAt)
	j.FinishedAt = timePtrFromNull(finishedAt)
	j.Result = result.String
	j.Error = errMsg.String
	return &j, nil
}

func scanJobRows(rows *sql.Rows) (*Job, error) {
	var j Job
	var typ, status string
	var projectID, leaseOwner, result, errMsg sql.NullString
	var leaseExpires, startedAt, finishedAt sql.NullInt64
	var scheduledAt, createdAt int64

	err := rows.Scan(&j.ID, &typ, &status, &j.Priority, &projectID, &j.Total, &j.Processed, &j.Failed,
		&leaseOwner, &leaseExpires, &j.RetryCount, &scheduledAt, &createdAt, &startedAt, &finishedAt, &result, &errMsg)
	if err != nil {
		return nil, err
	}
	j.Type = JobType(typ)
	j.Status = JobStatus(status)
	j.ProjectID = projectID.String
	j.LeaseOwner = leaseOwner.String
	j.LeaseExpires = timePtrFromNull(leaseExpires)
	j.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	j.StartedAt = timePtrFromNull(startedAt)
	j.FinishedAt = timePtrFromNull(finishedAt)
	j.Result = result.String
	j.Error = errMsg.String
	return &j, nil
}
