package entity

import (
	"time"

	"github.com/google/uuid"

	"clipforge/ddd/domain/vo"
)

// Job is the mutable entity the Registry owns. After it transitions out of
// queued, only the owning Worker may write to it (enforced by the
// single-writer discipline in the infrastructure registry, not here).
type Job struct {
	jobID     string
	traceID   string
	request   JobRequest
	status    vo.JobStatus
	progress  float64
	stage     vo.Stage
	message   string
	outputs   []ClipOutput
	err       *JobError
	createdAt time.Time
	updatedAt time.Time
}

// NewJob creates a Job in status=queued, progress=0.0 for an already
// validated-and-defaulted request.
func NewJob(request JobRequest) *Job {
	now := time.Now()
	return &Job{
		jobID:     uuid.New().String(),
		traceID:   uuid.New().String(),
		request:   request,
		status:    vo.JobStatusQueued,
		progress:  0.0,
		outputs:   make([]ClipOutput, 0),
		createdAt: now,
		updatedAt: now,
	}
}

// Getters
func (j *Job) JobID() string            { return j.jobID }
func (j *Job) TraceID() string          { return j.traceID }
func (j *Job) Request() JobRequest      { return j.request }
func (j *Job) Status() vo.JobStatus     { return j.status }
func (j *Job) Progress() float64        { return j.progress }
func (j *Job) Stage() vo.Stage          { return j.stage }
func (j *Job) Message() string          { return j.message }
func (j *Job) Outputs() []ClipOutput    { return j.outputs }
func (j *Job) Err() *JobError           { return j.err }
func (j *Job) CreatedAt() time.Time     { return j.createdAt }
func (j *Job) UpdatedAt() time.Time     { return j.updatedAt }

// Dispatch transitions queued -> running when a Worker slot is acquired.
func (j *Job) Dispatch() error {
	if !j.status.CanTransitionTo(vo.JobStatusRunning) {
		return NewDomainError("cannot dispatch job in status " + j.status.String())
	}
	j.status = vo.JobStatusRunning
	j.updatedAt = time.Now()
	return nil
}

// ApplyProgress publishes a stage-tagged progress breakpoint. progress
// must be monotonically non-decreasing and the Job must be running.
func (j *Job) ApplyProgress(stage vo.Stage, progress float64, message string) error {
	if j.status != vo.JobStatusRunning {
		return NewDomainError("cannot update progress for job in status " + j.status.String())
	}
	if progress < j.progress {
		return NewDomainError("progress must not decrease")
	}
	if progress < 0 || progress > 1.0 {
		return NewDomainError("progress must be within [0,1]")
	}
	j.stage = stage
	j.progress = progress
	if message != "" {
		j.message = message
	}
	j.updatedAt = time.Now()
	return nil
}

// Complete transitions running -> done, records outputs, and pins
// progress at 1.0.
func (j *Job) Complete(outputs []ClipOutput, message string) error {
	if !j.status.CanTransitionTo(vo.JobStatusDone) {
		return NewDomainError("cannot complete job in status " + j.status.String())
	}
	j.status = vo.JobStatusDone
	j.stage = vo.StageDone
	j.progress = 1.0
	j.outputs = outputs
	j.message = message
	j.updatedAt = time.Now()
	return nil
}

// Fail transitions queued or running -> failed with a classified error.
func (j *Job) Fail(jobErr *JobError) error {
	if !j.status.CanTransitionTo(vo.JobStatusFailed) {
		return NewDomainError("cannot fail job in status " + j.status.String())
	}
	j.status = vo.JobStatusFailed
	j.err = jobErr
	j.updatedAt = time.Now()
	return nil
}

// NewRetryJob builds the fresh Job a retry operation produces: same source
// reference, the original options or, when optionsOverride is non-nil, that
// override in their place (no field-by-field merge), and a brand-new
// job_id/trace_id. The original job
// record is left untouched (terminal state is sticky, spec.md §3).
func NewRetryJob(original JobRequest, optionsOverride *vo.Options) *Job {
	req := original
	if optionsOverride != nil {
		req.Options = *optionsOverride
	}
	return NewJob(req)
}

// JobSnapshot is the immutable, JSON-serializable view Registry.Get
// returns: never a partially-updated record.
type JobSnapshot struct {
	JobID     string       `json:"job_id"`
	TraceID   string       `json:"trace_id"`
	Status    vo.JobStatus `json:"status"`
	Progress  float64      `json:"progress"`
	Stage     vo.Stage     `json:"stage,omitempty"`
	Message   string       `json:"message,omitempty"`
	Outputs   []ClipOutput `json:"outputs"`
	Error     *JobError    `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Snapshot copies the Job's current state into an immutable value,
// including a copy of the outputs slice so callers can't mutate it.
func (j *Job) Snapshot() JobSnapshot {
	outputs := make([]ClipOutput, len(j.outputs))
	copy(outputs, j.outputs)
	return JobSnapshot{
		JobID:     j.jobID,
		TraceID:   j.traceID,
		Status:    j.status,
		Progress:  j.progress,
		Stage:     j.stage,
		Message:   j.message,
		Outputs:   outputs,
		Error:     j.err,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
}
