package repo

import (
	"context"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/vo"
)

// JobRepository is the Registry port: the single authority on Job state
// transitions. Implementations must serialize writes per job_id so readers
// never observe a partially-updated record.
type JobRepository interface {
	// Create persists a newly constructed Job and enqueues it for pickup.
	Create(ctx context.Context, job *entity.Job) error
	// Get returns an immutable snapshot of the job, or entity.ErrJobNotFound.
	Get(ctx context.Context, jobID string) (entity.JobSnapshot, error)
	// Mutate runs fn against the live Job under the job's lock and persists
	// any change fn makes. fn returning an error aborts the mutation.
	Mutate(ctx context.Context, jobID string, fn func(job *entity.Job) error) error
	// Retry requires the referenced job to be terminal, then creates and
	// enqueues a brand-new Job sharing its source reference; its options are
	// optionsOverride when non-nil, else the original job's. Returns entity.ErrJobNotFound
	// or entity.ErrJobNotRetryable for a non-terminal job.
	Retry(ctx context.Context, jobID string, optionsOverride *vo.Options) (entity.JobSnapshot, error)
	// Dequeue blocks until a queued job is available for a worker to claim,
	// or ctx is done.
	Dequeue(ctx context.Context) (*entity.Job, error)
}
