// Package registry implements C6: the in-memory Job Registry, a
// sync.RWMutex-guarded map of job records each further guarded by its own
// lock, matching the teacher's per-job "single writer" discipline.
package registry

import (
	"context"
	"sync"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/repo"
	"clipforge/ddd/domain/vo"
	"clipforge/ddd/infrastructure/queue"
)

type jobRecord struct {
	mu  sync.Mutex
	job *entity.Job
}

// MemoryRegistry implements repo.JobRepository entirely in memory. It is
// the only thing Get and the Worker ever consult; any durable mirror
// (ddd/infrastructure/durablestore) is a read-only audit copy downstream
// of this type, never a second source of truth.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*jobRecord
	queue   *queue.JobQueue
}

func New(queueCapacity int) *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]*jobRecord),
		queue:   queue.New(queueCapacity),
	}
}

// Create persists job and enqueues it for dispatch, rejecting with
// errno.ErrQueueFull (via JobQueue.Enqueue) if MAX_QUEUE_DEPTH is exceeded.
// The record must be visible to lookup before the id reaches the queue: a
// Pool worker blocked in Dequeue can receive the id the instant it is
// enqueued, and if the map insert hasn't happened yet that worker's lookup
// returns nil with no way to re-enqueue the id, leaving the job stuck
// queued forever.
func (r *MemoryRegistry) Create(ctx context.Context, job *entity.Job) error {
	r.mu.Lock()
	r.records[job.JobID()] = &jobRecord{job: job}
	r.mu.Unlock()

	if err := r.queue.Enqueue(job.JobID()); err != nil {
		r.mu.Lock()
		delete(r.records, job.JobID())
		r.mu.Unlock()
		return err
	}
	return nil
}

// Get returns an immutable snapshot, or entity.ErrJobNotFound.
func (r *MemoryRegistry) Get(ctx context.Context, jobID string) (entity.JobSnapshot, error) {
	rec := r.lookup(jobID)
	if rec == nil {
		return entity.JobSnapshot{}, entity.ErrJobNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job.Snapshot(), nil
}

// Mutate runs fn against the job under its own lock, so readers of Get
// never observe a partially-updated record and no two Workers can race on
// the same job (spec.md §4.6's "atomic with respect to the job record").
func (r *MemoryRegistry) Mutate(ctx context.Context, jobID string, fn func(job *entity.Job) error) error {
	rec := r.lookup(jobID)
	if rec == nil {
		return entity.ErrJobNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return fn(rec.job)
}

// Retry requires the referenced job to be terminal, then creates and
// enqueues a brand-new Job sharing its source reference; its options are
// optionsOverride when non-nil, else the original job's.
func (r *MemoryRegistry) Retry(ctx context.Context, jobID string, optionsOverride *vo.Options) (entity.JobSnapshot, error) {
	rec := r.lookup(jobID)
	if rec == nil {
		return entity.JobSnapshot{}, entity.ErrJobNotFound
	}
	rec.mu.Lock()
	original := rec.job
	if !original.Status().IsTerminal() {
		rec.mu.Unlock()
		return entity.JobSnapshot{}, entity.ErrJobNotRetryable
	}
	request := original.Request()
	rec.mu.Unlock()

	retryJob := entity.NewRetryJob(request, optionsOverride)
	if err := r.Create(ctx, retryJob); err != nil {
		return entity.JobSnapshot{}, err
	}
	return retryJob.Snapshot(), nil
}

// Dequeue blocks until a queued job is available, transitions it to
// running, and returns the live Job so the Worker can read its immutable
// fields (JobID, TraceID, Request). Every subsequent state change must go
// through Mutate, not direct calls on the returned pointer, so Get never
// races a concurrent write.
func (r *MemoryRegistry) Dequeue(ctx context.Context) (*entity.Job, error) {
	jobID, err := r.queue.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	rec := r.lookup(jobID)
	if rec == nil {
		return nil, entity.ErrJobNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := rec.job.Dispatch(); err != nil {
		return nil, err
	}
	return rec.job, nil
}

func (r *MemoryRegistry) lookup(jobID string) *jobRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[jobID]
}

var _ repo.JobRepository = (*MemoryRegistry)(nil)
