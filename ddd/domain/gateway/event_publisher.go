package gateway

// JobEvent is the lifecycle notification published when a Job reaches a
// terminal status, consumed by ddd/infrastructure/events' kafka publisher.
type JobEvent struct {
	JobID   string
	TraceID string
	Status  string
}
