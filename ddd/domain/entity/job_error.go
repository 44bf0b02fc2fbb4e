package entity

import "clipforge/pkg/errno"

// JobError is the wire shape of a Job's error field: present only when
// status=failed.
type JobError struct {
	Kind    errno.Kind `json:"kind"`
	Message string     `json:"message"`
	Stage   string     `json:"stage,omitempty"`
}

func NewJobError(kind errno.Kind, message, stage string) *JobError {
	return &JobError{Kind: kind, Message: message, Stage: stage}
}
