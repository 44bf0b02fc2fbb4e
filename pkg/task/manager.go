// Package task manages the server's long-running background processes
// under one Start/Stop lifecycle that app.Run drives from its signal
// handler. app.Run registers the job worker pool here; the etcd
// self-registration and the kafka publisher are managed directly in app.Run.
package task

import (
	"context"
	"sync"
)

// BackgroundTask is anything app.Run starts at boot and stops on shutdown;
// today that is the job worker pool.
type BackgroundTask interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

type manager struct {
	tasks  []BackgroundTask
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

var (
	defaultManager = &manager{tasks: make([]BackgroundTask, 0)}
)

// Register adds a background task to the default manager. Call it during
// app assembly, before StartAll; registering after StartAll has no effect
// on tasks already running.
func Register(task BackgroundTask) {
	if task == nil {
		return
	}
	defaultManager.mu.Lock()
	defer defaultManager.mu.Unlock()
	defaultManager.tasks = append(defaultManager.tasks, task)
}

// StartAll starts all registered tasks once.
func StartAll(ctx context.Context) error {
	defaultManager.mu.Lock()
	defer defaultManager.mu.Unlock()
	if defaultManager.cancel != nil {
		return nil
	}
	defaultManager.ctx, defaultManager.cancel = context.WithCancel(ctx)
	for _, t := range defaultManager.tasks {
		if t == nil {
			continue
		}
		if err := t.Start(defaultManager.ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all running tasks.
func StopAll() {
	defaultManager.mu.Lock()
	defer defaultManager.mu.Unlock()
	if defaultManager.cancel != nil {
		defaultManager.cancel()
	}
	for i := len(defaultManager.tasks) - 1; i >= 0; i-- {
		if t := defaultManager.tasks[i]; t != nil {
			_ = t.Stop()
		}
	}
	defaultManager.cancel = nil
}
