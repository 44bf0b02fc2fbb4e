package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipforge/pkg/errno"
)

func TestEnqueueDequeue_FIFO(t *testing.T) {
	q := New(4)
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(id); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got != want {
			t.Errorf("Dequeue = %q, want %q", got, want)
		}
	}
}

func TestEnqueue_FullQueueReturnsQueueFull(t *testing.T) {
	q := New(1)
	if err := q.Enqueue("a"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err := q.Enqueue("b")
	if err == nil {
		t.Fatal("expected queue-full error")
	}
	var e *errno.Errno
	if !errors.As(err, &e) || e.Kind != errno.KindTooManyRequests {
		t.Errorf("expected KindTooManyRequests, got %v", err)
	}
}

func TestDequeue_BlocksUntilContextDone(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatal("expected context deadline error on empty queue")
	}
}

func TestLen_ReflectsQueueDepth(t *testing.T) {
	q := New(4)
	q.Enqueue("a")
	q.Enqueue("b")
	if got := q.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
