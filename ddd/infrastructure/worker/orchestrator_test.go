package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/gateway"
	"clipforge/ddd/domain/port"
	"clipforge/ddd/domain/service"
	"clipforge/ddd/domain/vo"
	"clipforge/ddd/infrastructure/fetcher"
	"clipforge/ddd/infrastructure/registry"
	"clipforge/ddd/infrastructure/renderer"
	"clipforge/ddd/infrastructure/transcriber"
	"clipforge/ddd/infrastructure/uploader"
	"clipforge/pkg/errno"
)

type fakeStorage struct{}

func (fakeStorage) Download(ctx context.Context, fileID, localPath string) error {
	return os.WriteFile(localPath, []byte("not-a-real-video"), 0o644)
}

func (fakeStorage) Upload(ctx context.Context, localPath, objectKey, contentType string) (string, string, error) {
	return "https://storage.example.com/" + objectKey, "file-id", nil
}

type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, sourceURL, destDir string) (string, string, error) {
	path := filepath.Join(destDir, "source.mp4")
	if err := os.WriteFile(path, []byte("not-a-real-video"), 0o644); err != nil {
		return "", "", err
	}
	return path, "mp4", nil
}

type fakeLLM struct{}

func (fakeLLM) Available() bool                               { return false }
func (fakeLLM) Complete(ctx context.Context, prompt string) (string, error) { return "", nil }

type fakeCommandRunner struct{}

func (fakeCommandRunner) Run(ctx context.Context, name string, args ...string) (port.CommandResult, error) {
	return port.CommandResult{ExitCode: 0}, nil
}

type fakeEvents struct {
	events []gateway.JobEvent
}

func (f *fakeEvents) Publish(ctx context.Context, event gateway.JobEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeMirror struct {
	snapshots []entity.JobSnapshot
}

func (f *fakeMirror) Mirror(ctx context.Context, snap entity.JobSnapshot) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func newTestOrchestrator(t *testing.T, events EventPublisher, mirror DurableMirror) *Orchestrator {
	t.Helper()
	return NewOrchestrator(Dependencies{
		Fetcher:     fetcher.New(fakeStorage{}, fakeDownloader{}, "ffprobe"),
		Transcriber: transcriber.New("ffmpeg", "whisper.cpp", t.TempDir(), fakeCommandRunner{}, time.Minute),
		Selector:    service.NewSelector(fakeLLM{}),
		Renderer:    renderer.New("ffmpeg", fakeCommandRunner{}),
		Uploader:    uploader.New(fakeStorage{}),
		FFprobePath: "ffprobe",
		TmpDir:      t.TempDir(),
		JobTimeout:  time.Minute,
		Events:      events,
		Mirror:      mirror,
	})
}

func newOrchestratorJob() entity.JobRequest {
	return entity.JobRequest{SourceType: vo.SourceTypeURL, SourceURL: "https://example.com/v.mp4"}
}

// The fetched "video" is never a real media container, so the Fetcher's
// ffprobe-based audio-track check always rejects it -- deterministically,
// whether or not ffprobe itself is installed in the test environment. That
// makes this a reliable way to exercise the fetch-failure-is-terminal rule
// end to end without a real media fixture.
func TestOrchestrator_Run_FetchFailureIsTerminal(t *testing.T) {
	reg := registry.New(8)
	events := &fakeEvents{}
	mirror := &fakeMirror{}
	orch := newTestOrchestrator(t, events, mirror)

	job := entity.NewJob(newOrchestratorJob())
	reg.Create(context.Background(), job)
	dequeued, err := reg.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	orch.Run(context.Background(), dequeued, reg)

	snap, err := reg.Get(context.Background(), job.JobID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Status != vo.JobStatusFailed {
		t.Fatalf("Status = %v, want failed", snap.Status)
	}
	if snap.Error == nil || snap.Error.Kind != errno.KindSourceUnusable {
		t.Errorf("Error = %+v, want SourceUnusable", snap.Error)
	}
	if snap.Stage != vo.StageFetching {
		t.Errorf("Stage = %v, want fetching", snap.Stage)
	}
	if len(events.events) != 1 || events.events[0].Status != string(vo.JobStatusFailed) {
		t.Errorf("expected exactly one failed event, got %+v", events.events)
	}
	if len(mirror.snapshots) != 1 || mirror.snapshots[0].Status != vo.JobStatusFailed {
		t.Errorf("expected exactly one mirrored failed snapshot, got %+v", mirror.snapshots)
	}
}

func TestOrchestrator_Run_NilHooksAreSafe(t *testing.T) {
	reg := registry.New(8)
	orch := newTestOrchestrator(t, nil, nil)

	job := entity.NewJob(newOrchestratorJob())
	reg.Create(context.Background(), job)
	dequeued, _ := reg.Dequeue(context.Background())

	orch.Run(context.Background(), dequeued, reg)

	snap, err := reg.Get(context.Background(), job.JobID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Status != vo.JobStatusFailed {
		t.Fatalf("Status = %v, want failed", snap.Status)
	}
}

func TestClassify_UnwrapsErrno(t *testing.T) {
	kind, msg := classify(errno.New(errno.KindUploadFailed, "disk full"))
	if kind != errno.KindUploadFailed || msg != "disk full" {
		t.Errorf("classify(errno) = (%v, %q), want (UploadFailed, disk full)", kind, msg)
	}
}

func TestClassify_FallsBackToInternalError(t *testing.T) {
	kind, _ := classify(context.DeadlineExceeded)
	if kind != errno.KindInternalError {
		t.Errorf("classify(plain error) = %v, want InternalError", kind)
	}
}

func TestProbeDuration_MissingBinaryReturnsZero(t *testing.T) {
	orch := NewOrchestrator(Dependencies{FFprobePath: "/nonexistent-ffprobe-binary-xyz"})
	if got := orch.probeDuration(filepath.Join(t.TempDir(), "missing.mp4")); got != 0 {
		t.Errorf("probeDuration() = %v, want 0", got)
	}
}

func TestOrchestrator_FailAndComplete_NotifyTerminalHooks(t *testing.T) {
	reg := registry.New(8)
	events := &fakeEvents{}
	mirror := &fakeMirror{}
	orch := newTestOrchestrator(t, events, mirror)

	job := entity.NewJob(newOrchestratorJob())
	reg.Create(context.Background(), job)
	dequeued, _ := reg.Dequeue(context.Background())

	orch.fail(context.Background(), reg, dequeued, vo.StageSelecting, errno.New(errno.KindNoSegmentsProducible, "too few ranges"))

	snap, _ := reg.Get(context.Background(), job.JobID())
	if snap.Status != vo.JobStatusFailed {
		t.Fatalf("Status = %v, want failed", snap.Status)
	}
	if len(events.events) != 1 {
		t.Errorf("expected one terminal event published, got %d", len(events.events))
	}
	if len(mirror.snapshots) != 1 {
		t.Errorf("expected one terminal snapshot mirrored, got %d", len(mirror.snapshots))
	}
}
