package uploader

import (
	"context"
	"errors"
	"testing"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/vo"
)

type fakeStorage struct {
	uploads   []string
	failTimes int
	locator   string
}

func (f *fakeStorage) Download(ctx context.Context, fileID, localPath string) error { return nil }

func (f *fakeStorage) Upload(ctx context.Context, localPath, objectKey, contentType string) (string, string, error) {
	f.uploads = append(f.uploads, objectKey)
	if f.failTimes > 0 {
		f.failTimes--
		return "", "", errors.New("transient network error")
	}
	if contentType != "video/mp4" {
		return "", "", errors.New("unexpected content type: " + contentType)
	}
	return f.locator, "file-id", nil
}

func TestDisplayName_UsesTitleHintWhenPresent(t *testing.T) {
	if got := displayName("My Talk", 3); got != "My-Talk_03.mp4" {
		t.Errorf("displayName = %q, want My-Talk_03.mp4", got)
	}
}

func TestDisplayName_FallsBackToClipNN(t *testing.T) {
	if got := displayName("", 7); got != "clip_07.mp4" {
		t.Errorf("displayName = %q, want clip_07.mp4", got)
	}
}

func TestUpload_Success(t *testing.T) {
	storage := &fakeStorage{locator: "https://cdn.example.com/clip_01.mp4"}
	u := New(storage)
	rng := entity.SelectionRange{Start: 10, End: 35, Method: vo.MethodLLM}

	out, err := u.Upload(context.Background(), "/tmp/clip.mp4", rng, "", 1)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if out.FileName != "clip_01.mp4" {
		t.Errorf("FileName = %q, want clip_01.mp4", out.FileName)
	}
	if out.RemoteLocator != storage.locator {
		t.Errorf("RemoteLocator = %q, want %q", out.RemoteLocator, storage.locator)
	}
	if out.DurationSec != 25 {
		t.Errorf("DurationSec = %v, want 25", out.DurationSec)
	}
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	storage := &fakeStorage{failTimes: 2, locator: "https://cdn.example.com/clip_01.mp4"}
	u := New(storage)
	rng := entity.SelectionRange{Start: 0, End: 30, Method: vo.MethodRule}

	out, err := u.Upload(context.Background(), "/tmp/clip.mp4", rng, "Demo", 1)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(storage.uploads) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(storage.uploads))
	}
	if out.RemoteLocator == "" {
		t.Error("expected a locator after eventual success")
	}
}

func TestUpload_ExhaustsRetriesReturnsUploadFailed(t *testing.T) {
	storage := &fakeStorage{failTimes: 10}
	u := New(storage)
	rng := entity.SelectionRange{Start: 0, End: 30, Method: vo.MethodRule}

	_, err := u.Upload(context.Background(), "/tmp/clip.mp4", rng, "", 1)
	if err == nil {
		t.Fatal("expected an upload error after exhausting retries")
	}
}
