package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/vo"
)

type fakeStorage struct {
	downloadErr error
	written     string
}

func (f *fakeStorage) Download(ctx context.Context, fileID, localPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	f.written = localPath
	return os.WriteFile(localPath, []byte("fake-video-bytes"), 0o644)
}

func (f *fakeStorage) Upload(ctx context.Context, localPath, objectKey, contentType string) (string, string, error) {
	return "", "", nil
}

type fakeDownloader struct {
	path, format string
	err          error
}

func (f *fakeDownloader) Download(ctx context.Context, sourceURL, destDir string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	path := filepath.Join(destDir, "source.mp4")
	if err := os.WriteFile(path, []byte("fake-video-bytes"), 0o644); err != nil {
		return "", "", err
	}
	return path, "mp4", nil
}

func TestExtFormat(t *testing.T) {
	cases := map[string]string{
		"file123.mov": "mov",
		"file123":     "mp4",
		"a.b.mkv":     "mkv",
	}
	for in, want := range cases {
		if got := extFormat(in); got != want {
			t.Errorf("extFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFetchOnce_DriveSource(t *testing.T) {
	storage := &fakeStorage{}
	f := New(storage, &fakeDownloader{}, "ffprobe")
	dir := t.TempDir()

	req := entity.JobRequest{SourceType: vo.SourceTypeDrive, DriveFileID: "abc.mp4"}
	path, format, err := f.fetchOnce(context.Background(), req, dir)
	if err != nil {
		t.Fatalf("fetchOnce: %v", err)
	}
	if format != "mp4" {
		t.Errorf("expected format mp4, got %s", format)
	}
	if storage.written != path {
		t.Errorf("expected storage to write to %s, got %s", path, storage.written)
	}
}

func TestFetchOnce_URLSource(t *testing.T) {
	f := New(&fakeStorage{}, &fakeDownloader{}, "ffprobe")
	dir := t.TempDir()

	req := entity.JobRequest{SourceType: vo.SourceTypeURL, SourceURL: "https://example.com/v"}
	path, format, err := f.fetchOnce(context.Background(), req, dir)
	if err != nil {
		t.Fatalf("fetchOnce: %v", err)
	}
	if format != "mp4" {
		t.Errorf("expected format mp4, got %s", format)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("expected file to exist at %s: %v", path, statErr)
	}
}

func TestValidate_RejectsOversizedSource(t *testing.T) {
	f := New(&fakeStorage{}, &fakeDownloader{}, "ffprobe")
	dir := t.TempDir()
	path := filepath.Join(dir, "big.mp4")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := file.Truncate(maxSourceBytes + 1); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	file.Close()

	err = f.validate(path)
	if err == nil {
		t.Fatal("expected an oversized-source error")
	}
}
