// Package fetcher implements C1: obtaining the source video as a local file,
// from remote storage or a public URL, with retry and sanity checks.
package fetcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/gateway"
	"clipforge/ddd/domain/vo"
	"clipforge/pkg/errno"
	"clipforge/pkg/retry"
)

// maxSourceBytes is the 2 GB ceiling spec.md §4.1 sets on a usable source.
const maxSourceBytes = 2 << 30

// Fetcher produces a local, playable copy of a Job's source video.
type Fetcher struct {
	storage     gateway.StorageGateway
	downloader  gateway.Downloader
	ffprobePath string
	policy      retry.Policy
}

func New(storage gateway.StorageGateway, downloader gateway.Downloader, ffprobePath string) *Fetcher {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Fetcher{storage: storage, downloader: downloader, ffprobePath: ffprobePath, policy: retry.DefaultPolicy()}
}

// Fetch downloads req's source into scratchDir and returns the local path
// and detected container format, per spec.md §4.1.
func (f *Fetcher) Fetch(ctx context.Context, req entity.JobRequest, scratchDir string) (string, string, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return "", "", fmt.Errorf("fetcher: create scratch dir: %w", err)
	}

	var localPath, format string
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var innerErr error
		localPath, format, innerErr = f.fetchOnce(ctx, req, scratchDir)
		return innerErr
	})
	if err != nil {
		return "", "", err
	}

	if err := f.validate(localPath); err != nil {
		return "", "", err
	}
	return localPath, format, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, req entity.JobRequest, scratchDir string) (string, string, error) {
	switch req.SourceType {
	case vo.SourceTypeDrive:
		format := extFormat(req.DriveFileID)
		localPath := filepath.Join(scratchDir, "source."+format)
		if err := f.storage.Download(ctx, req.DriveFileID, localPath); err != nil {
			return "", "", fmt.Errorf("fetcher: drive download: %w", err)
		}
		return localPath, format, nil
	case vo.SourceTypeURL:
		localPath, format, err := f.downloader.Download(ctx, req.SourceURL, scratchDir)
		if err != nil {
			return "", "", err
		}
		return localPath, format, nil
	default:
		return "", "", errno.New(errno.KindSourceUnusable, "unrecognized source_type")
	}
}

func extFormat(ref string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(ref)), ".")
	if ext == "" {
		return "mp4"
	}
	return ext
}

// validate rejects sources over the size cap or with a zero-length audio
// track, per spec.md §4.1.
func (f *Fetcher) validate(localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return errno.New(errno.KindSourceUnusable, "downloaded file missing: "+err.Error())
	}
	if info.Size() > maxSourceBytes {
		return errno.New(errno.KindSourceUnusable, "source exceeds 2GB limit")
	}

	hasAudio, err := f.hasAudioTrack(localPath)
	if err != nil {
		return errno.New(errno.KindSourceUnusable, "probe failed: "+err.Error())
	}
	if !hasAudio {
		return errno.New(errno.KindSourceUnusable, "source has no audio track")
	}
	return nil
}

// hasAudioTrack shells out to ffprobe to check for at least one audio
// stream with a non-zero duration, grounded on the teacher's
// probeVideoCodec/probeDurationSeconds ffprobe-invocation shape.
func (f *Fetcher) hasAudioTrack(localPath string) (bool, error) {
	cmd := exec.Command(f.ffprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		localPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return false, nil // no audio stream at all: ffprobe returns empty/non-zero, treated as "no audio"
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" || raw == "N/A" {
		return false, nil
	}
	dur, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, nil
	}
	return dur > 0, nil
}
