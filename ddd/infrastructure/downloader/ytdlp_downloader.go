// Package downloader implements gateway.Downloader against the yt-dlp
// subprocess, adapted from an audio-extraction tool into a source_type=url
// video fetcher.
package downloader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"

	"clipforge/pkg/errno"
)

// YtDlpDownloader wraps the yt-dlp binary to pull a single best-quality
// video+audio stream into destDir.
type YtDlpDownloader struct {
	binaryPath string
}

func New(binaryPath string) *YtDlpDownloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &YtDlpDownloader{binaryPath: binaryPath}
}

// Download runs yt-dlp against sourceURL, merging to a single mp4 container
// under destDir, and returns the resulting local path and format.
func (d *YtDlpDownloader) Download(ctx context.Context, sourceURL, destDir string) (string, string, error) {
	if err := validateURL(sourceURL); err != nil {
		return "", "", err
	}

	outputTemplate := filepath.Join(destDir, "source.%(ext)s")
	args := []string{
		"-f", "bv*+ba/b",
		"--merge-output-format", "mp4",
		"--output", outputTemplate,
		"--no-playlist",
		"--no-warnings",
		sourceURL,
	}

	cmd := exec.CommandContext(ctx, d.binaryPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("downloader: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", categorizeError(err, "")
	}

	var stderrOutput strings.Builder
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		stderrOutput.WriteString(scanner.Text())
		stderrOutput.WriteString("\n")
	}

	if err := cmd.Wait(); err != nil {
		return "", "", categorizeError(err, stderrOutput.String())
	}

	localPath := filepath.Join(destDir, "source.mp4")
	return localPath, "mp4", nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errno.New(errno.KindSourceUnusable, "invalid source url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errno.New(errno.KindSourceUnusable, "source url must be http(s)")
	}
	return nil
}

// categorizeError maps yt-dlp's stderr substrings onto the closed error
// kind set, matching the job server's error taxonomy rather than yt-dlp's
// own vocabulary.
func categorizeError(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "this video is unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "is private"),
		strings.Contains(lower, "age-restricted"),
		strings.Contains(lower, "sign in to confirm your age"),
		strings.Contains(lower, "unsupported url"),
		strings.Contains(lower, "no suitable extractor"):
		return errno.New(errno.KindSourceUnusable, "source video unavailable: "+firstLine(stderr))
	case strings.Contains(lower, "unable to download"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "timed out"):
		return fmt.Errorf("downloader: network error: %w", err)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errno.New(errno.KindSourceUnusable, "download failed: "+firstLine(stderr))
		}
		return fmt.Errorf("downloader: %w", err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
