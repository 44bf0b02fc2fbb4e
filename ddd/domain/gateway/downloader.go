package gateway

import "context"

// Downloader is the URL-video-downloader port used by the Fetcher for
// source_type=url jobs.
type Downloader interface {
	// Download fetches sourceURL into destDir, returning the local path to
	// the downloaded media file and its detected container extension.
	Download(ctx context.Context, sourceURL, destDir string) (localPath, format string, err error)
}
