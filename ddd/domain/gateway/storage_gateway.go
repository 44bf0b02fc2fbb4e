package gateway

import "context"

// StorageGateway is the remote-storage port used by both the drive-source
// Fetcher path and the Uploader.
type StorageGateway interface {
	// Download fetches the object identified by fileID into localPath.
	Download(ctx context.Context, fileID, localPath string) error
	// Upload publishes localPath as objectKey and returns a shareable
	// locator plus the storage-assigned file id.
	Upload(ctx context.Context, localPath, objectKey, contentType string) (locator, fileID string, err error)
}
