// Package storage implements gateway.StorageGateway against a MinIO (or any
// S3-compatible) bucket, used by the drive-source Fetcher path and by the
// Uploader.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"clipforge/pkg/config"
	"clipforge/pkg/logger"
)

// MinioStorage is the gateway.StorageGateway implementation backing both
// source retrieval (source_type=drive) and clip publishing.
type MinioStorage struct {
	client       *minio.Client
	sourceBucket string
	outputBucket string
	publicBase   string
}

// New dials the MinIO endpoint and ensures both configured buckets exist.
func New(ctx context.Context, cfg config.StorageConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect to minio: %w", err)
	}

	s := &MinioStorage{
		client:       client,
		sourceBucket: cfg.SourceBucket,
		outputBucket: cfg.OutputBucket,
		publicBase:   schemeFor(cfg.UseSSL) + cfg.Endpoint,
	}
	for _, bucket := range []string{cfg.SourceBucket, cfg.OutputBucket} {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func schemeFor(useSSL bool) string {
	if useSSL {
		return "https://"
	}
	return "http://"
}

func (s *MinioStorage) ensureBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: create bucket %s: %w", bucket, err)
	}
	return nil
}

// Download fetches fileID out of the source bucket into localPath, per
// gateway.StorageGateway.
func (s *MinioStorage) Download(ctx context.Context, fileID, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("storage: create local directory: %w", err)
	}

	object, err := s.client.GetObject(ctx, s.sourceBucket, fileID, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("storage: get object %s: %w", fileID, err)
	}
	defer object.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("storage: create local file: %w", err)
	}
	defer localFile.Close()

	if _, err := localFile.ReadFrom(object); err != nil {
		return fmt.Errorf("storage: download %s: %w", fileID, err)
	}

	logger.Info("downloaded object from storage", map[string]interface{}{
		"file_id":    fileID,
		"local_path": localPath,
	})
	return nil
}

// Upload publishes localPath under objectKey in the output bucket, per
// gateway.StorageGateway. The returned locator is a directly fetchable
// HTTP(S) URL; fileID is the objectKey itself, MinIO's natural identifier.
func (s *MinioStorage) Upload(ctx context.Context, localPath, objectKey, contentType string) (string, string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("storage: open local file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", "", fmt.Errorf("storage: stat local file: %w", err)
	}

	if contentType == "" {
		contentType = contentTypeFromExtension(objectKey)
	}

	if _, err := s.client.PutObject(ctx, s.outputBucket, objectKey, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", "", fmt.Errorf("storage: upload %s: %w", objectKey, err)
	}

	locator := fmt.Sprintf("%s/%s/%s", s.publicBase, s.outputBucket, objectKey)
	logger.Info("uploaded clip to storage", map[string]interface{}{
		"object_key": objectKey,
		"locator":    locator,
		"size":       info.Size(),
	})
	return locator, objectKey, nil
}

func contentTypeFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".srt":
		return "application/x-subrip"
	default:
		return "application/octet-stream"
	}
}
