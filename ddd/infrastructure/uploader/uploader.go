// Package uploader implements C5: publishing a rendered clip to remote
// storage under its display name.
package uploader

import (
	"context"
	"fmt"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/gateway"
	"clipforge/pkg/errno"
	"clipforge/pkg/retry"
)

// Uploader publishes one rendered clip via gateway.StorageGateway, with the
// same retry policy the Fetcher uses for transport errors (spec.md §4.5).
type Uploader struct {
	storage gateway.StorageGateway
	policy  retry.Policy
}

func New(storage gateway.StorageGateway) *Uploader {
	return &Uploader{storage: storage, policy: retry.DefaultPolicy()}
}

// Upload publishes clipPath as the index'th (1-based) clip of a job titled
// titleHint, producing a ClipOutput. objectKey follows spec.md §4.5: the
// sanitized title hint plus _NN.mp4 when a hint is present, else
// clip_NN.mp4, with NN the index zero-padded to 2 digits.
func (u *Uploader) Upload(ctx context.Context, clipPath string, rng entity.SelectionRange, titleHint string, index int) (entity.ClipOutput, error) {
	objectKey := displayName(titleHint, index)

	var locator string
	err := u.policy.Do(ctx, func(ctx context.Context) error {
		loc, _, innerErr := u.storage.Upload(ctx, clipPath, objectKey, "video/mp4")
		if innerErr != nil {
			return innerErr
		}
		locator = loc
		return nil
	})
	if err != nil {
		return entity.ClipOutput{}, errno.New(errno.KindUploadFailed, "upload failed after retries: "+err.Error())
	}

	return entity.ClipOutput{
		FileName:      objectKey,
		RemoteLocator: locator,
		DurationSec:   rng.Duration(),
		Segment:       rng,
		Method:        rng.Method,
	}, nil
}

func displayName(titleHint string, index int) string {
	if titleHint != "" {
		return fmt.Sprintf("%s_%02d.mp4", sanitize(titleHint), index)
	}
	return fmt.Sprintf("clip_%02d.mp4", index)
}

// sanitize strips path separators and whitespace from a title hint so it
// is safe to use as an object key segment.
func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '/', '\\', '\n', '\r', '\t':
			out = append(out, '_')
		case ' ':
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
