package entity

import (
	"fmt"

	"clipforge/ddd/domain/vo"
)

// JobRequest is the validated, defaulted submission a caller POSTs to
// /jobs. Exactly one of DriveFileID/SourceURL is populated.
type JobRequest struct {
	SourceType  vo.SourceType `json:"source_type"`
	DriveFileID string        `json:"drive_file_id,omitempty"`
	SourceURL   string        `json:"source_url,omitempty"`
	TitleHint   string        `json:"title_hint,omitempty"`
	Options     vo.Options    `json:"options,omitempty"`
}

// Validate enforces the JobRequest-level invariants: a recognized
// source_type and exactly one of the two source fields populated.
func (r JobRequest) Validate() error {
	if !r.SourceType.IsValid() {
		return fmt.Errorf("unrecognized source_type: %s", r.SourceType)
	}
	hasDrive := r.DriveFileID != ""
	hasURL := r.SourceURL != ""
	if hasDrive == hasURL {
		return fmt.Errorf("exactly one of drive_file_id/source_url must be set")
	}
	if r.SourceType == vo.SourceTypeDrive && !hasDrive {
		return fmt.Errorf("source_type=drive requires drive_file_id")
	}
	if r.SourceType == vo.SourceTypeURL && !hasURL {
		return fmt.Errorf("source_type=url requires source_url")
	}
	return r.Options.Validate()
}

// SourceRef returns the populated source reference regardless of type, for
// callers (Fetcher, retry) that don't need to branch on SourceType.
func (r JobRequest) SourceRef() string {
	if r.SourceType == vo.SourceTypeDrive {
		return r.DriveFileID
	}
	return r.SourceURL
}
