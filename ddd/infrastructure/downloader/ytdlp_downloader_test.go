package downloader

import (
	"errors"
	"testing"

	"clipforge/pkg/errno"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://example.com/watch?v=abc", false},
		{"valid http", "http://example.com/video", false},
		{"missing scheme", "example.com/video", true},
		{"ftp scheme", "ftp://example.com/video", true},
		{"not a url", "::::", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateURL(tc.url)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.url)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.url, err)
			}
		})
	}
}

func TestCategorizeError_SourceUnusable(t *testing.T) {
	err := categorizeError(errors.New("exit status 1"), "ERROR: Video unavailable. This video has been removed.")
	var en *errno.Errno
	if !errors.As(err, &en) {
		t.Fatalf("expected an *errno.Errno, got %T: %v", err, err)
	}
	if en.Kind != errno.KindSourceUnusable {
		t.Fatalf("expected KindSourceUnusable, got %s", en.Kind)
	}
}

func TestCategorizeError_NetworkErrorIsRetryable(t *testing.T) {
	err := categorizeError(errors.New("exit status 1"), "unable to download webpage: network error")
	var en *errno.Errno
	if errors.As(err, &en) {
		t.Fatalf("expected a plain error (not a terminal errno.Kind), got %+v", en)
	}
}
