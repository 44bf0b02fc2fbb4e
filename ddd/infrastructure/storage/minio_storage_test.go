package storage

import "testing"

func TestContentTypeFromExtension(t *testing.T) {
	cases := map[string]string{
		"clip_01.mp4":    "video/mp4",
		"clip.mov":       "video/quicktime",
		"clip.webm":      "video/webm",
		"subtitles.srt":  "application/x-subrip",
		"unknown.binary": "application/octet-stream",
	}
	for name, want := range cases {
		if got := contentTypeFromExtension(name); got != want {
			t.Errorf("contentTypeFromExtension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSchemeFor(t *testing.T) {
	if got := schemeFor(true); got != "https://" {
		t.Errorf("schemeFor(true) = %q, want https://", got)
	}
	if got := schemeFor(false); got != "http://" {
		t.Errorf("schemeFor(false) = %q, want http://", got)
	}
}
