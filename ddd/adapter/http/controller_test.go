package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"clipforge/ddd/domain/vo"
	"clipforge/ddd/infrastructure/registry"
)

const testAPIKey = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(maxQueueDepth int) (*gin.Engine, *registry.MemoryRegistry) {
	reg := registry.New(maxQueueDepth)
	defaults := vo.Defaults{
		TargetCount:  3,
		MinSec:       15,
		MaxSec:       60,
		Language:     "en",
		WhisperModel: vo.WhisperSmall,
	}
	jc := NewJobController(reg, maxQueueDepth, defaults, "test", "abc123")
	return NewRouter(jc, testAPIKey), reg
}

func doRequest(r *gin.Engine, method, path string, body interface{}, withAuth bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if withAuth {
		req.Header.Set("X-API-KEY", testAPIKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateJob_ReturnsCreated(t *testing.T) {
	r, _ := newTestRouter(8)
	w := doRequest(r, http.MethodPost, "/jobs", map[string]string{
		"source_type": "url",
		"source_url":  "https://example.com/video.mp4",
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
}

func TestCreateJob_RejectsMissingAuth(t *testing.T) {
	r, _ := newTestRouter(8)
	w := doRequest(r, http.MethodPost, "/jobs", map[string]string{
		"source_type": "url",
		"source_url":  "https://example.com/video.mp4",
	}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCreateJob_RejectsMalformedRequest(t *testing.T) {
	r, _ := newTestRouter(8)
	w := doRequest(r, http.MethodPost, "/jobs", map[string]string{
		"source_type": "url",
		// missing both drive_file_id and source_url
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestCreateJob_RejectsOverQueueDepth(t *testing.T) {
	r, _ := newTestRouter(1)
	body := map[string]string{"source_type": "url", "source_url": "https://example.com/video.mp4"}
	first := doRequest(r, http.MethodPost, "/jobs", body, true)
	if first.Code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", first.Code)
	}
	second := doRequest(r, http.MethodPost, "/jobs", body, true)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second create status = %d, want 429, body=%s", second.Code, second.Body.String())
	}
}

func TestGetJob_UnknownReturnsNotFound(t *testing.T) {
	r, _ := newTestRouter(8)
	w := doRequest(r, http.MethodGet, "/jobs/does-not-exist", nil, true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestGetJob_ReturnsSnapshot(t *testing.T) {
	r, _ := newTestRouter(8)
	create := doRequest(r, http.MethodPost, "/jobs", map[string]string{
		"source_type": "url",
		"source_url":  "https://example.com/video.mp4",
	}, true)

	var created struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(create.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	get := doRequest(r, http.MethodGet, "/jobs/"+created.Data.JobID, nil, true)
	if get.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", get.Code, get.Body.String())
	}
}

func TestRetryJob_RejectsNonTerminalJob(t *testing.T) {
	r, _ := newTestRouter(8)
	create := doRequest(r, http.MethodPost, "/jobs", map[string]string{
		"source_type": "url",
		"source_url":  "https://example.com/video.mp4",
	}, true)

	var created struct {
		Data struct {
			JobID string `json:"job_id"`
		} `json:"data"`
	}
	json.Unmarshal(create.Body.Bytes(), &created)

	retry := doRequest(r, http.MethodPost, "/jobs/"+created.Data.JobID+"/retry", nil, true)
	if retry.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", retry.Code, retry.Body.String())
	}
}

func TestHealthzAndVersion_SkipAuth(t *testing.T) {
	r, _ := newTestRouter(8)
	if w := doRequest(r, http.MethodGet, "/healthz", nil, false); w.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/version", nil, false); w.Code != http.StatusOK {
		t.Errorf("/version status = %d, want 200", w.Code)
	}
}
