// Package http exposes the job pipeline over the four JSON endpoints
// spec.md §6 names, built on gin the way the teacher's app.go wires its own
// routes, plus pkg/restapi's envelope and pkg/middleware's trace/auth
// handlers.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/repo"
	"clipforge/ddd/domain/vo"
	"clipforge/pkg/errno"
	"clipforge/pkg/restapi"
)

// classify maps the Registry's plain sentinel errors onto the errno.Kind
// the HTTP layer surfaces; any *errno.Errno the Registry already returned
// (e.g. ErrQueueFull) passes through restapi.Failed unchanged.
func classify(err error) error {
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		return errno.ErrNotFound
	case errors.Is(err, entity.ErrJobNotRetryable):
		return errno.ErrConflict
	default:
		return err
	}
}

// JobController handles job submission, polling, and retry.
type JobController struct {
	registry     repo.JobRepository
	maxQueue     int
	defaults     vo.Defaults
	version      string
	commit       string
}

func NewJobController(registry repo.JobRepository, maxQueueDepth int, defaults vo.Defaults, version, commit string) *JobController {
	return &JobController{registry: registry, maxQueue: maxQueueDepth, defaults: defaults, version: version, commit: commit}
}

type createJobBody struct {
	SourceType  vo.SourceType `json:"source_type" binding:"required"`
	DriveFileID string        `json:"drive_file_id"`
	SourceURL   string        `json:"source_url"`
	TitleHint   string        `json:"title_hint"`
	Options     vo.Options    `json:"options"`
}

// CreateJob handles POST /jobs.
func (jc *JobController) CreateJob(c *gin.Context) {
	var body createJobBody
	if err := c.ShouldBindJSON(&body); err != nil {
		restapi.Failed(c, errno.New(errno.KindBadRequest, "malformed request body: "+err.Error()))
		return
	}

	req := entity.JobRequest{
		SourceType:  body.SourceType,
		DriveFileID: body.DriveFileID,
		SourceURL:   body.SourceURL,
		TitleHint:   body.TitleHint,
		Options:     body.Options.WithDefaults(jc.defaults),
	}
	if err := req.Validate(); err != nil {
		restapi.Failed(c, errno.New(errno.KindBadRequest, err.Error()))
		return
	}

	job := entity.NewJob(req)
	if err := jc.registry.Create(c.Request.Context(), job); err != nil {
		restapi.Failed(c, err)
		return
	}
	restapi.Success(c, http.StatusCreated, gin.H{"job_id": job.JobID(), "status": string(job.Status())})
}

// GetJob handles GET /jobs/:job_id.
func (jc *JobController) GetJob(c *gin.Context) {
	snap, err := jc.registry.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		restapi.Failed(c, classify(err))
		return
	}
	restapi.Success(c, http.StatusOK, snap)
}

type retryJobBody struct {
	Options *vo.Options `json:"options"`
}

// RetryJob handles POST /jobs/:job_id/retry.
func (jc *JobController) RetryJob(c *gin.Context) {
	var body retryJobBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			restapi.Failed(c, errno.New(errno.KindBadRequest, "malformed request body: "+err.Error()))
			return
		}
	}

	if body.Options != nil {
		defaulted := body.Options.WithDefaults(jc.defaults)
		if err := defaulted.Validate(); err != nil {
			restapi.Failed(c, errno.New(errno.KindBadRequest, err.Error()))
			return
		}
		body.Options = &defaulted
	}

	snap, err := jc.registry.Retry(c.Request.Context(), c.Param("job_id"), body.Options)
	if err != nil {
		restapi.Failed(c, classify(err))
		return
	}
	restapi.Success(c, http.StatusCreated, gin.H{"job_id": snap.JobID, "status": string(snap.Status)})
}

// Healthz handles GET /healthz.
func (jc *JobController) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Version handles GET /version.
func (jc *JobController) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": jc.version, "commit": jc.commit})
}
