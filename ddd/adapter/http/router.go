package http

import (
	"github.com/gin-gonic/gin"

	"clipforge/pkg/middleware"
)

// NewRouter assembles the gin engine: trace-id injection on every request,
// then the shared-secret auth check on everything but /healthz and
// /version, per spec.md §6.
func NewRouter(jc *JobController, apiKey string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceMiddleware())

	r.GET("/healthz", jc.Healthz)
	r.GET("/version", jc.Version)

	authed := r.Group("/")
	authed.Use(middleware.AuthMiddleware(apiKey))
	authed.POST("/jobs", jc.CreateJob)
	authed.GET("/jobs/:job_id", jc.GetJob)
	authed.POST("/jobs/:job_id/retry", jc.RetryJob)

	return r
}
