package httptransport

import (
	"github.com/gin-gonic/gin"

	"github.com/coreclock/jobstore/internal/health"
	"github.com/coreclock/jobstore/internal/transport/http/handler"
	"github.com/coreclock/jobstore/internal/transport/http/middleware"
)

// NewRouter builds the admin/introspection API: job and trigger CRUD plus
// pause/resume control, gated behind JWT auth everywhere except health and
// metrics. Auth is applied whatever jwtKey holds; an empty key does not
// disable it.
func NewRouter(storeHandler *handler.StoreHandler, checker *health.Checker, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, checker.Liveness(c.Request.Context())) })
	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := 200
		if result.Status != "up" {
			status = 503
		}
		c.JSON(status, result)
	})

	api := r.Group("/api/v1", middleware.Auth(jwtKey))

	api.GET("/stats", storeHandler.Stats)
	api.POST("/cluster/check", storeHandler.CheckCluster)

	api.GET("/jobs", storeHandler.ListJobs)
	api.GET("/jobs/:group/:name", storeHandler.GetJob)
	api.DELETE("/jobs/:group/:name", storeHandler.DeleteJob)
	api.POST("/jobs/:group/:name/pause", storeHandler.PauseJob)
	api.POST("/jobs/:group/:name/resume", storeHandler.ResumeJob)

	api.GET("/triggers", storeHandler.ListTriggers)
	api.GET("/triggers/:group/:name", storeHandler.GetTrigger)
	api.GET("/triggers/:group/:name/state", storeHandler.GetTriggerState)
	api.DELETE("/triggers/:group/:name", storeHandler.DeleteTrigger)
	api.POST("/triggers/:group/:name/pause", storeHandler.PauseTrigger)
	api.POST("/triggers/:group/:name/resume", storeHandler.ResumeTrigger)

	api.POST("/trigger-groups/:group/pause", storeHandler.PauseTriggerGroup)
	api.POST("/trigger-groups/:group/resume", storeHandler.ResumeTriggerGroup)

	api.POST("/pause-all", storeHandler.PauseAll)
	api.POST("/resume-all", storeHandler.ResumeAll)

	return r
}
