package endpoints

import (
	"spatelier/internal/config"
	"spatelier/internal/ledger"
	"spatelier/internal/queue"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the read-only status/control API described in
// SPEC_FULL.md's DOMAIN STACK: queue status, job listing/detail,
// transcription search, and a bearer-token-guarded manual retry.
func SetupRoutes(r *gin.Engine, l *ledger.Ledger, q *queue.Queue, auth0 config.Auth0Config) {
	api := r.Group("/api")
	{
		api.GET("/health", HandleHealth)
		api.GET("/status", HandleGetStatus(q))
		api.GET("/search", HandleSearchTranscriptions(l))

		jobs := api.Group("/jobs")
		{
			jobs.GET("", HandleListJobs(q))
			jobs.GET("/:id", HandleGetJob(q))

			protected := jobs.Group("")
			protected.Use(Auth0Middleware(auth0))
			{
				protected.POST("/:id/retry", HandleRetryJob(q))
			}
		}
	}
}
