package endpoints

import (
	"net/http"
	"strconv"

	"spatelier/internal/ledger"
	"spatelier/internal/ledgererr"
	"spatelier/internal/queue"

	"github.com/gin-gonic/gin"
)

// HandleHealth is the unauthenticated liveness probe.
func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "spatelier"})
}

// HandleGetStatus reports queue depth by status, per spec.md §4.3's
// get_queue_status. This process (cmd/http) is separate from the
// cmd/worker process that runs the Runtime's in-memory throttle/stats
// counters, so those aren't exposed here; worker.Runtime.Status's richer
// view (mode, throttling, processed/failed counts) is available to
// whatever calls it inside the worker process itself, e.g. a future
// admin hook colocated with cmd/worker.
func HandleGetStatus(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := q.GetQueueStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue status"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// jobStatuses are the statuses HandleListJobs accepts in its ?status=
// filter.
var jobStatuses = map[string]ledger.JobStatus{
	"pending":    ledger.JobPending,
	"processing": ledger.JobProcessing,
	"completed":  ledger.JobCompleted,
	"failed":     ledger.JobFailed,
}

// HandleListJobs lists jobs filtered by ?status=, one of pending,
// processing, completed, failed.
func HandleListJobs(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		statusParam := c.Query("status")
		status, ok := jobStatuses[statusParam]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of pending, processing, completed, failed"})
			return
		}
		jobs, err := q.GetJobsByStatus(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

// HandleGetJob returns a single job's detail by ID.
func HandleGetJob(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		job, err := q.GetJob(c.Request.Context(), id)
		if err != nil {
			if ledgererr.Is(err, ledgererr.KindNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch job"})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// HandleRetryJob reactivates a failed job, bypassing retry exhaustion,
// per SPEC_FULL.md's manual-retry control on the status API.
func HandleRetryJob(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}
		if err := q.ManualRetry(c.Request.Context(), id); err != nil {
			if ledgererr.Is(err, ledgererr.KindNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
				return
			}
			if ledgererr.Is(err, ledgererr.KindInvalidTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry job"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": "pending"})
	}
}

// HandleSearchTranscriptions runs a full-text search across stored
// transcript segments, per spec.md §4.1's Transcription module and
// SPEC_FULL.md's status API search endpoint.
func HandleSearchTranscriptions(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
			return
		}
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		results, err := l.Transcriptions.Search(c.Request.Context(), query, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}
