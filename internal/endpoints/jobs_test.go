package endpoints

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"spatelier/internal/ledger"
	"spatelier/internal/queue"
)

func openTestLedgerAndQueue(t *testing.T) (*ledger.Ledger, *queue.Queue) {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, queue.New(l, nil)
}

func TestHandleHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HandleHealth)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleGetStatus_ReportsQueueStatistics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/status", HandleGetStatus(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats ledger.JobStatistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.Pending)
}

func TestHandleListJobs_RejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)

	router := gin.New()
	router.GET("/jobs", HandleListJobs(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/jobs?status=bogus", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListJobs_FiltersByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobTranscribe, InputPath: "/tmp/a.mp4"})
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID))

	router := gin.New()
	router.GET("/jobs", HandleListJobs(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/jobs?status=completed", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Jobs []*ledger.ProcessingJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	require.Equal(t, job.ID, body.Jobs[0].ID)
}

func TestHandleGetJob_NotFoundReturns404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)

	router := gin.New()
	router.GET("/jobs/:id", HandleGetJob(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/jobs/999", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetJob_InvalidIDReturns400(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)

	router := gin.New()
	router.GET("/jobs/:id", HandleGetJob(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/jobs/not-a-number", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetJob_ReturnsDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/jobs/:id", HandleGetJob(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/jobs/"+itoa(job.ID), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got ledger.ProcessingJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, job.ID, got.ID)
}

func TestHandleRetryJob_RejectsNonFailedJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/jobs/:id/retry", HandleRetryJob(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/jobs/"+itoa(job.ID)+"/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleRetryJob_ReactivatesFailedJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, q := openTestLedgerAndQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/1", MaxRetries: 0})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, "boom"))

	router := gin.New()
	router.POST("/jobs/:id/retry", HandleRetryJob(q))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/jobs/"+itoa(job.ID)+"/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	reclaimed, err := q.ClaimNext(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	require.Equal(t, job.ID, reclaimed.ID)
}

func TestHandleSearchTranscriptions_RequiresQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := openTestLedgerAndQueue(t)

	router := gin.New()
	router.GET("/search", HandleSearchTranscriptions(l))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/search", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearchTranscriptions_FindsStoredSegments(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := openTestLedgerAndQueue(t)
	ctx := context.Background()

	media, err := l.Media.Create(ctx, ledger.MediaFileAttrs{
		FilePath: "/tmp/x.mp4", FileName: "x.mp4", FileSize: 10, MediaType: ledger.MediaVideo, MimeType: "video/mp4", FileHash: "h1",
	})
	require.NoError(t, err)
	_, err = l.Transcriptions.Store(ctx, media.ID, "en", 10, 1, "whisper-base", []ledger.TranscriptSegment{
		{Start: 0, End: 1, Text: "a unique phrase about gophers"},
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/search", HandleSearchTranscriptions(l))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/search?q=gophers", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []*ledger.Transcription `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
