package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/registry"
	"github.com/temrb/context-crawler/internal/services/submit"
	badgerstorage "github.com/temrb/context-crawler/internal/storage/badger"
)

type handlerFixture struct {
	crawl  *CrawlHandler
	config *ConfigHandler
	jobs   interfaces.JobStorage
	queue  interfaces.QueueStorage
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badgerstorage.NewManager(logger, &common.StorageConfig{
		QueuePath: filepath.Join(t.TempDir(), "queue.db"),
		JobsPath:  filepath.Join(t.TempDir(), "jobs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	defsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(defsDir, "alpha.toml"), []byte(`
name = "alpha"

[[tasks]]
name = "alpha-docs"
entry = "https://alpha.test/docs"
match = ["https://alpha.test/docs/**"]
selector = "main"
`), 0644))

	reg, err := registry.Load(defsDir, logger)
	require.NoError(t, err)

	submitService := submit.New(reg, manager.QueueStorage(), manager.JobStorage(), 3, logger)

	return &handlerFixture{
		crawl:  NewCrawlHandler(submitService, manager.JobStorage(), manager.QueueStorage(), logger),
		config: NewConfigHandler(reg, logger),
		jobs:   manager.JobStorage(),
		queue:  manager.QueueStorage(),
	}
}

func TestSubmitAdHocConfig(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"config": {"name": "one-off", "entry": "https://example.test/", "match": "https://example.test/**", "selector": "main"}}`
	req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.crawl.SubmitHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "custom", resp.JobName)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "/crawl/status/"+resp.JobID, resp.StatusURL)
	assert.Equal(t, "/crawl/results/"+resp.JobID, resp.ResultsURL)
}

func TestSubmitValidationErrors(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"broken JSON", `{`, http.StatusBadRequest},
		{"neither name nor config", `{}`, http.StatusBadRequest},
		{"unknown task name", `{"name": "nope"}`, http.StatusNotFound},
		{"invalid config", `{"config": {"name": "x", "entry": "http://insecure.test/", "match": "x", "selector": "main"}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			f.crawl.SubmitHandler(rec, req)
			assert.Equal(t, tt.code, rec.Code)

			var e apiError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}

	// No partial side effects from any rejected submission
	stats, err := f.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestBatchSubmission(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/crawl/batch", strings.NewReader(`{"name": "alpha"}`))
	rec := httptest.NewRecorder()
	f.crawl.BatchHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alpha", resp.JobName)
	assert.Equal(t, 1, resp.ConfigCount)
	require.Len(t, resp.Configs, 1)
	assert.Equal(t, 0, resp.Configs[0].ConfigIndex)

	req = httptest.NewRequest(http.MethodPost, "/crawl/batch", strings.NewReader(`{"name": "missing"}`))
	rec = httptest.NewRecorder()
	f.crawl.BatchHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	_, err := f.jobs.Create(ctx, "job-1", "{}")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/crawl/status/job-1", nil)
	rec := httptest.NewRecorder()
	f.crawl.StatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "pending", resp.Status)
	assert.Empty(t, resp.CompletedAt)

	req = httptest.NewRequest(http.MethodGet, "/crawl/status/ghost", nil)
	rec = httptest.NewRecorder()
	f.crawl.StatusHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultsEndpointLifecycle(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	_, err := f.jobs.Create(ctx, "job-1", "{}")
	require.NoError(t, err)

	// Pending: 202 with a pointer back to status
	req := httptest.NewRequest(http.MethodGet, "/crawl/results/job-1", nil)
	rec := httptest.NewRecorder()
	f.crawl.ResultsHandler(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Failed: 500 with the stored error
	now := time.Now()
	require.NoError(t, f.jobs.UpdateStatus(ctx, "job-1", models.JobStatusFailed, &models.JobStatusUpdate{
		Error:       "selector wait timeout",
		CompletedAt: &now,
	}))
	rec = httptest.NewRecorder()
	f.crawl.ResultsHandler(rec, httptest.NewRequest(http.MethodGet, "/crawl/results/job-1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "selector wait timeout")

	// Completed: the artifact streams back
	outFile := filepath.Join(t.TempDir(), "alpha.json")
	require.NoError(t, os.WriteFile(outFile, []byte(`[{"title":"T","url":"https://example.test/","html":"x"}]`), 0644))

	_, err = f.jobs.Create(ctx, "job-2", "{}")
	require.NoError(t, err)
	require.NoError(t, f.jobs.UpdateStatus(ctx, "job-2", models.JobStatusCompleted, &models.JobStatusUpdate{
		OutputFile:  outFile,
		CompletedAt: &now,
	}))

	rec = httptest.NewRecorder()
	f.crawl.ResultsHandler(rec, httptest.NewRequest(http.MethodGet, "/crawl/results/job-2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "https://example.test/")
}

func TestConfigurationsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.config.ListConfigurationsHandler(rec, httptest.NewRequest(http.MethodGet, "/configurations", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs []registry.JobSummary `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "alpha", resp.Jobs[0].Name)
	assert.Equal(t, 1, resp.Jobs[0].ConfigCount)
}

func TestQueueStatsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	_, err := f.queue.Add(ctx, "job-1", "{}", 0, 3)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.crawl.QueueStatsHandler(rec, httptest.NewRequest(http.MethodGet, "/crawl/queue", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Total)
}
