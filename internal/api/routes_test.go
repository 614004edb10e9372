package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/heimdex-render/internal/export"
	"github.com/heimdex/heimdex-render/internal/jobs"
	"github.com/heimdex/heimdex-render/internal/presets"
	"github.com/heimdex/heimdex-render/internal/store"
)

const testToken = "test-token-123"

func TestHealthHandler(t *testing.T) {
	cfg := testConfig(newFakeJobs())
	cfg.StartTime = time.Now().Add(-10 * time.Second)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if up, _ := body["uptime_s"].(float64); up < 10 {
		t.Errorf("uptime_s = %v, want >= 10", body["uptime_s"])
	}
}

func TestAuthRequired(t *testing.T) {
	router := NewRouter(testConfig(newFakeJobs()))

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testToken},
		{"wrong token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/exports", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestStatusHandler_Idle(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)

	statusHandler(testConfig(newFakeJobs())).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if _, ok := body["active_job"]; ok {
		t.Error("active_job should be omitted when nothing runs")
	}
}

func TestStatusHandler_Rendering(t *testing.T) {
	fj := newFakeJobs()
	fj.add(&store.Job{ID: "job-1", Status: store.JobStatusRunning, Stage: string(export.StageEncoding), Progress: 40})
	fj.active = 1

	rr := httptest.NewRecorder()
	statusHandler(testConfig(fj)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	if body["state"] != "rendering" {
		t.Errorf("state = %v, want rendering", body["state"])
	}
	if body["jobs_running"] != float64(1) {
		t.Errorf("jobs_running = %v, want 1", body["jobs_running"])
	}
	active, ok := body["active_job"].(map[string]interface{})
	if !ok {
		t.Fatal("active_job missing")
	}
	if active["stage"] != "encoding" {
		t.Errorf("active_job.stage = %v, want encoding", active["stage"])
	}
}

func TestStatusHandler_LastError(t *testing.T) {
	fj := newFakeJobs()
	fj.add(&store.Job{ID: "job-1", Status: store.JobStatusFailed, Error: "encode_failure: moov atom not found"})

	rr := httptest.NewRecorder()
	statusHandler(testConfig(fj)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	body := decodeJSONBody(t, rr)
	if body["state"] != "error" {
		t.Errorf("state = %v, want error", body["state"])
	}
	if body["last_error"] != "encode_failure: moov atom not found" {
		t.Errorf("last_error = %v", body["last_error"])
	}
}

func TestPresetsHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	presetsHandler(testConfig(newFakeJobs())).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/presets", nil))

	var resp PresetsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.AspectRatios) == 0 || len(resp.Styles) == 0 {
		t.Fatalf("presets empty: %+v", resp)
	}
}

func TestGetExport(t *testing.T) {
	fj := newFakeJobs()
	fj.add(&store.Job{ID: "job-1", Title: "Team Sync", Status: store.JobStatusCompleted, DurationMs: 7000, OutputPath: "/tmp/a.mp4"})
	router := NewRouter(testConfig(fj))

	rr := authed(router, http.MethodGet, "/exports/job-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["duration_s"] != float64(7) {
		t.Errorf("duration_s = %v, want 7", body["duration_s"])
	}

	rr = authed(router, http.MethodGet, "/exports/missing")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rr.Code)
	}
}

func TestListExports(t *testing.T) {
	fj := newFakeJobs()
	fj.add(&store.Job{ID: "a", Status: store.JobStatusCompleted})
	fj.add(&store.Job{ID: "b", Status: store.JobStatusFailed})
	router := NewRouter(testConfig(fj))

	rr := authed(router, http.MethodGet, "/exports?limit=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp JobsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Jobs) != 1 {
		t.Errorf("len(jobs) = %d, want 1", len(resp.Jobs))
	}

	rr = authed(router, http.MethodGet, "/exports?limit=zero")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}

func TestCancelExport(t *testing.T) {
	fj := newFakeJobs()
	fj.add(&store.Job{ID: "run", Status: store.JobStatusRunning})
	fj.add(&store.Job{ID: "done", Status: store.JobStatusCompleted})
	router := NewRouter(testConfig(fj))

	tests := []struct {
		id   string
		want int
	}{
		{"run", http.StatusAccepted},
		{"done", http.StatusConflict},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			rr := authed(router, http.MethodDelete, "/exports/"+tt.id)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
	if len(fj.cancelled) != 1 || fj.cancelled[0] != "run" {
		t.Errorf("cancelled = %v, want [run]", fj.cancelled)
	}
}

func authed(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func testConfig(fj *fakeJobs) ServerConfig {
	catalog, err := presets.Default()
	if err != nil {
		panic(err)
	}
	return ServerConfig{
		Jobs:             fj,
		Repository:       &fakeRepo{token: testToken},
		Presets:          catalog,
		PlaybackServer:   &fakePlayback{},
		DefaultOutputDir: os.TempDir(),
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartTime:        time.Now(),
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

type fakeJobs struct {
	mu        sync.Mutex
	order     []string
	jobs      map[string]*store.Job
	submitted []export.Request
	cancelled []string
	submitErr error
	active    int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*store.Job)}
}

func (f *fakeJobs) add(j *store.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
	f.order = append(f.order, j.ID)
}

func (f *fakeJobs) Submit(ctx context.Context, req export.Request) (*store.Job, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()
	job := &store.Job{ID: "job-new", Title: req.Title, Status: store.JobStatusPending, SourcePath: req.SourcePath}
	f.add(job)
	return job, nil
}

func (f *fakeJobs) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return jobs.ErrJobNotFound
	}
	if j.Finished() {
		return jobs.ErrJobFinished
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeJobs) Get(ctx context.Context, id string) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobs) List(ctx context.Context, limit int) ([]*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Job, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.jobs[f.order[i]])
	}
	return out, nil
}

func (f *fakeJobs) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeRepo struct {
	token string
}

func (f *fakeRepo) GetConfig(ctx context.Context, key string) (string, error) {
	if key == store.ConfigKeyAuthToken {
		return f.token, nil
	}
	return "", nil
}
