// Package jobs runs exports in the background and records their progress.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heimdex/heimdex-render/internal/export"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/store"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobFinished  = errors.New("job already finished")
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// Exporter starts an export and returns its pending outcome.
type Exporter interface {
	Start(ctx context.Context, req export.Request, opts ...export.Option) *export.Future
}

type activeJob struct {
	cancel   context.CancelFunc
	future   *export.Future
	progress int
}

// Manager submits exports, keeps their cancel funcs and persists status.
type Manager struct {
	exporter Exporter
	repo     store.Repository
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*activeJob
	closed bool
	wg     sync.WaitGroup
}

func NewManager(exporter Exporter, repo store.Repository, logger *slog.Logger) *Manager {
	return &Manager{
		exporter: exporter,
		repo:     repo,
		logger:   logging.WithComponent(logger, "jobs"),
		active:   make(map[string]*activeJob),
	}
}

// Submit records a job and starts the export. The export outlives ctx;
// use Cancel to stop it.
func (m *Manager) Submit(ctx context.Context, req export.Request) (*store.Job, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	now := time.Now()
	job := &store.Job{
		ID:         store.NewID(),
		Title:      req.Title,
		Status:     store.JobStatusRunning,
		Stage:      string(export.StageIdle),
		SourcePath: req.SourcePath,
		Request:    string(body),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if err := m.repo.CreateJob(ctx, job); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("create job: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	aj := &activeJob{cancel: cancel}
	m.active[job.ID] = aj
	m.wg.Add(1)
	m.mu.Unlock()

	logger := logging.WithJobID(m.logger, job.ID)
	logger.Info("export submitted", "title", req.Title, "source", logging.SanitizePath(req.SourcePath))

	fut := m.exporter.Start(runCtx, req,
		export.WithRecorder(export.StageRecorderFunc(func(stage export.Stage) {
			m.recordStage(job.ID, stage)
		})),
		export.WithProgress(func(f float64) {
			m.recordProgress(job.ID, f)
		}),
		export.WithCompletion(func(res export.Result) {
			m.finish(job.ID, res)
			cancel()
		}),
	)

	m.mu.Lock()
	aj.future = fut
	m.mu.Unlock()

	return job, nil
}

// Cancel stops a running export. The encoder observes it; earlier stages finish first.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	aj, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		aj.cancel()
		logging.WithJobID(m.logger, id).Info("export cancel requested")
		return nil
	}

	job, err := m.repo.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	return ErrJobFinished
}

func (m *Manager) Get(ctx context.Context, id string) (*store.Job, error) {
	job, err := m.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (m *Manager) List(ctx context.Context, limit int) ([]*store.Job, error) {
	return m.repo.ListJobs(ctx, limit)
}

// Wait blocks until the job finishes or ctx ends and returns the stored job.
func (m *Manager) Wait(ctx context.Context, id string) (*store.Job, error) {
	m.mu.Lock()
	aj, ok := m.active[id]
	var fut *export.Future
	if ok {
		fut = aj.future
	}
	m.mu.Unlock()

	if fut != nil {
		if _, err := fut.Wait(ctx); err != nil {
			return nil, err
		}
	}
	// The completion callback persists after the future resolves.
	for {
		job, err := m.Get(ctx, id)
		if err != nil || job.Finished() {
			return job, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// ActiveCount is the number of exports still running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown refuses new jobs, cancels running ones and waits for them to resolve.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, aj := range m.active {
		aj.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) recordStage(id string, stage export.Stage) {
	if stage.Terminal() {
		return
	}
	if err := m.repo.UpdateJobStage(context.Background(), id, store.JobStatusRunning, string(stage)); err != nil {
		logging.WithJobID(m.logger, id).Warn("failed to record stage", "stage", stage, "error", err)
	}
}

func (m *Manager) recordProgress(id string, fraction float64) {
	pct := int(fraction * 100)
	if pct > 100 {
		pct = 100
	}

	m.mu.Lock()
	aj, ok := m.active[id]
	if !ok || pct <= aj.progress {
		m.mu.Unlock()
		return
	}
	aj.progress = pct
	m.mu.Unlock()

	if err := m.repo.UpdateJobProgress(context.Background(), id, pct); err != nil {
		logging.WithJobID(m.logger, id).Warn("failed to record progress", "error", err)
	}
}

func (m *Manager) finish(id string, res export.Result) {
	defer m.wg.Done()

	outcome := store.JobOutcome{
		Status:     statusFor(res),
		Stage:      string(res.Stage),
		OutputPath: res.OutputPath,
		EDLPath:    res.EDLPath,
		ErrorKind:  string(res.Kind),
		Error:      res.Reason,
		DurationMs: res.DurationMs,
		SizeBytes:  res.SizeBytes,
	}
	logger := logging.WithJobID(m.logger, id)
	if err := m.repo.FinishJob(context.Background(), id, outcome); err != nil {
		logger.Error("failed to record job outcome", "status", outcome.Status, "error", err)
	}

	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	logger.Info("export finished", "status", outcome.Status, "kind", res.Kind)
}

func statusFor(res export.Result) string {
	switch {
	case res.Success:
		return store.JobStatusCompleted
	case res.Stage == export.StageCancelled:
		return store.JobStatusCancelled
	default:
		return store.JobStatusFailed
	}
}
