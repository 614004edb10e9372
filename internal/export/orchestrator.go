// Package export runs the export state machine: validate a request, compose
// the edited timeline, fit it to the target frame, render caption overlays
// and hand the result to the encoder.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-render/internal/captions"
	"github.com/heimdex/heimdex-render/internal/compose"
	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/overlay"
	"github.com/heimdex/heimdex-render/internal/pipeline"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

// StageRecorder observes every state transition of an export.
type StageRecorder interface {
	RecordStage(stage Stage)
}

// StageRecorderFunc adapts a function to StageRecorder.
type StageRecorderFunc func(Stage)

func (f StageRecorderFunc) RecordStage(stage Stage) { f(stage) }

// Settings are the encoder parameters shared by every export.
type Settings struct {
	FrameRate     int
	Preset        string
	CRF           int
	EncodeTimeout time.Duration
}

// Option customizes a single Start call.
type Option func(*runOptions)

type runOptions struct {
	recorder   StageRecorder
	progress   func(float64)
	onComplete func(Result)
	executor   func(func())
}

// WithRecorder reports stage transitions to rec.
func WithRecorder(rec StageRecorder) Option {
	return func(o *runOptions) { o.recorder = rec }
}

// WithProgress receives encode progress in [0, 1].
func WithProgress(fn func(float64)) Option {
	return func(o *runOptions) { o.progress = fn }
}

// WithCompletion invokes fn once with the final result.
func WithCompletion(fn func(Result)) Option {
	return func(o *runOptions) { o.onComplete = fn }
}

// WithExecutor runs the completion callback through exec instead of the
// export goroutine.
func WithExecutor(exec func(func())) Option {
	return func(o *runOptions) { o.executor = exec }
}

// Orchestrator drives exports against an FFmpeg implementation.
type Orchestrator struct {
	ffmpeg   pipeline.FFmpeg
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(ff pipeline.FFmpeg, settings Settings, logger *slog.Logger) *Orchestrator {
	if settings.FrameRate <= 0 {
		settings.FrameRate = pipeline.DefaultFrameRate
	}
	return &Orchestrator{
		ffmpeg:   ff,
		settings: settings,
		logger:   logging.WithComponent(logger, "export"),
		now:      time.Now,
	}
}

// Start launches the export on its own goroutine and returns immediately.
// Only the encode stage observes cancellation of ctx.
func (o *Orchestrator) Start(ctx context.Context, req Request, opts ...Option) *Future {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	f := newFuture()
	f.onComplete = ro.onComplete
	f.executor = ro.executor

	r := &exportRun{
		o:      o,
		req:    req,
		opts:   ro,
		stage:  StageIdle,
		logger: o.logger,
	}
	go func() {
		f.resolve(r.execute(ctx))
	}()
	return f
}

// Run is Start followed by waiting for the result.
func (o *Orchestrator) Run(ctx context.Context, req Request, opts ...Option) Result {
	f := o.Start(ctx, req, opts...)
	<-f.Done()
	res, _ := f.Result()
	return res
}

type exportRun struct {
	o      *Orchestrator
	req    Request
	opts   runOptions
	stage  Stage
	dest   string
	logger *slog.Logger
}

func (r *exportRun) enter(stage Stage) {
	r.stage = stage
	r.logger.Info("stage entered", "stage", stage)
	if r.opts.recorder != nil {
		r.opts.recorder.RecordStage(stage)
	}
}

func (r *exportRun) fail(e *Error) Result {
	if r.dest != "" {
		removeIfExists(r.dest)
		if r.req.WriteEDL {
			removeIfExists(EDLPath(r.dest))
		}
	}

	final := StageFailed
	if e.Kind == KindEncodeCancelled {
		final = StageCancelled
	}
	r.logger.Warn("export failed",
		"stage", r.stage,
		"kind", e.Kind,
		"error", e.Error(),
	)
	r.enter(final)
	return failed(final, e)
}

func (r *exportRun) execute(ctx context.Context) Result {
	start := time.Now()

	r.enter(StageValidating)
	if e := r.validate(); e != nil {
		return r.fail(e)
	}
	r.logger = logging.WithJobID(r.logger, filepath.Base(r.dest))

	r.enter(StageComposing)
	source, replacement, e := r.probe(ctx)
	if e != nil {
		return r.fail(e)
	}
	included := timeline.ComputeIncludedRanges(source.Duration, r.req.Exclusions)
	excluded := timeline.ExcludedDuration(source.Duration, r.req.Exclusions)
	comp, err := compose.Compose(included, excluded > 0, source, replacement)
	if err != nil {
		return r.fail(composeError(err))
	}
	r.logger.Info("composition built",
		"source_duration", source.Duration,
		"excluded", excluded,
		"duration", comp.Duration,
		"segments", len(comp.Video.Segments),
		"audio", comp.Audio != nil,
	)

	r.enter(StageTransforming)
	outSize := r.req.AspectRatio.Size()
	transform := geometry.ComputeFillTransform(comp.NaturalSize, outSize)

	var overlayPath string
	if len(r.req.Captions) > 0 {
		r.enter(StageOverlaying)
		adjusted := captions.ClampCaptions(captions.AdjustCaptions(r.req.Captions, r.req.Exclusions), comp.Duration)
		instructions := overlay.BuildInstructions(adjusted, r.req.Style, outSize, comp.Duration)
		if len(instructions) > 0 {
			overlayPath, err = r.writeOverlay(instructions, outSize)
			if err != nil {
				return r.fail(newError(KindDestinationUnavailable, err))
			}
			defer os.Remove(overlayPath)
		}
	}

	if err := os.Remove(r.dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return r.fail(newError(KindDestinationUnavailable, fmt.Errorf("remove existing output: %w", err)))
	}

	var edlPath string
	if r.req.WriteEDL {
		edlPath = EDLPath(r.dest)
		edl := GenerateEDL(comp.Video.Segments, r.req.Title, float64(r.o.settings.FrameRate))
		if err := os.WriteFile(edlPath, []byte(edl), 0o644); err != nil {
			return r.fail(newError(KindDestinationUnavailable, fmt.Errorf("write edl: %w", err)))
		}
	}

	r.enter(StageEncoding)
	encCtx := ctx
	if r.o.settings.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		encCtx, cancel = context.WithTimeout(ctx, r.o.settings.EncodeTimeout)
		defer cancel()
	}
	res, err := r.o.ffmpeg.Encode(encCtx, pipeline.EncodeJob{
		Composition: comp,
		Transform:   transform,
		OutputSize:  outSize,
		OverlayPath: overlayPath,
		OutputPath:  r.dest,
		FrameRate:   r.o.settings.FrameRate,
		Preset:      r.o.settings.Preset,
		CRF:         r.o.settings.CRF,
		Progress:    r.opts.progress,
	})
	if err != nil {
		return r.fail(encodeError(err))
	}

	r.enter(StageCompleted)
	r.logger.Info("export completed",
		"output", logging.SanitizePath(r.dest),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{
		Success:    true,
		Stage:      StageCompleted,
		OutputPath: r.dest,
		EDLPath:    edlPath,
		DurationMs: comp.Duration.Milliseconds(),
		SizeBytes:  res.Size,
	}
}

func (r *exportRun) validate() *Error {
	req := r.req
	if strings.TrimSpace(req.SourcePath) == "" {
		return &Error{Kind: KindInvalidRequest, Reason: "source_path is required"}
	}
	if err := checkReadable(req.SourcePath); err != nil {
		return newError(KindInvalidRequest, fmt.Errorf("source: %w", err))
	}
	if req.ReplacementAudioPath != "" {
		if err := checkReadable(req.ReplacementAudioPath); err != nil {
			return newError(KindInvalidRequest, fmt.Errorf("replacement audio: %w", err))
		}
	}
	if !req.AspectRatio.Size().Valid() {
		return &Error{Kind: KindInvalidRequest, Reason: fmt.Sprintf("aspect ratio must be positive, got %dx%d", req.AspectRatio.Width, req.AspectRatio.Height)}
	}
	for _, ex := range req.Exclusions {
		if ex.Start < 0 || ex.Duration < 0 {
			return &Error{Kind: KindInvalidRequest, Reason: fmt.Sprintf("invalid exclusion %v", ex)}
		}
	}
	if len(req.Captions) > 0 {
		if err := req.Style.Validate(); err != nil {
			return newError(KindInvalidRequest, err)
		}
	}

	if err := ValidateOutputDir(req.OutputDir); err != nil {
		return newError(KindDestinationUnavailable, err)
	}
	probe, err := os.CreateTemp(req.OutputDir, ".heimdex-write-*")
	if err != nil {
		return newError(KindDestinationUnavailable, fmt.Errorf("output_dir is not writable: %w", err))
	}
	probe.Close()
	os.Remove(probe.Name())

	r.dest = OutputPath(req.OutputDir, req.Title, r.o.now())
	return nil
}

// probe inspects the source and replacement audio concurrently. It ignores
// cancellation of ctx; only encoding is cancellable.
func (r *exportRun) probe(ctx context.Context) (compose.MediaAsset, *compose.MediaAsset, *Error) {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))

	var src, repl *pipeline.ProbeResult
	g.Go(func() error {
		p, err := r.o.ffmpeg.Probe(gctx, r.req.SourcePath)
		if err != nil {
			return fmt.Errorf("probe source: %w", err)
		}
		src = p
		return nil
	})
	if r.req.ReplacementAudioPath != "" {
		g.Go(func() error {
			p, err := r.o.ffmpeg.Probe(gctx, r.req.ReplacementAudioPath)
			if err != nil {
				return fmt.Errorf("probe replacement audio: %w", err)
			}
			repl = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return compose.MediaAsset{}, nil, newError(KindProbeFailure, err)
	}

	source := src.Asset(r.req.SourcePath)
	if repl == nil {
		return source, nil, nil
	}
	replacement := repl.Asset(r.req.ReplacementAudioPath)
	if !replacement.HasAudio {
		r.logger.Warn("replacement has no audio track, output will be silent",
			"path", logging.SanitizePath(r.req.ReplacementAudioPath))
	}
	return source, &replacement, nil
}

// writeOverlay renders instructions to a hidden ASS file beside the output.
func (r *exportRun) writeOverlay(instructions []overlay.Instruction, canvas geometry.Size) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(r.dest), ".heimdex-captions-*.ass")
	if err != nil {
		return "", fmt.Errorf("create overlay: %w", err)
	}
	if err := overlay.WriteASS(f, instructions, r.req.Style, canvas); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write overlay: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close overlay: %w", err)
	}
	r.logger.Debug("overlay written", "instructions", len(instructions), "variant", r.req.Style.Variant)
	return f.Name(), nil
}

func composeError(err error) *Error {
	switch {
	case errors.Is(err, compose.ErrMissingVideoTrack):
		return newError(KindMissingVideoTrack, err)
	case errors.Is(err, compose.ErrNoContentRemaining):
		return newError(KindNoContentRemaining, err)
	default:
		return newError(KindTrackInsertionFailure, err)
	}
}

func encodeError(err error) *Error {
	var encErr *pipeline.EncodeError
	switch {
	case errors.Is(err, pipeline.ErrEncodeCancelled):
		return &Error{Kind: KindEncodeCancelled, Reason: "export cancelled", Err: err}
	case errors.As(err, &encErr):
		reason := strings.TrimSpace(encErr.StderrTail)
		if reason == "" {
			reason = encErr.Error()
		}
		return &Error{Kind: KindEncodeFailure, Reason: reason, Err: err}
	default:
		return newError(KindEncodeUnknown, err)
	}
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	return nil
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("failed to remove output", "path", logging.SanitizePath(path), "error", err)
	}
}
