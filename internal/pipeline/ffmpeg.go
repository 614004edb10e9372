// Package pipeline drives ffprobe and ffmpeg as subprocesses.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-render/internal/compose"
	"github.com/heimdex/heimdex-render/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

var (
	ErrEncodeCancelled = errors.New("encode cancelled")
	ErrEncodeUnknown   = errors.New("encode ended for an unknown reason")
)

// EncodeError is a non-zero ffmpeg exit.
type EncodeError struct {
	ExitCode   int
	StderrTail string
}

func (e *EncodeError) Error() string {
	tail := strings.TrimSpace(e.StderrTail)
	if tail == "" {
		return fmt.Sprintf("ffmpeg exited %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited %d: %s", e.ExitCode, lastLine(tail))
}

// FFmpeg is the prober/encoder contract used by the export orchestrator.
type FFmpeg interface {
	Probe(ctx context.Context, filePath string) (*ProbeResult, error)
	Encode(ctx context.Context, job EncodeJob) (EncodeResult, error)
}

// ProbeResult is the subset of ffprobe output the composer needs.
type ProbeResult struct {
	Duration   time.Duration
	HasVideo   bool
	HasAudio   bool
	Width      int
	Height     int
	Rotation   int
	Codec      string
	Bitrate    int64
	FrameRate  float64
	AudioCodec string
}

// EncodeResult describes a finished encode.
type EncodeResult struct {
	OutputPath string
	Size       int64
	Elapsed    time.Duration
}

type Config struct {
	FFmpegPath   string // empty = look up "ffmpeg" on PATH
	FFprobePath  string // empty = look up "ffprobe" on PATH
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// RealFFmpeg runs the ffmpeg/ffprobe binaries.
type RealFFmpeg struct {
	ffmpeg       string
	ffprobe      string
	probeTimeout time.Duration
	logger       *slog.Logger
}

// NewRealFFmpeg resolves both binaries up front.
func NewRealFFmpeg(cfg Config) (*RealFFmpeg, error) {
	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := logging.WithComponent(cfg.Logger, "ffmpeg")
	logger.Info("ffmpeg resolved", "ffmpeg", ffmpeg, "ffprobe", ffprobe)

	return &RealFFmpeg{
		ffmpeg:       ffmpeg,
		ffprobe:      ffprobe,
		probeTimeout: timeout,
		logger:       logger,
	}, nil
}

func (f *RealFFmpeg) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", logging.SanitizePath(filePath), err, truncate(stderrBuf.String(), 512))
	}

	result, err := parseProbeOutput(out)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", logging.SanitizePath(filePath), err)
	}

	f.logger.Debug("probe complete",
		"path", logging.SanitizePath(filePath),
		"duration", result.Duration,
		"size", fmt.Sprintf("%dx%d", result.Width, result.Height),
		"audio", result.HasAudio,
	)
	return result, nil
}

// Encode runs ffmpeg for job. Cancelling ctx kills the process and yields ErrEncodeCancelled.
func (f *RealFFmpeg) Encode(ctx context.Context, job EncodeJob) (EncodeResult, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0755); err != nil {
		return EncodeResult{}, fmt.Errorf("%w: cannot create output dir: %v", ErrEncodeUnknown, err)
	}

	args, err := BuildArgs(job)
	if err != nil {
		return EncodeResult{}, err
	}

	if ctx.Err() != nil {
		return EncodeResult{}, f.interrupted(ctx, "", time.Since(start))
	}

	cmd := exec.CommandContext(ctx, f.ffmpeg, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return EncodeResult{}, fmt.Errorf("%w: %v", ErrEncodeUnknown, err)
	}

	f.logger.Info("executing encode",
		"output", logging.SanitizePath(job.OutputPath),
		"duration", job.Composition.Duration,
		"segments", len(job.Composition.Video.Segments),
		"overlay", job.OverlayPath != "",
	)

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return EncodeResult{}, f.interrupted(ctx, "", time.Since(start))
		}
		return EncodeResult{}, fmt.Errorf("%w: %v", ErrEncodeUnknown, err)
	}

	readProgress(stdout, job.Composition.Duration, job.Progress)

	err = cmd.Wait()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return EncodeResult{}, f.interrupted(ctx, stderrBuf.String(), elapsed)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			encErr := &EncodeError{ExitCode: exitErr.ExitCode(), StderrTail: stderrBuf.String()}
			f.logger.Warn("encode failed",
				"exit_code", encErr.ExitCode,
				"duration_ms", elapsed.Milliseconds(),
				"stderr_tail", truncate(encErr.StderrTail, 512),
			)
			return EncodeResult{}, encErr
		}
		return EncodeResult{}, fmt.Errorf("%w: %v", ErrEncodeUnknown, err)
	}

	info, err := os.Stat(job.OutputPath)
	if err != nil {
		return EncodeResult{}, fmt.Errorf("%w: output missing after encode: %v", ErrEncodeUnknown, err)
	}

	f.logger.Info("encode succeeded",
		"duration_ms", elapsed.Milliseconds(),
		"output", logging.SanitizePath(job.OutputPath),
		"size", humanize.Bytes(uint64(info.Size())),
	)

	return EncodeResult{OutputPath: job.OutputPath, Size: info.Size(), Elapsed: elapsed}, nil
}

// interrupted maps a done context to the encode outcome: a deadline is a
// timed-out failure, anything else is a cancellation.
func (f *RealFFmpeg) interrupted(ctx context.Context, stderr string, elapsed time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		f.logger.Warn("encode timed out", "duration_ms", elapsed.Milliseconds())
		return &EncodeError{ExitCode: -1, StderrTail: stderr + "\nencode timed out"}
	}
	f.logger.Warn("encode cancelled", "duration_ms", elapsed.Milliseconds())
	return fmt.Errorf("%w: %v", ErrEncodeCancelled, ctx.Err())
}

// Asset converts a probe result into a composable media asset.
// Rotated video reports its display size.
func (p *ProbeResult) Asset(path string) compose.MediaAsset {
	w, h := p.Width, p.Height
	if p.Rotation%180 != 0 {
		w, h = h, w
	}
	asset := compose.MediaAsset{
		Path:      path,
		Duration:  p.Duration,
		HasVideo:  p.HasVideo,
		HasAudio:  p.HasAudio,
		FrameRate: p.FrameRate,
	}
	asset.NaturalSize.Width = w
	asset.NaturalSize.Height = h
	return asset
}

// resolveBinary finds a usable executable.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
