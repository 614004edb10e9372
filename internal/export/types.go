package export

import (
	"fmt"

	"github.com/heimdex/heimdex-render/internal/captions"
	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/overlay"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

// Request is one export: a source recording, what to cut from it, how to
// frame it, and which captions to burn in.
type Request struct {
	SourcePath           string                  `json:"source_path"`
	Title                string                  `json:"title"`
	Captions             []captions.TimedCaption `json:"captions"`
	ReplacementAudioPath string                  `json:"replacement_audio_path,omitempty"`
	AspectRatio          geometry.AspectRatio    `json:"aspect_ratio"`
	Style                overlay.CaptionStyle    `json:"style"`
	Exclusions           []timeline.TimeRange    `json:"exclusions"`
	OutputDir            string                  `json:"output_dir"`
	WriteEDL             bool                    `json:"write_edl,omitempty"`
}

// Stage is a state of the export state machine.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageValidating   Stage = "validating"
	StageComposing    Stage = "composing"
	StageTransforming Stage = "transforming"
	StageOverlaying   Stage = "overlaying"
	StageEncoding     Stage = "encoding"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
	StageCancelled    Stage = "cancelled"
)

// Terminal reports whether no further transition can follow s.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// Kind classifies an export failure.
type Kind string

const (
	KindMissingVideoTrack      Kind = "missing_video_track"
	KindNoContentRemaining     Kind = "no_content_remaining"
	KindTrackInsertionFailure  Kind = "track_insertion_failure"
	KindEncodeFailure          Kind = "encode_failure"
	KindEncodeCancelled        Kind = "encode_cancelled"
	KindEncodeUnknown          Kind = "encode_unknown"
	KindDestinationUnavailable Kind = "destination_unavailable"
	KindInvalidRequest         Kind = "invalid_request"
	KindProbeFailure           Kind = "probe_failure"
)

// Error is the typed failure surfaced by the orchestrator.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	if err != nil {
		e.Reason = err.Error()
	}
	return e
}

// Result is the single outcome of an export: a path on success, a reason otherwise.
type Result struct {
	Success    bool   `json:"success"`
	Stage      Stage  `json:"stage"`
	OutputPath string `json:"output_path,omitempty"`
	EDLPath    string `json:"edl_path,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`
	// DurationMs is the composed output duration.
	DurationMs int64 `json:"duration_ms,omitempty"`
	SizeBytes  int64 `json:"size_bytes,omitempty"`
}

// Err returns the failure as an *Error, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.Kind, Reason: r.Reason}
}

func failed(stage Stage, e *Error) Result {
	return Result{Stage: stage, Kind: e.Kind, Reason: e.Reason}
}
