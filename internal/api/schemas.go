package api

import (
	"time"

	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/overlay"
	"github.com/heimdex/heimdex-render/internal/store"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string       `json:"state"`
	LastError   string       `json:"last_error,omitempty"`
	JobsRunning int          `json:"jobs_running"`
	ActiveJob   *JobResponse `json:"active_job,omitempty"`
}

type PresetsResponse struct {
	AspectRatios []geometry.AspectRatio `json:"aspect_ratios"`
	Styles       []overlay.CaptionStyle `json:"styles"`
}

// ExportRequestBody is the JSON body of POST /exports. Times are seconds.
type ExportRequestBody struct {
	SourcePath           string        `json:"source_path" validate:"required"`
	Title                string        `json:"title" validate:"max=200"`
	OutputDir            string        `json:"output_dir,omitempty"`
	ReplacementAudioPath string        `json:"replacement_audio_path,omitempty"`
	AspectRatio          string        `json:"aspect_ratio,omitempty" validate:"required_without=Width"`
	Width                int           `json:"width,omitempty" validate:"omitempty,min=16,max=7680"`
	Height               int           `json:"height,omitempty" validate:"omitempty,min=16,max=7680"`
	Style                string        `json:"style,omitempty"`
	Exclusions           []RangeBody   `json:"exclusions,omitempty" validate:"dive"`
	Captions             []CaptionBody `json:"captions,omitempty" validate:"dive"`
	WriteEDL             bool          `json:"write_edl,omitempty"`
}

// Times are capped at 24h so they always fit a time.Duration.
type RangeBody struct {
	Start float64 `json:"start" validate:"gte=0,lte=86400"`
	End   float64 `json:"end" validate:"gtfield=Start,lte=86400"`
}

type CaptionBody struct {
	Words []WordBody `json:"words" validate:"required,min=1,dive"`
}

type WordBody struct {
	Text  string  `json:"text" validate:"required"`
	Start float64 `json:"start" validate:"gte=0,lte=86400"`
	End   float64 `json:"end" validate:"gtefield=Start,lte=86400"`
}

type SubmitExportResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Stage      string  `json:"stage"`
	Progress   int     `json:"progress"`
	SourcePath string  `json:"source_path"`
	OutputPath string  `json:"output_path,omitempty"`
	EDLPath    string  `json:"edl_path,omitempty"`
	ErrorKind  string  `json:"error_kind,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationS  float64 `json:"duration_s,omitempty"`
	SizeBytes  int64   `json:"size_bytes,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *store.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Title:      j.Title,
		Status:     j.Status,
		Stage:      j.Stage,
		Progress:   j.Progress,
		SourcePath: j.SourcePath,
		OutputPath: j.OutputPath,
		EDLPath:    j.EDLPath,
		ErrorKind:  j.ErrorKind,
		Error:      j.Error,
		DurationS:  float64(j.DurationMs) / 1000,
		SizeBytes:  j.SizeBytes,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}
