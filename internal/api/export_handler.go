package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/heimdex/heimdex-render/internal/captions"
	"github.com/heimdex/heimdex-render/internal/export"
	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/jobs"
	"github.com/heimdex/heimdex-render/internal/overlay"
	"github.com/heimdex/heimdex-render/internal/presets"
	"github.com/heimdex/heimdex-render/internal/store"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

const defaultStyleName = "classic"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func submitExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := ParseExportRequest(r.Body, cfg.Presets, cfg.DefaultOutputDir)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.Submit(r.Context(), req)
		if err != nil {
			if errors.Is(err, jobs.ErrShuttingDown) {
				WriteError(w, http.StatusServiceUnavailable, err.Error(), "SHUTTING_DOWN")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, SubmitExportResponse{JobID: job.ID})
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		list, err := cfg.Jobs.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list exports", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := cfg.Jobs.Cancel(r.Context(), id)
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, "export not found", "NOT_FOUND")
			return
		case errors.Is(err, jobs.ErrJobFinished):
			WriteError(w, http.StatusConflict, "export already finished", "CONFLICT")
			return
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func exportFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}
		if job.Status != store.JobStatusCompleted || job.OutputPath == "" {
			WriteError(w, http.StatusConflict, "export has no output yet", "NOT_READY")
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, job.OutputPath); err != nil {
			cfg.Logger.Error("playback error", "error", err, "job_id", job.ID)
		}
	}
}

func lookupJob(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*store.Job, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "export id required", "BAD_REQUEST")
		return nil, false
	}

	job, err := cfg.Jobs.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "export not found", "NOT_FOUND")
		return nil, false
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil, false
	}
	return job, true
}

// ParseExportRequest decodes and validates a JSON export request body and
// resolves it against the preset catalog.
func ParseExportRequest(r io.Reader, catalog *presets.Catalog, defaultOutputDir string) (export.Request, error) {
	var body ExportRequestBody
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return export.Request{}, fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(&body); err != nil {
		return export.Request{}, errors.New(validationMessage(err))
	}
	return toExportRequest(body, catalog, defaultOutputDir)
}

// toExportRequest resolves preset names and converts seconds to durations.
func toExportRequest(body ExportRequestBody, catalog *presets.Catalog, defaultOutputDir string) (export.Request, error) {
	req := export.Request{
		SourcePath:           body.SourcePath,
		Title:                body.Title,
		ReplacementAudioPath: body.ReplacementAudioPath,
		OutputDir:            body.OutputDir,
		WriteEDL:             body.WriteEDL,
	}
	if req.OutputDir == "" {
		req.OutputDir = defaultOutputDir
	}

	switch {
	case body.Width > 0 || body.Height > 0:
		if body.Width <= 0 || body.Height <= 0 {
			return req, fmt.Errorf("width and height must be given together")
		}
		name := body.AspectRatio
		if name == "" {
			name = "custom"
		}
		req.AspectRatio = geometry.AspectRatio{Name: name, Width: body.Width, Height: body.Height}
	default:
		ar, ok := catalog.AspectRatio(body.AspectRatio)
		if !ok {
			return req, fmt.Errorf("unknown aspect_ratio %q", body.AspectRatio)
		}
		req.AspectRatio = ar
	}

	for _, ex := range body.Exclusions {
		req.Exclusions = append(req.Exclusions, timeline.NewRange(seconds(ex.Start), seconds(ex.End)))
	}

	for _, c := range body.Captions {
		words := make([]captions.TimedWord, len(c.Words))
		for i, w := range c.Words {
			words[i] = captions.TimedWord{Text: w.Text, Start: seconds(w.Start), End: seconds(w.End)}
		}
		req.Captions = append(req.Captions, captions.NewCaption(words))
	}

	if len(req.Captions) > 0 || body.Style != "" {
		name := body.Style
		if name == "" {
			name = defaultStyleName
		}
		style, ok := catalog.Style(name)
		if !ok {
			return req, fmt.Errorf("unknown style %q", name)
		}
		req.Style = style
	} else {
		req.Style = overlay.CaptionStyle{Variant: overlay.VariantClassic}
	}

	return req, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
