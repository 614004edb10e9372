package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/api"
	"github.com/heimdex/heimdex-render/internal/config"
	"github.com/heimdex/heimdex-render/internal/export"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/pipeline"
	"github.com/heimdex/heimdex-render/internal/presets"
)

var (
	exportRequestPath string
	exportOutputDir   string
	exportQuiet       bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a single export and print the result as JSON",
	Long: `Reads an export request (the same JSON accepted by POST /exports),
renders it in the foreground and writes the result JSON to stdout.
Progress goes to stderr. Ctrl-C cancels the encode and removes the
partial output.

  heimdex-render export --request req.json
  cat req.json | heimdex-render export --request -`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportRequestPath, "request", "r", "", "path to the request JSON, or - for stdin")
	exportCmd.Flags().StringVarP(&exportOutputDir, "output-dir", "o", "", "override the request's output directory")
	exportCmd.Flags().BoolVarP(&exportQuiet, "quiet", "q", false, "do not print progress")
	_ = exportCmd.MarkFlagRequired("request")
}

func runExport(stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLoggerTo(stderr, cfg.LogLevel())

	in := stdin
	if exportRequestPath != "-" {
		f, err := os.Open(exportRequestPath)
		if err != nil {
			return fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		in = f
	}

	catalog, err := presets.Default()
	if err != nil {
		return fmt.Errorf("failed to load presets: %w", err)
	}

	defaultDir := cfg.OutputDir()
	if exportOutputDir != "" {
		defaultDir = exportOutputDir
	}
	req, err := api.ParseExportRequest(in, catalog, defaultDir)
	if err != nil {
		return err
	}
	if exportOutputDir != "" {
		req.OutputDir = exportOutputDir
	}
	if req.OutputDir == cfg.OutputDir() {
		if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	ffmpeg, err := pipeline.NewRealFFmpeg(pipeline.Config{
		FFmpegPath:   cfg.FFmpegPath(),
		FFprobePath:  cfg.FFprobePath(),
		ProbeTimeout: cfg.ProbeTimeout(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []export.Option{
		export.WithRecorder(export.StageRecorderFunc(func(s export.Stage) {
			logger.Info("export stage", "stage", s)
		})),
	}
	if !exportQuiet {
		opts = append(opts, export.WithProgress(progressPrinter(stderr)))
	}

	res := export.NewOrchestrator(ffmpeg, settingsFrom(cfg), logger).Run(ctx, req, opts...)
	if !exportQuiet {
		fmt.Fprintln(stderr)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if !res.Success {
		return res.Err()
	}
	logger.Info("export complete",
		"output", res.OutputPath,
		"size", humanize.Bytes(uint64(res.SizeBytes)),
		slog.Int64("duration_ms", res.DurationMs),
	)
	return nil
}

func progressPrinter(w io.Writer) func(float64) {
	last := -1
	return func(f float64) {
		pct := int(f * 100)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rencoding %3d%%", pct)
	}
}
