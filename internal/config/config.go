// Package config provides configuration management for the render service.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".heimdex-render"

	// Environment variable names
	EnvPort     = "HEIMDEX_PORT"
	EnvLogLevel = "HEIMDEX_LOG_LEVEL"
	EnvDataDir  = "HEIMDEX_DATA_DIR"
	EnvHeadless = "HEIMDEX_HEADLESS"

	// Encoder environment variable names
	EnvFFmpegPath    = "HEIMDEX_FFMPEG"
	EnvFFprobePath   = "HEIMDEX_FFPROBE"
	EnvFrameRate     = "HEIMDEX_OUTPUT_FPS"
	EnvPreset        = "HEIMDEX_X264_PRESET"
	EnvCRF           = "HEIMDEX_CRF"
	EnvEncodeTimeout = "HEIMDEX_ENCODE_TIMEOUT"

	// Database filename
	DBFilename = "render.db"

	// Encoder defaults
	DefaultFrameRate     = 30
	DefaultPreset        = "medium"
	DefaultCRF           = 23
	DefaultEncodeTimeout = 2 * time.Hour
	DefaultProbeTimeout  = 30 * time.Second
)

var allowedPresets = map[string]struct{}{
	"ultrafast": {},
	"superfast": {},
	"veryfast":  {},
	"faster":    {},
	"fast":      {},
	"medium":    {},
	"slow":      {},
	"slower":    {},
	"veryslow":  {},
}

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	OutputDir() string
	Headless() bool
	FFmpegPath() string
	FFprobePath() string
	FrameRate() int
	Preset() string
	CRF() int
	EncodeTimeout() time.Duration
	ProbeTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	ffmpegPath    string
	ffprobePath   string
	frameRate     int
	preset        string
	crf           int
	encodeTimeout time.Duration
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		frameRate:     DefaultFrameRate,
		preset:        DefaultPreset,
		crf:           DefaultCRF,
		encodeTimeout: DefaultEncodeTimeout,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	if v := os.Getenv(EnvFrameRate); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvFrameRate, err)
		}
		if fps < 1 || fps > 120 {
			return nil, fmt.Errorf("invalid %s: frame rate must be between 1 and 120", EnvFrameRate)
		}
		cfg.frameRate = fps
	}

	if v := os.Getenv(EnvPreset); v != "" {
		if _, ok := allowedPresets[v]; !ok {
			return nil, fmt.Errorf("invalid %s: unknown preset %q", EnvPreset, v)
		}
		cfg.preset = v
	}

	if v := os.Getenv(EnvCRF); v != "" {
		crf, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvCRF, err)
		}
		if crf < 0 || crf > 51 {
			return nil, fmt.Errorf("invalid %s: crf must be between 0 and 51", EnvCRF)
		}
		cfg.crf = crf
	}

	if v := os.Getenv(EnvEncodeTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvEncodeTimeout, err)
		}
		cfg.encodeTimeout = d
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// OutputDir is the default destination for rendered files.
func (c *EnvConfig) OutputDir() string {
	return filepath.Join(c.dataDir, "exports")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// FrameRate is the fixed output cadence.
func (c *EnvConfig) FrameRate() int {
	return c.frameRate
}

func (c *EnvConfig) Preset() string {
	return c.preset
}

func (c *EnvConfig) CRF() int {
	return c.crf
}

func (c *EnvConfig) EncodeTimeout() time.Duration {
	return c.encodeTimeout
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return DefaultProbeTimeout
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
