// Package ui shows render activity in the system tray.
package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-render/internal/store"
)

//go:embed icon.png
var iconBytes []byte

const refreshInterval = 2 * time.Second

// Activity is the read side of the job manager the tray polls.
type Activity interface {
	ActiveCount() int
	List(ctx context.Context, limit int) ([]*store.Job, error)
}

type Tray struct {
	activity  Activity
	exportDir string
	logger    *slog.Logger

	statusItem *systray.MenuItem
	lastItem   *systray.MenuItem

	mu   sync.Mutex
	stop chan struct{}

	onQuit func()
}

type TrayConfig struct {
	Activity  Activity
	ExportDir string
	Logger    *slog.Logger
	OnQuit    func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		activity:  cfg.Activity,
		exportDir: cfg.ExportDir,
		logger:    cfg.Logger,
		onQuit:    cfg.OnQuit,
		stop:      make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Heimdex")
	systray.SetTooltip("Heimdex Render")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current render status")
	t.statusItem.Disable()

	t.lastItem = systray.AddMenuItem("No exports yet", "Most recent export")
	t.lastItem.Disable()

	systray.AddSeparator()

	openItem := systray.AddMenuItem("Open Exports Folder", "Show rendered videos")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Heimdex Render")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-openItem.ClickedCh:
				if err := OpenFolder(t.exportDir); err != nil {
					t.logger.Error("failed to open exports folder", "error", err, "dir", t.exportDir)
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.mu.Unlock()
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		t.refresh()
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *Tray) refresh() {
	if t.activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	recent, err := t.activity.List(ctx, 1)
	if err != nil {
		t.logger.Debug("tray refresh failed", "error", err)
		return
	}
	var last *store.Job
	if len(recent) > 0 {
		last = recent[0]
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(statusLine(t.activity.ActiveCount()))
	t.lastItem.SetTitle(lastExportLine(last, time.Now()))
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusLine(active int) string {
	switch active {
	case 0:
		return "Status: Idle"
	case 1:
		return "Status: Rendering 1 export"
	default:
		return fmt.Sprintf("Status: Rendering %d exports", active)
	}
}

func lastExportLine(j *store.Job, now time.Time) string {
	if j == nil {
		return "No exports yet"
	}
	name := j.Title
	if name == "" {
		name = "Untitled"
	}
	switch j.Status {
	case store.JobStatusRunning, store.JobStatusPending:
		return fmt.Sprintf("%s: %s %d%%", name, j.Stage, j.Progress)
	case store.JobStatusCompleted:
		return fmt.Sprintf("%s: %s, %s", name, humanize.Bytes(uint64(j.SizeBytes)), humanize.RelTime(j.UpdatedAt, now, "ago", "from now"))
	default:
		return fmt.Sprintf("%s: %s", name, j.Status)
	}
}

// OpenFolder reveals dir in the platform file browser.
func OpenFolder(dir string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", dir)
	case "windows":
		cmd = exec.Command("explorer", dir)
	default:
		cmd = exec.Command("xdg-open", dir)
	}
	return cmd.Start()
}
