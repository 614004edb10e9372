package export

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/compose"
)

// GenerateEDL renders the video track as a CMX3600 edit decision list so the
// cut can be reopened in an NLE. Record times follow the compacted timeline.
// Timecodes count whole frames at the rounded rate, so 29.97 is written as
// 30 fps non-drop.
func GenerateEDL(segments []compose.Segment, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	lines := []string{fmt.Sprintf("TITLE: %s", title), "FCM: NON-DROP FRAME", ""}

	for i, seg := range segments {
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				timecode(seg.Source.Start, fps), timecode(seg.Source.End(), fps),
				timecode(seg.At, fps), timecode(seg.At+seg.Source.Duration, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", filepath.Base(seg.SourcePath)),
			fmt.Sprintf("* MEDIA PATH:  %s", seg.SourcePath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// EDLPath is the sidecar path for an output file.
func EDLPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".edl"
}

func timecode(d time.Duration, fps int) string {
	totalFrames := int(math.Round(d.Seconds() * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
