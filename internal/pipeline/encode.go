package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/compose"
	"github.com/heimdex/heimdex-render/internal/geometry"
)

// Encoding defaults.
const (
	DefaultFrameRate    = 30
	DefaultPreset       = "medium"
	DefaultCRF          = 23
	DefaultVideoCodec   = "libx264"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "192k"
)

// EncodeJob is everything ffmpeg needs to render one composition.
type EncodeJob struct {
	Composition *compose.Composition
	Transform   geometry.Transform
	OutputSize  geometry.Size
	OverlayPath string // ASS script; empty = no overlay stage
	OutputPath  string

	FrameRate int
	Preset    string
	CRF       int

	// Progress receives the completed fraction in [0, 1]. May be nil.
	Progress func(float64)
}

// BuildArgs renders the ffmpeg command line for job.
func BuildArgs(job EncodeJob) ([]string, error) {
	comp := job.Composition
	if comp == nil || comp.Video == nil || len(comp.Video.Segments) == 0 {
		return nil, errors.New("composition has no video segments")
	}
	if job.OutputPath == "" {
		return nil, errors.New("output path is required")
	}

	inputs := newInputSet()
	for _, seg := range comp.Video.Segments {
		inputs.add(seg.SourcePath)
	}
	if comp.Audio != nil {
		for _, seg := range comp.Audio.Segments {
			inputs.add(seg.SourcePath)
		}
	}

	graph := BuildFilterGraph(job, inputs.index)

	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, path := range inputs.paths {
		args = append(args, "-i", path)
	}
	args = append(args, "-filter_complex", graph, "-map", "[vout]")
	if comp.Audio != nil {
		args = append(args, "-map", "[aout]")
	}

	preset := job.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	crf := job.CRF
	if crf <= 0 {
		crf = DefaultCRF
	}

	args = append(args,
		"-c:v", DefaultVideoCodec,
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(frameRate(job)),
	)
	if comp.Audio != nil {
		args = append(args, "-c:a", DefaultAudioCodec, "-b:a", DefaultAudioBitrate)
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-movflags", "+faststart",
		"-t", seconds(comp.Duration),
		"-progress", "pipe:1",
		"-nostats",
		job.OutputPath,
	)
	return args, nil
}

// BuildFilterGraph trims and concatenates each track's segments, then fits,
// normalizes the frame rate and burns in the overlay on the video chain.
func BuildFilterGraph(job EncodeJob, inputIndex func(string) int) string {
	comp := job.Composition
	var parts []string

	labels := make([]string, 0, len(comp.Video.Segments))
	for i, seg := range comp.Video.Segments {
		label := fmt.Sprintf("v%d", i)
		parts = append(parts, fmt.Sprintf("[%d:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS[%s]",
			inputIndex(seg.SourcePath), seconds(seg.Source.Start), seconds(seg.Source.End()), label))
		labels = append(labels, "["+label+"]")
	}
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vcat]", strings.Join(labels, ""), len(labels)))

	chain := []string{
		job.Transform.FilterChain(comp.NaturalSize, job.OutputSize),
		"setsar=1",
		fmt.Sprintf("fps=%d", frameRate(job)),
	}
	if job.OverlayPath != "" {
		chain = append(chain, "ass=filename="+escapeFilterValue(job.OverlayPath))
	}
	parts = append(parts, "[vcat]"+strings.Join(chain, ",")+"[vout]")

	if comp.Audio != nil && len(comp.Audio.Segments) > 0 {
		alabels := make([]string, 0, len(comp.Audio.Segments))
		for i, seg := range comp.Audio.Segments {
			label := fmt.Sprintf("a%d", i)
			parts = append(parts, fmt.Sprintf("[%d:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[%s]",
				inputIndex(seg.SourcePath), seconds(seg.Source.Start), seconds(seg.Source.End()), label))
			alabels = append(alabels, "["+label+"]")
		}
		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aout]", strings.Join(alabels, ""), len(alabels)))
	}

	return strings.Join(parts, ";")
}

func frameRate(job EncodeJob) int {
	if job.FrameRate > 0 {
		return job.FrameRate
	}
	return DefaultFrameRate
}

// seconds formats d for ffmpeg time options.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

// escapeFilterValue escapes a value for use inside a filtergraph option.
func escapeFilterValue(s string) string {
	r := strings.NewReplacer(
		`\`, `\\\\`,
		`'`, `\\\'`,
		`:`, `\\:`,
		`,`, `\,`,
		`;`, `\;`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return r.Replace(s)
}

type inputSet struct {
	paths []string
	byKey map[string]int
}

func newInputSet() *inputSet {
	return &inputSet{byKey: make(map[string]int)}
}

func (s *inputSet) add(path string) {
	if _, ok := s.byKey[path]; ok {
		return
	}
	s.byKey[path] = len(s.paths)
	s.paths = append(s.paths, path)
}

func (s *inputSet) index(path string) int {
	return s.byKey[path]
}
