package pipeline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-render/internal/compose"
	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

func sec(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func testComposition(t *testing.T, replacement *compose.MediaAsset) *compose.Composition {
	t.Helper()
	src := compose.MediaAsset{
		Path:        "/rec/source.mov",
		Duration:    sec(10),
		HasVideo:    true,
		HasAudio:    true,
		NaturalSize: geometry.Size{Width: 1920, Height: 1080},
	}
	exclusions := []timeline.TimeRange{timeline.NewRange(sec(2), sec(4)), timeline.NewRange(sec(6), sec(7))}
	included := timeline.ComputeIncludedRanges(src.Duration, exclusions)
	comp, err := compose.Compose(included, true, src, replacement)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	return comp
}

func testJob(t *testing.T, comp *compose.Composition) EncodeJob {
	out := geometry.Size{Width: 1080, Height: 1080}
	return EncodeJob{
		Composition: comp,
		Transform:   geometry.ComputeFillTransform(comp.NaturalSize, out),
		OutputSize:  out,
		OutputPath:  "/out/My Clip_20260101_120000.mp4",
	}
}

func TestBuildArgs_SourceAudio(t *testing.T) {
	job := testJob(t, testComposition(t, nil))

	args, err := BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	joined := strings.Join(args, " ")

	if strings.Count(joined, "-i ") != 1 {
		t.Fatalf("expected a single input, got %q", joined)
	}
	for _, want := range []string{"-map [vout]", "-map [aout]", "-c:v libx264", "-preset medium", "-crf 23", "-r 30", "-t 7.000000", "-c:a aac"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %q", want, joined)
		}
	}
	if args[len(args)-1] != job.OutputPath {
		t.Errorf("output path should be last, got %q", args[len(args)-1])
	}
}

func TestBuildArgs_ReplacementAudio(t *testing.T) {
	replacement := &compose.MediaAsset{Path: "/music/bed.m4a", Duration: sec(20), HasAudio: true}
	job := testJob(t, testComposition(t, replacement))

	args, err := BuildArgs(job)
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-i /rec/source.mov -i /music/bed.m4a") {
		t.Fatalf("expected source then replacement inputs: %q", joined)
	}

	graph := BuildFilterGraph(job, func(p string) int {
		if p == "/music/bed.m4a" {
			return 1
		}
		return 0
	})
	if !strings.Contains(graph, "[1:a]atrim=start=0.000000:end=2.000000") {
		t.Fatalf("audio should be trimmed from replacement input: %q", graph)
	}
}

func TestBuildArgs_Silent(t *testing.T) {
	comp := testComposition(t, nil)
	comp.Audio = nil
	args, err := BuildArgs(testJob(t, comp))
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "[aout]") || !strings.Contains(joined, "-an") {
		t.Fatalf("silent composition should not map audio: %q", joined)
	}
}

func TestBuildArgs_RequiresVideo(t *testing.T) {
	if _, err := BuildArgs(EncodeJob{OutputPath: "/x.mp4"}); err == nil {
		t.Fatal("expected error without composition")
	}
}

func TestBuildFilterGraph(t *testing.T) {
	job := testJob(t, testComposition(t, nil))
	job.OverlayPath = "/tmp/caps:1.ass"
	job.FrameRate = 25

	graph := BuildFilterGraph(job, func(string) int { return 0 })

	if n := strings.Count(graph, "trim=start="); n != 6 {
		t.Errorf("expected 3 video + 3 audio trims, got %d: %q", n, graph)
	}
	for _, want := range []string{
		"[0:v]trim=start=0.000000:end=2.000000,setpts=PTS-STARTPTS[v0]",
		"[0:v]trim=start=4.000000:end=6.000000,setpts=PTS-STARTPTS[v1]",
		"[0:v]trim=start=7.000000:end=10.000000,setpts=PTS-STARTPTS[v2]",
		"[v0][v1][v2]concat=n=3:v=1:a=0[vcat]",
		"[vcat]scale=1920:1080,crop=1080:1080:420:0,setsar=1,fps=25,ass=filename=/tmp/caps\\\\:1.ass[vout]",
		"[a0][a1][a2]concat=n=3:v=0:a=1[aout]",
	} {
		if !strings.Contains(graph, want) {
			t.Errorf("graph missing %q:\n%s", want, graph)
		}
	}
}

func TestBuildFilterGraph_NoOverlay(t *testing.T) {
	graph := BuildFilterGraph(testJob(t, testComposition(t, nil)), func(string) int { return 0 })
	if strings.Contains(graph, "ass=") {
		t.Fatalf("overlay filter present without overlay: %q", graph)
	}
}

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001", "duration": "12.012",
     "side_data_list": [{"rotation": -90}]},
    {"codec_type": "audio", "codec_name": "aac", "duration": "12.000"}
  ],
  "format": {"duration": "12.034000", "bit_rate": "8000000"}
}`

func TestParseProbeOutput(t *testing.T) {
	res, err := parseProbeOutput([]byte(probeJSON))
	if err != nil {
		t.Fatalf("parseProbeOutput() error = %v", err)
	}
	if !res.HasVideo || !res.HasAudio {
		t.Fatalf("expected video and audio, got %+v", res)
	}
	if res.Duration != 12034*time.Millisecond {
		t.Errorf("Duration = %v, want 12.034s", res.Duration)
	}
	if res.Rotation != 270 {
		t.Errorf("Rotation = %d, want 270", res.Rotation)
	}
	if res.FrameRate < 29.96 || res.FrameRate > 29.98 {
		t.Errorf("FrameRate = %v", res.FrameRate)
	}
	if res.Bitrate != 8000000 {
		t.Errorf("Bitrate = %d", res.Bitrate)
	}

	asset := res.Asset("/rec/phone.mov")
	if asset.NaturalSize.Width != 1080 || asset.NaturalSize.Height != 1920 {
		t.Errorf("rotated natural size = %v, want 1080x1920", asset.NaturalSize)
	}
}

func TestParseProbeOutput_AudioOnlyWithCoverArt(t *testing.T) {
	doc := `{"streams":[
		{"codec_type":"video","codec_name":"mjpeg","width":600,"height":600,"disposition":{"attached_pic":1}},
		{"codec_type":"audio","codec_name":"mp3"}],
		"format":{"duration":"200.5"}}`
	res, err := parseProbeOutput([]byte(doc))
	if err != nil {
		t.Fatalf("parseProbeOutput() error = %v", err)
	}
	if res.HasVideo {
		t.Error("cover art should not count as a video track")
	}
	if !res.HasAudio {
		t.Error("expected audio")
	}
}

func TestParseProbeOutput_NoDuration(t *testing.T) {
	if _, err := parseProbeOutput([]byte(`{"streams":[],"format":{}}`)); err == nil {
		t.Fatal("expected error for media without duration")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25", 25},
		{"60/1", 60},
		{"0/0", 0},
		{"", 0},
		{"abc", 0},
	}
	for _, tc := range tests {
		if got := parseFrameRate(tc.in); got != tc.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestReadProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=10",
		"out_time_us=2500000",
		"progress=continue",
		"out_time_ms=5000000",
		"progress=end",
	}, "\n")

	var got []float64
	readProgress(strings.NewReader(input), sec(10), func(f float64) { got = append(got, f) })

	want := []float64{0.25, 0.5, 1}
	if len(got) != len(want) {
		t.Fatalf("progress reports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadProgress_NilReporter(t *testing.T) {
	readProgress(strings.NewReader("out_time_us=1\nprogress=end\n"), sec(1), nil)
}

func TestEncodeError(t *testing.T) {
	err := &EncodeError{ExitCode: 1, StderrTail: "noise\nInvalid argument\n"}
	if err.Error() != "ffmpeg exited 1: Invalid argument" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if (&EncodeError{ExitCode: 2}).Error() != "ffmpeg exited 2" {
		t.Fatal("empty tail formatting mismatch")
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestResolveBinary_PreferredNotFound(t *testing.T) {
	if _, err := resolveBinary("/nonexistent/ffmpeg999", "ffmpeg"); err == nil {
		t.Fatal("expected error for nonexistent binary")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
