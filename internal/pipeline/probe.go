package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

type ffprobeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	result := &ProbeResult{}
	var streamDuration time.Duration
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			// Cover art in audio files shows up as a single-frame video stream.
			if result.HasVideo || s.Disposition.AttachedPic == 1 {
				continue
			}
			result.HasVideo = true
			result.Width = s.Width
			result.Height = s.Height
			result.Codec = s.CodecName
			result.Rotation = streamRotation(s)
			result.FrameRate = parseFrameRate(s.AvgFrameRate)
			if result.FrameRate == 0 {
				result.FrameRate = parseFrameRate(s.RFrameRate)
			}
			streamDuration = parseSeconds(s.Duration)
		case "audio":
			if result.HasAudio {
				continue
			}
			result.HasAudio = true
			result.AudioCodec = s.CodecName
			if streamDuration == 0 {
				streamDuration = parseSeconds(s.Duration)
			}
		}
	}

	result.Duration = parseSeconds(out.Format.Duration)
	if result.Duration == 0 {
		result.Duration = streamDuration
	}
	if result.Duration <= 0 {
		return nil, errors.New("media has no duration")
	}
	result.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)
	return result, nil
}

func streamRotation(s ffprobeStream) int {
	if v, ok := s.Tags["rotate"]; ok {
		if r, err := strconv.Atoi(v); err == nil {
			return normalizeRotation(r)
		}
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			return normalizeRotation(int(math.Round(sd.Rotation)))
		}
	}
	return 0
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25".
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(math.Round(f * float64(time.Second)))
}

// readProgress consumes ffmpeg "-progress" key=value output until EOF,
// reporting the completed fraction of total.
func readProgress(r io.Reader, total time.Duration, report func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || report == nil {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || total <= 0 {
				continue
			}
			report(progressFraction(time.Duration(us)*time.Microsecond, total))
		case "progress":
			if value == "end" {
				report(1)
			}
		}
	}
	// Drain anything left so the process never blocks on a full pipe.
	io.Copy(io.Discard, r)
}

func progressFraction(done, total time.Duration) float64 {
	if total <= 0 || done <= 0 {
		return 0
	}
	f := float64(done) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}
