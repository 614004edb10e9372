// Package compose builds a composition (one video track and at most one audio
// track) from the ranges of a source that survive editing.
package compose

import (
	"errors"
	"fmt"
	"time"

	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

var (
	ErrMissingVideoTrack  = errors.New("source has no video track")
	ErrNoContentRemaining = errors.New("no content remaining after exclusions")
	ErrTrackInsertion     = errors.New("track insertion failed")
)

// MediaAsset describes a probed media file.
type MediaAsset struct {
	Path        string
	Duration    time.Duration
	HasVideo    bool
	HasAudio    bool
	NaturalSize geometry.Size
	FrameRate   float64
}

type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Segment places Source (a range of SourcePath) at At on the output timeline.
type Segment struct {
	SourcePath string
	Source     timeline.TimeRange
	At         time.Duration
}

// Track is an ordered append target. Segments are contiguous on the output timeline.
type Track struct {
	Kind     TrackKind
	Segments []Segment
}

func (t *Track) Duration() time.Duration {
	if t == nil || len(t.Segments) == 0 {
		return 0
	}
	last := t.Segments[len(t.Segments)-1]
	return last.At + last.Source.Duration
}

// Insert appends r of asset to the end of the track.
func (t *Track) Insert(asset MediaAsset, r timeline.TimeRange) error {
	if r.IsEmpty() {
		return fmt.Errorf("%w: empty %s range %v", ErrTrackInsertion, t.Kind, r)
	}
	if r.Start < 0 || r.End() > asset.Duration {
		return fmt.Errorf("%w: %s range %v outside asset bounds [0, %s)", ErrTrackInsertion, t.Kind, r, asset.Duration)
	}
	t.Segments = append(t.Segments, Segment{
		SourcePath: asset.Path,
		Source:     r,
		At:         t.Duration(),
	})
	return nil
}

// Composition is the edited timeline handed to the encoder.
type Composition struct {
	Video *Track
	Audio *Track // nil when the output is silent

	// Duration is the inserted video duration and is authoritative downstream.
	Duration    time.Duration
	NaturalSize geometry.Size
	FrameRate   float64

	// HasExclusions records whether the source was cut, i.e. audio follows
	// the included ranges rather than running as one block.
	HasExclusions bool
}

// Compose appends every included range of source into a video track and
// builds the matching audio track from replacement (if non-nil) or the source.
func Compose(included []timeline.TimeRange, hasExclusions bool, source MediaAsset, replacement *MediaAsset) (*Composition, error) {
	if !source.HasVideo {
		return nil, ErrMissingVideoTrack
	}
	if len(included) == 0 {
		return nil, ErrNoContentRemaining
	}

	video := &Track{Kind: TrackVideo}
	for _, r := range included {
		if err := video.Insert(source, r); err != nil {
			return nil, err
		}
	}

	comp := &Composition{
		Video:         video,
		Duration:      video.Duration(),
		NaturalSize:   source.NaturalSize,
		FrameRate:     source.FrameRate,
		HasExclusions: hasExclusions,
	}

	audioAsset := source
	if replacement != nil {
		audioAsset = *replacement
	}
	if !audioAsset.HasAudio {
		return comp, nil
	}

	audio, err := composeAudio(included, hasExclusions, source, audioAsset)
	if err != nil {
		return nil, err
	}
	if audio != nil && len(audio.Segments) > 0 {
		comp.Audio = audio
	}
	return comp, nil
}

func composeAudio(included []timeline.TimeRange, hasExclusions bool, source, audioAsset MediaAsset) (*Track, error) {
	audio := &Track{Kind: TrackAudio}

	if !hasExclusions {
		block := min(source.Duration, audioAsset.Duration)
		if block <= 0 {
			return nil, nil
		}
		if err := audio.Insert(audioAsset, timeline.TimeRange{Start: 0, Duration: block}); err != nil {
			return nil, err
		}
		return audio, nil
	}

	// The audio asset is taken to span the same timeline as the source, so it
	// is cut with the same ranges. Ranges past its end are clipped away.
	for _, r := range included {
		clipped := timeline.ClipTo(r, audioAsset.Duration)
		if clipped.IsEmpty() {
			continue
		}
		if err := audio.Insert(audioAsset, clipped); err != nil {
			return nil, err
		}
	}
	return audio, nil
}
