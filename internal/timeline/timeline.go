// Package timeline turns a job's ordered synthesized clips into one
// continuous audio artifact. It owns all placement math: every timing
// value is computed in integer milliseconds so the derived caption cues
// are bit-exact against the track format's millisecond resolution.
package timeline

import (
	"errors"
	"fmt"

	"github.com/papercastlabs/papercast-core/internal/podcast"
	"github.com/papercastlabs/papercast-core/internal/synth"
)

// ErrEmptyScript is returned when a script has no dialogue turns to place.
var ErrEmptyScript = errors.New("script has no dialogue turns")

// Options control clip placement and music mixing.
type Options struct {
	GapMS       int     // silence between consecutive turns
	IntroMS     int     // music-only lead-in before the first turn
	MusicGainDB float64 // music level relative to full scale
	MusicDuckDB float64 // music level while speech is active
}

// Segment is one placed clip with absolute timeline offsets.
type Segment struct {
	Speaker   string
	Text      string
	ChapterID int
	StartMS   int
	EndMS     int
}

// Timeline is the resolved placement of all clips and chapters.
type Timeline struct {
	Segments   []Segment
	Chapters   []podcast.TimedChapter
	DurationMS int
	SampleRate int
}

// DurationSec reports the total length in seconds.
func (t Timeline) DurationSec() float64 {
	return float64(t.DurationMS) / 1000
}

// Cues derives caption cues from the placed segments. Zero-width
// segments (empty synthesis output) produce no cue: a cue must satisfy
// start < end. Cues inherit the segments' ordering, so they are strictly
// increasing and non-overlapping by construction.
func (t Timeline) Cues() []podcast.CaptionCue {
	cues := make([]podcast.CaptionCue, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if seg.EndMS <= seg.StartMS {
			continue
		}
		cues = append(cues, podcast.CaptionCue{
			StartSec: float64(seg.StartMS) / 1000,
			EndSec:   float64(seg.EndMS) / 1000,
			Speaker:  seg.Speaker,
			Text:     seg.Text,
		})
	}
	return cues
}

// Assemble places clips in script order behind a running cursor and
// resolves chapter offsets. The cursor starts at the intro offset; each
// clip occupies [cursor, cursor+duration) and the cursor then advances by
// duration plus the configured gap. Returns the timeline and the mixed
// mono PCM at sampleRate.
func Assemble(chapters []podcast.Chapter, clips []synth.Clip, music []int, sampleRate int, opts Options) (Timeline, []int, error) {
	if len(clips) == 0 {
		return Timeline{SampleRate: sampleRate}, nil, ErrEmptyScript
	}
	if sampleRate <= 0 {
		return Timeline{}, nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	t := Timeline{SampleRate: sampleRate}
	cursor := opts.IntroMS
	for _, clip := range clips {
		seg := Segment{
			Speaker:   clip.Speaker,
			Text:      clip.Text,
			ChapterID: clip.ChapterID,
			StartMS:   cursor,
			EndMS:     cursor + clip.DurationMS,
		}
		t.Segments = append(t.Segments, seg)
		cursor = seg.EndMS + opts.GapMS
	}
	// Trailing gap doubles as an outro pause.
	t.DurationMS = cursor
	t.Chapters = resolveChapters(chapters, t.Segments, t.DurationMS)

	pcm := mix(t, clips, music, opts)
	return t, pcm, nil
}

// resolveChapters assigns each chapter the start of its first matching
// turn. A chapter with no turns inherits the start of the nearest
// following chapter that has one, or 0 if none exists. Chapter ends are
// the next chapter's start, the total duration for the last.
func resolveChapters(chapters []podcast.Chapter, segments []Segment, totalMS int) []podcast.TimedChapter {
	startOf := make(map[int]int, len(chapters))
	for _, seg := range segments {
		if _, seen := startOf[seg.ChapterID]; !seen {
			startOf[seg.ChapterID] = seg.StartMS
		}
	}

	starts := make([]int, len(chapters))
	for i := len(chapters) - 1; i >= 0; i-- {
		if ms, ok := startOf[chapters[i].ID]; ok {
			starts[i] = ms
		} else if i+1 < len(chapters) {
			starts[i] = starts[i+1]
		} else {
			starts[i] = 0
		}
	}

	timed := make([]podcast.TimedChapter, 0, len(chapters))
	for i, ch := range chapters {
		endMS := totalMS
		if i+1 < len(chapters) {
			endMS = starts[i+1]
		}
		timed = append(timed, podcast.TimedChapter{
			ID:       ch.ID,
			Title:    ch.Title,
			StartSec: float64(starts[i]) / 1000,
			EndSec:   float64(endMS) / 1000,
		})
	}
	return timed
}
