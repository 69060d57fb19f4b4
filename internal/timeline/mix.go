package timeline

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/papercastlabs/papercast-core/internal/synth"
)

// mix renders the timeline to mono PCM: speech clips at their segment
// offsets over background music looped to the full length, attenuated to
// the configured level and ducked further wherever speech is active.
// Music never alters speech placement or level.
func mix(t Timeline, clips []synth.Clip, music []int, opts Options) []int {
	total := msToSamples(t.DurationMS, t.SampleRate)
	out := make([]int, total)

	if len(music) > 0 {
		gain := dbGain(opts.MusicGainDB)
		duck := dbGain(opts.MusicDuckDB)
		speech := speechMask{segments: t.Segments}
		for i := 0; i < total; i++ {
			g := gain
			if speech.active(samplesToMS(i, t.SampleRate)) {
				g = duck
			}
			out[i] = int(float64(music[i%len(music)]) * g)
		}
	}

	for i, clip := range clips {
		if i >= len(t.Segments) {
			break
		}
		start := msToSamples(t.Segments[i].StartMS, t.SampleRate)
		for j, sample := range clip.PCM {
			idx := start + j
			if idx >= total {
				break
			}
			out[idx] = clampInt16(out[idx] + sample)
		}
	}
	return out
}

// speechMask answers "is any turn speaking at this millisecond" without
// scanning all segments per sample.
type speechMask struct {
	segments []Segment
}

func (m speechMask) active(ms int) bool {
	for _, seg := range m.segments {
		if ms >= seg.StartMS && ms < seg.EndMS {
			return true
		}
		if seg.StartMS > ms {
			return false
		}
	}
	return false
}

func dbGain(db float64) float64 {
	return math.Pow(10, db/20)
}

func clampInt16(v int) int {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return v
}

func msToSamples(ms, rate int) int {
	return int(int64(ms) * int64(rate) / 1000)
}

func samplesToMS(samples, rate int) int {
	return int(int64(samples) * 1000 / int64(rate))
}

// EncodeWAV writes mono 16-bit PCM as a WAV stream.
func EncodeWAV(ws io.WriteSeeker, pcm []int, sampleRate int) error {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   pcm,
	}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// LoadMusicWAV reads a background music asset. The asset must be mono,
// 16-bit, and match the timeline sample rate; anything else is rejected
// rather than resampled.
func LoadMusicWAV(path string, sampleRate int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open music asset: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode music asset: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels != 1 {
		return nil, fmt.Errorf("music asset must be mono")
	}
	if buf.Format.SampleRate != sampleRate {
		return nil, fmt.Errorf("music asset sample rate %d does not match %d", buf.Format.SampleRate, sampleRate)
	}
	return buf.Data, nil
}
