package synth

import (
	"context"

	"github.com/papercastlabs/papercast-core/internal/config"
)

// Clip is one synthesized speech segment for exactly one dialogue turn.
// PCM is 16-bit mono at SampleRate. Clips are ephemeral: they live in a
// ClipStore until the timeline assembler consumes them.
type Clip struct {
	Speaker    string
	Text       string
	ChapterID  int
	PCM        []int
	SampleRate int
	DurationMS int
}

// SynthRequest contains the parameters to synthesize one turn.
type SynthRequest struct {
	Text    string
	VoiceID string
}

// Synthesizer is the contract for producing one clip per dialogue turn.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (Clip, error)
}

// New selects a backend from config.
func New(cfg config.SynthConfig) (Synthesizer, error) {
	if cfg.Mode == "exec" {
		return NewExecSynth(cfg)
	}
	return NewMockSynth(cfg.SampleRate), nil
}

// durationMS converts a mono sample count to milliseconds, rounding to
// the nearest millisecond so downstream timing stays representable in the
// caption track.
func durationMS(samples, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return int((int64(samples)*1000 + int64(sampleRate)/2) / int64(sampleRate))
}
