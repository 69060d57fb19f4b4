package synth

import (
	"context"
	"math"
	"strings"
	"time"
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth produces a quiet sine tone whose length scales with the
// word count (roughly spoken pace), so timelines built from mock clips
// have realistic non-zero durations. Empty text yields an empty clip.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate}
}

const msPerWord = 320

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (Clip, error) {
	select {
	case <-ctx.Done():
		return Clip{}, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	words := len(strings.Fields(req.Text))
	ms := words * msPerWord
	samples := m.sampleRate * ms / 1000

	freq := 220.0
	if req.VoiceID != "" && req.VoiceID[len(req.VoiceID)-1] == 'b' {
		freq = 180.0
	}
	pcm := make([]int, samples)
	for i := range pcm {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(m.sampleRate))
		pcm[i] = int(v * 3000)
	}

	return Clip{
		Text:       req.Text,
		PCM:        pcm,
		SampleRate: m.sampleRate,
		DurationMS: durationMS(samples, m.sampleRate),
	}, nil
}
