package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

// Service synthesizes every dialogue turn of a script in order and parks
// the resulting clips in a per-job store until assembly.
type Service struct {
	cfg    config.SynthConfig
	synth  Synthesizer
	logger *slog.Logger
}

func NewService(cfg config.SynthConfig, synth Synthesizer, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		synth:  synth,
		logger: logger.With(slog.String("component", "synth-service")),
	}
}

// SynthesizeScript produces one clip per dialogue turn, in script order.
// Turns whose text is blank are skipped entirely; a turn that synthesizes
// to empty audio yields a zero-duration clip (placed but never captioned).
func (s *Service) SynthesizeScript(ctx context.Context, script podcast.PodcastScript, voicePair string) ([]Clip, error) {
	voiceA, voiceB := s.cfg.VoiceIDs.ForPair(voicePair)

	clips := make([]Clip, 0, len(script.Dialogue))
	for i, turn := range script.Dialogue {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		voice := voiceA
		if strings.ToUpper(turn.Speaker) == "B" {
			voice = voiceB
		}

		callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		clip, err := s.synth.Synthesize(callCtx, SynthRequest{Text: text, VoiceID: voice})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("synthesize turn %d/%d: %w", i+1, len(script.Dialogue), err)
		}

		clip.Speaker = strings.ToUpper(turn.Speaker)
		clip.Text = text
		clip.ChapterID = turn.ChapterID
		clips = append(clips, clip)

		s.logger.Debug("turn synthesized",
			slog.Int("turn", i+1),
			slog.Int("total", len(script.Dialogue)),
			slog.Int("duration_ms", clip.DurationMS))
	}
	return clips, nil
}

// ClipStore holds synthesized clips keyed by job id between the
// synthesis and mixing stages. Clips are removed on Take; they have no
// value once the timeline is assembled.
type ClipStore struct {
	mu    sync.Mutex
	clips map[string][]Clip
}

func NewClipStore() *ClipStore {
	return &ClipStore{clips: make(map[string][]Clip)}
}

func (cs *ClipStore) Put(jobID string, clips []Clip) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.clips[jobID] = clips
}

// Take returns and removes a job's clips.
func (cs *ClipStore) Take(jobID string) ([]Clip, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	clips, ok := cs.clips[jobID]
	delete(cs.clips, jobID)
	return clips, ok
}

func (cs *ClipStore) Drop(jobID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.clips, jobID)
}
