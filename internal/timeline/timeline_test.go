package timeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/papercastlabs/papercast-core/internal/podcast"
	"github.com/papercastlabs/papercast-core/internal/synth"
)

const testRate = 22050

func clip(speaker string, chapterID, durationMS int) synth.Clip {
	samples := testRate * durationMS / 1000
	return synth.Clip{
		Speaker:    speaker,
		Text:       speaker + " speaks",
		ChapterID:  chapterID,
		PCM:        make([]int, samples),
		SampleRate: testRate,
		DurationMS: durationMS,
	}
}

func TestAssemblePlacement(t *testing.T) {
	chapters := []podcast.Chapter{{ID: 0, Title: "Intro"}, {ID: 1, Title: "Results"}}
	clips := []synth.Clip{
		clip("A", 0, 2880),
		clip("B", 0, 3100),
		clip("A", 1, 1500),
	}
	opts := Options{GapMS: 600, IntroMS: 4000}

	tl, pcm, err := Assemble(chapters, clips, nil, testRate, opts)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(tl.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(tl.Segments))
	}

	if tl.Segments[0].StartMS != opts.IntroMS {
		t.Fatalf("first segment starts at %d, want %d", tl.Segments[0].StartMS, opts.IntroMS)
	}
	for i, seg := range tl.Segments {
		if seg.EndMS != seg.StartMS+clips[i].DurationMS {
			t.Fatalf("segment %d width %d, want %d", i, seg.EndMS-seg.StartMS, clips[i].DurationMS)
		}
		if i > 0 {
			prev := tl.Segments[i-1]
			if seg.StartMS != prev.EndMS+opts.GapMS {
				t.Fatalf("segment %d starts at %d, want %d", i, seg.StartMS, prev.EndMS+opts.GapMS)
			}
		}
	}

	last := tl.Segments[len(tl.Segments)-1]
	if tl.DurationMS != last.EndMS+opts.GapMS {
		t.Fatalf("duration %d, want trailing gap after %d", tl.DurationMS, last.EndMS)
	}
	if wantSamples := testRate * tl.DurationMS / 1000; len(pcm) != wantSamples {
		t.Fatalf("pcm length %d, want %d", len(pcm), wantSamples)
	}
}

func TestAssembleChapterOffsets(t *testing.T) {
	chapters := []podcast.Chapter{
		{ID: 0, Title: "Intro"},
		{ID: 1, Title: "Skipped"},
		{ID: 2, Title: "Results"},
	}
	clips := []synth.Clip{
		clip("A", 0, 1000),
		clip("B", 2, 2000),
	}
	tl, _, err := Assemble(chapters, clips, nil, testRate, Options{GapMS: 600, IntroMS: 4000})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(tl.Chapters) != 3 {
		t.Fatalf("expected 3 timed chapters, got %d", len(tl.Chapters))
	}

	if tl.Chapters[0].StartSec != 4.0 {
		t.Fatalf("chapter 0 starts at %v", tl.Chapters[0].StartSec)
	}
	// A chapter with no turns inherits the start of the next chapter.
	if tl.Chapters[1].StartSec != tl.Chapters[2].StartSec {
		t.Fatalf("empty chapter start %v, want %v", tl.Chapters[1].StartSec, tl.Chapters[2].StartSec)
	}
	if tl.Chapters[2].StartSec != 5.6 {
		t.Fatalf("chapter 2 starts at %v, want 5.6", tl.Chapters[2].StartSec)
	}
	if tl.Chapters[2].EndSec != tl.DurationSec() {
		t.Fatalf("last chapter ends at %v, want %v", tl.Chapters[2].EndSec, tl.DurationSec())
	}
	// Chapter ends meet the following chapter's start.
	for i := 0; i+1 < len(tl.Chapters); i++ {
		if tl.Chapters[i].EndSec != tl.Chapters[i+1].StartSec {
			t.Fatalf("chapter %d end %v != chapter %d start %v",
				i, tl.Chapters[i].EndSec, i+1, tl.Chapters[i+1].StartSec)
		}
	}
}

func TestAssembleEmptyScript(t *testing.T) {
	_, _, err := Assemble(nil, nil, nil, testRate, Options{})
	if err != ErrEmptyScript {
		t.Fatalf("expected ErrEmptyScript, got %v", err)
	}
}

func TestCuesMatchSegments(t *testing.T) {
	clips := []synth.Clip{
		clip("A", 0, 2880),
		clip("B", 0, 0), // synthesized to silence
		clip("A", 0, 1500),
	}
	tl, _, err := Assemble([]podcast.Chapter{{ID: 0, Title: "Only"}}, clips, nil, testRate, Options{GapMS: 600, IntroMS: 4000})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	cues := tl.Cues()
	if len(cues) != 2 {
		t.Fatalf("zero-width segment must not produce a cue, got %d cues", len(cues))
	}
	for i := 0; i+1 < len(cues); i++ {
		if cues[i].EndSec > cues[i+1].StartSec {
			t.Fatalf("cues %d and %d overlap", i, i+1)
		}
	}
	if cues[0].StartSec != 4.0 || cues[0].EndSec != 6.88 {
		t.Fatalf("unexpected first cue timing: %v -> %v", cues[0].StartSec, cues[0].EndSec)
	}
}

func TestMixOverlaysMusic(t *testing.T) {
	clips := []synth.Clip{clip("A", 0, 500)}
	music := make([]int, testRate) // one second of full-scale-ish tone
	for i := range music {
		music[i] = 10000
	}

	opts := Options{GapMS: 600, IntroMS: 1000, MusicGainDB: -24, MusicDuckDB: -32}
	_, pcm, err := Assemble([]podcast.Chapter{{ID: 0, Title: "Only"}}, clips, music, testRate, opts)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	// One sample inside the music-only intro, one inside the speech window.
	introSample := pcm[testRate/2]
	speechSample := pcm[testRate+testRate/10]
	if introSample == 0 {
		t.Fatal("intro must carry music")
	}
	// Ducked music is quieter than intro music.
	if abs(speechSample) >= abs(introSample) {
		t.Fatalf("speech-window music %d not ducked below intro %d", speechSample, introSample)
	}
}

func TestMixWithoutMusicIsSilentBetweenTurns(t *testing.T) {
	clips := []synth.Clip{clip("A", 0, 500), clip("B", 0, 500)}
	_, pcm, err := Assemble([]podcast.Chapter{{ID: 0, Title: "Only"}}, clips, nil, testRate, Options{GapMS: 600, IntroMS: 1000})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// Sample inside the inter-turn gap: 1000+500+300 ms.
	at := testRate * 1800 / 1000
	if pcm[at] != 0 {
		t.Fatalf("expected silence in gap, got %d", pcm[at])
	}
}

func TestEncodeWAV(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(target)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pcm := make([]int, testRate/10)
	if err := EncodeWAV(f, pcm, testRate); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	loaded, err := LoadMusicWAV(target, testRate)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != len(pcm) {
		t.Fatalf("loaded %d samples, want %d", len(loaded), len(pcm))
	}

	if _, err := LoadMusicWAV(target, 44100); err == nil {
		t.Fatal("expected sample rate mismatch error")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
