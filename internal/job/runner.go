package job

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/papercastlabs/papercast-core/internal/blob"
	"github.com/papercastlabs/papercast-core/internal/bus"
	"github.com/papercastlabs/papercast-core/internal/captions"
	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/extract"
	"github.com/papercastlabs/papercast-core/internal/podcast"
	"github.com/papercastlabs/papercast-core/internal/scriptgen"
	"github.com/papercastlabs/papercast-core/internal/synth"
	"github.com/papercastlabs/papercast-core/internal/timeline"
)

// Progress set points per stage. Bands never overlap, so progress stays
// monotonic across stage transitions.
const (
	pctParsingStart   = 5
	pctParsingDone    = 15
	pctScriptingStart = 25
	pctScriptingDone  = 40
	pctSynthStart     = 60
	pctSynthDone      = 75
	pctMixing         = 90
	pctDone           = 100
)

// AudioKey and CaptionsKey name a job's artifacts in the blob store.
func AudioKey(jobID string) string    { return path.Join("jobs", jobID, "podcast.wav") }
func CaptionsKey(jobID string) string { return path.Join("jobs", jobID, "captions.vtt") }

// Runner drives each job's pipeline as an independent goroutine. Stages
// within one job run strictly sequentially; jobs run in parallel with no
// shared mutable state between them.
type Runner struct {
	cfg       config.Config
	store     *Store
	blobs     blob.LocalFS
	extractor extract.Extractor
	generator scriptgen.Generator
	synthSvc  *synth.Service
	clips     *synth.ClipStore
	bus       *bus.Client
	logger    *slog.Logger

	tracer        trace.Tracer
	jobsStarted   metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobsRunning   metric.Int64UpDownCounter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(parent context.Context, cfg config.Config, store *Store, blobs blob.LocalFS,
	extractor extract.Extractor, generator scriptgen.Generator, synthSvc *synth.Service,
	clips *synth.ClipStore, busClient *bus.Client, logger *slog.Logger) *Runner {

	ctx, cancel := context.WithCancel(parent)
	meter := otel.Meter("papercast/job")
	started, _ := meter.Int64Counter("papercast.jobs.started")
	completed, _ := meter.Int64Counter("papercast.jobs.completed")
	failed, _ := meter.Int64Counter("papercast.jobs.failed")
	running, _ := meter.Int64UpDownCounter("papercast.jobs.running")

	return &Runner{
		cfg:           cfg,
		store:         store,
		blobs:         blobs,
		extractor:     extractor,
		generator:     generator,
		synthSvc:      synthSvc,
		clips:         clips,
		bus:           busClient,
		logger:        logger.With(slog.String("component", "job-runner")),
		tracer:        otel.Tracer("papercast/job"),
		jobsStarted:   started,
		jobsCompleted: completed,
		jobsFailed:    failed,
		jobsRunning:   running,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Close stops accepting work and waits for in-flight pipelines to finish
// their current external call and fail out.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

// Start begins asynchronous execution of a queued job's pipeline. It is
// an idempotent no-op returning the current snapshot when the job is
// already running or done; a job in the error state is rejected.
func (r *Runner) Start(jobID string) (Snapshot, error) {
	rec, ok := r.store.get(jobID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	switch {
	case rec.snap.Stage == StageError:
		return rec.snap, ErrJobFailed
	case rec.running || rec.snap.Stage.Terminal():
		return rec.snap, nil
	}
	rec.running = true
	sourceKey := rec.sourceKey
	voicePair := rec.snap.VoicePair

	r.wg.Add(1)
	go r.run(jobID, sourceKey, string(voicePair))
	return rec.snap, nil
}

func (r *Runner) run(jobID, sourceKey, voicePair string) {
	defer r.wg.Done()

	ctx, span := r.tracer.Start(r.ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	r.jobsStarted.Add(ctx, 1)
	r.jobsRunning.Add(ctx, 1)
	defer r.jobsRunning.Add(ctx, -1)

	defer func() {
		if rec := recover(); rec != nil {
			r.failJob(ctx, jobID, fmt.Sprintf("internal pipeline failure: %v", rec))
		}
	}()

	doc, err := r.parseStage(ctx, jobID, sourceKey)
	if err != nil {
		r.failJob(ctx, jobID, fmt.Sprintf("Document extraction failed: %v", err))
		return
	}

	script, err := r.scriptStage(ctx, jobID, doc)
	if err != nil {
		r.failJob(ctx, jobID, fmt.Sprintf("Script generation failed: %v", err))
		return
	}

	if err := r.synthStage(ctx, jobID, script, voicePair); err != nil {
		r.failJob(ctx, jobID, fmt.Sprintf("Speech synthesis failed: %v", err))
		return
	}

	result, err := r.mixStage(ctx, jobID, script)
	if err != nil {
		r.clips.Drop(jobID)
		r.failJob(ctx, jobID, fmt.Sprintf("Audio assembly failed: %v", err))
		return
	}

	r.completeJob(jobID, result)
	r.jobsCompleted.Add(ctx, 1)
	r.logger.Info("pipeline complete", slog.String("job_id", jobID))
}

func (r *Runner) parseStage(ctx context.Context, jobID, sourceKey string) (podcast.ParsedDocument, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.parse")
	defer span.End()

	r.advance(jobID, StageParsing, pctParsingStart, "Parsing document")

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Extractor.TimeoutMS)*time.Millisecond)
	defer cancel()
	doc, err := r.extractor.Extract(callCtx, r.blobs.Path(sourceKey))
	if err != nil {
		return podcast.ParsedDocument{}, err
	}

	r.store.attachDocument(jobID, doc)
	r.advance(jobID, StageParsing, pctParsingDone,
		fmt.Sprintf("Parsed %d pages, %d sections", doc.TotalPages, len(doc.Sections)))
	return doc, nil
}

func (r *Runner) scriptStage(ctx context.Context, jobID string, doc podcast.ParsedDocument) (podcast.PodcastScript, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.script")
	defer span.End()

	r.advance(jobID, StageScripting, pctScriptingStart, "Generating podcast script")

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.ScriptGen.TimeoutMS)*time.Millisecond)
	defer cancel()
	script, err := r.generator.GenerateScript(callCtx, doc)
	if err != nil {
		return podcast.PodcastScript{}, err
	}

	r.store.attachScript(jobID, script)
	r.advance(jobID, StageScripting, pctScriptingDone,
		fmt.Sprintf("Script ready: %d lines, %d chapters", len(script.Dialogue), len(script.Chapters)))
	return script, nil
}

func (r *Runner) synthStage(ctx context.Context, jobID string, script podcast.PodcastScript, voicePair string) error {
	ctx, span := r.tracer.Start(ctx, "pipeline.synthesize")
	defer span.End()

	r.advance(jobID, StageSynthesizing, pctSynthStart, "Synthesizing voices")

	clips, err := r.synthSvc.SynthesizeScript(ctx, script, voicePair)
	if err != nil {
		return err
	}
	r.clips.Put(jobID, clips)
	r.advance(jobID, StageSynthesizing, pctSynthDone,
		fmt.Sprintf("Synthesis complete: %d segments", len(clips)))
	return nil
}

func (r *Runner) mixStage(ctx context.Context, jobID string, script podcast.PodcastScript) (podcast.PodcastAudio, error) {
	_, span := r.tracer.Start(ctx, "pipeline.mix")
	defer span.End()

	r.advance(jobID, StageMixing, pctMixing, "Mixing final audio")

	clips, ok := r.clips.Take(jobID)
	if !ok {
		return podcast.PodcastAudio{}, fmt.Errorf("no synthesized clips for job %s", jobID)
	}

	music := r.loadMusic()
	opts := timeline.Options{
		GapMS:       r.cfg.Mixer.GapMS,
		IntroMS:     r.cfg.Mixer.IntroMusicMS,
		MusicGainDB: r.cfg.Mixer.MusicGainDB,
		MusicDuckDB: r.cfg.Mixer.MusicDuckDB,
	}
	tl, pcm, err := timeline.Assemble(script.Chapters, clips, music, r.cfg.Synth.SampleRate, opts)
	if err != nil {
		return podcast.PodcastAudio{}, err
	}

	if err := r.writeArtifacts(jobID, tl, pcm); err != nil {
		return podcast.PodcastAudio{}, err
	}

	return podcast.PodcastAudio{
		AudioURL:    "/api/podcast/" + jobID + "/audio",
		CaptionsURL: "/api/podcast/" + jobID + "/captions",
		DurationSec: tl.DurationSec(),
		Chapters:    tl.Chapters,
	}, nil
}

func (r *Runner) writeArtifacts(jobID string, tl timeline.Timeline, pcm []int) error {
	audioPath := r.blobs.Path(AudioKey(jobID))
	f, err := createFile(audioPath)
	if err != nil {
		return fmt.Errorf("create audio artifact: %w", err)
	}
	if err := timeline.EncodeWAV(f, pcm, tl.SampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audio artifact: %w", err)
	}

	track := captions.Encode(tl.Cues())
	if _, err := r.blobs.Put(CaptionsKey(jobID), bytes.NewReader([]byte(track))); err != nil {
		return fmt.Errorf("store captions artifact: %w", err)
	}
	return nil
}

func createFile(target string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	return os.Create(target)
}

func (r *Runner) loadMusic() []int {
	asset := strings.TrimSpace(r.cfg.Storage.MusicAssetPath)
	if asset == "" {
		return nil
	}
	music, err := timeline.LoadMusicWAV(asset, r.cfg.Synth.SampleRate)
	if err != nil {
		r.logger.Warn("background music unavailable, mixing speech only",
			slog.String("error", err.Error()))
		return nil
	}
	return music
}

func (r *Runner) advance(jobID string, stage Stage, pct int, message string) {
	snap, ok := r.store.advance(jobID, stage, pct, message)
	if !ok {
		return
	}
	r.logger.Info("job advanced",
		slog.String("job_id", jobID),
		slog.String("stage", string(stage)),
		slog.Int("pct", snap.ProgressPct),
		slog.String("message", message))
	r.publish(snap)
}

func (r *Runner) completeJob(jobID string, result podcast.PodcastAudio) {
	snap, ok := r.store.complete(jobID, result, "Podcast ready")
	if !ok {
		return
	}
	r.logger.Info("job advanced",
		slog.String("job_id", jobID),
		slog.String("stage", string(StageDone)),
		slog.Int("pct", snap.ProgressPct),
		slog.String("message", snap.Message))
	r.publish(snap)
}

func (r *Runner) failJob(ctx context.Context, jobID, message string) {
	snap, ok := r.store.fail(jobID, message)
	if !ok {
		return
	}
	r.jobsFailed.Add(ctx, 1)
	r.logger.Error("pipeline failed",
		slog.String("job_id", jobID),
		slog.String("error", message))
	r.publish(snap)
}

func (r *Runner) publish(snap Snapshot) {
	if r.bus == nil {
		return
	}
	r.bus.PublishProgress(podcast.ProgressEvent{
		JobID:       snap.JobID,
		Stage:       string(snap.Stage),
		ProgressPct: snap.ProgressPct,
		Message:     snap.Message,
		Timestamp:   snap.UpdatedAt,
	})
}
