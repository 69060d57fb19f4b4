// Package job owns the generation pipeline: one record per request,
// advanced through parsing, scripting, synthesis and mixing by a single
// writer, readable concurrently at any time.
package job

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/papercastlabs/papercast-core/internal/podcast"
)

// Stage is one phase of the generation pipeline.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageParsing      Stage = "parsing"
	StageScripting    Stage = "scripting"
	StageSynthesizing Stage = "synthesizing"
	StageMixing       Stage = "mixing"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// stageRank orders the forward-only pipeline. Error is reachable from
// any non-terminal stage and handled separately.
var stageRank = map[Stage]int{
	StageQueued:       0,
	StageParsing:      1,
	StageScripting:    2,
	StageSynthesizing: 3,
	StageMixing:       4,
	StageDone:         5,
}

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidVoicePair is returned when a job is created with an
	// unconfigured voice pairing.
	ErrInvalidVoicePair = errors.New("invalid voice pair")
	// ErrJobFailed is returned when generation is requested for a job
	// already in the error state; failed jobs are not restarted.
	ErrJobFailed = errors.New("job previously failed")
)

// Snapshot is a committed, immutable view of a job. Result and Script
// point at values that are never mutated after being attached.
type Snapshot struct {
	JobID       string                 `json:"job_id"`
	Stage       Stage                  `json:"status"`
	ProgressPct int                    `json:"progress_pct"`
	Message     string                 `json:"message"`
	VoicePair   podcast.VoicePair      `json:"voice_pair"`
	Script      *podcast.PodcastScript `json:"script,omitempty"`
	Result      *podcast.PodcastAudio  `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// record is one job's mutable state. Every record has its own lock; the
// map lock only guards membership.
type record struct {
	mu        sync.Mutex
	snap      Snapshot
	running   bool
	sourceKey string
	doc       *podcast.ParsedDocument
}

// Store is the concurrency-safe keyed job store. Status reads never
// block on a running pipeline beyond the brief per-record critical
// section used to copy the committed snapshot.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	clock   func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*record),
		clock:   time.Now,
	}
}

// Create registers a new job in the queued stage.
func (s *Store) Create(jobID, sourceKey string, pair podcast.VoicePair) (Snapshot, error) {
	if !pair.Valid() {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidVoicePair, pair)
	}
	now := s.clock().UTC()
	rec := &record{
		snap: Snapshot{
			JobID:       jobID,
			Stage:       StageQueued,
			ProgressPct: 0,
			Message:     "Generation queued",
			VoicePair:   pair,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		sourceKey: sourceKey,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[jobID]; exists {
		return Snapshot{}, fmt.Errorf("job %s already exists", jobID)
	}
	s.records[jobID] = rec
	return rec.snap, nil
}

// Status returns the job's committed snapshot. Safe for many concurrent
// readers while the pipeline advances the same job.
func (s *Store) Status(jobID string) (Snapshot, error) {
	rec, ok := s.get(jobID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snap, nil
}

func (s *Store) get(jobID string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jobID]
	return rec, ok
}

// advance commits a forward stage/progress transition. It is the only
// mutation path for stage, progress and message; the pipeline runner is
// its only caller. Backward stages are ignored and backward percentages
// clamped, so observed progress is monotonically non-decreasing.
func (s *Store) advance(jobID string, stage Stage, pct int, message string) (Snapshot, bool) {
	rec, ok := s.get(jobID)
	if !ok {
		return Snapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	cur := rec.snap.Stage
	if cur.Terminal() {
		return rec.snap, false
	}
	if stageRank[stage] < stageRank[cur] {
		return rec.snap, false
	}
	if pct < rec.snap.ProgressPct {
		pct = rec.snap.ProgressPct
	}
	if pct > 100 {
		pct = 100
	}
	rec.snap.Stage = stage
	rec.snap.ProgressPct = pct
	rec.snap.Message = message
	rec.snap.UpdatedAt = s.clock().UTC()
	if stage == StageDone {
		rec.snap.ProgressPct = 100
		rec.running = false
	}
	return rec.snap, true
}

// fail moves a job to the terminal error state, keeping the last
// committed progress value.
func (s *Store) fail(jobID, message string) (Snapshot, bool) {
	rec, ok := s.get(jobID)
	if !ok {
		return Snapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.snap.Stage.Terminal() {
		return rec.snap, false
	}
	rec.snap.Stage = StageError
	rec.snap.Message = message
	rec.snap.Error = message
	rec.snap.UpdatedAt = s.clock().UTC()
	rec.running = false
	return rec.snap, true
}

// attachDocument stores the parse result for later stages (and chat).
func (s *Store) attachDocument(jobID string, doc podcast.ParsedDocument) {
	if rec, ok := s.get(jobID); ok {
		rec.mu.Lock()
		rec.doc = &doc
		rec.mu.Unlock()
	}
}

// attachScript publishes the generated script on the snapshot as soon as
// scripting completes, so status readers see chapters and quiz before
// audio exists.
func (s *Store) attachScript(jobID string, script podcast.PodcastScript) {
	if rec, ok := s.get(jobID); ok {
		rec.mu.Lock()
		rec.snap.Script = &script
		rec.mu.Unlock()
	}
}

// complete commits the final artifact and the done transition in one
// critical section. Result is only ever visible on a done snapshot;
// readers can never observe one without the other.
func (s *Store) complete(jobID string, result podcast.PodcastAudio, message string) (Snapshot, bool) {
	rec, ok := s.get(jobID)
	if !ok {
		return Snapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.snap.Stage.Terminal() {
		return rec.snap, false
	}
	rec.snap.Stage = StageDone
	rec.snap.ProgressPct = 100
	rec.snap.Message = message
	rec.snap.Result = &result
	rec.snap.UpdatedAt = s.clock().UTC()
	rec.running = false
	return rec.snap, true
}

// Document returns the job's parsed document, if parsing has completed.
func (s *Store) Document(jobID string) (podcast.ParsedDocument, bool) {
	rec, ok := s.get(jobID)
	if !ok {
		return podcast.ParsedDocument{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.doc == nil {
		return podcast.ParsedDocument{}, false
	}
	return *rec.doc, true
}
