package podcast

import "time"

// VoicePair selects the host voice combination for a generation job.
type VoicePair string

const (
	VoicePairMM VoicePair = "MM"
	VoicePairFM VoicePair = "FM"
	VoicePairFF VoicePair = "FF"
)

// Valid reports whether the pair is one of the configured options.
func (p VoicePair) Valid() bool {
	switch p {
	case VoicePairMM, VoicePairFM, VoicePairFF:
		return true
	}
	return false
}

// ParsedSection is one logical section extracted from the source document.
type ParsedSection struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
}

// ParsedDocument is the structured output of the document extractor.
// Produced once per job and immutable afterwards.
type ParsedDocument struct {
	Title      string          `json:"title"`
	Authors    string          `json:"authors"`
	TotalPages int             `json:"total_pages"`
	WordCount  int             `json:"word_count"`
	Sections   []ParsedSection `json:"sections"`
	RawText    string          `json:"raw_text"`
}

// Chapter groups consecutive dialogue turns under a navigation title.
type Chapter struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// DialogueTurn is a single line of two-host dialogue.
type DialogueTurn struct {
	Speaker   string `json:"speaker"` // "A" or "B"
	Text      string `json:"text"`
	ChapterID int    `json:"chapter_id"`
}

// QuizQuestion is one generated multiple-choice question.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// PodcastScript is the complete generated content for one job.
// Produced once by the content generator and immutable afterwards.
type PodcastScript struct {
	Title      string         `json:"title"`
	Authors    string         `json:"authors"`
	Chapters   []Chapter      `json:"chapters"`
	Dialogue   []DialogueTurn `json:"dialogue"`
	StudyGuide string         `json:"study_guide"`
	Quiz       []QuizQuestion `json:"quiz_questions"`
}

// CaptionCue is a timed, speaker-attributed text span on the timeline.
type CaptionCue struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
}

// TimedChapter is a chapter with its resolved timeline offset.
type TimedChapter struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// PodcastAudio describes the final mixed artifact.
type PodcastAudio struct {
	AudioURL    string         `json:"audio_url"`
	CaptionsURL string         `json:"captions_url"`
	DurationSec float64        `json:"duration_sec"`
	Chapters    []TimedChapter `json:"chapters"`
}

// QuizFeedback reports the outcome for one question of a submission.
type QuizFeedback struct {
	Index        int  `json:"index"`
	WasCorrect   bool `json:"was_correct"`
	CorrectIndex int  `json:"correct_index"`
}

// QuizResult is the scored outcome of a quiz submission.
type QuizResult struct {
	Score        int            `json:"score"`
	Total        int            `json:"total"`
	PointsEarned int            `json:"points_earned"`
	Feedback     []QuizFeedback `json:"feedback"`
}

// ProgressEvent is published on the bus on every job stage transition.
type ProgressEvent struct {
	JobID       string    `json:"job_id"`
	Stage       string    `json:"stage"`
	ProgressPct int       `json:"progress_pct"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// SubjectJobProgress is the bus subject progress events are published on.
const SubjectJobProgress = "podcast.job.progress"
