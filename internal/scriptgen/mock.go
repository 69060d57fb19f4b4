package scriptgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/papercastlabs/papercast-core/internal/podcast"
)

type mockGenerator struct{}

// NewMockGenerator produces a small deterministic script: one chapter per
// extracted section, two turns per chapter, three quiz questions.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) GenerateScript(ctx context.Context, doc podcast.ParsedDocument) (podcast.PodcastScript, error) {
	select {
	case <-ctx.Done():
		return podcast.PodcastScript{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}

	script := podcast.PodcastScript{
		Title:   doc.Title,
		Authors: doc.Authors,
	}
	for i, section := range doc.Sections {
		script.Chapters = append(script.Chapters, podcast.Chapter{ID: i, Title: section.Title})
		script.Dialogue = append(script.Dialogue,
			podcast.DialogueTurn{Speaker: "A", Text: fmt.Sprintf("Let's talk about %s.", strings.ToLower(section.Title)), ChapterID: i},
			podcast.DialogueTurn{Speaker: "B", Text: section.Body, ChapterID: i},
		)
	}
	script.StudyGuide = "# Study guide: " + doc.Title + "\n\n" + doc.RawText
	script.Quiz = []podcast.QuizQuestion{
		{
			Question:     fmt.Sprintf("What is %q mainly about?", doc.Title),
			Options:      []string{"The topic it covers", "Unrelated trivia", "Cooking", "Sports"},
			CorrectIndex: 0,
			Explanation:  "The paper's subject is its own topic.",
		},
		{
			Question:     "How many hosts does the podcast have?",
			Options:      []string{"One", "Two", "Three", "Four"},
			CorrectIndex: 1,
			Explanation:  "The script alternates between hosts A and B.",
		},
		{
			Question:     "Which section usually opens a paper?",
			Options:      []string{"References", "Abstract", "Appendix", "Acknowledgements"},
			CorrectIndex: 1,
			Explanation:  "Papers open with an abstract.",
		},
	}
	return script, nil
}

func (m *mockGenerator) Reply(ctx context.Context, system, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return "[mock reply for " + strings.TrimSpace(prompt) + "]", nil
}
