package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

type stubGenerator struct {
	err        error
	reply      string
	lastSystem string
	lastPrompt string
}

func (s *stubGenerator) GenerateScript(ctx context.Context, doc podcast.ParsedDocument) (podcast.PodcastScript, error) {
	return podcast.PodcastScript{}, errors.New("not used")
}

func (s *stubGenerator) Reply(ctx context.Context, system, prompt string) (string, error) {
	s.lastSystem = system
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testConfig() config.ChatConfig {
	return config.ChatConfig{
		ContextBudget:   100,
		MaxHistoryTurns: 2,
		FallbackReply:   "Sorry, try again later.",
		TimeoutMS:       1000,
	}
}

func testService(gen *stubGenerator) *Service {
	return NewService(testConfig(), gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReplyGroundsOnStudyGuide(t *testing.T) {
	gen := &stubGenerator{reply: "The answer."}
	svc := testService(gen)

	script := &podcast.PodcastScript{Title: "Some Paper", StudyGuide: "guide content"}
	got := svc.Reply(context.Background(), script, podcast.ParsedDocument{RawText: "raw text"}, "What is this about?", nil)

	if got != "The answer." {
		t.Fatalf("unexpected reply %q", got)
	}
	if !strings.Contains(gen.lastSystem, "guide content") {
		t.Fatalf("system prompt not grounded on study guide: %q", gen.lastSystem)
	}
	if strings.Contains(gen.lastSystem, "raw text") {
		t.Fatal("raw text must not be used when a study guide exists")
	}
}

func TestReplyFallsBackToRawText(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc := testService(gen)

	script := &podcast.PodcastScript{Title: "Some Paper"}
	svc.Reply(context.Background(), script, podcast.ParsedDocument{RawText: "raw document text"}, "hi", nil)

	if !strings.Contains(gen.lastSystem, "raw document text") {
		t.Fatalf("system prompt not grounded on raw text: %q", gen.lastSystem)
	}
}

func TestReplyTruncatesGroundingToBudget(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc := testService(gen)

	script := &podcast.PodcastScript{
		Title:      "Some Paper",
		StudyGuide: strings.Repeat("x", 500),
	}
	svc.Reply(context.Background(), script, podcast.ParsedDocument{}, "hi", nil)

	if strings.Contains(gen.lastSystem, strings.Repeat("x", 101)) {
		t.Fatal("grounding exceeded the context budget")
	}
	if !strings.Contains(gen.lastSystem, strings.Repeat("x", 100)) {
		t.Fatal("grounding missing from system prompt")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	guide := strings.Repeat("é", 60) // 2 bytes per rune
	got := truncate(guide, 101)
	if len(got) != 100 {
		t.Fatalf("expected trim to the rune boundary at 100 bytes, got %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if truncate("short", 100) != "short" {
		t.Fatal("strings within budget must pass through unchanged")
	}
}

func TestReplyGroundingStaysValidUTF8(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc := testService(gen) // 100-byte budget

	script := &podcast.PodcastScript{
		Title:      "Some Paper",
		StudyGuide: strings.Repeat("日本語", 80), // 9 bytes per group
	}
	svc.Reply(context.Background(), script, podcast.ParsedDocument{}, "hi", nil)

	if !utf8.ValidString(gen.lastSystem) {
		t.Fatalf("system prompt contains invalid UTF-8: %q", gen.lastSystem)
	}
}

func TestReplyTrimsOldHistory(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc := testService(gen)

	history := []Turn{
		{Role: "user", Text: "oldest question"},
		{Role: "assistant", Text: "middle answer"},
		{Role: "user", Text: "newest question"},
	}
	svc.Reply(context.Background(), &podcast.PodcastScript{Title: "p", StudyGuide: "g"},
		podcast.ParsedDocument{}, "current", history)

	if strings.Contains(gen.lastPrompt, "oldest question") {
		t.Fatalf("history not trimmed: %q", gen.lastPrompt)
	}
	if !strings.Contains(gen.lastPrompt, "middle answer") || !strings.Contains(gen.lastPrompt, "newest question") {
		t.Fatalf("recent history missing: %q", gen.lastPrompt)
	}
	if !strings.HasSuffix(gen.lastPrompt, "User: current") {
		t.Fatalf("prompt must end with the current message: %q", gen.lastPrompt)
	}
}

func TestReplyFallbackOnGeneratorError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model offline")}
	svc := testService(gen)

	got := svc.Reply(context.Background(), &podcast.PodcastScript{Title: "p", StudyGuide: "g"},
		podcast.ParsedDocument{}, "hi", nil)

	if got != testConfig().FallbackReply {
		t.Fatalf("expected fallback reply, got %q", got)
	}
}
