// Package chat answers questions about a generated podcast's source
// document within a bounded context window.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
	"github.com/papercastlabs/papercast-core/internal/scriptgen"
)

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Service builds a grounded prompt and delegates to the content
// generator. It fails soft: any generator error yields the configured
// fallback reply, never an error to the caller.
type Service struct {
	cfg       config.ChatConfig
	generator scriptgen.Generator
	logger    *slog.Logger
}

func NewService(cfg config.ChatConfig, generator scriptgen.Generator, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		generator: generator,
		logger:    logger.With(slog.String("component", "chat")),
	}
}

// Reply answers a message about a script. Context is the study guide
// (raw text when no guide exists) trimmed to the byte budget, plus the
// most recent history turns, trimmed oldest first.
func (s *Service) Reply(ctx context.Context, script *podcast.PodcastScript, doc podcast.ParsedDocument, message string, history []Turn) string {
	grounding := script.StudyGuide
	if strings.TrimSpace(grounding) == "" {
		grounding = doc.RawText
	}
	grounding = truncate(grounding, s.cfg.ContextBudget)

	system := fmt.Sprintf(`You are a helpful study assistant for %q.
Ground your answers strictly in the following context:
%s

If the answer is not in the context, say you don't know. Be concise.`, script.Title, grounding)

	prompt := buildPrompt(message, history, s.cfg.MaxHistoryTurns)

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()
	reply, err := s.generator.Reply(callCtx, system, prompt)
	if err != nil {
		s.logger.Warn("chat generation failed, using fallback reply",
			slog.String("error", err.Error()))
		return s.cfg.FallbackReply
	}
	return reply
}

// truncate caps s at max bytes, backing up to the previous rune
// boundary so a multi-byte character is never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func buildPrompt(message string, history []Turn, maxTurns int) string {
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	var b strings.Builder
	for _, turn := range history {
		role := "User"
		if turn.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(turn.Text))
	}
	fmt.Fprintf(&b, "User: %s", strings.TrimSpace(message))
	return b.String()
}
