package scriptgen

import (
	"context"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

// Generator is the contract with the external content-generation model.
// GenerateScript produces the full podcast content for a parsed document;
// Reply answers a free-form prompt for the chat surface.
type Generator interface {
	GenerateScript(ctx context.Context, doc podcast.ParsedDocument) (podcast.PodcastScript, error)
	Reply(ctx context.Context, system, prompt string) (string, error)
}

// New selects a backend from config.
func New(cfg config.ScriptGenConfig) (Generator, error) {
	if cfg.Mode == "ollama" {
		return NewOllamaGenerator(cfg), nil
	}
	return NewMockGenerator(), nil
}
