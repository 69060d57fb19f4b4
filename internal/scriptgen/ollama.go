package scriptgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

type ollamaGenerator struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewOllamaGenerator builds content with a local Ollama server using
// non-streamed completions.
func NewOllamaGenerator(cfg config.ScriptGenConfig) Generator {
	return &ollamaGenerator{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      http.DefaultClient,
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const scriptSystemPrompt = `You write two-host podcast scripts about research papers.
Host A leads, host B reacts and asks questions. Respond with a single JSON
object with fields: title, authors, chapters (id, title), dialogue
(speaker "A"|"B", text, chapter_id), study_guide (markdown), and
quiz_questions (question, options[4], correct_index, explanation).`

func (g *ollamaGenerator) GenerateScript(ctx context.Context, doc podcast.ParsedDocument) (podcast.PodcastScript, error) {
	prompt := buildScriptPrompt(doc)
	raw, err := g.complete(ctx, scriptSystemPrompt, prompt, "json")
	if err != nil {
		return podcast.PodcastScript{}, err
	}

	var script podcast.PodcastScript
	if err := json.Unmarshal([]byte(stripFences(raw)), &script); err != nil {
		return podcast.PodcastScript{}, fmt.Errorf("decode generated script: %w", err)
	}
	if script.Title == "" {
		script.Title = doc.Title
	}
	if script.Authors == "" {
		script.Authors = doc.Authors
	}
	if len(script.Dialogue) == 0 {
		return podcast.PodcastScript{}, fmt.Errorf("generated script has no dialogue")
	}
	return script, nil
}

func (g *ollamaGenerator) Reply(ctx context.Context, system, prompt string) (string, error) {
	raw, err := g.complete(ctx, system, prompt, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (g *ollamaGenerator) complete(ctx context.Context, system, prompt, format string) (string, error) {
	payload := ollamaRequest{
		Model:  g.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Format: format,
		Options: ollamaOptions{
			Temperature: g.temperature,
			NumPredict:  g.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return out.Response, nil
}

func buildScriptPrompt(doc podcast.ParsedDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Paper: %s\nAuthors: %s\nPages: %d\n\n", doc.Title, doc.Authors, doc.TotalPages)
	for _, s := range doc.Sections {
		fmt.Fprintf(&b, "## %s\n%s\n\n", s.Title, s.Body)
	}
	b.WriteString("Write the podcast script JSON now.")
	return b.String()
}

var (
	fenceOpen  = regexp.MustCompile("(?m)^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("(?m)\\s*```$")
)

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(text string) string {
	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceClose.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
