package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

type execExtractor struct {
	cmd []string
	mu  sync.Mutex
}

// NewExecExtractor wraps an external extraction command. The command is
// invoked as `<command> --input <path>` and must print a ParsedDocument
// as JSON on stdout.
func NewExecExtractor(cfg config.ExtractorConfig) (Extractor, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse extractor command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("extractor command is empty")
	}
	return &execExtractor{cmd: args}, nil
}

func (e *execExtractor) Extract(ctx context.Context, path string) (podcast.ParsedDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--input", path)

	command := exec.CommandContext(ctx, base, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return podcast.ParsedDocument{}, fmt.Errorf("extractor command failed: %w: %s", err, stderr.String())
	}

	var doc podcast.ParsedDocument
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return podcast.ParsedDocument{}, fmt.Errorf("decode extractor output: %w", err)
	}
	if len(doc.Sections) == 0 && doc.RawText == "" {
		return podcast.ParsedDocument{}, fmt.Errorf("extractor produced no text for %s", path)
	}
	return doc, nil
}
