package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/papercastlabs/papercast-core/internal/podcast"
)

type mockExtractor struct{}

// NewMockExtractor returns a deterministic extractor for development and
// tests. It derives a small sectioned document from the file name and
// size without reading the document format at all.
func NewMockExtractor() Extractor {
	return &mockExtractor{}
}

func (m *mockExtractor) Extract(ctx context.Context, path string) (podcast.ParsedDocument, error) {
	select {
	case <-ctx.Done():
		return podcast.ParsedDocument{}, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	info, err := os.Stat(path)
	if err != nil {
		return podcast.ParsedDocument{}, fmt.Errorf("stat upload: %w", err)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pages := int(info.Size()/2048) + 1
	sections := []podcast.ParsedSection{
		{Title: "Abstract", Body: "A short overview of " + title + ".", PageStart: 1, PageEnd: 1},
		{Title: "Introduction", Body: "Why " + title + " matters and what problem it addresses.", PageStart: 1, PageEnd: 2},
		{Title: "Results", Body: "The main findings reported in " + title + ".", PageStart: 2, PageEnd: pages},
	}
	var raw strings.Builder
	for _, s := range sections {
		raw.WriteString(s.Body)
		raw.WriteString("\n\n")
	}
	doc := podcast.ParsedDocument{
		Title:      title,
		Authors:    "Unknown Authors",
		TotalPages: pages,
		Sections:   sections,
		RawText:    strings.TrimSpace(raw.String()),
	}
	doc.WordCount = len(strings.Fields(doc.RawText))
	return doc, nil
}
