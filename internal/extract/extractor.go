package extract

import (
	"context"

	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/podcast"
)

// Extractor turns an uploaded document file into structured text. The
// heavy lifting (PDF layout analysis, heading detection) lives outside
// this process behind the exec backend.
type Extractor interface {
	Extract(ctx context.Context, path string) (podcast.ParsedDocument, error)
}

// New selects a backend from config.
func New(cfg config.ExtractorConfig) (Extractor, error) {
	if cfg.Mode == "exec" {
		return NewExecExtractor(cfg)
	}
	return NewMockExtractor(), nil
}
