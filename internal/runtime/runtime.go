// Package runtime assembles the service: telemetry, storage, the
// pipeline backends, the job runner, and the HTTP surface, with ordered
// shutdown of all of them.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercastlabs/papercast-core/internal/blob"
	"github.com/papercastlabs/papercast-core/internal/bus"
	"github.com/papercastlabs/papercast-core/internal/chat"
	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/extract"
	"github.com/papercastlabs/papercast-core/internal/httpapi"
	"github.com/papercastlabs/papercast-core/internal/job"
	"github.com/papercastlabs/papercast-core/internal/leaderboard"
	"github.com/papercastlabs/papercast-core/internal/scriptgen"
	"github.com/papercastlabs/papercast-core/internal/synth"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the service up and blocks until ctx is cancelled, then
// tears everything down in reverse dependency order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := os.MkdirAll(r.cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	blobs := blob.LocalFS{Root: r.cfg.Storage.DataDir}

	board, err := leaderboard.Open(ctx, r.cfg.Leaderboard, r.logger)
	if err != nil {
		return fmt.Errorf("open leaderboard store: %w", err)
	}
	defer board.Close()

	var embedded *bus.EmbeddedServer
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		embedded, err = bus.StartEmbedded(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}
		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		busClient, err = bus.Connect(busCfg, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("connect to bus: %w", err)
		}
	}
	defer func() {
		busClient.Close()
		embedded.Shutdown()
	}()

	extractor, err := extract.New(r.cfg.Extractor)
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}
	generator, err := scriptgen.New(r.cfg.ScriptGen)
	if err != nil {
		return fmt.Errorf("init script generator: %w", err)
	}
	synthesizer, err := synth.New(r.cfg.Synth)
	if err != nil {
		return fmt.Errorf("init synthesizer: %w", err)
	}
	synthSvc := synth.NewService(r.cfg.Synth, synthesizer, r.logger)
	clips := synth.NewClipStore()

	jobs := job.NewStore()
	runner := job.NewRunner(ctx, r.cfg, jobs, blobs, extractor, generator, synthSvc, clips, busClient, r.logger)
	defer runner.Close()

	chatSvc := chat.NewService(r.cfg.Chat, generator, r.logger)

	api := &httpapi.Server{
		Cfg:       r.cfg,
		Logger:    r.logger.With(slog.String("component", "httpapi")),
		Jobs:      jobs,
		Runner:    runner,
		Blobs:     blobs,
		Extractor: extractor,
		Chat:      chatSvc,
		Board:     board,
		Metrics:   metricHandler,
		Ready:     r.ready.Load,
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("extractor", r.cfg.Extractor.Mode),
		slog.String("scriptgen", r.cfg.ScriptGen.Mode),
		slog.String("synth", r.cfg.Synth.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}
