package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/ffmpeg"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/hls"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/jsonl"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/ruv"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/adapters/subtitles"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/app"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/config"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/ports"
)

// commandContext charge la config une seule fois et construit les services
// à la demande; close libère ce qui a été ouvert.
type commandContext struct {
	workDirFlag  *string
	configFlag   *string
	logLevelFlag *string
	stderr       io.Writer

	configOnce sync.Once
	config     *config.Config
	logger     zerolog.Logger
	configErr  error

	mu      sync.Mutex
	closers []io.Closer
}

func newCommandContext(workDirFlag, configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		workDirFlag:  workDirFlag,
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		stderr:       os.Stderr,
		logger:       zerolog.Nop(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(deref(c.workDirFlag), deref(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			c.configErr = fmt.Errorf("open log file: %w", err)
			return
		}
		c.onClose(logFile)
		logger, err := newLogger(deref(c.logLevelFlag), c.stderr, logFile)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = &cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) onClose(cl io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, cl)
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
	c.closers = nil
}

func (c *commandContext) httpClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPTimeout.Duration}
}

func (c *commandContext) catalogService(ctx context.Context, cfg config.Config) (*app.CatalogService, error) {
	db, err := sqlite.Open(ctx, cfg.CacheDBPath)
	if err != nil {
		return nil, fmt.Errorf("open program cache: %w", err)
	}
	c.onClose(db)
	client := ruv.New(c.logger, c.httpClient(cfg)).
		WithEndpoint(cfg.CatalogURL).
		WithConcurrency(cfg.CatalogConcurrency)
	return app.NewCatalogService(c.logger, client, sqlite.NewProgramsRepository(db.SQL), app.CatalogOptions{
		RefreshInterval: cfg.ProgramsRefreshInterval.Duration,
		Concurrency:     cfg.CatalogConcurrency,
	}), nil
}

func (c *commandContext) resolver(cfg config.Config) ports.ManifestResolver {
	return hls.NewResolver(c.httpClient(cfg))
}

func (c *commandContext) ledger(cfg config.Config) *jsonl.Ledger {
	return jsonl.New(c.logger, cfg.LedgerPath)
}

func (c *commandContext) orchestrator(cfg config.Config, bus ports.EventBus) *app.Orchestrator {
	remuxer := ffmpeg.New(c.logger, ffmpeg.Options{Binary: cfg.FFmpegBinary})
	opts := app.DefaultPipelineOptions()
	opts.DownloadDir = cfg.DownloadDir
	opts.AudioOnly = cfg.AudioOnly
	opts.VerifyExisting = cfg.VerifyExisting
	pipeline := app.NewPipeline(c.logger, app.PipelineDeps{
		Resolver:  c.resolver(cfg),
		Subtitles: subtitles.NewFetcher(c.httpClient(cfg)),
		Remuxer:   remuxer,
		Prober:    remuxer,
		Bus:       bus,
	}, opts)
	return app.NewOrchestrator(c.logger, c.ledger(cfg), pipeline, bus, app.OrchestratorOptions{
		MaxParallelDownloads: cfg.MaxParallelDownloads,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
