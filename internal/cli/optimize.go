package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-optimizer/internal/cache"
	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/ledger"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/media"
	"media-optimizer/internal/memory"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/optimizer"
	"media-optimizer/internal/pipeline"
	"media-optimizer/internal/profile"
	"media-optimizer/internal/startup"
	"media-optimizer/internal/transcode"
)

const (
	collectInterval = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	redisPingWait   = 3 * time.Second
)

type optimizeOptions struct {
	workers     int
	profileFile string
	dryRun      bool
	metricsFile string
	metricsAddr string
}

func newOptimizeCommand(global *globalOptions) *cobra.Command {
	opts := &optimizeOptions{}

	cmd := &cobra.Command{
		Use:   "optimize [output-dir]",
		Short: "Optimize the images referenced by a built site",
		Long: `Scan every HTML page under output-dir for <picture optimize-image>
placeholders, write WebP derivatives beside each referenced image, rewrite
the markup to reference them and recompress the originals in place.

Every page is validated before anything is written. A malformed placeholder
aborts the build with the page and attribute named.

Examples:
  media-optimizer optimize ./public
  media-optimizer optimize ./public --workers 1 --profile media.yaml
  OUTPUT_DIR=./dist media-optimizer optimize --metrics-file /var/lib/node_exporter/media.prom`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := startup.LoadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.OutputDir = args[0]
			}
			applyOptimizeFlags(cmd, cfg, global, opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, err = runOptimize(ctx, cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.workers, "workers", "w", 0, "references processed concurrently, 0 for one per CPU (env: MEDIA_WORKERS)")
	f.StringVar(&opts.profileFile, "profile", "", "YAML encoding profile (env: PROFILE_FILE)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "validate pages and print the plan without writing")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when done (env: METRICS_FILE)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address during the build (env: METRICS_ADDR)")
	return cmd
}

// applyOptimizeFlags lets explicitly set flags win over the environment.
func applyOptimizeFlags(cmd *cobra.Command, cfg *startup.Config, global *globalOptions, opts *optimizeOptions) {
	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CacheDir = global.cacheDir
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("profile") {
		cfg.ProfileFile = opts.profileFile
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	cfg.DryRun = opts.dryRun
}

// loadProfile reads the encoding profile and applies the threshold override.
func loadProfile(cfg *startup.Config) (profile.EncodingProfile, error) {
	p := profile.Default()
	if cfg.ProfileFile != "" {
		var err error
		if p, err = profile.Load(cfg.ProfileFile); err != nil {
			return p, err
		}
	}
	if cfg.LosslessThresholdKB > 0 {
		p.WebP.LosslessThresholdKB = cfg.LosslessThresholdKB
	}
	return p, p.Validate()
}

// runOptimize wires the cache, codec and pipeline for one build.
func runOptimize(ctx context.Context, cfg *startup.Config) (pipeline.Summary, error) {
	startTime := time.Now()
	startup.LogStart()

	memResult := memory.ConfigureFromEnv()
	startup.LogMemoryConfig(memResult)

	if err := cfg.Prepare(); err != nil {
		return pipeline.Summary{}, err
	}

	info := startup.GetBuildInfo()
	metrics.InitializeMetrics()
	metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	prof, err := loadProfile(cfg)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("encoding profile: %w", err)
	}
	fingerprint := prof.Fingerprint()
	logging.Info("  Encoding profile fingerprint: %s", fingerprint)

	vipsStart := time.Now()
	vipsCfg := transcode.DefaultVipsConfig()
	vipsCfg.MaxCacheMem = memResult.VipsCacheBytes
	if err := transcode.InitVips(vipsCfg); err != nil {
		logging.Warn("Failed to initialize libvips: %v", err)
	}
	startup.LogVipsInit(transcode.IsVipsAvailable(), time.Since(vipsStart))

	disk, err := cache.NewDiskBackend(cfg.CacheDir)
	if err != nil {
		return pipeline.Summary{}, err
	}
	var backend cache.Backend = disk
	if cfg.RedisURL != "" {
		remote, err := connectRedis(ctx, cfg)
		if err != nil {
			logging.Warn("Remote cache disabled: %v", err)
		} else {
			defer func() {
				if err := remote.Close(); err != nil {
					logging.Warn("failed to close redis client: %v", err)
				}
			}()
			backend = &cache.Tiered{Local: disk, Remote: remote}
		}
	}

	var (
		storeOpts []cache.Option
		led       *ledger.Ledger
		buildID   string
	)
	if cfg.LedgerEnabled && !cfg.DryRun {
		ledgerStart := time.Now()
		led, err = ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			logging.Warn("Ledger disabled: %v", err)
		} else {
			defer closeLedger(led)
			startup.LogLedgerInit(cfg.LedgerPath, time.Since(ledgerStart))
			storeOpts = append(storeOpts, cache.WithRecorder(led))
			if buildID, err = led.BeginBuild(ctx, cfg.OutputDir); err != nil {
				logging.Warn("Failed to record build start: %v", err)
			}
		}
	}
	store := cache.New(backend, storeOpts...)

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		startup.LogMetricsServer(cfg.MetricsAddr, metrics.NewRouter())
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn("Metrics server shutdown error: %v", err)
			}
		}()
	}

	gifsicle := optimizer.NewGifsicle(cfg.GifsiclePath, cfg.GifsicleTimeout, prof.Gifsicle)
	startup.LogGifsicleInit(cfg.GifsiclePath)

	codec := transcode.New(prof, gifsicle)
	processor := media.NewProcessor(cfg.OutputDir, codec, store, fingerprint)

	collector := metrics.NewCollector(disk, collectInterval)
	collector.Start()

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("OPTIMIZING %s", cfg.OutputDir)
	logging.Info("------------------------------------------------------------")
	summary, runErr := pipeline.New(processor, pipeline.Options{
		Workers: cfg.Workers,
		DryRun:  cfg.DryRun,
	}).Run(ctx, cfg.OutputDir)

	collector.Stop()

	if led != nil && buildID != "" {
		if err := led.FinishBuild(context.WithoutCancel(ctx), buildID, ledger.BuildResult{
			Pages:       summary.Pages,
			References:  summary.References,
			Derivatives: summary.Derivatives,
			Hits:        summary.Hits,
			Misses:      summary.Misses,
			Err:         runErr,
		}); err != nil {
			logging.Warn("Failed to record build result: %v", err)
		}
	}

	if cfg.MetricsFile != "" {
		path, err := filepath.Abs(cfg.MetricsFile)
		if err == nil {
			err = metrics.WriteTextfile(path)
		}
		if err != nil {
			logging.Warn("Failed to write metrics textfile: %v", err)
		} else {
			logging.Info("  Metrics written to %s", path)
		}
	}

	if runErr != nil {
		return summary, runErr
	}
	startup.LogBuildComplete(summary)
	logging.Debug("Total run time including setup: %v", time.Since(startTime))
	return summary, nil
}

func connectRedis(ctx context.Context, cfg *startup.Config) (*cache.RedisBackend, error) {
	remote, err := cache.NewRedisBackend(cfg.RedisURL, cfg.RedisTTL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingWait)
	defer cancel()
	if err := remote.Ping(pingCtx); err != nil {
		if cerr := remote.Close(); cerr != nil {
			logging.Debug("failed to close redis client: %v", cerr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logging.Info("  [OK] Remote cache reachable")
	return remote, nil
}
