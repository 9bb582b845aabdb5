package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wolfofmycity/vigilaero-platform/pkg/api"
	"github.com/wolfofmycity/vigilaero-platform/pkg/artifacts"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/config"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
	"github.com/wolfofmycity/vigilaero-platform/pkg/observability"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
	"github.com/wolfofmycity/vigilaero-platform/pkg/report"
	"github.com/wolfofmycity/vigilaero-platform/pkg/session"
)

func loadConfig(profile string) (*config.Config, error) {
	var cfg *config.Config
	if profile != "" {
		var err error
		if cfg, err = config.LoadFile(profile); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildProvider assembles the configured evidence source: the backend API,
// the registry database or static files, then the cache and the trace span.
// The returned func releases the source's resources.
func buildProvider(ctx context.Context, cfg *config.Config, evidenceDir string, tracer trace.Tracer, logger *slog.Logger) (evidence.Provider, func(), error) {
	var (
		p       evidence.Provider
		cleanup = func() {}
	)

	switch cfg.EvidenceSource {
	case "http":
		opts := []evidence.HTTPOption{evidence.WithLogger(logger)}
		if cfg.EvidenceAPIToken != "" {
			s, err := session.FromToken(cfg.EvidenceAPIToken)
			if err != nil {
				s = session.Static(cfg.EvidenceAPIToken)
			}
			opts = append(opts, evidence.WithSession(s))
		}
		p = evidence.NewHTTPProvider(cfg.EvidenceAPIURL, opts...)
	case "sql":
		db, dialect, err := evidence.OpenSQL(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = db.Close() }
		sp, err := evidence.NewSQLProvider(db, dialect, cfg.CompanyID)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if dialect == evidence.DialectSQLite {
			if err := sp.Migrate(ctx); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		p = sp
	case "static":
		static, err := loadEvidenceDir(evidenceDir)
		if err != nil {
			return nil, nil, err
		}
		p = static
	default:
		return nil, nil, fmt.Errorf("unsupported evidence source %q", cfg.EvidenceSource)
	}

	if cfg.EvidenceCacheTTL > 0 {
		var cache evidence.Cache = evidence.NewMemoryCache()
		if cfg.RedisAddr != "" {
			rc := evidence.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err := rc.Ping(ctx); err != nil {
				logger.Warn("redis unavailable, using in-process evidence cache", "addr", cfg.RedisAddr, "error", err)
			} else {
				cache = rc
			}
		}
		p = evidence.NewCachedProvider(p, cache, cfg.EvidenceCacheTTL, logger)
	}
	return evidence.NewTraced(p, tracer, cfg.EvidenceSource), cleanup, nil
}

// loadEvidenceDir reads <framework_id>.json summaries from dir.
func loadEvidenceDir(dir string) (evidence.Static, error) {
	static := evidence.Static{}
	if dir == "" {
		return static, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		s, err := loadEvidence(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		static[strings.TrimSuffix(filepath.Base(path), ".json")] = s
	}
	return static, nil
}

// runFetchCmd implements `vigilaero fetch`: one refresh against the
// configured evidence source.
//
// Exit codes:
//
//	0 = scored from fresh evidence
//	2 = usage error, or evidence could not be fetched
func runFetchCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("fetch", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		frameworkID string
		profile     string
		evidenceDir string
		format      string
		q           evidence.Query
		scope       string
	)
	cmd.StringVar(&frameworkID, "framework", catalog.FAA107, "Framework id")
	cmd.StringVar(&profile, "profile", "", "YAML profile overlaying the environment")
	cmd.StringVar(&evidenceDir, "evidence-dir", "", "Directory of <framework_id>.json summaries (static source)")
	cmd.StringVar(&format, "format", "table", "Output format: table, json, csv, markdown")
	cmd.StringVar(&scope, "scope", string(evidence.ScopeOrg), "Evidence scope: org or asset")
	cmd.StringVar(&q.AssetID, "asset", "", "Asset (drone) id for asset scope")
	cmd.StringVar(&q.DateFrom, "from", "", "First day of evidence (YYYY-MM-DD)")
	cmd.StringVar(&q.DateTo, "to", "", "Last day of evidence (YYYY-MM-DD)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	q.FrameworkID = frameworkID
	q.Scope = evidence.Scope(scope)

	r, err := report.New(report.Format(format))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	cfg, err := loadConfig(profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := observability.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	reg, err := loadRegistry(cfg.CatalogDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	obs, err := observability.New(ctx, observability.DefaultConfig())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	provider, cleanup, err := buildProvider(ctx, cfg, evidenceDir, obs.Tracer(), logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer cleanup()

	c := readiness.NewController(reg, provider, readiness.WithLogger(logger))
	if _, err := c.Activate(frameworkID); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	snap, err := c.Refresh(ctx, frameworkID, q)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := r.Render(stdout, snap); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if snap.Degraded {
		return 2
	}
	return 0
}

// runServeCmd implements `vigilaero serve`. It runs until SIGINT/SIGTERM.
func runServeCmd(args []string, _, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		profile     string
		evidenceDir string
	)
	cmd.StringVar(&profile, "profile", "", "YAML profile overlaying the environment")
	cmd.StringVar(&evidenceDir, "evidence-dir", "", "Directory of <framework_id>.json summaries (static source)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := observability.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, evidenceDir, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return 2
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, evidenceDir string, logger *slog.Logger) error {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.Environment = cfg.Environment
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()
	metrics, err := observability.NewReadinessMetrics(obs.Meter())
	if err != nil {
		return fmt.Errorf("readiness metrics: %w", err)
	}

	reg, err := loadRegistry(cfg.CatalogDir)
	if err != nil {
		return err
	}
	provider, cleanup, err := buildProvider(ctx, cfg, evidenceDir, obs.Tracer(), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	controller := readiness.NewController(reg, provider,
		readiness.WithLogger(logger),
		readiness.WithRecorder(metrics),
	)

	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			origins = append(origins, strings.TrimSpace(o))
		}
	}
	handler := api.NewServer(controller,
		api.WithArtifactStore(store),
		api.WithObservability(obs),
		api.WithRateLimiter(limiter),
		api.WithAllowedOrigins(origins...),
		api.WithLogger(logger),
	).Handler()

	for _, f := range reg.List() {
		if !f.Wired {
			continue
		}
		p := readiness.NewPoller(controller, evidence.Query{FrameworkID: f.ID, Scope: evidence.ScopeOrg}, cfg.PollInterval,
			readiness.OnSnapshot(func(s readiness.Snapshot) {
				logger.Debug("readiness refreshed",
					"framework_id", s.Framework.ID, "score", s.Summary.Score, "degraded", s.Degraded)
			}))
		go func(id string) {
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("poller stopped", "framework_id", id, "error", err)
			}
		}(f.ID)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("vigilaero listening", "addr", srv.Addr, "evidence_source", cfg.EvidenceSource)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
