package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/dannycabezas/semantic-firewall/internal/adapter/inbound/http"
	"github.com/dannycabezas/semantic-firewall/internal/adapter/inbound/ws"
	"github.com/dannycabezas/semantic-firewall/internal/adapter/outbound/dataset"
	"github.com/dannycabezas/semantic-firewall/internal/adapter/outbound/detectors"
	"github.com/dannycabezas/semantic-firewall/internal/adapter/outbound/httpbackend"
	"github.com/dannycabezas/semantic-firewall/internal/adapter/outbound/sqlite"
	"github.com/dannycabezas/semantic-firewall/internal/config"
	"github.com/dannycabezas/semantic-firewall/internal/domain/detector"
	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
	"github.com/dannycabezas/semantic-firewall/internal/service/analyzer"
	benchmarkservice "github.com/dannycabezas/semantic-firewall/internal/service/benchmark"
	"github.com/dannycabezas/semantic-firewall/internal/service/eventbus"
	"github.com/dannycabezas/semantic-firewall/internal/service/gateway"
	"github.com/dannycabezas/semantic-firewall/internal/service/metrics"
	"github.com/dannycabezas/semantic-firewall/internal/service/mlfilter"
	"github.com/dannycabezas/semantic-firewall/internal/service/orchestrator"
	"github.com/dannycabezas/semantic-firewall/internal/service/policyengine"
	"github.com/dannycabezas/semantic-firewall/internal/service/registry"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the semantic firewall HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (permissive defaults, debug logging)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if f := config.ConfigFileUsed(); f != "" {
		logger.Info("loaded config file", "path", f)
	} else {
		logger.Info("no config file found, using defaults and environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer srv.close()

	printBanner(Version, cfg.Server.HTTPAddr, cfg.DevMode)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Server.HTTPAddr)
		if err := srv.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections")
		return shutdownServer(srv.httpServer)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// runtimeServer bundles the http.Server together with the background
// components whose lifetime matches the process (the event bus dispatcher
// loop, the benchmark store's database handle).
type runtimeServer struct {
	httpServer *http.Server
	bus        *eventbus.Bus
	store      *sqlite.Store
}

func (s *runtimeServer) close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// buildServer wires every component named in spec.md §6 together: the
// detector registry, the default analyzer, the policy evaluator, the
// event bus and metrics store, the backend client, the orchestrator, the
// gateway, the benchmark engine and its SQLite store, and the combined
// HTTP mux (JSON API + dashboard WebSocket). Grounded on the teacher's
// start.go run() orchestration, trimmed of everything upstream-connection
// and MCP-tool specific.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtimeServer, error) {
	reg := registry.New(logger)

	heuristicRules := detectors.DefaultRules
	if cfg.Detectors.HeuristicRules != "" {
		loaded, err := detectors.LoadRulesFile(cfg.Detectors.HeuristicRules)
		if err != nil {
			return nil, fmt.Errorf("load heuristic rules: %w", err)
		}
		heuristicRules = loaded
	}

	// Construct the process-wide default detectors through the registry,
	// the same path gateway.AnalyzerFor uses for a per-request
	// detector_config, so GET /api/models/cache reflects what is actually
	// serving /api/chat traffic instead of sitting empty.
	piiKey := registry.Key{Kind: detector.KindPII, ModelName: cfg.Detectors.PIIVariant}
	piiInst, err := reg.Get(piiKey, func() (any, error) {
		return detectors.NewPIIDetector(cfg.Detectors.PIIVariant, cfg.Detectors.PIIMockScore), nil
	})
	if err != nil {
		return nil, fmt.Errorf("construct default pii detector: %w", err)
	}
	pii, _ := piiInst.(detector.PIIDetector)

	toxicityKey := registry.Key{Kind: detector.KindToxicity, ModelName: cfg.Detectors.ToxicityVariant}
	toxicityInst, err := reg.Get(toxicityKey, func() (any, error) {
		return detectors.NewToxicityDetector(cfg.Detectors.ToxicityVariant), nil
	})
	if err != nil {
		return nil, fmt.Errorf("construct default toxicity detector: %w", err)
	}
	toxicity, _ := toxicityInst.(detector.ToxicityDetector)

	injectionKey := registry.Key{Kind: detector.KindPromptInjection, ModelName: cfg.Detectors.PromptInjectionVariant}
	injectionInst, err := reg.Get(injectionKey, func() (any, error) {
		return detectors.NewPromptInjectionDetector(cfg.Detectors.PromptInjectionVariant), nil
	})
	if err != nil {
		return nil, fmt.Errorf("construct default prompt injection detector: %w", err)
	}
	injection, _ := injectionInst.(detector.PromptInjectionDetector)

	heuristicKey := registry.Key{Kind: detector.KindHeuristic, ModelName: detector.VariantRegex}
	heuristicInst, err := reg.Get(heuristicKey, func() (any, error) {
		return detectors.NewRegexHeuristicDetector(heuristicRules), nil
	})
	if err != nil {
		return nil, fmt.Errorf("construct default heuristic detector: %w", err)
	}
	heuristic, _ := heuristicInst.(detector.HeuristicDetector)

	registry.WarmUp(logger, map[registry.Key]any{
		piiKey:       piiInst,
		toxicityKey:  toxicityInst,
		injectionKey: injectionInst,
		heuristicKey: heuristicInst,
	})

	mlf := mlfilter.New(mlfilter.Detectors{
		PII:             pii,
		Toxicity:        toxicity,
		PromptInjection: injection,
		Heuristic:       heuristic,
	})

	evaluator, err := buildEvaluator(cfg, logger)
	if err != nil {
		return nil, err
	}

	defaultAnalyzer := analyzer.New(nil, mlf, evaluator)

	metricsStore := metrics.New(cfg.Metrics.RingBufferCapacity)

	sendTimeout, err := time.ParseDuration(cfg.EventBus.SendTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse event_bus.send_timeout: %w", err)
	}
	bus := eventbus.New(
		eventbus.WithQueueSize(cfg.EventBus.QueueSize),
		eventbus.WithSendTimeout(sendTimeout),
		eventbus.WithWarningThreshold(cfg.EventBus.WarningThreshold),
		eventbus.WithLogger(logger),
	)
	bus.Start(ctx)

	backendTimeout, err := time.ParseDuration(cfg.Backend.Timeout)
	if err != nil {
		return nil, fmt.Errorf("parse backend.timeout: %w", err)
	}
	backend := httpbackend.NewClient(cfg.Backend.URL, httpbackend.WithTimeout(backendTimeout))

	orch := orchestrator.New(
		orchestrator.WithIdempotencyStore(orchestrator.NewMemoryIdempotencyStore(0)),
		orchestrator.WithLogger(logger),
	)

	gw := gateway.New(
		reg,
		defaultAnalyzer,
		evaluator,
		backend,
		orch,
		metricsStore,
		gateway.NewBusSink(bus.Publish),
		gateway.WithEgressAnalysis(cfg.Policy.AnalyzeEgressDefault),
	)

	store, err := sqlite.Open(cfg.Benchmark.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open benchmark store: %w", err)
	}

	loader := dataset.New(cfg.Benchmark.BuiltinDatasetDir, cfg.Benchmark.DatasetDir, store)
	benchmarkEngine := benchmarkservice.New(
		store,
		defaultAnalyzer,
		loader,
		benchmarkservice.WithMaxConcurrentSamples(cfg.Benchmark.MaxConcurrentSamples),
		benchmarkservice.WithBatchSize(cfg.Benchmark.BatchSize),
		benchmarkservice.WithLogger(logger),
	)

	wsHandler := ws.NewHandler(bus, ws.WithLogger(logger))

	apiHandler := httpapi.New(
		gw,
		metricsStore,
		reg,
		benchmarkEngine,
		store,
		httpapi.DetectorDefaults{
			PromptInjection: cfg.Detectors.PromptInjectionVariant,
			PII:             cfg.Detectors.PIIVariant,
			Toxicity:        cfg.Detectors.ToxicityVariant,
		},
		httpapi.WithTenantID(cfg.Tenant.DefaultID),
		httpapi.WithLogger(logger),
		httpapi.WithDatasetDir(cfg.Benchmark.DatasetDir),
	)

	mux := http.NewServeMux()
	mux.Handle("/ws/dashboard", wsHandler)
	mux.Handle("/", apiHandler.Routes())

	return &runtimeServer{
		httpServer: &http.Server{Addr: cfg.Server.HTTPAddr, Handler: mux},
		bus:        bus,
		store:      store,
	}, nil
}

// buildEvaluator picks the rule-table evaluator or the external-engine
// evaluator per cfg.Policy.ExternalEngineURL, per spec.md §4.4.
func buildEvaluator(cfg *config.Config, logger *slog.Logger) (policy.Evaluator, error) {
	p, err := policyengine.LoadPolicyFile(cfg.Policy.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load policy file: %w", err)
	}

	if cfg.Policy.ExternalEngineURL == "" {
		eval, err := policyengine.NewRuleTableEvaluator(p, logger)
		if err != nil {
			return nil, fmt.Errorf("build rule table evaluator: %w", err)
		}
		return eval, nil
	}

	eval := policyengine.NewExternalEvaluator(
		cfg.Policy.ExternalEngineURL,
		policyengine.WithFailOpen(cfg.Policy.ExternalFailOpen),
		policyengine.WithLogger(logger),
	)
	if err := eval.SyncPolicy(context.Background(), p); err != nil {
		logger.Warn("initial policy sync to external engine failed, continuing fail-open", "error", err)
	}
	return eval, nil
}

// shutdownServer drains in-flight requests for up to 10 seconds, mirroring
// the teacher's HTTPTransport.shutdown.
func shutdownServer(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// printBanner writes a short startup summary to stdout.
func printBanner(version, addr string, devMode bool) {
	mode := "production"
	if devMode {
		mode = "development"
	}
	fmt.Printf("semantic-firewall %s (%s mode)\n", version, mode)
	fmt.Printf("listening on %s\n", addr)
}

// parseLogLevel maps a config log level string to a slog.Level, defaulting
// to info for anything unrecognized.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
