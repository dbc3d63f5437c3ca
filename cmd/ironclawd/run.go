package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/panosAthDBX/ironclaw/internal/channelmgr"
	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/config"
	"github.com/panosAthDBX/ironclaw/internal/dockerdetect"
	"github.com/panosAthDBX/ironclaw/internal/gateway"
	"github.com/panosAthDBX/ironclaw/internal/heartbeat"
	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/maintenance"
	"github.com/panosAthDBX/ironclaw/internal/metrics"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/netpolicy"
	"github.com/panosAthDBX/ironclaw/internal/orchestrator"
	"github.com/panosAthDBX/ironclaw/internal/store"
	"github.com/panosAthDBX/ironclaw/internal/tools"
	"github.com/panosAthDBX/ironclaw/internal/workerauth"
)

// buildRunCmd wires every component into a running daemon: store, channel
// manager (bench + http always, discord/telegram/slack conditionally),
// orchestrator, worker callback server, heartbeat runner, maintenance
// scheduler, and a /metrics endpoint. Grounded on the teacher's
// buildServeCmd, which does the equivalent full-stack wiring for its own
// gateway in one RunE closure.
func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ironclaw daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runDaemon(cmd.Context(), cfg, slog.Default())
		},
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logBus := gateway.NewLogBus(logger.Handler())
	logger = slog.New(logBus)

	storeDB, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer storeDB.Close()

	tokens := workerauth.NewTokenStore()
	registry := buildToolRegistry(cfg)
	limiter := tools.NewRateLimiter(tools.DefaultRateLimiterConfig())
	provider := llm.NewFake()
	webChannel := channels.NewWeb()
	mgr := buildChannelManager(cfg, logger)
	mgr.Add(webChannel)

	spawner := buildJobSpawner(ctx, cfg, logger)

	callbackBaseURL := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	orch := orchestrator.New(orchestrator.Config{
		MaxToolIterations:    cfg.Orchestrator.MaxToolIterations,
		TurnTimeout:          cfg.Orchestrator.TurnTimeout,
		ToolFailureThreshold: cfg.Orchestrator.ToolFailureThreshold,
		CallbackBaseURL:      callbackBaseURL,
		JobImage:             cfg.Sandbox.Image,
		JobTimeout:           cfg.Sandbox.JobTimeout,
	}, logger, mgr, provider, registry, limiter, storeDB, tokens, spawner)

	if len(cfg.Sandbox.AllowedDomains) > 0 {
		allowlist := netpolicy.NewDomainAllowlist(cfg.Sandbox.AllowedDomains)
		orch.SetPolicy(netpolicy.NewDefaultPolicyDecider(allowlist, nil))
	}

	m := metrics.New()
	orch.SetMetrics(m)

	stream, err := mgr.StartAll(ctx)
	if err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	go consumeMessages(ctx, orch, stream, logger)

	var hb *heartbeat.Runner
	if cfg.Heartbeat.Enabled {
		checklist := heartbeat.NewChecklistLoader(cfg.Heartbeat.ChecklistPath)
		hb = heartbeat.NewRunner(heartbeat.Config{
			Enabled:            cfg.Heartbeat.Enabled,
			Interval:           cfg.Heartbeat.Interval,
			ConsecutiveFailMax: cfg.Heartbeat.ConsecutiveFailMax,
			NotifyChannel:      cfg.Heartbeat.NotifyChannel,
			NotifyUser:         cfg.Heartbeat.NotifyUser,
		}, provider, checklist, mgr, logger)
		go hb.Run(ctx)
		defer hb.Stop()
	}

	sched := maintenance.New(logger)
	if cfg.Sandbox.Enabled {
		if err := sched.Add(maintenance.DoctorTask("*/5 * * * *", logger)); err != nil {
			logger.Warn("could not register docker doctor task", "error", err)
		}
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: buildMetricsHandler(m, tokens, mgr),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsServer.Close()

	workerServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: buildWorkerMux(orch),
	}
	go func() {
		if err := workerServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker callback server failed", "error", err)
		}
	}()
	defer workerServer.Close()

	gw := gateway.New(gateway.Config{
		AuthToken:   cfg.Server.AuthToken,
		ProjectsDir: cfg.Server.ProjectsDir,
	}, webChannel, storeDB, logBus, logger)
	gatewayServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GatewayPort),
		Handler: gw,
	}
	go func() {
		if err := gatewayServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("web gateway server failed", "error", err)
		}
	}()
	defer gatewayServer.Close()

	logger.Info("ironclaw daemon started", "channels", mgr.ChannelNames())
	<-ctx.Done()
	logger.Info("shutting down")
	mgr.ShutdownAll(context.Background())
	return nil
}

func buildWorkerMux(orch *orchestrator.Orchestrator) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/worker/", orchestrator.NewWorkerServer(orch))
	return mux
}

func buildMetricsHandler(m *metrics.Metrics, tokens *workerauth.TokenStore, mgr *channelmgr.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", refreshingMetricsHandler(m, tokens, mgr))
	return mux
}

// refreshingMetricsHandler samples the gauges immediately before each
// scrape rather than on a separate timer, so /metrics never reports data
// staler than the scrape interval itself.
func refreshingMetricsHandler(m *metrics.Metrics, tokens *workerauth.TokenStore, mgr *channelmgr.Manager) http.Handler {
	promHandler := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RefreshTokens(tokens)
		for name, err := range mgr.HealthCheckAll(r.Context()) {
			m.ChannelHealth.WithLabelValues(name).Set(boolToFloat(err == nil))
		}
		promHandler.ServeHTTP(w, r)
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func consumeMessages(ctx context.Context, orch *orchestrator.Orchestrator, stream <-chan models.IncomingMessage, logger *slog.Logger) {
	for {
		select {
		case msg, ok := <-stream:
			if !ok {
				return
			}
			go func(msg models.IncomingMessage) {
				if err := orch.HandleIncoming(ctx, msg); err != nil {
					logger.Error("turn failed", "channel", msg.Channel, "error", err)
				}
			}(msg)
		case <-ctx.Done():
			return
		}
	}
}

func buildToolRegistry(cfg *config.Config) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.Echo{})
	registry.Register(tools.WebSearch{})
	if cfg.Sandbox.Enabled {
		registry.Register(tools.NewShellInSandbox(nil))
	}
	return registry
}

func buildChannelManager(cfg *config.Config, logger *slog.Logger) *channelmgr.Manager {
	mgr := channelmgr.New(logger)
	mgr.Add(channels.NewBench())
	mgr.Add(channels.NewHTTP(channels.HTTPConfig{
		Host:          cfg.HTTPChannel.Host,
		Port:          cfg.HTTPChannel.Port,
		WebhookSecret: cfg.HTTPChannel.WebhookSecret,
	}))
	if cfg.Discord.PublicKeyHex != "" {
		mgr.Add(channels.NewDiscord(channels.DiscordConfig{
			Host:      cfg.Server.Host,
			Port:      cfg.HTTPChannel.Port + 1,
			PublicKey: cfg.Discord.PublicKeyHex,
			Logger:    logger,
		}))
	}
	if cfg.Telegram.BotToken != "" {
		mgr.Add(channels.NewTelegram(channels.TelegramConfig{
			Token:  cfg.Telegram.BotToken,
			Logger: logger,
		}))
	}
	if cfg.Slack.BotToken != "" {
		mgr.Add(channels.NewSlack(channels.SlackConfig{
			BotToken: cfg.Slack.BotToken,
			Logger:   logger,
		}))
	}
	return mgr
}

func buildJobSpawner(ctx context.Context, cfg *config.Config, logger *slog.Logger) orchestrator.JobSpawner {
	if !cfg.Sandbox.Enabled {
		return nil
	}
	detection := dockerdetect.Check(ctx)
	if !detection.Status.IsOK() {
		logger.Warn("docker not available, sandbox jobs will fail", "status", detection.Status,
			"hint", detection.Platform.InstallHint())
		return orchestrator.NewDockerJobSpawner(nil)
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Warn("could not build docker client, sandbox jobs will fail", "error", err)
		return orchestrator.NewDockerJobSpawner(nil)
	}
	return orchestrator.NewDockerJobSpawner(cli)
}
