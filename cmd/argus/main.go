// Argus observability agent - ingests host/process/log/SDK telemetry,
// classifies it, fires rule-based alerts, and runs budget-gated AI
// investigations over it. This is the wiring root: it assembles every
// pkg/ component and serves the HTTP/WebSocket surface.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeready-toolchain/argus/pkg/action"
	"github.com/codeready-toolchain/argus/pkg/alert"
	"github.com/codeready-toolchain/argus/pkg/alertfmt"
	"github.com/codeready-toolchain/argus/pkg/api"
	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/baseline"
	"github.com/codeready-toolchain/argus/pkg/bus"
	"github.com/codeready-toolchain/argus/pkg/classify"
	"github.com/codeready-toolchain/argus/pkg/collector"
	"github.com/codeready-toolchain/argus/pkg/config"
	"github.com/codeready-toolchain/argus/pkg/investigator"
	"github.com/codeready-toolchain/argus/pkg/llm"
	"github.com/codeready-toolchain/argus/pkg/selfmetrics"
	"github.com/codeready-toolchain/argus/pkg/store"
	"github.com/codeready-toolchain/argus/pkg/tool"
	"github.com/codeready-toolchain/argus/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// investigationReportSink adapts the Alert Formatter into the
// investigator.ReportSink capability (spec.md §4.7 step 5): a finished
// investigation's summary rides the same batching/digest path as any
// other alert instead of requiring its own delivery mechanism.
type investigationReportSink struct {
	formatter *alertfmt.Formatter
}

func (s *investigationReportSink) DeliverInvestigationReport(tenant, investigationID, summary string, severity argusmodel.Severity) {
	now := time.Now()
	s.formatter.Deliver(argusmodel.ActiveAlert{
		ID:       investigationID,
		RuleName: "investigation_report",
		Event: argusmodel.Event{
			Source:    argusmodel.SourceScheduler,
			Type:      "investigation_report",
			Severity:  severity,
			Message:   summary,
			Timestamp: now,
			Tenant:    tenant,
		},
		Severity:  severity,
		DedupKey:  "investigation:" + investigationID,
		Timestamp: now,
	})
}

// auditSinkAdapter adapts a store.OperationalRepository into the Action
// Engine's action.AuditSink capability, which speaks argusmodel.AuditRecord
// rather than the store's own row projection.
type auditSinkAdapter struct {
	operational store.OperationalRepository
}

func (a *auditSinkAdapter) AppendAudit(ctx context.Context, tenant string, rec argusmodel.AuditRecord) error {
	return a.operational.AppendAudit(ctx, tenant, store.AuditRow{
		Timestamp:      rec.Timestamp,
		Action:         rec.Action,
		CommandString:  rec.CommandString,
		ResultExcerpt:  rec.ResultExcerpt,
		Success:        rec.Success,
		UserApproved:   rec.UserApproved,
		ConversationID: rec.ConversationID,
		IPAddress:      rec.IPAddress,
	})
}

// llmTriager implements alertfmt.Triager with a single short completion
// over a digest's group summaries (spec.md §4.6's optional AI triage
// line). Errors propagate to the caller, which discards them silently.
type llmTriager struct {
	provider llm.Provider
}

func (t *llmTriager) Triage(ctx context.Context, summaries []string) (string, error) {
	prompt := "Summarize the following alert groups in one or two sentences:\n"
	for _, s := range summaries {
		prompt += "- " + s + "\n"
	}
	deltas, errs := t.provider.Stream(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	var out string
	for {
		select {
		case d, ok := <-deltas:
			if !ok {
				return out, nil
			}
			out += d.Content
		case err := <-errs:
			if err != nil {
				return out, err
			}
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "./deploy/config.yaml"), "Path to YAML configuration file")
	envPath := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("starting argus", "mode", cfg.Mode, "server_port", cfg.Server.Port)

	tenant := getEnv("ARGUS_TENANT", "default")
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	reg := prometheus.NewRegistry()
	selfmetrics.New(reg)

	// --- Storage: pgx-backed when DATABASE_URL is present, in-memory
	// MemStore otherwise (spec.md §4.1: reads/writes must never block
	// the caller unboundedly; MemStore is the zero-dependency fallback
	// used by the package tests throughout pkg/alert, pkg/baseline, and
	// pkg/investigator).
	var metricsRepo store.MetricsRepository
	var operational store.OperationalRepository
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		client, err := store.NewClientFromDSN(ctx, dsn)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer client.Close()
		metricsRepo = store.NewPgxMetricsRepository(client.Pool)
		operational = store.NewPgxOperationalRepository(client.Pool)
		slog.Info("connected to postgres store")
	} else {
		mem := store.NewMemStore()
		metricsRepo = mem
		operational = mem
		slog.Info("using in-memory store (set DATABASE_URL to persist)")
	}

	// --- Event pipeline: bus, classifier, collectors.
	eventBus := bus.New(1024)
	classifier := classify.New(classify.DefaultThresholdRules())
	sdkCollector := collector.NewSDKCollector(eventBus, metricsRepo, classifier)

	type startStopper interface {
		Start(context.Context)
		Stop()
	}
	var collectors []startStopper
	if cfg.Mode == config.ModeFull {
		collectors = append(collectors,
			collector.NewMetricsCollector(eventBus, metricsRepo, classifier, cfg.Collector.MetricsInterval.Duration, cfg.Collector.HostRoot, tenant),
			collector.NewProcessCollector(eventBus, cfg.Collector.ProcessInterval.Duration, tenant, nil),
			collector.NewLogCollector(eventBus, metricsRepo, tenant, cfg.Collector.LogPaths, 2*time.Second),
			collector.NewSecurityCollector(eventBus, 30*time.Second, tenant),
		)
	}

	// --- Baseline tracker + anomaly detector: current metric samples
	// re-enter the bus as anomaly_detected events once a baseline exists.
	tracker := baseline.New(metricsRepo, 6*time.Hour, 7*24*time.Hour)
	detector := baseline.NewDetector(tracker)
	eventBus.Subscribe(bus.Filter{
		Sources: map[argusmodel.Source]struct{}{
			argusmodel.SourceSystemMetrics: {},
			argusmodel.SourceSDKTelemetry:  {},
		},
	}, func(e argusmodel.Event) error {
		for key := range e.Data {
			value, ok := e.Value(key)
			if !ok {
				continue
			}
			if anomaly, found := detector.Check(key, value); found {
				eventBus.Publish(anomaly.ToEvent(e.Source, e.Tenant))
			}
		}
		return nil
	})

	// --- Action engine + command sandbox, wired through a tool registry
	// the ReAct loop can call. The engine and the WebSocket connection
	// manager each need a reference to the other (spec.md §9); build the
	// engine first with a nil broadcaster, bind the manager as its
	// ActionResponder, then bind the manager back as its Broadcaster.
	actionEngine := action.New(nil, &auditSinkAdapter{operational: operational})
	connManager := api.NewConnectionManager(actionEngine)
	actionEngine.SetBroadcaster(connManager)

	toolRegistry := tool.NewRegistry()
	tool.RegisterQueryTools(toolRegistry, metricsRepo)
	tool.RegisterActionTool(toolRegistry, actionEngine, tenant)

	// --- LLM provider: a real Anthropic client when an API key is
	// configured, otherwise a stub so the process still boots for local
	// development (no investigation traffic is possible without one).
	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	var provider llm.Provider
	if apiKey != "" {
		provider = llm.NewAnthropicProvider(apiKey, cfg.LLM.Model, "")
	} else {
		provider = llm.NewStubProvider()
		slog.Warn("no LLM API key configured; investigations will run without provider output")
	}

	tokenBudget := argusmodel.NewTokenBudget(cfg.AIBudget.DailyTokenLimit, cfg.AIBudget.HourlyTokenLimit, cfg.AIBudget.PriorityReserve, time.Now)

	// --- Alert formatter (immediate urgent sends + batched notable digest).
	var channels []alertfmt.Channel
	if slackChannel := alertfmt.NewSlackChannel(os.Getenv("SLACK_BOT_TOKEN"), os.Getenv("SLACK_CHANNEL_ID")); slackChannel != nil {
		channels = append(channels, slackChannel)
	}
	var triager alertfmt.Triager
	if cfg.Alerting.AIEnhance && apiKey != "" {
		triager = &llmTriager{provider: provider}
	}
	formatter := alertfmt.New(channels, triager, cfg.Alerting.BatchWindow.Duration)
	formatter.Start(ctx)
	defer formatter.Stop()

	// --- Investigator (bounded queue + worker pool + ReAct loop).
	inv := investigator.New(provider, toolRegistry, tokenBudget, operational, connManager, &investigationReportSink{formatter: formatter})
	connManager.SetFollowupHandler(inv)
	inv.Start(ctx)
	defer inv.Stop()

	scheduler := investigator.NewScheduler(inv, tenant, cfg.AIBudget.ReviewFrequency.Duration, cfg.AIBudget.DigestFrequency.Duration)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// --- Alert engine (rule matching, dedup, suppression, routing, auto-investigate).
	alertEngine := alert.New(alert.DefaultRules(), operational, formatter, inv)
	if err := alertEngine.LoadState(ctx, tenant); err != nil {
		slog.Warn("failed to load persisted alert suppression state", "error", err)
	}
	alertEngine.Start(eventBus)
	defer alertEngine.Stop()

	for _, c := range collectors {
		c.Start(ctx)
		defer c.Stop()
	}
	tracker.Start(ctx)
	defer tracker.Stop()

	// --- HTTP/WebSocket surface.
	gin.SetMode(getEnv("GIN_MODE", "release"))
	var verifier *webhook.Verifier
	if secret := os.Getenv("ARGUS_WEBHOOK_SECRET"); secret != "" {
		verifier = webhook.NewVerifier(secret)
	}
	server := api.NewServer(connManager, alertEngine, actionEngine, sdkCollector, verifier, reg)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
