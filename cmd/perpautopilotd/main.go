package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/alerts"
	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/collaborators"
	"github.com/aristath/perpautopilot/internal/config"
	"github.com/aristath/perpautopilot/internal/discovery"
	"github.com/aristath/perpautopilot/internal/events"
	"github.com/aristath/perpautopilot/internal/eventscan"
	"github.com/aristath/perpautopilot/internal/heartbeat"
	"github.com/aristath/perpautopilot/internal/paperbook"
	"github.com/aristath/perpautopilot/internal/policy"
	"github.com/aristath/perpautopilot/internal/reflectmut"
	"github.com/aristath/perpautopilot/internal/scheduler"
	"github.com/aristath/perpautopilot/internal/server"
	"github.com/aristath/perpautopilot/internal/store"
	"github.com/aristath/perpautopilot/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting perpautopilot control plane")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	realClock := clock.Real{}
	eventMgr := events.NewManager(realClock, log)

	jobRepo := store.NewJobRepository(db.Conn(), log)
	policyRepo := store.NewPolicyRepository(db.Conn(), log)
	journalRepo := store.NewJournalRepository(db.Conn(), log)
	alertRepo := store.NewAlertRepository(db.Conn(), log)
	paperRepo := store.NewPaperBookRepository(db.Conn(), log)

	mids := collaborators.NewHTTPMarketDataClient(cfg.ExecutorBaseURL, log)
	oracle := collaborators.NewHTTPOracle(cfg.OracleBaseURL, log)
	expressionSource := collaborators.NewHTTPExpressionSource(cfg.ExpressionSourceBaseURL, log)

	var executor collaborators.Executor
	var positions collaborators.PositionProvider
	var book *paperbook.Book
	switch cfg.ExecutionMode {
	case "paper":
		book = paperbook.New(paperRepo, realClock, cfg.PaperBook, log)
		if err := book.Init(); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize paper book")
		}
		paperExec := paperbook.NewExecutor(book)
		executor = paperExec
		positions = paperExec
	default:
		httpExec := collaborators.NewHTTPExecutor(cfg.ExecutorBaseURL, log)
		executor = httpExec
		positions = httpExec
	}

	engine := policy.NewEngine(policyRepo, realClock, cfg.Autonomy)
	mutator := reflectmut.New(policyRepo, journalRepo, realClock, cfg.Reflect, log)
	supervisor := heartbeat.New(cfg.Heartbeat, positions, mids, executor, oracle, journalRepo, realClock, log)
	discoveryJob := discovery.New(expressionSource, engine, executor, policyRepo, journalRepo, realClock, cfg.Autonomy, log)

	notifiers := map[string]alerts.Notifier{"log": alerts.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		notifiers["webhook"] = alerts.NewWebhookNotifier(cfg.WebhookURL, log)
	}
	router := alerts.NewChannelRouter(notifiers)
	alertPipeline := alerts.New(alertRepo, router, realClock, cfg.Alerts, log)

	raise := func(reason, severity, summary string) {
		raiseAlert(alertPipeline, eventMgr, reason, severity, summary, log)
	}
	supervisor.SetAlertRaiser(raise)

	eventCoordinator := eventscan.New(eventscan.Config{Enabled: true, CooldownMs: 60_000}, realClock)

	sched := scheduler.New(jobRepo, realClock, log, time.Second)

	heartbeatLeaseMs := int64(cfg.Heartbeat.TickIntervalSeconds) * 1000 * 3
	if err := sched.RegisterJob(scheduler.Definition{
		Name:       "heartbeat_tick",
		Kind:       store.ScheduleInterval,
		IntervalMs: int64(cfg.Heartbeat.TickIntervalSeconds) * 1000,
		LeaseMs:    heartbeatLeaseMs,
	}, supervisor); err != nil {
		log.Fatal().Err(err).Msg("failed to register heartbeat_tick job")
	}

	discoveryLeaseMs := int64(cfg.Autonomy.ScanIntervalSeconds) * 1000 * 3
	if err := sched.RegisterJob(scheduler.Definition{
		Name:       "discovery_scan",
		Kind:       store.ScheduleInterval,
		IntervalMs: int64(cfg.Autonomy.ScanIntervalSeconds) * 1000,
		LeaseMs:    discoveryLeaseMs,
	}, &alertingJob{job: discoveryJob, reason: "discovery_scan_error", raise: raise, events: eventMgr}); err != nil {
		log.Fatal().Err(err).Msg("failed to register discovery_scan job")
	}

	reflectLeaseMs := int64(cfg.Reflect.ScanIntervalSeconds) * 1000 * 3
	if err := sched.RegisterJob(scheduler.Definition{
		Name:       "reflective_mutation",
		Kind:       store.ScheduleInterval,
		IntervalMs: int64(cfg.Reflect.ScanIntervalSeconds) * 1000,
		LeaseMs:    reflectLeaseMs,
	}, &alertingJob{job: mutator, reason: "scheduler_job_failed", raise: raise, events: eventMgr}); err != nil {
		log.Fatal().Err(err).Msg("failed to register reflective_mutation job")
	}

	if book != nil {
		crossJob := paperbook.NewCrossJob(book, mids)
		if err := sched.RegisterJob(scheduler.Definition{
			Name:       "paper_book_cross",
			Kind:       store.ScheduleInterval,
			IntervalMs: 5_000,
			LeaseMs:    15_000,
		}, &alertingJob{job: crossJob, reason: "paper_book_error", raise: raise, events: eventMgr}); err != nil {
			log.Fatal().Err(err).Msg("failed to register paper_book_cross job")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:       cfg.Port,
		Log:        log,
		DevMode:    cfg.DevMode,
		Clock:      realClock,
		Scheduler:  sched,
		PolicyRepo: policyRepo,
		Engine:     engine,
		Alerts:     alertPipeline,
		AlertRepo:  alertRepo,
		EventScan:  eventCoordinator,
		ScanJob:    "discovery_scan",
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Str("execution_mode", cfg.ExecutionMode).Msg("control plane started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	log.Info().Msg("control plane stopped")
}

// alertingJob decorates a scheduler.Job, raising an alert (in addition to
// the scheduler's own failure bookkeeping) whenever Run returns an error,
// and emitting a lifecycle event for either outcome.
type alertingJob struct {
	job    scheduler.Job
	reason string
	raise  func(reason, severity, summary string)
	events *events.Manager
}

func (j *alertingJob) Name() string { return j.job.Name() }

func (j *alertingJob) Run(ctx context.Context) error {
	err := j.job.Run(ctx)
	if err != nil {
		j.raise(j.reason, "warning", j.job.Name()+": "+err.Error())
		j.events.Emit(events.JobFailed, j.job.Name(), map[string]interface{}{"error": err.Error()})
		return err
	}
	j.events.Emit(events.JobSucceeded, j.job.Name(), nil)
	return nil
}

// raiseAlert runs the alert pipeline's gate-then-dispatch sequence
// synchronously; a raise failure is logged, never propagated, since an
// alerting fault must not abort the caller's own job.
func raiseAlert(pipeline *alerts.Pipeline, mgr *events.Manager, reason, severity, summary string, log zerolog.Logger) {
	decision, err := pipeline.Create(alerts.CreateInput{
		DedupeKey: reason,
		Source:    "perpautopilotd",
		Reason:    reason,
		Severity:  severity,
		Summary:   summary,
	})
	if err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("failed to create alert")
		return
	}
	if decision.Suppressed || !decision.Authorized {
		mgr.Emit(events.AlertSuppressed, "alerts", map[string]interface{}{"reason": reason})
		return
	}
	mgr.Emit(events.AlertCreated, "alerts", map[string]interface{}{"reason": reason, "severity": severity})
	if err := pipeline.Dispatch(context.Background(), decision); err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("failed to dispatch alert")
		return
	}
	mgr.Emit(events.AlertSent, "alerts", map[string]interface{}{"reason": reason})
}
