package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viant/triage"
	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/metrics"
	"github.com/viant/triage/report"
	"github.com/viant/triage/service/stats"
	"github.com/viant/triage/service/stats/redisstore"
	"github.com/viant/triage/service/stats/sqlstore"
	"github.com/viant/triage/telemetry"
	"github.com/viant/triage/telemetry/journal"
	"github.com/viant/triage/telemetry/mqttpub"
	"github.com/viant/triage/telemetry/zaplog"
	"github.com/viant/triage/tracing"
	"go.uber.org/zap"
)

const serviceName = "triage"

type options struct {
	config       string
	logLevel     string
	logFormat    string
	sqlite       string
	postgres     string
	redis        string
	mqtt         string
	metrics      string
	report       string
	workbook     string
	trace        string
	journal      string
	days         int
	seed         uint64
	disableSurge bool
}

func main() {
	opts := &options{}
	flag.StringVar(&opts.config, "config", "", "YAML config URL")
	flag.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	flag.StringVar(&opts.logFormat, "log-format", "json", "json or console")
	flag.StringVar(&opts.sqlite, "sqlite", "", "SQLite DSN of the durable statistics store")
	flag.StringVar(&opts.postgres, "postgres", "", "Postgres DSN of the durable statistics store")
	flag.StringVar(&opts.redis, "redis", "", "Redis address of the durable statistics store")
	flag.StringVar(&opts.mqtt, "mqtt", "", "MQTT broker URL events are published to")
	flag.StringVar(&opts.metrics, "metrics", "", "address serving Prometheus metrics, e.g. :9090")
	flag.StringVar(&opts.report, "report", "", "URL the JSON report is written to")
	flag.StringVar(&opts.workbook, "workbook", "", "URL the XLSX report is written to")
	flag.StringVar(&opts.trace, "trace", "", "file spans are written to")
	flag.StringVar(&opts.journal, "journal", "", "URL of the directory events are journaled to")
	flag.IntVar(&opts.days, "days", 0, "overrides clock.days")
	flag.Uint64Var(&opts.seed, "seed", 0, "overrides the random seed")
	flag.BoolVar(&opts.disableSurge, "no-surge", false, "disables the surge episode")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := zaplog.NewLogger(opts.logLevel, opts.logFormat, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(ctx, cancel, cfg, opts, log); err != nil {
		log.Error("Run failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Run finished")
}

func loadConfig(ctx context.Context, opts *options) (*triage.Config, error) {
	cfg := triage.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = triage.LoadConfig(ctx, opts.config); err != nil {
			return nil, err
		}
	}
	if opts.days > 0 {
		cfg.Clock.Days = opts.days
	}
	if opts.seed > 0 {
		cfg.Seed = opts.seed
	}
	if opts.disableSurge {
		cfg.Surge.Enabled = false
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *triage.Config, opts *options, log *zap.Logger) error {
	logical := clock.New(cfg.Clock.TicksPerDay)
	serviceOptions := []triage.Option{
		triage.WithClock(logical),
		triage.WithListeners(zaplog.New(log)),
	}

	sinks, closeSinks, err := durableSinks(ctx, opts, logical.DayOf)
	if err != nil {
		return err
	}
	defer closeSinks()
	serviceOptions = append(serviceOptions, triage.WithDurableSink(sinks...))

	if opts.mqtt != "" {
		publisher, disconnect, err := mqttpub.Dial(mqttpub.Config{
			Broker:       opts.mqtt,
			ClientID:     fmt.Sprintf("%s-%d", serviceName, os.Getpid()),
			TopicPrefix:  serviceName,
			QoS:          1,
			WriteTimeout: time.Second,
			Kinds:        []telemetry.Kind{telemetry.KindResolved, telemetry.KindSurgeBegin, telemetry.KindSurgeEnd, telemetry.KindLoanImbalance},
		}, mqttpub.WithErrorHandler(func(err error) {
			log.Warn("Failed to publish event", zap.Error(err))
		}))
		if err != nil {
			return err
		}
		defer disconnect()
		serviceOptions = append(serviceOptions, triage.WithListeners(publisher))
	}

	if opts.journal != "" {
		events, err := journal.New(ctx, nil, journal.Config{BaseURL: opts.journal, SegmentSize: journal.DefaultConfig().SegmentSize},
			journal.WithErrorHandler(func(err error) {
				log.Warn("Failed to journal events", zap.Error(err))
			}))
		if err != nil {
			return err
		}
		defer func() {
			if err := events.Flush(context.Background()); err != nil {
				log.Warn("Failed to flush journal", zap.Error(err))
			}
		}()
		serviceOptions = append(serviceOptions, triage.WithListeners(events))
	}

	if opts.trace != "" {
		serviceOptions = append(serviceOptions, triage.WithTracing(serviceName, "", opts.trace))
		defer func() { _ = tracing.Shutdown(context.Background()) }()
	}

	var server *http.Server
	if opts.metrics != "" {
		registry := prometheus.NewRegistry()
		m, err := metrics.New(registry)
		if err != nil {
			return err
		}
		serviceOptions = append(serviceOptions, triage.WithMetrics(m))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: opts.metrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	srv, err := triage.New(cfg, serviceOptions...)
	if err != nil {
		return err
	}
	rt := srv.Runtime()
	log.Info("Starting run",
		zap.Int("days", cfg.Clock.Days),
		zap.Int("ticksPerDay", cfg.Clock.TicksPerDay),
		zap.Bool("surge", cfg.Surge.Enabled),
		zap.Int64("surgeTrigger", int64(rt.Trigger())))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- rt.Run(ctx)
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		runErr = <-errChan
	case runErr = <-errChan:
	}

	summary := rt.Report()
	log.Info("Run summary",
		zap.Int("created", summary.Progress.Created),
		zap.Int("recorded", summary.Progress.Recorded),
		zap.Int("lost", summary.Progress.Lost),
		zap.Int("alive", summary.Totals.Alive),
		zap.Int("dead", summary.Totals.Dead),
		zap.Int("surgeEpisodes", len(summary.Episodes)))
	for _, day := range summary.Days {
		log.Info("Day",
			zap.Int("day", day.Day),
			zap.Int("visits", day.Visits),
			zap.Int("alive", day.Alive),
			zap.Int("dead", day.Dead),
			zap.Int("lost", day.Lost),
			zap.Float64("averageWaiting", day.Waiting.Average()))
	}

	exportCtx := context.Background()
	exporter := report.New(nil)
	if opts.report != "" {
		if err := exporter.Export(exportCtx, opts.report, summary); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	if opts.workbook != "" {
		if err := exporter.ExportWorkbook(exportCtx, opts.workbook, summary); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

// durableSinks opens every configured statistics store.
func durableSinks(ctx context.Context, opts *options, dayOf stats.DayFunc) ([]stats.Sink, func(), error) {
	var sinks []stats.Sink
	var closers []func()
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}
	for driver, dsn := range map[string]string{sqlstore.DriverSQLite: opts.sqlite, sqlstore.DriverPostgres: opts.postgres} {
		if dsn == "" {
			continue
		}
		store, err := sqlstore.Open(ctx, driver, dsn, dayOf)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, func() { _ = store.Close() })
	}
	if opts.redis != "" {
		client := redisstore.NewClient(&redisstore.Config{Addr: opts.redis})
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		sinks = append(sinks, redisstore.New(client, serviceName, dayOf))
		closers = append(closers, func() { _ = client.Close() })
	}
	return sinks, closeAll, nil
}
