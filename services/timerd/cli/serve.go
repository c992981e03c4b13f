package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-countdown/internal/engine"
	"github.com/ramiqadoumi/go-countdown/internal/kafka"
	"github.com/ramiqadoumi/go-countdown/internal/notify"
	"github.com/ramiqadoumi/go-countdown/internal/postgres"
	redisstore "github.com/ramiqadoumi/go-countdown/internal/redis"
	"github.com/ramiqadoumi/go-countdown/internal/schedule"
	"github.com/ramiqadoumi/go-countdown/internal/version"
	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
	"github.com/ramiqadoumi/go-countdown/services/timerd/config"
	"github.com/ramiqadoumi/go-countdown/services/timerd/handler"
	"github.com/ramiqadoumi/go-countdown/services/timerd/middleware"
)

const webhookRetryBase = 200 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the timer engine with its REST and gRPC servers",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("http-port", "8080", "HTTP server port")
	f.String("grpc-port", "9090", "gRPC server port")
	f.String("metrics-addr", ":9095", "Prometheus metrics server address; empty disables it")
	f.String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	f.Duration("tick-interval", engine.DefaultTickInterval, "progress notification period of a running timer")
	f.Int("max-timers", 0, "maximum number of timers; 0 is unlimited")
	f.String("kafka-brokers", "", "comma-separated Kafka broker addresses; empty disables the Kafka sink")
	f.String("redis-addr", "", "Redis address (host:port); empty disables the state mirror and rate limiter")
	f.String("postgres-dsn", "", "PostgreSQL connection string; empty disables completion history")
	f.String("webhook-url", "", "URL receiving a POST per completion; empty disables it")
	f.String("presets", "", "YAML file of preset timers")

	bindFlag("http_port", f, "http-port")
	bindFlag("grpc_port", f, "grpc-port")
	bindFlag("metrics_addr", f, "metrics-addr")
	bindFlag("otel_endpoint", f, "otel-endpoint")
	bindFlag("tick_interval", f, "tick-interval")
	bindFlag("max_timers", f, "max-timers")
	bindFlag("kafka_brokers", f, "kafka-brokers")
	bindFlag("redis_addr", f, "redis-addr")
	bindFlag("postgres_dsn", f, "postgres-dsn")
	bindFlag("webhook_url", f, "webhook-url")
	bindFlag("presets_file", f, "presets")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// integrations holds the optional backends and the cleanup for each.
type integrations struct {
	sinks   []notify.Named
	limiter redisstore.RateLimiter
	history postgres.CompletionRepository
	ready   []telemetry.ReadyFunc
	closers []func()
}

func (in *integrations) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, serviceName)

	shutdownTracer, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Endpoint:       cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	in, err := connect(cfg, logger)
	if err != nil {
		return err
	}
	defer in.close()

	eng := engine.New(notify.NewMulti(in.sinks...),
		engine.WithLogger(logger),
		engine.WithTickInterval(cfg.TickInterval),
		engine.WithMaxTimers(cfg.MaxTimers),
		engine.WithNotifyTimeout(cfg.NotifyTimeout),
	)
	defer eng.Close()

	presets, err := schedule.LoadFile(cfg.PresetsFile)
	if err != nil {
		return err
	}
	sched := schedule.NewScheduler(eng, presets, logger)
	if err := sched.Seed(); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go sched.Run(runCtx)

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, allReady(in.ready), logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	var restOpts []handler.RESTOption
	if in.limiter != nil {
		restOpts = append(restOpts, handler.WithRateLimiter(in.limiter))
	}
	if in.history != nil {
		restOpts = append(restOpts, handler.WithHistory(in.history))
	}
	rest := handler.NewREST(eng, logger, restOpts...)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20))
	r.Route("/api/v1", rest.Routes)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── gRPC server ───────────────────────────────────────────────────────────
	grpcSrv, healthSrv := handler.NewGRPCServer(logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("timerd HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("timerd gRPC starting", slog.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errc <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-runCtx.Done():
	case serveErr = <-errc:
		logger.Error("server failed", slog.String("error", serveErr.Error()))
	}
	logger.Info("shutting down...")
	stop()

	healthSrv.Shutdown()
	grpcSrv.GracefulStop()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return serveErr
}

// connect opens every configured backend and builds the sink list. The log
// sink is always present.
func connect(cfg config.Config, logger *slog.Logger) (*integrations, error) {
	in := &integrations{
		sinks: []notify.Named{{Name: "log", Sink: notify.NewLogSink(logger)}},
	}
	ok := false
	defer func() {
		if !ok {
			in.close()
		}
	}()

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		codec, err := notify.CodecByName(cfg.KafkaEncoding)
		if err != nil {
			return nil, err
		}
		producer := kafka.NewProducer(brokers)
		in.closers = append(in.closers, func() { _ = producer.Close() })
		in.sinks = append(in.sinks, notify.Named{Name: "kafka", Sink: notify.NewKafkaSink(producer, codec)})
		logger.Info("kafka sink enabled", slog.Any("brokers", brokers), slog.String("encoding", codec.ContentType()))
	}

	if cfg.RedisAddr != "" {
		client := redisstore.NewClient(cfg.RedisAddr)
		in.closers = append(in.closers, func() { _ = client.Close() })
		store := redisstore.NewStateStore(client, cfg.StateTTL)
		in.sinks = append(in.sinks, notify.Named{Name: "redis", Sink: notify.NewStateSink(store)})
		in.ready = append(in.ready, store.Ping)
		if cfg.CreateRateLimit > 0 {
			in.limiter = redisstore.NewRateLimiter(client, cfg.CreateRateLimit, time.Minute)
		}
		logger.Info("redis state mirror enabled", slog.String("addr", cfg.RedisAddr))
	}

	if cfg.PostgresDSN != "" {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		in.closers = append(in.closers, pool.Close)
		in.history = postgres.NewRepository(pool)
		in.sinks = append(in.sinks, notify.Named{Name: "postgres", Sink: notify.NewHistorySink(in.history)})
		in.ready = append(in.ready, pingPool(pool))
		logger.Info("completion history enabled")
	}

	if cfg.WebhookURL != "" {
		in.sinks = append(in.sinks, notify.Named{
			Name: "webhook",
			Sink: notify.NewWebhookSink(cfg.WebhookURL, logger, notify.WithRetry(cfg.WebhookRetries, webhookRetryBase)),
		})
		logger.Info("webhook sink enabled", slog.String("url", cfg.WebhookURL))
	}

	if cfg.SMTPAddr != "" {
		email, err := notify.NewEmailSink(notify.EmailConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			To:       cfg.Recipients(),
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		if err != nil {
			return nil, err
		}
		in.sinks = append(in.sinks, notify.Named{Name: "email", Sink: email})
		logger.Info("email sink enabled", slog.String("smtp_addr", cfg.SMTPAddr))
	}

	ok = true
	return in, nil
}

func pingPool(pool *pgxpool.Pool) telemetry.ReadyFunc {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
		return nil
	}
}

func allReady(checks []telemetry.ReadyFunc) telemetry.ReadyFunc {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
