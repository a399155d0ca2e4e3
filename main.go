package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"energyinsight/internal/config"
	"energyinsight/internal/db"
	"energyinsight/internal/http/handlers"
	appmw "energyinsight/internal/http/middleware"
	"energyinsight/internal/influx"
	"energyinsight/internal/ingest"
	"energyinsight/internal/logger"
	"energyinsight/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_ = logger.Init()
		fatal(ctx, "failed to load config", err)
	}
	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		_ = logger.Init()
		fatal(ctx, "failed to init logger", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		fatal(ctx, "invalid log level", err)
	}
	log := logger.Named("main")

	loc, err := cfg.Location()
	if err != nil {
		fatal(ctx, "invalid timezone", err)
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		fatal(ctx, "failed to connect database", err)
	}
	store := db.NewStore(gormDB)

	demo, err := store.EnsureBootstrapUser(ctx, cfg)
	if err != nil {
		fatal(ctx, "failed to ensure bootstrap user", err)
	}
	if demo != nil && cfg.SeedDemoData {
		n, err := store.SeedDemoData(ctx, demo, cfg.SeedDays, rand.New(rand.NewSource(time.Now().UnixNano())))
		if err != nil {
			fatal(ctx, "failed to seed demo data", err)
		}
		if n > 0 {
			log.Info(ctx, "seeded demo readings", logger.String("user", demo.Username), logger.Int("readings", n))
		}
	}

	store.StartRetentionWorker(ctx, cfg.RetentionDays)

	var mirror ingest.Mirror
	if cfg.InfluxEnabled {
		m, err := influx.NewMirror(ctx, cfg)
		if err != nil {
			fatal(ctx, "failed to connect influxdb", err)
		}
		defer m.Close()
		mirror = m
	}
	pipeline := ingest.NewPipeline(store, mirror, logger.Named("ingest"))

	if cfg.KafkaEnabled {
		consumer, err := ingest.NewConsumer(cfg, pipeline, loc, logger.Named("kafka"))
		if err != nil {
			fatal(ctx, "failed to start kafka consumer", err)
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error(ctx, "kafka consumer stopped", logger.Error(err))
			}
		}()
		defer func() { _ = consumer.Close() }()
	}

	r := router.New()
	r.SaveMatchedRoutePath = true

	auth := appmw.BearerAuth(store, cfg.RequestTimeout())

	r.GET("/", handlers.Root())
	r.GET("/healthz", handlers.Healthz())
	r.GET("/metrics", handlers.MetricsHandler(metrics.Registry))

	r.POST("/register", handlers.Register(store, cfg))
	r.POST("/token", handlers.Token(store, cfg))
	r.GET("/users/me", auth(handlers.Me()))
	r.POST("/users/me/password", auth(handlers.ChangePasswordSelf(store, cfg)))

	api := r.Group("/api/energy")
	api.GET("/data", auth(handlers.EnergyData(store, cfg, time.Now)))
	api.GET("/stats", auth(handlers.EnergyStats(store, cfg, time.Now)))
	api.GET("/appliances", auth(handlers.Appliances(store, cfg)))
	api.GET("/detailed-appliances", auth(handlers.Appliances(store, cfg)))
	api.PUT("/appliances", auth(handlers.ReplaceAppliances(store, cfg)))
	api.POST("/readings", auth(handlers.IngestReadings(pipeline, cfg)))

	// Global middleware chain: request logger, CORS, request id, metrics, then router
	handler := handlers.RequestLogger(logger.Named("http"))(
		appmw.CORS(cfg.AllowedOrigins())(appmw.RequestID(appmw.Instrument(r.Handler))))

	server := &fasthttp.Server{
		Handler:      handler,
		Name:         "energyinsight",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "energyinsight listening", logger.String("addr", cfg.ListenAddr))
		errc <- server.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-errc:
		if err != nil {
			fatal(ctx, "server error", err)
		}
	case <-ctx.Done():
		log.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Error(shutdownCtx, "shutdown failed", logger.Error(err))
		}
	}
}

func fatal(ctx context.Context, msg string, err error) {
	logger.Named("main").Error(ctx, msg, logger.Error(err))
	os.Exit(1)
}
