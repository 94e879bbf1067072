package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"callcenter/internal/auth"
	"callcenter/internal/config"
	"callcenter/internal/handlers"
	"callcenter/internal/metrics"
	"callcenter/internal/queue"
	"callcenter/internal/storage"
	"callcenter/internal/tasks"
	"callcenter/internal/ws"
)

func main() {
	envErr := config.LoadEnv()
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		logger.Fatal().Err(envErr).Msg("failed to read .env")
	}
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}
	if len(cfg.JWTSecret) == 0 {
		logger.Fatal().Msg("JWT_ACCESS_SECRET is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage unavailable")
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(logger)
	go hub.Run(hubCtx)

	opts := cfg.ServiceOptions()
	opts.Logger = logger.With().Str("component", "queue").Logger()
	svc := queue.NewService(store, hub, opts)

	outboxCtx, stopOutbox := context.WithCancel(context.Background())
	outboxDone := make(chan struct{})
	go func() {
		svc.Outbox().Run(outboxCtx)
		close(outboxDone)
	}()

	schedOpts := tasks.SchedulerOptions{
		Interval:    cfg.SweepInterval,
		TriggerRate: cfg.TriggerRate,
		Logger:      logger,
	}
	if cfg.Redis.Addr != "" {
		client, err := storage.InitRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis unavailable")
		}
		defer client.Close()
		schedOpts.Locker = tasks.NewRedisLease(client, "", 2*cfg.SweepInterval)
	}
	scheduler, err := tasks.NewSweepScheduler(svc, schedOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create sweep scheduler")
	}
	svc.SetSweepTrigger(scheduler.Trigger)
	scheduler.Start()

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	handlers.RegisterRoutes(r, handlers.New(svc, logger), auth.AuthMiddleware(cfg.JWTSecret), hub.ServeWS)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown")
	}
	// drain notifications before the hub goes away
	stopOutbox()
	select {
	case <-outboxDone:
	case <-shutdownCtx.Done():
		logger.Warn().Int("pending", svc.Outbox().Pending()).Msg("outbox not drained")
	}
	stopHub()
}

func openStore(cfg config.Config, logger zerolog.Logger) (queue.Store, error) {
	if cfg.StorageDriver == "memory" {
		logger.Warn().Msg("using in-memory storage, state is lost on restart")
		return storage.NewMemoryStore(), nil
	}
	db, err := storage.ConnectDatabase(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(db); err != nil {
		return nil, err
	}
	logger.Info().Str("db", cfg.DB.Name).Msg("database connected")
	return storage.NewGormStore(db), nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
