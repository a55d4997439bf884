package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devquest/collab/api"
	"github.com/devquest/collab/internal/config"
	"github.com/devquest/collab/internal/db"
	"github.com/devquest/collab/internal/slogging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slogging.Get().Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if err := slogging.Initialize(slogging.Config{
		Level:            slogging.ParseLogLevel(cfg.Logging.Level),
		IsDev:            cfg.Logging.IsDev,
		LogDir:           cfg.Logging.LogDir,
		MaxAgeDays:       cfg.Logging.MaxAgeDays,
		MaxSizeMB:        cfg.Logging.MaxSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		AlsoLogToConsole: cfg.Logging.AlsoLogToConsole,
	}); err != nil {
		slogging.Get().Error("Failed to initialize logging: %v", err)
		os.Exit(1)
	}
	logger := slogging.Get()

	redisDB, err := db.NewRedisDB(db.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	defer func() { _ = redisDB.Close() }()

	store := api.NewRedisSessionStore(redisDB)
	presence := api.NewPresenceTracker(redisDB)
	validator := api.NewJWTValidator(cfg.Auth.JWTSecret)
	executor := api.NewHTTPExecutor(cfg.Executor.URL, cfg.Executor.Timeout)
	metrics := api.NewMetrics(prometheus.DefaultRegisterer)

	hub := api.NewHub(api.HubConfig{
		ReadLimit:    cfg.WebSocket.ReadLimit,
		PongWait:     cfg.WebSocket.PongWait,
		PingInterval: cfg.WebSocket.PingInterval,
		WriteWait:    cfg.WebSocket.WriteWait,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	}, store, presence, validator, executor, metrics)

	manager := api.NewSessionManager(store, hub, metrics, cfg.Sessions.InactivityTTL, cfg.Sessions.MaxParticipantsDefault)
	if err := manager.StartReaper(cfg.Sessions.ReaperSpec); err != nil {
		logger.Error("Failed to start session reaper: %v", err)
		os.Exit(1)
	}

	if !cfg.Logging.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	handlers := api.NewSessionHandlers(store, manager)
	handlers.RegisterRoutes(r, hub, validator)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if err := redisDB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:         cfg.Server.Interface + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting collab server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	manager.Stop()
	hub.Shutdown()
	presence.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}
