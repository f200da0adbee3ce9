package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"
	"soundradius/internal/core/services"
	httphandlers "soundradius/internal/handlers/http"
	"soundradius/internal/infrastructure/capture"
	"soundradius/internal/infrastructure/distributed"
	"soundradius/internal/infrastructure/middleware"
	"soundradius/internal/infrastructure/monitoring"
	sigserver "soundradius/internal/infrastructure/signal"
	"soundradius/internal/infrastructure/transport"
	"soundradius/pkg/config"
	"soundradius/pkg/logger"
	"soundradius/pkg/retry"
	"soundradius/pkg/tracing"
	"soundradius/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// logSink logs lifecycle events when no distributed sink is configured.
type logSink struct {
	logger *zap.SugaredLogger
}

func (s *logSink) Notify(event domain.Event) {
	s.logger.Infow("session event",
		"type", event.Type,
		"component", event.Component,
		"participant_id", event.ParticipantID,
		"message", event.Message,
	)
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	zl := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zl.Sync()
	log := zl.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "soundradius",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: os.Getenv("SOUNDRADIUS_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("initializing tracing", "error", err)
	}

	localID := domain.ParticipantID(utils.GenerateParticipantID())
	log.Infow("starting soundradius", "local_id", localID)

	// Notification sink: redis-backed when configured, logging otherwise.
	var sink ports.NotificationSink = &logSink{logger: log}
	var eventBus *distributed.EventBus
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		eventBus = distributed.NewEventBus(redisClient, string(localID), log)
		sink = eventBus
	}

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.JoinTokenTTL)

	// Signal relay server.
	signalCfg := sigserver.DefaultServerConfig()
	signalCfg.PingInterval = cfg.Signal.PingInterval
	signalCfg.PongTimeout = cfg.Signal.PongTimeout
	if cfg.RateLimiting.Enabled {
		signalCfg.MessagesPerSecond = cfg.RateLimiting.MessagesPerSecond
		signalCfg.MessageBurst = cfg.RateLimiting.MessageBurst
	}
	signalServer := sigserver.NewServer(authService, signalCfg, log)

	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", signalServer.HandleWebSocket)
	signalMux.HandleFunc("/health", signalServer.HealthCheck)
	signalHTTP := &http.Server{Addr: cfg.Signal.Address, Handler: signalMux}
	go func() {
		log.Infow("signal server listening", "address", cfg.Signal.Address)
		if err := signalHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("signal server", "error", err)
		}
	}()

	// Transport toward remote peers through our own relay.
	signalURL := "ws://localhost" + cfg.Signal.Address + "/ws"
	joinToken, err := authService.GenerateJoinToken(
		domain.SessionID(utils.GenerateSessionID()), localID, "local",
	)
	if err != nil {
		log.Fatalw("minting local join token", "error", err)
	}
	signalClient := transport.NewSignalClient(signalURL, joinToken, retry.Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}, log)

	// Core services.
	policy := services.NewQualityPolicy()
	provider := capture.NewPionProvider(log)
	collector := monitoring.NewPrometheusCollector()

	captureController := services.NewCaptureController(provider, policy, sink, collector, nil, services.CaptureConfig{
		MaxReconnectAttempts: cfg.Capture.ReconnectAttempts,
		ReconnectBackoff:     cfg.Capture.ReconnectBackoff,
		HealthCheckInterval:  cfg.Capture.HealthCheckInterval,
		InitialTier:          domain.QualityTier(cfg.Session.DefaultTier),
	}, log)

	// Receiver reports from peers drive network-adaptive quality.
	sampler := monitoring.NewNetworkSampler(captureController.ObserveNetwork, log)

	webrtcCfg := transport.WebRTCConfig{}
	for _, server := range cfg.WebRTC.ICEServers {
		webrtcCfg.ICEServers = append(webrtcCfg.ICEServers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	webrtcCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	webrtcCfg.PortRange.Max = cfg.WebRTC.PortRange.Max
	peerTransport := transport.NewWebRTCTransport(webrtcCfg, signalClient, sampler, log)

	registry := services.NewPeerRegistry(peerTransport, sink, services.RegistryConfig{
		MinRadius:     cfg.Session.MinRadius,
		MaxRadius:     cfg.Session.MaxRadius,
		DefaultRadius: cfg.Session.DefaultRadius,
	}, log)

	proximity := services.NewProximityService(cfg.Session.ProximityScale)
	layout := services.NewLayoutService(services.LayoutConfig{
		SettleDelay:     cfg.Layout.SettleDelay,
		AnimationWindow: cfg.Layout.AnimationWindow,
		CircleRadius:    cfg.Layout.CircleRadius,
	}, localID, nil, nil, log)

	orchestrator := services.NewOrchestrator(
		captureController, registry, proximity, layout, collector, nil,
		services.OrchestratorConfig{
			LocalID:          localID,
			LocalDisplayName: "local",
			MinRadius:        cfg.Session.MinRadius,
			MaxRadius:        cfg.Session.MaxRadius,
			DefaultRadius:    cfg.Session.DefaultRadius,
		}, log)

	// Health checks.
	health := monitoring.NewHealthChecker()
	health.AddCheck("capture", func(ctx context.Context) error {
		if captureController.State() == domain.CaptureFailed {
			return fmt.Errorf("capture failed")
		}
		return nil
	}, 2*time.Second)
	if eventBus != nil {
		health.AddCheck("redis", eventBus.Ping, 2*time.Second)
	}

	// HTTP API.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(logger.NewContextLogger(zl)))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler := httphandlers.NewAuthHandler(authService)
	authHandler.SetupRoutes(router)

	sessionHandler := httphandlers.NewSessionHandler(
		orchestrator, captureController, registry, provider, health,
		cfg.Session.MinRadius, cfg.Session.MaxRadius,
	)
	sessionHandler.SetupRoutes(router, middleware.JoinTokenMiddleware(authService))

	apiHTTP := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Infow("api server listening", "address", cfg.Server.Address)
		if err := apiHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("api server", "error", err)
		}
	}()

	// Prometheus endpoint.
	var metricsHTTP *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsHTTP = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
			Handler: metricsMux,
		}
		go func() {
			log.Infow("metrics server listening", "port", cfg.Monitoring.PrometheusPort)
			if err := metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnw("metrics server", "error", err)
			}
		}()
	}

	// Connect the local signal client once the relay is up.
	go func() {
		if err := signalClient.Connect(context.Background()); err != nil {
			log.Warnw("connecting signal client", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	orchestrator.Close()
	registry.Disconnect()
	captureController.Close()
	signalClient.Close()

	if err := apiHTTP.Shutdown(shutdownCtx); err != nil {
		log.Warnw("api server shutdown", "error", err)
	}
	if err := signalHTTP.Shutdown(shutdownCtx); err != nil {
		log.Warnw("signal server shutdown", "error", err)
	}
	if metricsHTTP != nil {
		if err := metricsHTTP.Shutdown(shutdownCtx); err != nil {
			log.Warnw("metrics server shutdown", "error", err)
		}
	}
	if eventBus != nil {
		eventBus.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown", "error", err)
	}
}
