package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferlb/inferlb/internal/admin"
	"github.com/inferlb/inferlb/internal/config"
	"github.com/inferlb/inferlb/internal/logging"
	"github.com/inferlb/inferlb/internal/poller"
	"github.com/inferlb/inferlb/internal/proxy"
	"github.com/inferlb/inferlb/internal/registry"
	"github.com/inferlb/inferlb/internal/selection"
	"github.com/inferlb/inferlb/internal/telemetry"
)

func main() {
	logger := logging.NewLogger("inferlb")
	logger.Info("starting_load_balancer")

	configPath := os.Getenv("INFERLB_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed_to_load_config", "error", err.Error())
		log.Fatal(err)
	}

	backends := cfg.RegistryBackends()
	if len(backends) == 0 {
		logger.Error("no_backends_configured")
		log.Fatal("no backends configured")
	}
	for _, b := range backends {
		logger.Info("backend_configured", "host", b.Host, "port", b.Port)
	}

	reg := registry.New(backends)
	settings := config.NewDynamicSettings(cfg.Dynamic)
	collector := telemetry.NewCollector()
	strategy := selection.NewLeastLoaded()
	logger.Info("strategy_selected", "strategy", strategy.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPoller := poller.NewMetricsPoller(reg, backends, settings, logger.With("task", "metrics_poller"), collector)
	go metricsPoller.Run(ctx)

	healthChecker := poller.NewHealthChecker(reg, backends, settings, logger.With("task", "health_checker"), collector)
	go healthChecker.Run(ctx)

	exporter := telemetry.NewExporter(collector, reg, 5*time.Second)
	go exporter.Start(ctx)

	watcher, err := config.NewWatcher(configPath, logger, settings)
	if err != nil {
		logger.Error("failed_to_create_config_watcher", "error", err.Error())
	} else {
		go watcher.Start(ctx)
	}

	engine := proxy.NewEngine(reg, strategy, settings, logger.With("task", "proxy"), collector)
	adminHandlers := admin.NewHandlers(reg)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(collector.Middleware())

	router.GET("/health", adminHandlers.Health)
	router.GET("/servers", adminHandlers.Servers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.NoRoute(engine.Handle)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.LoadBalancerHost, cfg.LoadBalancerPort),
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server_starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_error", "error", err.Error())
			log.Fatal(err)
		}
	}()

	<-sigChan
	logger.Info("shutdown_signal_received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_error", "error", err.Error())
	}

	cancel()
	logger.Info("shutdown_complete")
	_ = logger.Sync()
}
