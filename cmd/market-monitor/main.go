package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandon/adex-market-monitor/internal/config"
	"github.com/brandon/adex-market-monitor/internal/market"
	"github.com/brandon/adex-market-monitor/internal/server"
	"github.com/brandon/adex-market-monitor/internal/session"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to optional YAML config")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	logger.WithFields(logrus.Fields{
		"market_url":       cfg.MarketURL,
		"target_asset":     cfg.TargetAsset,
		"refresh_interval": cfg.RefreshInterval().String(),
		"fetch_timeout":    cfg.FetchTimeout().String(),
		"listen_addr":      cfg.ListenAddr,
		"listen_port":      cfg.ListenPort,
	}).Info("AdEx market monitor starting")

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Create market session
	client := market.NewClient(cfg.MarketURL, cfg.FetchTimeout(), logger)
	monitor := session.New(client, cfg.RefreshInterval(), logger)

	// Create HTTP server; it subscribes before the first refresh lands
	httpServer := server.NewServer(
		monitor,
		cfg.TargetAsset,
		cfg.ListenAddr,
		cfg.ListenPort,
		cfg.CORSAllowedOrigins,
		cfg.BroadcastBufferSize,
		cfg.WSClientBufferSize,
		logger,
	)

	monitor.Start(appCtx)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("HTTP Server started")
		if err := httpServer.Start(appCtx); err != nil {
			logger.WithError(err).Fatal("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received")
	appCancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop refreshing first so no update races the server shutdown
	monitor.Stop()

	// Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error stopping HTTP server")
	}

	logger.Info("Service shutdown complete")
}
