// Package main is the entry point for the globe viewer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/config"
	"github.com/Faultbox/globestream/internal/logger"
	"github.com/Faultbox/globestream/internal/viewer"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	opts := logger.Options{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON, Console: os.Stdout}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	log, err := logger.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("=== globestream viewer ===")
	log.Sugar().Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := viewer.New(cfg, log.Logger)
	if err != nil {
		log.Error("failed to create viewer", zap.Error(err))
		os.Exit(1)
	}
	defer v.Close()

	if err := v.Run(ctx); err != nil {
		log.Error("viewer error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("viewer closed normally")
}
