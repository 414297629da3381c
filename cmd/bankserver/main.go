package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wlfb/bankline/internal/config"
	"github.com/wlfb/bankline/internal/logger"
	"github.com/wlfb/bankline/internal/pidfile"
	"github.com/wlfb/bankline/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	configPath := flag.String("config", "bankline.json", "path to the configuration file")
	listenAddr := flag.String("listen", "", "override the listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Environment variables override config file values.
	if envLevel := strings.TrimSpace(os.Getenv("BANKLINE_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("BANKLINE_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}
	if envAddr := strings.TrimSpace(os.Getenv("BANKLINE_LISTEN_ADDR")); envAddr != "" {
		cfg.ListenAddr = envAddr
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	if cfg.PidPath != "" {
		pid := pidfile.New(cfg.PidPath)
		if err := pid.Write(); err != nil {
			return err
		}
		defer func() {
			if removeErr := pid.Remove(); removeErr != nil {
				logger.Warn("Failed to remove pidfile: %v", removeErr)
			}
		}()
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("Waiting for clients %v to connect...", cfg.ClientIDs)
	<-ctx.Done()

	return srv.Stop()
}
