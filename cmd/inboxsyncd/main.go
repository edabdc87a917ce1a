package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/nhle/inboxsync/internal/app"
	"github.com/nhle/inboxsync/internal/model"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		logger.Error("loading configuration", "path", *configPath, "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("starting daemon", "err", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("daemon exited", "err", err)
		os.Exit(1)
	}
}
