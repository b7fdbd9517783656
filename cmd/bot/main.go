// Command bot runs the nudge service: the Telegram check-in bot, the
// reminder dispatcher and the JSON API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ykvlv/nudge-bot/internal/app"
	"github.com/ykvlv/nudge-bot/internal/config"
	"github.com/ykvlv/nudge-bot/internal/logger"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 2 for setup errors, 1 for runtime failures.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("app init failed", zap.Error(err))
		return 2
	}
	if err := application.Run(ctx); err != nil {
		log.Error("app run failed", zap.Error(err))
		return 1
	}
	return 0
}
