package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/repo/backend"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	_ = godotenv.Load()

	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		usage(os.Stdout)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid configuration:", err)
		return 1
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogConsole)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error opening store:", err)
		return 1
	}
	defer store.Close()

	a := &app{
		repo:   store,
		cfg:    cfg,
		log:    logger,
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	return a.run(ctx, os.Args[1:])
}
