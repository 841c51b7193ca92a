package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/httpapi"
	"github.com/hamed0406/sitewatch/internal/logging"
	"github.com/hamed0406/sitewatch/internal/metrics"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/backend"
	"github.com/hamed0406/sitewatch/internal/urlutil"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogConsole)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	seed(ctx, store, cfg.Sites, logger)

	api := httpapi.NewServer(logger, store, httpapi.HTTPCheckers, cfg)
	if cfg.Autostart {
		if err := api.StartMonitor(cfg.Interval, cfg.Timeout); err != nil {
			logger.Warn("autostart_skipped", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("api_shutdown")
		api.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// seed adds configured sites that are not monitored yet.
func seed(ctx context.Context, r repo.Repository, sites []string, logger *zap.Logger) {
	for _, raw := range sites {
		u := urlutil.Normalize(raw)
		if !urlutil.Validate(u) {
			logger.Warn("seed_invalid_url", zap.String("url", raw))
			continue
		}
		added, err := r.AddSite(ctx, u)
		if err != nil {
			logger.Warn("seed_error", zap.String("url", u), zap.Error(err))
			continue
		}
		if added {
			logger.Info("seed_added", zap.String("url", u))
		}
	}
}
