// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/urlutil"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	if err := godotenv.Load(); err == nil {
		ok(".env loaded")
	}

	cfg, err := config.Read()
	if err != nil {
		fail(err.Error())
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		ok(fmt.Sprintf("CONFIG_FILE=%s (%d seed site(s))", path, len(cfg.Sites)))
	}

	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, "✖", e)
		}
		os.Exit(1)
	}
	ok(fmt.Sprintf("interval=%s timeout=%s concurrency=%d", cfg.Interval, cfg.Timeout, cfg.Concurrency))

	ok("API_ADDR=" + cfg.Addr)
	switch cfg.Store {
	case config.StorePostgres:
		ok("store=postgres (DATABASE_URL present)")
	case config.StoreSQLite:
		ok("store=sqlite DB_PATH=" + cfg.DBPath)
	case config.StoreMemory:
		warn("store=memory; sites and history are lost on exit.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	if cfg.RateLimitRPM <= 0 {
		warn("RATE_LIMIT_RPM <= 0; API rate limiting disabled.")
	}

	for _, raw := range cfg.Sites {
		u := urlutil.Normalize(raw)
		if !urlutil.Validate(u) {
			warn("seed site " + raw + " is not a valid URL")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		res := probe.Resolve(ctx, nil, urlutil.Hostname(u))
		cancel()
		if res.Class != probe.Resolves {
			warn(fmt.Sprintf("seed site %s: %s %s", u, res.Class, res.Err))
			continue
		}
		ok(fmt.Sprintf("seed site %s resolves (%d address(es))", u, len(res.IPs)))
	}

	ok("preflight passed")
}
