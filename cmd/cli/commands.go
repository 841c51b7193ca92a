package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/format"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/scheduler"
	"github.com/hamed0406/sitewatch/internal/urlutil"
)

type app struct {
	repo   repo.Repository
	cfg    config.Config
	log    *zap.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// newChecker is swapped in tests.
	newChecker func(timeout time.Duration) probe.Checker
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Website Connectivity Monitor

Usage: sitewatch <command> [flags] [args]

Commands:
  add URL                      add a website to the monitoring list
  remove URL                   remove a website and its history
  list                         list monitored websites
  status                       show the current status of every website
  history URL [-limit N]       show recent checks of one website
  check                        check every website once
  start [-interval S] [-timeout S]
                               monitor until interrupted (Ctrl+C)
  clear [-yes]                 remove every website
  import FILE                  add the sites: list of a YAML file
`)
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		usage(a.out)
		return 2
	}
	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "add":
		err = a.add(ctx, rest)
	case "remove":
		err = a.remove(ctx, rest)
	case "list":
		err = a.list(ctx)
	case "status":
		err = a.status(ctx)
	case "history":
		err = a.history(ctx, rest)
	case "check":
		err = a.check(ctx)
	case "start":
		err = a.start(ctx, rest)
	case "clear":
		err = a.clear(ctx, rest)
	case "import":
		err = a.importFile(ctx, rest)
	default:
		fmt.Fprintf(a.errOut, "Unknown command %q\n\n", cmd)
		usage(a.errOut)
		return 2
	}
	if err != nil {
		fmt.Fprintln(a.errOut, "Error:", err)
		return 1
	}
	return 0
}

// parseArgs lets flags appear before or after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return pos, nil
		}
		pos = append(pos, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func oneArg(args []string, what string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("expected exactly one %s", what)
	}
	return strings.TrimSpace(args[0]), nil
}

func (a *app) add(ctx context.Context, args []string) error {
	raw, err := oneArg(args, "URL")
	if err != nil {
		return err
	}
	if !urlutil.Validate(raw) {
		return fmt.Errorf("Invalid URL format: %s", raw)
	}
	u := urlutil.Normalize(raw)
	added, err := a.repo.AddSite(ctx, u)
	if err != nil {
		return err
	}
	if !added {
		fmt.Fprintf(a.out, "⚠ URL %s is already in the monitoring list\n", u)
		return nil
	}
	fmt.Fprintf(a.out, "✓ Added %s to monitoring list\n", u)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	raw, err := oneArg(args, "URL")
	if err != nil {
		return err
	}
	u := urlutil.Normalize(raw)
	removed, err := a.repo.RemoveSite(ctx, u)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("URL %s not found in monitoring list", u)
	}
	fmt.Fprintf(a.out, "✓ Removed %s from monitoring list\n", u)
	return nil
}

func (a *app) list(ctx context.Context) error {
	sites, err := a.repo.ListSites(ctx)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		fmt.Fprintln(a.out, "No websites in monitoring list")
		return nil
	}
	fmt.Fprintln(a.out, "Monitored websites:")
	for i, s := range sites {
		fmt.Fprintf(a.out, "%2d. %s %-50s Last check: %s\n",
			i+1, format.Indicator(s.LastStatus), s.URL, format.Timestamp(s.LastChecked))
	}
	return nil
}

func (a *app) status(ctx context.Context) error {
	sites, err := a.repo.ListSites(ctx)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		fmt.Fprintln(a.out, "No websites in monitoring list")
		return nil
	}
	fmt.Fprintln(a.out, "Current website status:")
	fmt.Fprintln(a.out, strings.Repeat("-", 80))
	for _, s := range sites {
		last := "Never checked"
		if s.Checked() {
			last = format.Timestamp(s.LastChecked)
		}
		fmt.Fprintf(a.out, "%s %s\n", format.Label(s.LastStatus), s.URL)
		fmt.Fprintf(a.out, "           Last check: %s\n", last)
		fmt.Fprintf(a.out, "           Response time: %s\n", format.ResponseTime(s.ResponseTime))
		if s.LastError != nil {
			fmt.Fprintf(a.out, "           Last error: %s\n", format.ErrorMessage(*s.LastError, 100))
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := a.flags("history")
	limit := fs.Int("limit", a.cfg.HistoryLimit, "number of records to show")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	raw, err := oneArg(pos, "URL")
	if err != nil {
		return err
	}
	if *limit < 1 {
		return errors.New("limit must be a positive integer")
	}
	u := urlutil.Normalize(raw)
	recs, err := a.repo.History(ctx, u, *limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintf(a.out, "No history for %s\n", u)
		return nil
	}
	fmt.Fprintf(a.out, "Recent checks for %s:\n", u)
	for _, r := range recs {
		line := fmt.Sprintf("  %s %s %-7s %s", format.Timestamp(&r.CheckedAt), format.Indicator(r.Status),
			strings.ToUpper(r.Status.String()), format.ResponseTime(r.ResponseTime))
		if r.Error != nil {
			line += " - " + format.ErrorMessage(*r.Error, 100)
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *app) checker(timeout time.Duration) probe.Checker {
	if a.newChecker != nil {
		return a.newChecker(timeout)
	}
	return probe.NewHTTPChecker(timeout)
}

// sweeper wires console reporting into a Sweeper. When every > 0 the header
// carries a timestamp and the summary announces the next sweep.
func (a *app) sweeper(timeout, every time.Duration) *scheduler.Sweeper {
	sw := scheduler.NewSweeper(a.log, a.repo, a.checker(timeout), timeout, a.cfg.Concurrency)
	var began time.Time
	sw.OnStart = func(n int) {
		began = time.Now()
		if every > 0 {
			fmt.Fprintf(a.out, "\n[%s] Checking %d website(s)...\n", began.Format(format.TimestampLayout), n)
			return
		}
		fmt.Fprintf(a.out, "Checking %d website(s)...\n", n)
	}
	sw.OnResult = func(r domain.SweepResult) {
		fmt.Fprintln(a.out, resultLine(r))
	}
	sw.OnFinish = func(res []domain.SweepResult, err error) {
		if err != nil {
			return
		}
		fmt.Fprintf(a.out, "Checked %d website(s) in %s\n", len(res), format.Duration(time.Since(began).Seconds()))
		if every > 0 {
			fmt.Fprintf(a.out, "Next check in %d seconds...\n", int(every/time.Second))
		}
	}
	return sw
}

func resultLine(r domain.SweepResult) string {
	line := fmt.Sprintf("  %s %-50s %s", format.Indicator(r.Status), r.URL, strings.ToUpper(r.Status.String()))
	if r.Latency != nil {
		line += fmt.Sprintf(" (%.3fs)", *r.Latency)
	}
	if r.Error != nil {
		line += " - " + format.ErrorMessage(*r.Error, 100)
	}
	return line
}

func (a *app) check(ctx context.Context) error {
	res, err := a.sweeper(a.cfg.Timeout, 0).RunOnce(ctx)
	if err != nil {
		return err
	}
	if len(res) == 0 {
		fmt.Fprintln(a.out, "No websites to check")
	}
	return nil
}

func (a *app) start(ctx context.Context, args []string) error {
	fs := a.flags("start")
	interval := fs.Int("interval", int(a.cfg.Interval/time.Second), "check interval in seconds")
	timeout := fs.Int("timeout", int(a.cfg.Timeout/time.Second), "request timeout in seconds")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if !config.ValidIntervalSeconds(*interval) {
		return errors.New("interval must be between 5 and 86400 seconds")
	}
	if !config.ValidTimeoutSeconds(*timeout) {
		return errors.New("timeout must be between 1 and 300 seconds")
	}
	every, limit := config.Seconds(*interval), config.Seconds(*timeout)

	sites, err := a.repo.ListSites(ctx)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		fmt.Fprintln(a.out, "No websites to monitor. Add some websites first using 'add' command.")
		return nil
	}

	fmt.Fprintln(a.out, "Starting connectivity monitor...")
	fmt.Fprintf(a.out, "Check interval: %d seconds\n", *interval)
	fmt.Fprintf(a.out, "Request timeout: %d seconds\n", *timeout)
	fmt.Fprintf(a.out, "Monitoring %d website(s)\n", len(sites))
	fmt.Fprint(a.out, "Press Ctrl+C to stop monitoring\n\n")

	mon := scheduler.New(a.sweeper(limit, every), every, a.log)
	if err := mon.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		mon.Stop()
		fmt.Fprint(a.out, "\n\nShutting down gracefully...\n")
	case <-mon.Done():
	}
	return mon.Err()
}

func (a *app) clear(ctx context.Context, args []string) error {
	fs := a.flags("clear")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if !*yes {
		fmt.Fprint(a.out, "Are you sure you want to remove all websites from the monitoring list? [y/N]: ")
		answer, _ := bufio.NewReader(a.in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			fmt.Fprintln(a.out, "Aborted.")
			return nil
		}
	}
	n, err := a.repo.ClearAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "✓ Removed %d website(s) from monitoring list\n", n)
	return nil
}

func (a *app) importFile(ctx context.Context, args []string) error {
	path, err := oneArg(args, "file")
	if err != nil {
		return err
	}
	sites, err := config.ReadSites(path)
	if err != nil {
		return err
	}
	added := 0
	for _, raw := range sites {
		if !urlutil.Validate(raw) {
			fmt.Fprintf(a.errOut, "⚠ Skipping invalid URL: %s\n", raw)
			continue
		}
		ok, err := a.repo.AddSite(ctx, urlutil.Normalize(raw))
		if err != nil {
			return err
		}
		if ok {
			added++
		}
	}
	fmt.Fprintf(a.out, "✓ Imported %d of %d site(s)\n", added, len(sites))
	return nil
}
