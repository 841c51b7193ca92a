package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/metrics"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Sweeper probes every monitored site once and records the outcomes.
type Sweeper struct {
	Repo    repo.Repository
	Checker probe.Checker
	Logger  *zap.Logger

	// Timeout bounds each probe when > 0, on top of the checker's own limit.
	Timeout time.Duration
	// Concurrency is the number of probes in flight; values <= 1 probe sequentially.
	Concurrency int
	// OnResult, when set, is called once per recorded result in site order.
	OnResult func(domain.SweepResult)
	// OnStart and OnFinish bracket every sweep that found at least one site.
	OnStart  func(sites int)
	OnFinish func(results []domain.SweepResult, err error)
}

func NewSweeper(logger *zap.Logger, r repo.Repository, checker probe.Checker, timeout time.Duration, concurrency int) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		Repo:        r,
		Checker:     checker,
		Logger:      logger,
		Timeout:     timeout,
		Concurrency: concurrency,
	}
}

// RunOnce performs one sweep over all sites in URL order. Cancellation is
// observed before each site; a probe already in flight runs to completion
// and is recorded. On cancellation the results gathered so far are
// returned together with ctx.Err().
func (s *Sweeper) RunOnce(ctx context.Context) (results []domain.SweepResult, err error) {
	start := time.Now()
	started := false
	defer func() {
		if v := recover(); v != nil {
			metrics.SweepsTotal.WithLabelValues("panic").Inc()
			panic(v)
		}
		s.observe(start, err)
		if started && s.OnFinish != nil {
			s.OnFinish(results, err)
		}
	}()

	sites, err := s.Repo.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	metrics.Sites.Set(float64(len(sites)))
	if len(sites) == 0 {
		return []domain.SweepResult{}, nil
	}
	s.log().Info("sweep_started", zap.Int("sites", len(sites)))
	started = true
	if s.OnStart != nil {
		s.OnStart(len(sites))
	}

	if s.Concurrency > 1 {
		return s.runParallel(ctx, sites)
	}

	results = make([]domain.SweepResult, 0, len(sites))
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.probe(ctx, site.URL)
		ok, err := s.record(ctx, res)
		if err != nil {
			return results, err
		}
		if ok {
			results = append(results, res)
		}
	}
	s.log().Info("sweep_finished", zap.Int("checked", len(results)), zap.Duration("took", time.Since(start)))
	return results, nil
}

// runParallel probes up to Concurrency sites at once. Outcomes land at their
// site's index, so recording and reporting keep URL order.
func (s *Sweeper) runParallel(ctx context.Context, sites []domain.Site) ([]domain.SweepResult, error) {
	probed := make([]domain.SweepResult, len(sites))
	var g errgroup.Group
	g.SetLimit(s.Concurrency)

	launched := 0
	for i, site := range sites {
		if ctx.Err() != nil {
			break
		}
		i, url := i, site.URL
		g.Go(func() error {
			probed[i] = s.probe(ctx, url)
			return nil
		})
		launched++
	}
	_ = g.Wait()

	results := make([]domain.SweepResult, 0, launched)
	for _, res := range probed[:launched] {
		ok, err := s.record(ctx, res)
		if err != nil {
			return results, err
		}
		if ok {
			results = append(results, res)
		}
	}
	if launched < len(sites) {
		return results, ctx.Err()
	}
	s.log().Info("sweep_finished", zap.Int("checked", len(results)))
	return results, nil
}

// probe runs one check detached from ctx's cancellation so a stop request
// never interrupts a request already sent. A panicking checker yields an
// offline outcome.
func (s *Sweeper) probe(ctx context.Context, url string) (res domain.SweepResult) {
	defer func() {
		if v := recover(); v != nil {
			s.log().Error("probe_panic", zap.String("url", url), zap.Any("panic", v))
			res = domain.SweepResult{URL: url, Outcome: domain.Offline(-1, fmt.Sprintf("Unexpected error: %v", v))}
		}
	}()
	pctx := context.WithoutCancel(ctx)
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	out := s.Checker.Check(pctx, url)
	status := out.Status.String()
	metrics.ChecksTotal.WithLabelValues(status).Inc()
	metrics.CheckDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	return domain.SweepResult{URL: url, Outcome: out}
}

// record persists res. A site removed while the sweep was running is
// skipped (false, nil); any other failure is returned.
func (s *Sweeper) record(ctx context.Context, res domain.SweepResult) (bool, error) {
	err := s.Repo.RecordOutcome(context.WithoutCancel(ctx), res.URL, res.Outcome)
	if errors.Is(err, repo.ErrNotFound) {
		s.log().Info("site_vanished", zap.String("url", res.URL))
		return false, nil
	}
	if err != nil {
		s.log().Warn("record_error", zap.String("url", res.URL), zap.Error(err))
		return false, fmt.Errorf("record %s: %w", res.URL, err)
	}

	fields := []zap.Field{
		zap.String("url", res.URL),
		zap.String("status", res.Status.String()),
	}
	if res.Latency != nil {
		fields = append(fields, zap.Float64("response_time", *res.Latency))
	}
	if res.Error != nil {
		fields = append(fields, zap.String("reason", *res.Error))
	}
	s.log().Debug("site_checked", fields...)

	if s.OnResult != nil {
		s.OnResult(res)
	}
	return true, nil
}

func (s *Sweeper) observe(start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "canceled"
	case err != nil:
		result = "error"
	}
	metrics.SweepsTotal.WithLabelValues(result).Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
}

func (s *Sweeper) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
