package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
)

// --- fakes ---

type fakeChecker struct {
	mu    sync.Mutex
	calls []string
	fn    func(url string) domain.Outcome
}

func (f *fakeChecker) Check(ctx context.Context, target string) domain.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(target)
	}
	return domain.Online(0.05)
}

func (f *fakeChecker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type faultyRepo struct {
	repo.Repository
	listErr   error
	recordErr error
	panics    int32 // ListSites panics this many times first
}

func (f *faultyRepo) ListSites(ctx context.Context) ([]domain.Site, error) {
	if atomic.AddInt32(&f.panics, -1) >= 0 {
		panic("boom")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Repository.ListSites(ctx)
}

func (f *faultyRepo) RecordOutcome(ctx context.Context, url string, out domain.Outcome) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.Repository.RecordOutcome(ctx, url, out)
}

func seeded(t *testing.T, urls ...string) *memory.Store {
	t.Helper()
	st := memory.New()
	for _, u := range urls {
		ok, err := st.AddSite(context.Background(), u)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return st
}

func historyLen(t *testing.T, r repo.Repository, url string) int {
	t.Helper()
	h, err := r.History(context.Background(), url, 0)
	require.NoError(t, err)
	return len(h)
}

// --- Sweeper ---

func TestRunOnce_EmptyRepo_NoMutation(t *testing.T) {
	st := memory.New()
	chk := &fakeChecker{}
	sw := NewSweeper(zap.NewNop(), st, chk, 0, 1)

	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, res)
	require.Empty(t, chk.Calls())

	sites, err := st.ListSites(context.Background())
	require.NoError(t, err)
	require.Empty(t, sites)
}

func TestRunOnce_RecordsInURLOrder(t *testing.T) {
	st := seeded(t, "https://c.example", "https://a.example", "https://b.example")
	chk := &fakeChecker{fn: func(url string) domain.Outcome {
		if url == "https://b.example" {
			return domain.Offline(0.2, "HTTP 404")
		}
		return domain.Online(0.1)
	}}
	sw := NewSweeper(zap.NewNop(), st, chk, 0, 1)
	var reported []string
	sw.OnResult = func(r domain.SweepResult) { reported = append(reported, r.URL) }

	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)

	want := []string{"https://a.example", "https://b.example", "https://c.example"}
	require.Len(t, res, 3)
	for i, r := range res {
		require.Equal(t, want[i], r.URL)
	}
	require.Equal(t, want, reported)
	require.Equal(t, domain.StatusOffline, res[1].Status)

	site, err := st.GetSite(context.Background(), "https://b.example")
	require.NoError(t, err)
	require.Equal(t, domain.StatusOffline, site.LastStatus)
	require.NotNil(t, site.LastError)
	require.Equal(t, "HTTP 404", *site.LastError)
	for _, u := range want {
		require.Equal(t, 1, historyLen(t, st, u))
	}
}

func TestRunOnce_CancelStopsBetweenSites(t *testing.T) {
	st := seeded(t, "https://a.example", "https://b.example", "https://c.example")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chk := &fakeChecker{fn: func(url string) domain.Outcome {
		cancel() // stop requested while the first probe is in flight
		return domain.Online(0.1)
	}}
	sw := NewSweeper(zap.NewNop(), st, chk, 0, 1)

	res, err := sw.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, res, 1)
	require.Equal(t, []string{"https://a.example"}, chk.Calls())
	require.Equal(t, 1, historyLen(t, st, "https://a.example"))
	require.Equal(t, 0, historyLen(t, st, "https://b.example"))
}

func TestRunOnce_SiteRemovedMidSweepIsSkipped(t *testing.T) {
	st := seeded(t, "https://a.example", "https://b.example")
	core, logs := observer.New(zap.InfoLevel)
	chk := &fakeChecker{fn: func(url string) domain.Outcome {
		if url == "https://a.example" {
			_, _ = st.RemoveSite(context.Background(), "https://b.example")
		}
		return domain.Online(0.1)
	}}
	sw := NewSweeper(zap.New(core), st, chk, 0, 1)

	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "https://a.example", res[0].URL)
	require.Equal(t, 1, logs.FilterMessage("site_vanished").Len())
}

func TestRunOnce_RecordFailureAborts(t *testing.T) {
	st := seeded(t, "https://a.example", "https://b.example")
	fr := &faultyRepo{Repository: st, recordErr: errors.New("disk full")}
	chk := &fakeChecker{}
	sw := NewSweeper(zap.NewNop(), fr, chk, 0, 1)

	res, err := sw.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.Empty(t, res)
	require.Len(t, chk.Calls(), 1)
}

func TestRunOnce_ParallelKeepsOrder(t *testing.T) {
	var urls []string
	for i := 0; i < 8; i++ {
		urls = append(urls, fmt.Sprintf("https://s%d.example", i))
	}
	st := seeded(t, urls...)
	chk := &fakeChecker{fn: func(url string) domain.Outcome {
		// later sites answer first
		d := time.Duration(9-int(url[9]-'0')) * 5 * time.Millisecond
		time.Sleep(d)
		return domain.Online(d.Seconds())
	}}
	sw := NewSweeper(zap.NewNop(), st, chk, time.Second, 4)

	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res, len(urls))
	for i, r := range res {
		require.Equal(t, urls[i], r.URL)
		require.Equal(t, 1, historyLen(t, st, r.URL))
	}
}

// --- Scheduler ---

func TestScheduler_StopRightAfterStart(t *testing.T) {
	st := seeded(t, "https://a.example")
	chk := &fakeChecker{}
	s := New(NewSweeper(zap.NewNop(), st, chk, 0, 1), time.Hour, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	n := len(chk.Calls())
	require.LessOrEqual(t, n, 1)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, n, len(chk.Calls()), "no sweeps after stop")
	require.Equal(t, Stopped, s.Status().State)
	require.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	s.Stop() // idempotent
}

func TestScheduler_StartTwice(t *testing.T) {
	st := seeded(t, "https://a.example")
	s := New(NewSweeper(zap.NewNop(), st, &fakeChecker{}, 0, 1), time.Hour, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	require.True(t, s.Running())
}

func TestScheduler_StopWhenIdle(t *testing.T) {
	s := New(NewSweeper(nil, memory.New(), &fakeChecker{}, 0, 1), time.Hour, nil)
	s.Stop()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed")
	}
	require.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestScheduler_StopMidSweepSkipsRemainingSites(t *testing.T) {
	st := seeded(t, "https://a.example", "https://b.example", "https://c.example")
	entered := make(chan struct{})
	release := make(chan struct{})
	chk := &fakeChecker{fn: func(url string) domain.Outcome {
		if url == "https://a.example" {
			close(entered)
			<-release
		}
		return domain.Online(0.1)
	}}
	s := New(NewSweeper(zap.NewNop(), st, chk, 0, 1), time.Hour, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	// Stop waits for the in-flight probe.
	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight probe finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-stopped

	require.Equal(t, []string{"https://a.example"}, chk.Calls())
	require.Equal(t, 1, historyLen(t, st, "https://a.example"))
	require.Equal(t, 0, historyLen(t, st, "https://b.example"))
	require.Equal(t, 0, historyLen(t, st, "https://c.example"))
}

func TestScheduler_PanicIsContained(t *testing.T) {
	st := seeded(t, "https://a.example")
	fr := &faultyRepo{Repository: st, panics: 1}
	core, logs := observer.New(zap.InfoLevel)
	chk := &fakeChecker{}
	s := New(NewSweeper(zap.NewNop(), fr, chk, 0, 1), 10*time.Millisecond, zap.New(core))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return len(chk.Calls()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, s.Running())
	require.Equal(t, 1, logs.FilterMessage("sweep_panic").Len())
	require.Eventually(t, func() bool { return historyLen(t, st, "https://a.example") >= 1 }, time.Second, 5*time.Millisecond)
}

func TestRunOnce_PanickingCheckerGoesOffline(t *testing.T) {
	st := seeded(t, "https://a.example", "https://b.example")
	chk := &fakeChecker{fn: func(url string) domain.Outcome {
		if url == "https://a.example" {
			panic("nil map")
		}
		return domain.Online(0.1)
	}}
	sw := NewSweeper(zap.NewNop(), st, chk, 0, 2)

	res, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, domain.StatusOffline, res[0].Status)
	require.Nil(t, res[0].Latency)
	require.Equal(t, "Unexpected error: nil map", *res[0].Error)
	require.Equal(t, domain.StatusOnline, res[1].Status)
}

func TestScheduler_TransientErrorKeepsLooping(t *testing.T) {
	st := seeded(t, "https://a.example")
	fr := &faultyRepo{Repository: st, listErr: errors.New("database is locked")}
	chk := &fakeChecker{}
	s := New(NewSweeper(zap.NewNop(), fr, chk, 0, 1), 10*time.Millisecond, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return s.Status().Sweeps >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, s.Running())
	require.Contains(t, s.Status().LastError, "database is locked")
	require.NoError(t, s.Err())
}

func TestScheduler_CorruptStoreIsFatal(t *testing.T) {
	st := seeded(t, "https://a.example")
	fr := &faultyRepo{Repository: st, listErr: fmt.Errorf("list: %w", repo.ErrCorrupt)}
	s := New(NewSweeper(zap.NewNop(), fr, &fakeChecker{}, 0, 1), 10*time.Millisecond, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not end on corrupt store")
	}
	require.ErrorIs(t, s.Err(), repo.ErrCorrupt)
	st2 := s.Status()
	require.Equal(t, Stopped, st2.State)
	require.Equal(t, 1, st2.Sweeps)
	s.Stop()
}

func TestScheduler_ParentContextCancelStops(t *testing.T) {
	st := seeded(t, "https://a.example")
	ctx, cancel := context.WithCancel(context.Background())
	s := New(NewSweeper(zap.NewNop(), st, &fakeChecker{}, 0, 1), time.Hour, zap.NewNop())
	require.NoError(t, s.Start(ctx))
	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not end on parent cancel")
	}
	require.False(t, s.Running())
}

func TestRunOnce_StartAndFinishHooks(t *testing.T) {
	st := seeded(t, "https://a.example", "https://b.example")
	sw := NewSweeper(zap.NewNop(), st, &fakeChecker{}, 0, 1)
	var started, finished int
	sw.OnStart = func(n int) { started = n }
	sw.OnFinish = func(res []domain.SweepResult, err error) {
		require.NoError(t, err)
		finished = len(res)
	}

	_, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, started)
	require.Equal(t, 2, finished)

	// no hooks on an empty sweep
	started, finished = -1, -1
	empty := NewSweeper(zap.NewNop(), memory.New(), &fakeChecker{}, 0, 1)
	empty.OnStart, empty.OnFinish = sw.OnStart, sw.OnFinish
	_, err = empty.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, -1, started)
	require.Equal(t, -1, finished)
}
