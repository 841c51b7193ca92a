// Package repotest holds the behavioral suite every repo.Store backend runs.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) repo.Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s repo.Store)
	}{
		{"AddSite_Duplicate", testAddDuplicate},
		{"RemoveSite_Absent", testRemoveAbsent},
		{"RemoveSite_CascadesHistory", testRemoveCascades},
		{"ListSites_SortedByURL", testListSorted},
		{"RecordOutcome_UpdatesSiteAndHistory", testRecordOutcome},
		{"RecordOutcome_OfflineWithoutLatency", testRecordOffline},
		{"RecordOutcome_UnknownSite", testRecordUnknown},
		{"History_LimitNewestFirst", testHistoryLimit},
		{"History_UnknownSiteEmpty", testHistoryUnknown},
		{"GetSite_NotFound", testGetSiteNotFound},
		{"ClearAll", testClearAll},
		{"ConcurrentReadsSeeWholeOutcomes", testConcurrentConsistency},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func testAddDuplicate(t *testing.T, s repo.Store) {
	ctx := context.Background()
	added, err := s.AddSite(ctx, "http://example.com")
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.AddSite(ctx, "http://example.com")
	require.NoError(t, err)
	require.False(t, added, "second add of the same URL must be a no-op")

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Equal(t, "http://example.com", sites[0].URL)
	require.NotZero(t, sites[0].ID)
	require.False(t, sites[0].CreatedAt.IsZero())
	require.False(t, sites[0].Checked())
	require.Equal(t, domain.StatusUnknown, sites[0].LastStatus)
}

func testRemoveAbsent(t *testing.T, s repo.Store) {
	ctx := context.Background()
	_, err := s.AddSite(ctx, "http://a.example")
	require.NoError(t, err)

	removed, err := s.RemoveSite(ctx, "http://missing.example")
	require.NoError(t, err)
	require.False(t, removed)

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
}

func testRemoveCascades(t *testing.T, s repo.Store) {
	ctx := context.Background()
	const u = "http://gone.example"
	_, err := s.AddSite(ctx, u)
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(ctx, u, domain.Online(0.1)))

	removed, err := s.RemoveSite(ctx, u)
	require.NoError(t, err)
	require.True(t, removed)

	// re-adding starts with a clean history
	_, err = s.AddSite(ctx, u)
	require.NoError(t, err)
	hist, err := s.History(ctx, u, 10)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func testListSorted(t *testing.T, s repo.Store) {
	ctx := context.Background()
	for _, u := range []string{"http://c.example", "http://a.example", "https://b.example"} {
		_, err := s.AddSite(ctx, u)
		require.NoError(t, err)
	}
	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(sites))
	for _, st := range sites {
		got = append(got, st.URL)
	}
	require.Equal(t, []string{"http://a.example", "http://c.example", "https://b.example"}, got)
}

func testRecordOutcome(t *testing.T, s repo.Store) {
	ctx := context.Background()
	const u = "http://example.com"
	_, err := s.AddSite(ctx, u)
	require.NoError(t, err)

	require.NoError(t, s.RecordOutcome(ctx, u, domain.Online(0.25)))

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	site := sites[0]
	require.Equal(t, domain.StatusOnline, site.LastStatus)
	require.NotNil(t, site.LastChecked)
	require.NotNil(t, site.ResponseTime)
	require.InDelta(t, 0.25, *site.ResponseTime, 1e-9)
	require.Nil(t, site.LastError)

	hist, err := s.History(ctx, u, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	rec := hist[0]
	require.Equal(t, site.ID, rec.SiteID)
	require.Equal(t, domain.StatusOnline, rec.Status)
	require.NotNil(t, rec.ResponseTime)
	require.InDelta(t, 0.25, *rec.ResponseTime, 1e-9)
	require.Nil(t, rec.Error)
	require.True(t, rec.CheckedAt.Equal(*site.LastChecked), "site and history carry the same timestamp")

	got, err := s.GetSite(ctx, u)
	require.NoError(t, err)
	require.Equal(t, domain.StatusOnline, got.LastStatus)
}

func testRecordOffline(t *testing.T, s repo.Store) {
	ctx := context.Background()
	const u = "http://down.example"
	_, err := s.AddSite(ctx, u)
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(ctx, u, domain.Online(0.2)))
	require.NoError(t, s.RecordOutcome(ctx, u, domain.Offline(-1, "Timeout after 10s")))

	site, err := s.GetSite(ctx, u)
	require.NoError(t, err)
	require.Equal(t, domain.StatusOffline, site.LastStatus)
	require.Nil(t, site.ResponseTime, "latency is overwritten together with status")
	require.NotNil(t, site.LastError)
	require.Equal(t, "Timeout after 10s", *site.LastError)

	hist, err := s.History(ctx, u, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, domain.StatusOffline, hist[0].Status)
	require.Nil(t, hist[0].ResponseTime)
	require.Equal(t, domain.StatusOnline, hist[1].Status)
}

func testRecordUnknown(t *testing.T, s repo.Store) {
	err := s.RecordOutcome(context.Background(), "http://nobody.example", domain.Online(0.1))
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func testHistoryLimit(t *testing.T, s repo.Store) {
	ctx := context.Background()
	const u = "http://example.com"
	_, err := s.AddSite(ctx, u)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.RecordOutcome(ctx, u, domain.Online(float64(i))))
	}

	hist, err := s.History(ctx, u, 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.InDelta(t, 5.0, *hist[0].ResponseTime, 1e-9)
	require.InDelta(t, 4.0, *hist[1].ResponseTime, 1e-9)
	require.False(t, hist[0].CheckedAt.Before(hist[1].CheckedAt))

	all, err := s.History(ctx, u, 0)
	require.NoError(t, err)
	require.Len(t, all, 5, "non-positive limit falls back to the default")
}

func testHistoryUnknown(t *testing.T, s repo.Store) {
	hist, err := s.History(context.Background(), "http://nobody.example", 10)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func testGetSiteNotFound(t *testing.T, s repo.Store) {
	_, err := s.GetSite(context.Background(), "http://nobody.example")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func testClearAll(t *testing.T, s repo.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		u := fmt.Sprintf("http://s%d.example", i)
		_, err := s.AddSite(ctx, u)
		require.NoError(t, err)
		require.NoError(t, s.RecordOutcome(ctx, u, domain.Online(0.1)))
	}

	n, err := s.ClearAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Empty(t, sites)

	// history went with the sites
	_, err = s.AddSite(ctx, "http://s0.example")
	require.NoError(t, err)
	hist, err := s.History(ctx, "http://s0.example", 10)
	require.NoError(t, err)
	require.Empty(t, hist)

	n, err = s.ClearAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// A reader that sees a site's last check must find a history record at
// least that recent, since status and history are written together.
func testConcurrentConsistency(t *testing.T, s repo.Store) {
	ctx := context.Background()
	const u = "http://busy.example"
	_, err := s.AddSite(ctx, u)
	require.NoError(t, err)

	const writes = 50
	var wg sync.WaitGroup
	errs := make(chan error, writes*2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			out := domain.Online(float64(i))
			if i%2 == 1 {
				out = domain.Offline(-1, "Connection failed")
			}
			if err := s.RecordOutcome(ctx, u, out); err != nil {
				errs <- err
				return
			}
		}
	}()

	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				site, err := s.GetSite(ctx, u)
				if err != nil {
					errs <- err
					return
				}
				if site.LastChecked == nil {
					continue
				}
				hist, err := s.History(ctx, u, 1)
				if err != nil {
					errs <- err
					return
				}
				if len(hist) != 1 || hist[0].CheckedAt.Before(*site.LastChecked) {
					errs <- fmt.Errorf("site checked at %v but newest history is %+v", *site.LastChecked, hist)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hist, err := s.History(ctx, u, writes+10)
	require.NoError(t, err)
	require.Len(t, hist, writes)
}
