package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

type Store struct {
	mu      sync.RWMutex
	nextID  int64
	nextRec int64
	sites   map[string]*domain.Site
	history map[int64][]domain.CheckRecord // by site ID, oldest first
	now     func() time.Time
}

func New() *Store {
	return &Store{
		sites:   make(map[string]*domain.Site),
		history: make(map[int64][]domain.CheckRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Store) AddSite(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[url]; ok {
		return false, nil
	}
	m.nextID++
	m.sites[url] = &domain.Site{ID: m.nextID, URL: url, CreatedAt: m.now()}
	return true, nil
}

func (m *Store) RemoveSite(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[url]
	if !ok {
		return false, nil
	}
	delete(m.history, s.ID)
	delete(m.sites, url)
	return true, nil
}

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, copySite(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *Store) GetSite(ctx context.Context, url string) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[url]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := copySite(s)
	return &cp, nil
}

func (m *Store) RecordOutcome(ctx context.Context, url string, out domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[url]
	if !ok {
		return repo.ErrNotFound
	}
	now := m.now()
	s.LastChecked = &now
	s.LastStatus = out.Status
	s.ResponseTime = copyFloat(out.Latency)
	s.LastError = copyString(out.Error)

	m.nextRec++
	m.history[s.ID] = append(m.history[s.ID], domain.CheckRecord{
		ID:           m.nextRec,
		SiteID:       s.ID,
		CheckedAt:    now,
		Status:       out.Status,
		ResponseTime: copyFloat(out.Latency),
		Error:        copyString(out.Error),
	})
	return nil
}

func (m *Store) History(ctx context.Context, url string, limit int) ([]domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit = repo.Limit(limit)
	s, ok := m.sites[url]
	if !ok {
		return []domain.CheckRecord{}, nil
	}
	recs := m.history[s.ID]
	out := make([]domain.CheckRecord, 0, min(limit, len(recs)))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (m *Store) ClearAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sites)
	m.sites = make(map[string]*domain.Site)
	m.history = make(map[int64][]domain.CheckRecord)
	return n, nil
}

func (m *Store) Close() error { return nil }

// copySite detaches pointer fields so callers never alias store state.
func copySite(s *domain.Site) domain.Site {
	cp := *s
	if s.LastChecked != nil {
		t := *s.LastChecked
		cp.LastChecked = &t
	}
	cp.ResponseTime = copyFloat(s.ResponseTime)
	cp.LastError = copyString(s.LastError)
	return cp
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ repo.Store = (*Store)(nil)
