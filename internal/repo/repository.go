package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// DefaultHistoryLimit is used when History is called with a non-positive limit.
const DefaultHistoryLimit = 50

var (
	ErrNotFound = errors.New("site not found")
	// ErrCorrupt marks a fault in the backing store's own consistency. It is
	// fatal to the monitor loop.
	ErrCorrupt = errors.New("store corrupt")
)

// Repository owns all Site and CheckRecord storage. URLs passed in must
// already be normalized. Every method is individually atomic: a reader
// never observes a half-applied RecordOutcome.
type Repository interface {
	// AddSite returns false when the URL is already monitored.
	AddSite(ctx context.Context, url string) (bool, error)
	// RemoveSite deletes the site and its history; false when absent.
	RemoveSite(ctx context.Context, url string) (bool, error)
	// ListSites returns all sites ordered by URL ascending.
	ListSites(ctx context.Context) ([]domain.Site, error)
	GetSite(ctx context.Context, url string) (*domain.Site, error)
	// RecordOutcome stamps the site with the current time and outcome and
	// appends the matching history record in one transaction.
	RecordOutcome(ctx context.Context, url string, out domain.Outcome) error
	// History returns at most limit records, most recent first. Unknown
	// URLs yield an empty slice.
	History(ctx context.Context, url string, limit int) ([]domain.CheckRecord, error)
	// ClearAll removes every site and all history and returns the number
	// of sites removed.
	ClearAll(ctx context.Context) (int, error)
}

type Store interface {
	Repository
	Close() error
}

// Limit applies DefaultHistoryLimit to non-positive values.
func Limit(n int) int {
	if n <= 0 {
		return DefaultHistoryLimit
	}
	return n
}
