package probe

import (
	"context"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Checker performs a single reachability check for a URL. Implementations
// never return an error or panic: every failure is reported in the Outcome.
type Checker interface {
	Check(ctx context.Context, target string) domain.Outcome
}
