package memory

import (
	"testing"

	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/repotest"
)

func TestMemoryStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store { return New() })
}
