package thread

import (
	"testing"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.ThreadStore = (*InMemoryStore)(nil)

func TestInMemoryStore_Contract(t *testing.T) {
	testutil.RunThreadStoreSuite(t, func(t *testing.T) core.ThreadStore {
		return NewInMemoryStore()
	})
}
