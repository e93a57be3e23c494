package workingmemory

import (
	"testing"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/testutil"
)

func TestInMemoryStore_Contract(t *testing.T) {
	testutil.RunWorkingMemoryStoreSuite(t, func(t *testing.T) core.WorkingMemoryStore {
		return NewInMemoryStore()
	})
}
