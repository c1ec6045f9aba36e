package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgrafter/flatagents/pkg/adapters/memory"
	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports/tests"
)

func TestMemoryStore_Contract(t *testing.T) {
	tests.RunTraceStoreContract(t, memory.NewStore())
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trace := &domain.Trace{RunID: fmt.Sprintf("run-%d", i), Machine: "m"}
			assert.NoError(t, store.Save(ctx, trace))
		}(i)
	}
	wg.Wait()

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 20)
}
