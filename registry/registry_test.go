package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-labs/x402-gateway-go/types"
)

func TestMemoryStoreRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("missing endpoint leaves the registry unchanged", func(t *testing.T) {
		store := NewMemoryStore()

		_, err := store.Register(ctx, types.ServiceDescriptor{ID: "svc-1"})
		require.ErrorIs(t, err, ErrInvalidDescriptor)

		records, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("missing id is rejected", func(t *testing.T) {
		store := NewMemoryStore()

		_, err := store.Register(ctx, types.ServiceDescriptor{Endpoint: "/api/services/svc-1"})
		require.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("invalid price is rejected", func(t *testing.T) {
		store := NewMemoryStore()

		_, err := store.Register(ctx, types.ServiceDescriptor{
			ID:       "svc-1",
			Endpoint: "/api/services/svc-1",
			Price:    "free",
		})
		require.ErrorIs(t, err, ErrInvalidDescriptor)
	})

	t.Run("defaults are applied", func(t *testing.T) {
		store := NewMemoryStore()

		record, err := store.Register(ctx, types.ServiceDescriptor{
			ID:       "svc-1",
			Endpoint: "/api/services/svc-1",
		})
		require.NoError(t, err)

		assert.Equal(t, "svc-1", record.Name)
		assert.Equal(t, DefaultPrice, record.Price)
		assert.Equal(t, DefaultNetwork, record.Network)
		assert.Equal(t, DefaultCapabilities, record.Capabilities)
		assert.Equal(t, types.ServiceStatusActive, record.Status)
		assert.Equal(t, "0", record.Earned)
		assert.False(t, record.RegisteredAt.IsZero())
	})

	t.Run("re-registration upserts and preserves counters", func(t *testing.T) {
		store := NewMemoryStore()

		first, err := store.Register(ctx, types.ServiceDescriptor{
			ID:       "svc-1",
			Endpoint: "/api/services/svc-1",
			Price:    "0.001",
		})
		require.NoError(t, err)

		require.NoError(t, store.RecordCall(ctx, "svc-1", "0.001"))

		second, err := store.Register(ctx, types.ServiceDescriptor{
			ID:       "svc-1",
			Endpoint: "/api/services/svc-1",
			Price:    "0.005",
		})
		require.NoError(t, err)

		assert.Equal(t, "0.005", second.Price)
		assert.Equal(t, uint64(1), second.Calls)
		assert.Equal(t, "0.001", second.Earned)
		assert.Equal(t, first.RegisteredAt, second.RegisteredAt)

		records, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestMemoryStoreGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Register(ctx, types.ServiceDescriptor{ID: "svc-1", Endpoint: "/svc-1"})
	require.NoError(t, err)

	record, err := store.Get(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "svc-1", record.ID)
}

func TestMemoryStoreListOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, id := range []string{"svc-c", "svc-a", "svc-b"} {
		_, err := store.Register(ctx, types.ServiceDescriptor{ID: id, Endpoint: "/" + id})
		require.NoError(t, err)
	}

	records, err := store.List(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	assert.Equal(t, []string{"svc-c", "svc-a", "svc-b"}, ids)
}

func TestMemoryStoreDeactivate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.ErrorIs(t, store.Deactivate(ctx, "missing"), ErrNotFound)

	_, err := store.Register(ctx, types.ServiceDescriptor{ID: "svc-1", Endpoint: "/svc-1"})
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, "svc-1"))

	record, err := store.Get(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, types.ServiceStatusInactive, record.Status)
}

func TestMemoryStoreRecordCallConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Register(ctx, types.ServiceDescriptor{
		ID:       "svc-1",
		Endpoint: "/svc-1",
		Price:    "0.001",
	})
	require.NoError(t, err)

	// N concurrent calls must increment the counter by exactly N
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, store.RecordCall(ctx, "svc-1", "0.001"))
		}()
	}
	wg.Wait()

	record, err := store.Get(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(n), record.Calls)
	assert.Equal(t, "0.1", record.Earned)
}

func TestMemoryStoreRecordCallUnknown(t *testing.T) {
	store := NewMemoryStore()
	require.ErrorIs(t, store.RecordCall(context.Background(), "missing", "0.001"), ErrNotFound)
}
