package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-tombstone/pkg/queue"
)

func TestJobs_UnknownTypeIsPermanent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	err := h.engine.PerformDeleteBatch(ctx, queue.Payload{TypeName: "Nope", IDs: []any{1}})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.True(t, queue.IsPermanent(err))

	err = h.engine.PerformRestoreBatch(ctx, queue.Payload{TypeName: "label", IDs: []any{1}})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.True(t, queue.IsPermanent(err))
}

func TestJobs_DeleteBatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	s := h.seedShop(t, "a")
	orders := h.seedOrders(t, s, 3)
	actor := int64(11)

	payload := queue.Payload{
		TypeName: "order",
		IDs:      []any{orders[0].ID, orders[1].ID, int64(999), orders[2].ID},
		Actor:    &actor,
		BatchID:  "b-7",
	}
	require.NoError(t, h.engine.PerformDeleteBatch(ctx, payload))

	for _, o := range orders {
		got := reload(t, h, o)
		assert.Equal(t, "b-7", got.Batch())
		assert.Equal(t, int64(11), *got.TombstonedBy)
	}

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, h.engine.PerformDeleteBatch(ctx, payload))
		for _, o := range orders {
			assert.Equal(t, "b-7", reload(t, h, o).Batch())
		}
	})
}

func TestJobs_DeleteBatchGeneratesBatchID(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	s := h.seedShop(t, "a")
	orders := h.seedOrders(t, s, 2)

	require.NoError(t, h.engine.PerformDeleteBatch(ctx, queue.Payload{
		TypeName: "order",
		IDs:      []any{float64(orders[0].ID), float64(orders[1].ID)},
	}))

	first := reload(t, h, orders[0]).Batch()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, reload(t, h, orders[1]).Batch(), "one batch per unit")
}

func TestJobs_FailedRecordDoesNotStopTheBatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	s := h.seedShop(t, "a")
	orders := h.seedOrders(t, s, 3)
	bad := orders[1].ID

	boom := errors.New("boom")
	require.NoError(t, h.engine.BeforeDelete(order{}, func(_ context.Context, ev *Event) error {
		if ev.Record.(*order).ID == bad {
			return boom
		}
		return nil
	}))

	ids := []any{orders[0].ID, orders[1].ID, orders[2].ID}
	err := h.engine.PerformDeleteBatch(ctx, queue.Payload{TypeName: "order", IDs: ids, BatchID: "b"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, queue.IsPermanent(err))

	assert.True(t, reload(t, h, orders[0]).IsTombstoned())
	assert.False(t, reload(t, h, orders[1]).IsTombstoned())
	assert.True(t, reload(t, h, orders[2]).IsTombstoned())
}

func TestJobs_RestoreBatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	s := h.seedShop(t, "a")
	orders := h.seedOrders(t, s, 2)
	ids := []any{orders[0].ID, orders[1].ID}
	require.NoError(t, h.engine.PerformDeleteBatch(ctx, queue.Payload{TypeName: "order", IDs: ids, BatchID: "b"}))

	require.NoError(t, h.engine.PerformRestoreBatch(ctx, queue.Payload{TypeName: "order", IDs: ids}))
	for _, o := range orders {
		got := reload(t, h, o)
		assert.False(t, got.IsTombstoned())
		assert.NoError(t, got.Invariant())
	}

	// Restoring live records changes nothing.
	require.NoError(t, h.engine.PerformRestoreBatch(ctx, queue.Payload{TypeName: "order", IDs: ids}))
}

func TestJobs_NestedCascadesFanOut(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	// A shop reached by a deferred unit cascades to its own dependents.
	s := h.seedShop(t, "a")
	p := h.seedProducts(t, s, 1)[0]
	h.seedOrders(t, s, 2)

	require.NoError(t, h.engine.PerformDeleteBatch(ctx, queue.Payload{
		TypeName: "shop", IDs: []any{s.ID}, BatchID: "outer",
	}))

	assert.Equal(t, "outer", reload(t, h, s).Batch())
	assert.Equal(t, "outer", reload(t, h, p).Batch())

	units := h.queue.Pending()
	require.Len(t, units, 1)
	assert.Equal(t, "outer", units[0].Payload.BatchID)

	require.NoError(t, h.queue.Drain(ctx))
	for _, b := range h.batches(t, order{}) {
		assert.Equal(t, "outer", b)
	}
}
