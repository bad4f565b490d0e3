package cascade

import (
	"context"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-tombstone/pkg/queue"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/store/memstore"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type shop struct {
	tombstone.State
	ID       int64      `po:"id,primaryKey,bigserial"`
	Name     string     `po:"name,text,notNull"`
	Products []*product `po:"-,hasMany,foreignKey(shop_id),cascade(inline)"`
	Orders   []*order   `po:"-,hasMany,foreignKey(shop_id),cascade(deferred)"`
	Notes    []note     `po:"-,hasMany,foreignKey(shop_id),cascade(bulkUpdate)"`
	Profile  *profile   `po:"-,hasOne,foreignKey(shop_id),cascade(inline)"`
	Labels   []*label   `po:"-,hasMany,foreignKey(shop_id)"`
}

type product struct {
	tombstone.State
	ID       int64      `po:"id,primaryKey,bigserial"`
	ShopID   int64      `po:"shop_id,bigint,notNull"`
	Name     string     `po:"name,text,notNull"`
	Variants []*variant `po:"-,hasMany,foreignKey(product_id),cascade(inline)"`
}

type variant struct {
	tombstone.State
	ID        int64  `po:"id,primaryKey,bigserial"`
	ProductID int64  `po:"product_id,bigint,notNull"`
	SKU       string `po:"sku,text,notNull"`
}

type order struct {
	tombstone.State
	ID     int64 `po:"id,primaryKey,bigserial"`
	ShopID int64 `po:"shop_id,bigint,notNull"`
}

type note struct {
	tombstone.State
	ID     int64  `po:"id,primaryKey,bigserial"`
	ShopID int64  `po:"shop_id,bigint,notNull"`
	Body   string `po:"body,text"`
}

type profile struct {
	tombstone.State
	ID     int64 `po:"id,primaryKey,bigserial"`
	ShopID int64 `po:"shop_id,bigint,notNull"`
}

// label does not participate in tombstoning.
type label struct {
	ID     int64  `po:"id,primaryKey,bigserial"`
	ShopID int64  `po:"shop_id,bigint,notNull"`
	Name   string `po:"name,text"`
}

func mustTable(t *testing.T, model any) *schema.TableMetadata {
	t.Helper()
	table, err := schema.NewParser().Parse(reflect.TypeOf(model))
	require.NoError(t, err)
	return table
}

type harness struct {
	engine *Engine
	store  *memstore.Store
	queue  *queue.Memory
	clock  *testclock.Clock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clk := testclock.NewClock(fixedNow)
	st := memstore.New(memstore.WithNow(clk.Now))
	q := queue.NewMemory(
		queue.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		queue.WithMaxRetries(0),
		queue.WithLogger(quietLogger()),
	)

	e, err := New(cfg, st, q, WithClock(clk), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, e.Register(shop{}, product{}, variant{}, order{}, note{}, profile{}, label{}))
	e.RegisterJobs(q)

	return &harness{engine: e, store: st, queue: q, clock: clk}
}

// insert saves records without callbacks.
func (h *harness) insert(t *testing.T, recs ...any) {
	t.Helper()
	err := h.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, rec := range recs {
			m, err := h.engine.modelOf(reflect.TypeOf(rec))
			if err != nil {
				return err
			}
			if err := tx.Save(ctx, m.table, rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// reload reads a fresh copy of rec from the store.
func reload[T any](t *testing.T, h *harness, rec *T) *T {
	t.Helper()
	m, err := h.engine.modelOf(reflect.TypeOf(rec))
	require.NoError(t, err)
	id, ok, err := store.PrimaryKey(m.table, rec)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := h.engine.Find(context.Background(), rec, id)
	require.NoError(t, err)
	return got.(*T)
}

func (h *harness) seedShop(t *testing.T, name string) *shop {
	t.Helper()
	s := &shop{Name: name}
	h.insert(t, s)
	return s
}

func (h *harness) seedProducts(t *testing.T, s *shop, n int) []*product {
	t.Helper()
	out := make([]*product, n)
	for i := range out {
		out[i] = &product{ShopID: s.ID, Name: "p"}
		h.insert(t, out[i])
	}
	return out
}

func (h *harness) seedOrders(t *testing.T, s *shop, n int) []*order {
	t.Helper()
	out := make([]*order, n)
	recs := make([]any, n)
	for i := range out {
		out[i] = &order{ShopID: s.ID}
		recs[i] = out[i]
	}
	h.insert(t, recs...)
	return out
}

// batches returns the batch id of every record of model's type,
// keyed by primary key; live records map to "".
func (h *harness) batches(t *testing.T, model any) map[int64]string {
	t.Helper()
	recs, err := h.engine.List(context.Background(), model, tombstone.Any)
	require.NoError(t, err)

	m, err := h.engine.modelOf(reflect.TypeOf(model))
	require.NoError(t, err)

	out := make(map[int64]string, len(recs))
	for _, rec := range recs {
		id, _, err := store.PrimaryKey(m.table, rec)
		require.NoError(t, err)
		out[id.(int64)] = store.StateOf(rec).Batch()
	}
	return out
}
