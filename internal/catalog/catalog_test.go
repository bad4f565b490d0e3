package catalog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-tombstone/pkg/cascade"
	"github.com/marshallshelly/pebble-tombstone/pkg/queue"
	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store/memstore"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"Product", "product", "products", " PRODUCTS "} {
		m, err := Lookup(name)
		require.NoError(t, err, name)
		assert.IsType(t, Product{}, m)
	}

	m, err := Lookup("product_variants")
	require.NoError(t, err)
	assert.IsType(t, ProductVariant{}, m)

	_, err = Lookup("widgets")
	assert.ErrorContains(t, err, "users, products, product_variants, product_images")
}

func TestRegister(t *testing.T) {
	e, err := cascade.New(cascade.DefaultConfig(), memstore.New(), queue.NewMemory(),
		cascade.WithRegistry(registry.NewRegistry()),
		cascade.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	require.NoError(t, Register(e))

	users, err := e.Registry().GetByTypeName(e.Config().ActorType)
	require.NoError(t, err)
	assert.Equal(t, "users", users.Name)

	products, err := e.Registry().GetByName("products")
	require.NoError(t, err)

	modes := map[string]schema.CascadeMode{}
	for _, rel := range products.CascadingRelationships() {
		mode, err := e.Resolve(products, rel)
		require.NoError(t, err)
		modes[rel.SourceField] = mode
	}
	assert.Equal(t, map[string]schema.CascadeMode{
		"Variants": schema.CascadeInline,
		"Images":   schema.CascadeBulkUpdate,
	}, modes)
}

func TestCascadeThroughCatalog(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	q := queue.NewMemory(queue.WithLogger(slog.New(slog.DiscardHandler)))
	e, err := cascade.New(cascade.DefaultConfig(), st, q,
		cascade.WithRegistry(registry.NewRegistry()),
		cascade.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	require.NoError(t, Register(e))
	e.RegisterJobs(q)

	admin := &User{Email: "admin@example.com", Name: "Admin"}
	owner := &User{Email: "owner@example.com", Name: "Owner"}
	require.NoError(t, e.Save(ctx, admin))
	require.NoError(t, e.Save(ctx, owner))

	p := &Product{OwnerID: owner.ID, Name: "Lamp"}
	require.NoError(t, e.Save(ctx, p))
	v := &ProductVariant{ProductID: p.ID, SKU: "LAMP-1", PriceCents: 1999}
	img := &ProductImage{ProductID: p.ID, URL: "https://img.example.com/lamp.png"}
	require.NoError(t, e.Save(ctx, v))
	require.NoError(t, e.Save(ctx, img))

	require.NoError(t, e.Delete(ctx, owner, cascade.WithActor(admin.ID)))
	require.Len(t, q.Pending(), 1, "products are deferred")
	require.NoError(t, q.Drain(ctx))

	for _, m := range []struct {
		model any
		id    int64
	}{{Product{}, p.ID}, {ProductVariant{}, v.ID}, {ProductImage{}, img.ID}} {
		got, err := e.Find(ctx, m.model, m.id)
		require.NoError(t, err)
		rec := got.(interface {
			IsTombstoned() bool
			Batch() string
		})
		assert.True(t, rec.IsTombstoned(), "%T", m.model)
		assert.Equal(t, owner.Batch(), rec.Batch(), "%T", m.model)
	}

	require.NoError(t, e.Restore(ctx, owner))
	require.NoError(t, q.Drain(ctx))
	got, err := e.Find(ctx, ProductImage{}, img.ID)
	require.NoError(t, err)
	assert.False(t, got.(*ProductImage).IsTombstoned())
}

func TestLabels(t *testing.T) {
	var l Labeler = &User{Name: "Ada", Email: "ada@example.com"}
	assert.Equal(t, "Ada <ada@example.com>", l.Label())
	assert.Equal(t, "SKU-1", (&ProductVariant{SKU: "SKU-1"}).Label())
}
