package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
	"github.com/marshallshelly/pebble-tombstone/pkg/runtime"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/store"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

type shelf struct {
	tombstone.State
	ID        int64     `po:"id,primaryKey,bigserial"`
	Label     string    `po:"label,text,notNull"`
	UpdatedAt time.Time `po:"updated_at,timestamptz,notNull"`
}

type book struct {
	tombstone.State
	ID        int64     `po:"id,primaryKey,bigserial"`
	ShelfID   int64     `po:"shelf_id,bigint,notNull"`
	Title     string    `po:"title,text,notNull"`
	UpdatedAt time.Time `po:"updated_at,timestamptz,notNull"`
}

type tag struct {
	Code string `po:"code,primaryKey,text"`
	Name string `po:"name,text"`
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Store, *schema.TableMetadata, *schema.TableMetadata) {
	t.Helper()
	reg := registry.NewRegistry()
	shelves, err := reg.GetOrRegister(shelf{})
	require.NoError(t, err)
	books, err := reg.GetOrRegister(book{})
	require.NoError(t, err)
	return New(WithNow(func() time.Time { return fixedNow })), shelves, books
}

func seedBooks(t *testing.T, s *Store, books *schema.TableMetadata, shelfID int64, n int) []*book {
	t.Helper()
	out := make([]*book, 0, n)
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for i := 0; i < n; i++ {
			b := &book{ShelfID: shelfID, Title: "b"}
			if err := tx.Save(ctx, books, b); err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestSave_InsertAssignsIDs(t *testing.T) {
	s, shelves, _ := setup(t)
	ctx := context.Background()

	a := &shelf{Label: "a"}
	b := &shelf{Label: "b"}
	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Save(ctx, shelves, a); err != nil {
			return err
		}
		return tx.Save(ctx, shelves, b)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.True(t, a.IsPersisted())
	assert.Equal(t, fixedNow, a.UpdatedAt)
	assert.Equal(t, 2, s.Len("shelf"))
}

func TestSave_Update(t *testing.T) {
	s, shelves, _ := setup(t)
	ctx := context.Background()

	rec := &shelf{Label: "before"}
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Save(ctx, shelves, rec)
	}))

	rec.Label = "after"
	rec.MarkTombstoned(fixedNow, "b-1", nil)
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Save(ctx, shelves, rec)
	}))
	assert.True(t, rec.SavedTransitionTo(tombstone.Delete))
	assert.Equal(t, 1, s.Len("shelf"))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Find(ctx, shelves, rec.ID)
		if err != nil {
			return err
		}
		loaded := got.(*shelf)
		assert.Equal(t, "after", loaded.Label)
		assert.True(t, loaded.IsTombstoned())
		assert.True(t, loaded.WasTombstoned())
		assert.Equal(t, "b-1", loaded.Batch())
		assert.Nil(t, loaded.TombstonedBy)
		return nil
	}))
}

func TestSave_NaturalKey(t *testing.T) {
	reg := registry.NewRegistry()
	tags, err := reg.GetOrRegister(tag{})
	require.NoError(t, err)
	s := New()
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Save(ctx, tags, &tag{Code: "go", Name: "Go"})
	}))
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Save(ctx, tags, &tag{Code: "go", Name: "Golang"})
	}))
	assert.Equal(t, 1, s.Len("tag"))

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Save(ctx, tags, &tag{Name: "missing"})
	})
	assert.ErrorIs(t, err, runtime.ErrNoPrimaryKey)
}

func TestSave_DuplicateInsert(t *testing.T) {
	s, shelves, _ := setup(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Save(ctx, shelves, &shelf{ID: 7, Label: "x"}); err != nil {
			return err
		}
		return tx.Save(ctx, shelves, &shelf{ID: 7, Label: "y"})
	})
	assert.ErrorIs(t, err, runtime.ErrDuplicateKey)
	assert.Equal(t, 0, s.Len("shelf"))
}

func TestFind(t *testing.T) {
	s, _, books := setup(t)
	ctx := context.Background()
	seeded := seedBooks(t, s, books, 1, 3)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Find(ctx, books, int64(99))
		assert.ErrorIs(t, err, runtime.ErrNotFound)

		got, err := tx.Find(ctx, books, int32(seeded[1].ID))
		require.NoError(t, err)
		assert.Equal(t, seeded[1].ID, got.(*book).ID)

		all, err := tx.FindAll(ctx, books, []any{seeded[2].ID, 99, seeded[0].ID, seeded[2].ID})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, seeded[0].ID, all[0].(*book).ID)
		assert.Equal(t, seeded[2].ID, all[1].(*book).ID)
		return nil
	}))
}

func TestQuery_Scopes(t *testing.T) {
	s, _, books := setup(t)
	ctx := context.Background()
	first := seedBooks(t, s, books, 1, 4)
	seedBooks(t, s, books, 2, 2)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		first[1].MarkTombstoned(fixedNow, "batch-a", nil)
		if err := tx.Save(ctx, books, first[1]); err != nil {
			return err
		}
		first[2].MarkTombstoned(fixedNow, "batch-b", nil)
		return tx.Save(ctx, books, first[2])
	}))

	owned := store.Scope{Table: books, ForeignKey: "shelf_id", OwnerID: int64(1)}

	tests := []struct {
		name  string
		scope func() store.Scope
		want  []any
	}{
		{
			name:  "all dependents",
			scope: func() store.Scope { return owned },
			want:  []any{first[0].ID, first[1].ID, first[2].ID, first[3].ID},
		},
		{
			name: "live only",
			scope: func() store.Scope {
				sc := owned
				sc.State = tombstone.Live
				return sc
			},
			want: []any{first[0].ID, first[3].ID},
		},
		{
			name: "tombstoned in batch",
			scope: func() store.Scope {
				sc := owned
				sc.State = tombstone.Tombstoned
				sc.BatchID = "batch-b"
				return sc
			},
			want: []any{first[2].ID},
		},
		{
			name: "limit",
			scope: func() store.Scope {
				sc := owned
				sc.Limit = 3
				return sc
			},
			want: []any{first[0].ID, first[1].ID, first[2].ID},
		},
		{
			name:  "table wide",
			scope: func() store.Scope { return store.Scope{Table: books, Limit: 100} },
			want:  []any{int64(1), int64(2), int64(3), int64(4), int64(5), int64(6)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
				ids, err := tx.IDs(ctx, tt.scope())
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids)

				recs, err := tx.Query(ctx, tt.scope())
				require.NoError(t, err)
				assert.Len(t, recs, len(tt.want))
				return nil
			}))
		})
	}
}

func TestQuery_InvalidScope(t *testing.T) {
	s, _, books := setup(t)
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.IDs(ctx, store.Scope{Table: books, ForeignKey: "shelf_id"})
		return err
	})
	assert.Error(t, err)
}

func TestUpdateAll(t *testing.T) {
	s, _, books := setup(t)
	ctx := context.Background()
	seedBooks(t, s, books, 1, 3)
	actor := int64(42)
	at := fixedNow.Add(time.Hour)

	scope := store.Scope{Table: books, ForeignKey: "shelf_id", OwnerID: int64(1)}
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.UpdateAll(ctx, scope, store.Change{
			Direction: tombstone.Delete,
			At:        at,
			BatchID:   "mass",
			Actor:     &actor,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		recs, err := tx.Query(ctx, scope)
		require.NoError(t, err)
		for _, r := range recs {
			b := r.(*book)
			assert.Equal(t, "mass", b.Batch())
			require.NotNil(t, b.TombstonedAt)
			assert.True(t, at.Equal(*b.TombstonedAt))
			require.NotNil(t, b.TombstonedBy)
			assert.Equal(t, actor, *b.TombstonedBy)
			assert.True(t, at.Equal(b.UpdatedAt))
		}

		n, err := tx.UpdateAll(ctx, scope, store.Change{Direction: tombstone.Restore, At: at})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		recs, err = tx.Query(ctx, scope)
		require.NoError(t, err)
		for _, r := range recs {
			b := r.(*book)
			assert.False(t, b.IsTombstoned())
			assert.NoError(t, b.Invariant())
			require.NotNil(t, b.TombstonedBy)
		}
		return nil
	}))
}

func TestInTx_RollbackDiscardsWrites(t *testing.T) {
	s, shelves, _ := setup(t)
	ctx := context.Background()
	boom := errors.New("boom")
	ran := false

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		tx.AfterCommit(func(context.Context) { ran = true })
		if err := tx.Save(ctx, shelves, &shelf{Label: "lost"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
	assert.Equal(t, 0, s.Len("shelf"))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec := &shelf{Label: "kept"}
		if err := tx.Save(ctx, shelves, rec); err != nil {
			return err
		}
		assert.Equal(t, int64(1), rec.ID)
		return nil
	}))
}

func TestInTx_AfterCommitOrder(t *testing.T) {
	s, shelves, _ := setup(t)
	ctx := context.Background()
	var order []string

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		tx.AfterCommit(func(context.Context) { order = append(order, "first") })
		tx.AfterCommit(func(ctx context.Context) {
			order = append(order, "second")
			// committed data is visible and the store is unlocked
			assert.Equal(t, 1, s.Len("shelf"))
		})
		return tx.Save(ctx, shelves, &shelf{Label: "x"})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestInTx_ClosedTransaction(t *testing.T) {
	s, shelves, _ := setup(t)
	ctx := context.Background()

	var leaked store.Tx
	require.NoError(t, s.InTx(ctx, func(_ context.Context, tx store.Tx) error {
		leaked = tx
		return nil
	}))

	err := leaked.Save(ctx, shelves, &shelf{Label: "late"})
	assert.ErrorIs(t, err, runtime.ErrTransactionClosed)
}

func TestInTx_CanceledContext(t *testing.T) {
	s, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
