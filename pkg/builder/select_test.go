package builder

import (
	"testing"
	"time"

	"github.com/marshallshelly/pebble-tombstone/pkg/registry"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

type TestVariant struct {
	tombstone.State
	ID        int64     `po:"id,primaryKey,bigserial"`
	ProductID int64     `po:"product_id,bigint,notNull"`
	SKU       string    `po:"sku,varchar(64),notNull"`
	CreatedAt time.Time `po:"created_at,timestamptz,notNull,default(NOW())"`
}

func variantTable(t *testing.T) *schema.TableMetadata {
	t.Helper()
	table, err := registry.NewRegistry().GetOrRegister(TestVariant{})
	if err != nil {
		t.Fatalf("Failed to register model: %v", err)
	}
	return table
}

func TestSelectQuery_ToSQL(t *testing.T) {
	table := variantTable(t)
	db := New(nil) // Nil querier for SQL generation tests

	tests := []struct {
		name       string
		setupQuery func() *SelectQuery
		wantSQL    string
		wantArgLen int
		wantErr    bool
	}{
		{
			name: "simple select all",
			setupQuery: func() *SelectQuery {
				return Select(db, table)
			},
			wantSQL:    "SELECT * FROM test_variant",
			wantArgLen: 0,
		},
		{
			name: "select specific columns",
			setupQuery: func() *SelectQuery {
				return Select(db, table).Columns("id", "sku")
			},
			wantSQL:    "SELECT id, sku FROM test_variant",
			wantArgLen: 0,
		},
		{
			name: "live dependents of an owner",
			setupQuery: func() *SelectQuery {
				return Select(db, table).
					Where(Eq("product_id", int64(1))).
					Where(IsNull("tombstoned_at")).
					OrderByAsc("id")
			},
			wantSQL:    "SELECT * FROM test_variant WHERE product_id = $1 AND tombstoned_at IS NULL ORDER BY id ASC",
			wantArgLen: 1,
		},
		{
			name: "batch members with limit",
			setupQuery: func() *SelectQuery {
				return Select(db, table).
					Where(Eq("batch_id", "b-1")).
					OrderByAsc("id").
					Limit(1000)
			},
			wantSQL:    "SELECT * FROM test_variant WHERE batch_id = $1 ORDER BY id ASC LIMIT 1000",
			wantArgLen: 1,
		},
		{
			name: "batch summary",
			setupQuery: func() *SelectQuery {
				return Select(db, table).
					Columns("batch_id", "COUNT(*)", "MIN(tombstoned_at)").
					Where(IsNotNull("tombstoned_at")).
					GroupBy("batch_id").
					OrderByDesc("MIN(tombstoned_at)")
			},
			wantSQL:    "SELECT batch_id, COUNT(*), MIN(tombstoned_at) FROM test_variant WHERE tombstoned_at IS NOT NULL GROUP BY batch_id ORDER BY MIN(tombstoned_at) DESC",
			wantArgLen: 0,
		},
		{
			name: "ids with ANY",
			setupQuery: func() *SelectQuery {
				return Select(db, table).
					Where(Any("id", []int64{3, 1, 2})).
					OrderByAsc("id")
			},
			wantSQL:    "SELECT * FROM test_variant WHERE id = ANY($1) ORDER BY id ASC",
			wantArgLen: 1,
		},
		{
			name: "locked row by primary key",
			setupQuery: func() *SelectQuery {
				return Select(db, table).
					Where(Eq("id", int64(4))).
					ForUpdate()
			},
			wantSQL:    "SELECT * FROM test_variant WHERE id = $1 FOR UPDATE",
			wantArgLen: 1,
		},
		{
			name: "missing table",
			setupQuery: func() *SelectQuery {
				return Select(db, nil)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.setupQuery().ToSQL()

			if (err != nil) != tt.wantErr {
				t.Fatalf("ToSQL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if sql != tt.wantSQL {
				t.Errorf("ToSQL() sql = %v, want %v", sql, tt.wantSQL)
			}

			if len(args) != tt.wantArgLen {
				t.Errorf("ToSQL() args length = %v, want %v", len(args), tt.wantArgLen)
			}
		})
	}
}
