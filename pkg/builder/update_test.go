package builder

import (
	"testing"
	"time"
)

func TestUpdateQuery_ToSQL(t *testing.T) {
	table := variantTable(t)
	db := New(nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		setupQuery func() *UpdateQuery
		wantSQL    string
		wantArgLen int
		wantErr    bool
	}{
		{
			name: "update single column",
			setupQuery: func() *UpdateQuery {
				return Update(db, table).Set("sku", "A-1")
			},
			wantSQL:    "UPDATE test_variant SET sku = $1",
			wantArgLen: 1,
		},
		{
			name: "mass tombstone of dependents",
			setupQuery: func() *UpdateQuery {
				return Update(db, table).
					Set("tombstoned_at", at).
					Set("batch_id", "b-1").
					Set("tombstoned_by_id", int64(9)).
					Where(Eq("product_id", int64(1)))
			},
			wantSQL:    "UPDATE test_variant SET tombstoned_at = $1, batch_id = $2, tombstoned_by_id = $3 WHERE product_id = $4",
			wantArgLen: 4,
		},
		{
			name: "mass restore by batch",
			setupQuery: func() *UpdateQuery {
				return Update(db, table).
					Set("tombstoned_at", nil).
					Set("batch_id", nil).
					Where(Eq("product_id", int64(1))).
					Where(Eq("batch_id", "b-1"))
			},
			wantSQL:    "UPDATE test_variant SET tombstoned_at = $1, batch_id = $2 WHERE product_id = $3 AND batch_id = $4",
			wantArgLen: 4,
		},
		{
			name: "repeated set keeps position",
			setupQuery: func() *UpdateQuery {
				return Update(db, table).
					Set("sku", "A").
					Set("product_id", int64(2)).
					Set("sku", "B")
			},
			wantSQL:    "UPDATE test_variant SET sku = $1, product_id = $2",
			wantArgLen: 2,
		},
		{
			name: "returning",
			setupQuery: func() *UpdateQuery {
				return Update(db, table).
					Set("batch_id", "b").
					Where(Eq("id", 1)).
					Returning("id")
			},
			wantSQL:    "UPDATE test_variant SET batch_id = $1 WHERE id = $2 RETURNING id",
			wantArgLen: 2,
		},
		{
			name: "update without SET",
			setupQuery: func() *UpdateQuery {
				return Update(db, table).Where(Eq("id", 1))
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

	t.Run("repeated set keeps last value", func(t *testing.T) {
		_, args, err := Update(db, table).Set("sku", "A").Set("sku", "B").ToSQL()
		if err != nil {
			t.Fatalf("ToSQL() error = %v", err)
		}
		if args[0] != "B" {
			t.Errorf("expected last value B, got %v", args[0])
		}
	})
}
