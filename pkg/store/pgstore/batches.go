package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/marshallshelly/pebble-tombstone/pkg/builder"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

// BatchSummary describes the records of one table that share a batch id.
type BatchSummary struct {
	BatchID string    `json:"batch_id"`
	Count   int64     `json:"count"`
	First   time.Time `json:"first_tombstoned_at"`
	Last    time.Time `json:"last_tombstoned_at"`
}

// Batches lists the batches currently tombstoned in table, most recent
// first.
func (s *Store) Batches(ctx context.Context, table *schema.TableMetadata) ([]BatchSummary, error) {
	if !table.HasTombstoneColumns() {
		return nil, fmt.Errorf("table %s has no tombstone columns", table.Name)
	}

	q := builder.Select(builder.New(s.db.Pool()), table).
		Columns(
			schema.ColumnBatchID,
			"COUNT(*)",
			"MIN("+schema.ColumnTombstonedAt+")",
			"MAX("+schema.ColumnTombstonedAt+")",
		).
		Where(builder.IsNotNull(schema.ColumnBatchID)).
		GroupBy(schema.ColumnBatchID).
		OrderByDesc("MAX(" + schema.ColumnTombstonedAt + ")")

	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.BatchID, &b.Count, &b.First, &b.Last); err != nil {
			return nil, fmt.Errorf("failed to scan batch summary: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
