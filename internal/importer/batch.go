package importer

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/exportappend/internal/store"
)

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 250

// Batch is a contiguous run of rows inserted by one statement.
type Batch struct {
	Index  int // 0-based
	Offset int // index of the first row in the full row set
	Rows   []Row
}

// MakeBatches splits rows into consecutive batches of at most size rows,
// preserving order. A non-positive size uses DefaultBatchSize.
func MakeBatches(rows []Row, size int) []Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([]Batch, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, Batch{
			Index:  len(batches),
			Offset: start,
			Rows:   rows[start:end],
		})
	}
	return batches
}

// batchHook is told about every batch attempt; inserted is the running total
// after the batch.
type batchHook func(b Batch, inserted int, elapsed time.Duration, err error)

// insertBatches inserts batches one at a time and stops at the first failure.
// Batches that already committed stay committed; the returned count covers
// them.
func insertBatches(ctx context.Context, ins store.Inserter, schema TableSchema, batches []Batch, logger *slog.Logger, hook batchHook) (int, error) {
	inserted := 0
	for _, b := range batches {
		cells := make([][]store.Cell, len(b.Rows))
		for i, r := range b.Rows {
			cells[i] = r
		}

		start := time.Now()
		n, err := ins.InsertRows(ctx, schema.Table, schema.Columns, cells)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("batch insert failed",
				"batch", b.Index,
				"offset", b.Offset,
				"rows", len(b.Rows),
				"first_row", store.Name(schema.Columns, b.Rows[0]),
				"error", err,
			)
			if hook != nil {
				hook(b, inserted, elapsed, err)
			}
			return inserted, &Error{
				Kind:  ErrInsertFailure,
				Table: schema.Table,
				Row:   b.Offset + 1,
				Err:   err,
			}
		}

		if n != int64(len(b.Rows)) {
			logger.Debug("driver reported a different affected-row count",
				"batch", b.Index, "rows", len(b.Rows), "affected", n)
		}
		inserted += len(b.Rows)
		logger.Debug("batch inserted", "batch", b.Index, "rows", len(b.Rows), "inserted", inserted)
		if hook != nil {
			hook(b, inserted, elapsed, nil)
		}
	}
	return inserted, nil
}
