package transaction

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// BatchItemError reports one failed item by its index in the input slice.
type BatchItemError struct {
	Index int
	Err   string
}

type BatchResult struct {
	Successful int
	Failed     int
	Total      int
	Errors     []BatchItemError
}

// ExecuteBatch partitions items into chunks of batchSize and processes each
// chunk inside one atomic transaction. With rollbackOnPartialFailure, a
// single item failure rolls back its entire chunk and the chunk is reported
// as fully failed; without it, failed items are rolled back to a savepoint
// individually and the chunk commits whatever succeeded.
func ExecuteBatch[T any](ctx context.Context, m *Manager, items []T, batchSize int, handler func(tx *gorm.DB, item T) error, rollbackOnPartialFailure bool) (BatchResult, error) {
	result := BatchResult{Total: len(items)}
	if len(items) == 0 {
		return result, nil
	}
	if batchSize <= 0 {
		batchSize = len(items)
	}

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		if rollbackOnPartialFailure {
			err := m.RunAtomic(ctx, func(tx *gorm.DB) error {
				for i, item := range chunk {
					if err := handler(tx, item); err != nil {
						return fmt.Errorf("item %d: %w", start+i, err)
					}
				}
				return nil
			})
			if err != nil {
				// all-or-nothing per chunk: successes are undone too
				result.Failed += len(chunk)
				result.Errors = append(result.Errors, BatchItemError{Index: start, Err: err.Error()})
				continue
			}
			result.Successful += len(chunk)
			continue
		}

		var chunkErrors []BatchItemError
		succeeded := 0
		err := m.RunAtomic(ctx, func(tx *gorm.DB) error {
			for i, item := range chunk {
				savepoint := fmt.Sprintf("batch_item_%d", start+i)
				tx.SavePoint(savepoint)
				if err := handler(tx, item); err != nil {
					tx.RollbackTo(savepoint)
					chunkErrors = append(chunkErrors, BatchItemError{Index: start + i, Err: err.Error()})
					continue
				}
				succeeded++
			}
			return nil
		})
		if err != nil {
			// the chunk transaction itself failed; nothing committed
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, BatchItemError{Index: start, Err: err.Error()})
			continue
		}
		result.Successful += succeeded
		result.Failed += len(chunkErrors)
		result.Errors = append(result.Errors, chunkErrors...)
	}

	return result, nil
}
