package db

import (
	"fmt"
	"strings"
)

// WriteBatchSize is the storage layer's per-batch write limit. Larger
// collections are partitioned into sequential chunks of this size.
const WriteBatchSize = 25

// ItemError records one failed item from a serial fallback pass.
type ItemError struct {
	Index int
	Err   error
}

// BatchError aggregates per-item failures after chunked writes. A chunk
// that fails as a whole is retried item by item; only items that also fail
// individually end up here. The write as a whole is not aborted.
type BatchError struct {
	Items []ItemError
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		msgs = append(msgs, fmt.Sprintf("item %d: %v", it.Index, it.Err))
	}
	return fmt.Sprintf("batch write: %d item(s) failed: %s", len(e.Items), strings.Join(msgs, "; "))
}

// writeChunked partitions items into size-bounded chunks and writes them
// sequentially via batch. When a chunk write fails it falls back to one
// call per item via single, accumulating individual failures rather than
// aborting the remaining chunks. Returns nil when every item landed.
func writeChunked[T any](items []T, size int, batch func([]T) error, single func(T) error) error {
	if len(items) == 0 {
		return nil
	}

	var failed []ItemError
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		if err := batch(chunk); err == nil {
			continue
		}

		// Serial fallback for this chunk only.
		for i, item := range chunk {
			if err := single(item); err != nil {
				failed = append(failed, ItemError{Index: start + i, Err: err})
			}
		}
	}

	if len(failed) > 0 {
		return &BatchError{Items: failed}
	}
	return nil
}
