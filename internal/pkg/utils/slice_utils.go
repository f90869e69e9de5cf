package utils

// Batch splits items into consecutive chunks of at most size elements.
// A non-positive size yields a single batch.
func Batch[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return [][]T{}
	}
	if size <= 0 {
		size = len(items)
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}
