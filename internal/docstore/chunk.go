package docstore

// Chunk splits items into consecutive slices of at most size elements.
// The returned slices share the backing array of items.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// ValidateFilters checks store-wide query limits.
func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if f.Op != OpIn {
			continue
		}
		values, ok := f.Value.([]string)
		if ok && len(values) > MaxInValues {
			return ErrTooManyInValues
		}
	}
	return nil
}
