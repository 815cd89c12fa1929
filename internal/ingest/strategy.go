package ingest

// Strategy is how a batch of transactions is written.
type Strategy int

const (
	// Serial writes one record at a time.
	Serial Strategy = iota
	// ChunkedAtomic runs one pass of the chunked atomic writer.
	ChunkedAtomic
	// BoundedParallel runs several chunked writers in bounded waves.
	BoundedParallel
)

const (
	// SerialThreshold is the largest batch written serially.
	SerialThreshold = 50
	// ChunkedThreshold is the largest batch written by a single chunked pass.
	ChunkedThreshold = 500
)

func (s Strategy) String() string {
	switch s {
	case Serial:
		return "serial"
	case ChunkedAtomic:
		return "chunked-atomic"
	case BoundedParallel:
		return "bounded-parallel"
	}
	return "unknown"
}

// MarshalText lets the strategy appear by name in JSON responses.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SelectStrategy picks a strategy from the batch size alone.
func SelectStrategy(n int) Strategy {
	switch {
	case n <= SerialThreshold:
		return Serial
	case n <= ChunkedThreshold:
		return ChunkedAtomic
	default:
		return BoundedParallel
	}
}
