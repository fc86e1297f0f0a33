package loader

// span is the half-open record range [start, end) of one batch.
type span struct {
	start, end int
}

// partition splits total records into consecutive spans of size; only the last
// may be shorter.
func partition(total, size int) []span {
	if total <= 0 || size <= 0 {
		return nil
	}
	spans := make([]span, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		spans = append(spans, span{start: start, end: min(start+size, total)})
	}
	return spans
}
