package l2

// ChunkAssembler concatenates multi-chunk response payloads into a
// caller-provided buffer. The cursor is explicit; one assembler lives
// for exactly one chunked exchange.
type ChunkAssembler struct {
	dst     []byte
	written int
}

// NewChunkAssembler creates an assembler writing into dst.
func NewChunkAssembler(dst []byte) *ChunkAssembler {
	return &ChunkAssembler{dst: dst}
}

// Append copies one chunk payload. Returns ErrResponseOverflow if the
// destination cannot hold it; the destination is left untouched in
// that case.
func (a *ChunkAssembler) Append(chunk []byte) error {
	if a.written+len(chunk) > len(a.dst) {
		return ErrResponseOverflow
	}
	copy(a.dst[a.written:], chunk)
	a.written += len(chunk)
	return nil
}

// Len returns the number of bytes assembled so far.
func (a *ChunkAssembler) Len() int {
	return a.written
}

// Bytes returns the assembled payload as a view over the destination
// buffer.
func (a *ChunkAssembler) Bytes() []byte {
	return a.dst[:a.written]
}
