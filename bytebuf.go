package httpcore

import (
	"github.com/valyala/bytebufferpool"
)

var bufferPool bytebufferpool.Pool

// ownedBuffer is a contiguous run of bytes produced by the network
// layer, handed into a BodyConduit, and consumed exactly once by
// either the pull reader or the installed listener (spec.md §3).
//
// Grounded on fasthttp's bytebuffer.go/streaming.go pooling
// discipline: the backing storage is a pooled *bytebufferpool.
// ByteBuffer, acquired when the parser copies body bytes out of the
// network-supplied slice and released once the consumer has fully
// drained it.
type ownedBuffer struct {
	bb  *bytebufferpool.ByteBuffer
	pos int
}

// newOwnedBuffer copies src into a freshly pooled buffer. The parser
// never retains a reference into the network layer's slice past the
// Offer call that produced it, so every owned buffer is an
// independent copy.
func newOwnedBuffer(src []byte) *ownedBuffer {
	bb := bufferPool.Get()
	bb.B = append(bb.B[:0], src...)
	return &ownedBuffer{bb: bb}
}

func (b *ownedBuffer) len() int {
	return len(b.bb.B) - b.pos
}

func (b *ownedBuffer) bytes() []byte {
	return b.bb.B[b.pos:]
}

// advance marks n bytes as consumed.
func (b *ownedBuffer) advance(n int) {
	b.pos += n
}

// release returns the backing storage to the pool. Must only be
// called once the buffer is fully drained and will not be read again.
func (b *ownedBuffer) release() {
	bufferPool.Put(b.bb)
	b.bb = nil
}

// growBuffer grows a scratch []byte to at least the requested
// capacity using the platform-width-aware power-of-two rounding
// fasthttp uses for its read buffers (round2_32.go/round2_64.go),
// rather than append's default doubling, to keep scratch-buffer
// growth predictable across header-block reassembly.
func growBuffer(buf []byte, needed int) []byte {
	if cap(buf) >= needed {
		return buf
	}
	n := roundUpForSliceCap(needed)
	grown := make([]byte, len(buf), n)
	copy(grown, buf)
	return grown
}
