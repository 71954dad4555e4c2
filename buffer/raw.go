// Package buffer implements the opaque byte containers and the
// vectored-send aggregator: a contiguous owned buffer, a read-only
// string view, a UDP destination-tagged payload, and the
// SendAggregator that batches payloads for a writev(2)-style flush.
package buffer

// Raw is an owned, contiguous byte buffer whose capacity is always at
// least size+1, keeping a byte of null-terminator headroom (useful
// when a Raw's bytes are handed to C-string-expecting code; harmless
// otherwise).
type Raw struct {
	data []byte
}

// NewRaw allocates a Raw with the given initial capacity.
func NewRaw(capacity int) *Raw {
	r := &Raw{}
	r.SetCapacity(capacity)
	return r
}

// SetCapacity reallocates only if the requested capacity exceeds the
// current one, or the current one is more than double what's
// requested — otherwise the existing backing array is reused.
func (r *Raw) SetCapacity(n int) {
	cur := cap(r.data)
	if n+1 <= cur && cur <= 2*(n+1) {
		return
	}
	size := len(r.data)
	if size > n {
		size = n
	}
	fresh := make([]byte, size, n+1)
	copy(fresh, r.data[:size])
	r.data = fresh
}

// Assign copies n bytes from p into the buffer, growing capacity as
// needed. n == 0 means "compute length via a NUL terminator" —
// callers with binary payloads must pass an explicit n.
func (r *Raw) Assign(p []byte, n int) {
	if n == 0 {
		n = 0
		for n < len(p) && p[n] != 0 {
			n++
		}
	}
	r.SetCapacity(n)
	r.data = r.data[:n]
	copy(r.data, p[:n])
}

// Bytes returns the current contents.
func (r *Raw) Bytes() []byte { return r.data }

// Len reports the current size.
func (r *Raw) Len() int { return len(r.data) }

// Reset truncates to zero length without releasing capacity.
func (r *Raw) Reset() { r.data = r.data[:0] }
