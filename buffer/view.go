package buffer

import "net"

// StringView is a read-only view into an owned string, with an
// offset/size window — the Go analogue of BufferString, avoiding a copy when a payload is already backed by an
// immutable string.
type StringView struct {
	owner  string
	offset int
	size   int
}

// NewStringView wraps s entirely.
func NewStringView(s string) StringView {
	return StringView{owner: s, offset: 0, size: len(s)}
}

// Bytes materializes the view's window as a byte slice (one copy,
// same cost a []byte(string) conversion would pay).
func (v StringView) Bytes() []byte { return []byte(v.owner[v.offset : v.offset+v.size]) }

// Len reports the view's window size.
func (v StringView) Len() int { return v.size }

// Slice returns the sub-view of the current window starting at from,
// sharing the owner string without copying.
func (v StringView) Slice(from int) StringView {
	return StringView{owner: v.owner, offset: v.offset + from, size: v.size - from}
}

// SockMsg pairs a payload with a destination address for a UDP send
// where each payload may target a different peer. The socket package's
// send path does not use it; it keeps the address in its own pending
// write entries.
type SockMsg struct {
	Payload []byte
	Addr    net.Addr
}
