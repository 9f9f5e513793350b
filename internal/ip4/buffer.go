package ip4

import "sync/atomic"

// fragmentView is one contiguous slice backing a reassembled (or
// single-fragment) datagram. A completed datagram keeps its fragments as
// separate views rather than flattening them into one buffer: the view
// table is sized to the number of underlying blocks the datagram was built
// from, not collapsed to a single copy.
type fragmentView struct {
	data []byte
}

// datagramStore is the shared backing store for a finished datagram. Every
// Packet returned by Clone shares the same *datagramStore and therefore the
// same refcount; Duplicate breaks away into a private store of its own.
type datagramStore struct {
	fragments []fragmentView
	refcount  int32
	// onRelease runs exactly once, when the last reference is released.
	// It stands in for Ip4OnFreeFragments: releasing the datagram's
	// backing store also releases the assembly entry it came from.
	onRelease func()
}

func newDatagramStore(fragments []fragmentView, onRelease func()) *datagramStore {
	return &datagramStore{fragments: fragments, refcount: 1, onRelease: onRelease}
}

func (s *datagramStore) retain() {
	atomic.AddInt32(&s.refcount, 1)
}

// release drops one reference and fires onRelease once the count reaches
// zero. Returns whether this call was the one that freed the store.
func (s *datagramStore) release() bool {
	if atomic.AddInt32(&s.refcount, -1) == 0 {
		if s.onRelease != nil {
			s.onRelease()
		}
		return true
	}
	return false
}

func (s *datagramStore) isShared() bool {
	return atomic.LoadInt32(&s.refcount) > 1
}

func (s *datagramStore) payloadLen() int {
	n := 0
	for _, f := range s.fragments {
		n += len(f.data)
	}
	return n
}

// Packet is a finished, deliverable IPv4 datagram: a parsed header, its
// clip-info, and a view over a (possibly shared) datagramStore. Cloning a
// Packet shares the store and bumps its refcount; Duplicating a Packet
// copies the bytes into a brand new, unshared store.
type Packet struct {
	store  *datagramStore
	Header Header
	Info   ClipInfo
}

func wrapDatagram(hdr Header, info ClipInfo, fragments []fragmentView, onRelease func()) *Packet {
	return &Packet{store: newDatagramStore(fragments, onRelease), Header: hdr, Info: info}
}

// IsShared reports whether more than one consumer currently holds a
// reference to this datagram's backing store.
func (p *Packet) IsShared() bool {
	return p.store.isShared()
}

// Clone returns a new Packet sharing the same backing store, incrementing
// its refcount. Used when fanning a datagram out to more than one child.
func (p *Packet) Clone() *Packet {
	p.store.retain()
	return &Packet{store: p.store, Header: p.Header, Info: p.Info}
}

// Duplicate copies this datagram's bytes into a private, contiguous,
// unshared buffer. Used when delivering a datagram that is still shared
// with another child: the copy happens here, never implicitly on Clone.
func (p *Packet) Duplicate() *Packet {
	data := make([]byte, 0, p.store.payloadLen())
	for _, f := range p.store.fragments {
		data = append(data, f.data...)
	}
	return &Packet{
		store:  newDatagramStore([]fragmentView{{data: data}}, nil),
		Header: p.Header,
		Info:   p.Info,
	}
}

// Payload returns the datagram's payload bytes. If the datagram has more
// than one backing fragment, this concatenates them on every call; prefer
// FragmentTable for zero-copy access to the underlying views.
func (p *Packet) Payload() []byte {
	if len(p.store.fragments) == 1 {
		return p.store.fragments[0].data
	}
	out := make([]byte, 0, p.store.payloadLen())
	for _, f := range p.store.fragments {
		out = append(out, f.data...)
	}
	return out
}

// FragmentTable returns the datagram's backing fragments as a zero-copy
// view, one slice per underlying block.
func (p *Packet) FragmentTable() [][]byte {
	out := make([][]byte, len(p.store.fragments))
	for i, f := range p.store.fragments {
		out[i] = f.data
	}
	return out
}

// Release drops this Packet's reference to its backing store. Once the
// last reference anywhere is released, the store's onRelease hook fires.
func (p *Packet) Release() {
	p.store.release()
}
