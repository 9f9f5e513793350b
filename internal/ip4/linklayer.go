package ip4

import "context"

// FrameReceiver is the down-facing link-layer dependency: something that
// delivers raw Ethernet-payload frames (an IP datagram's bytes, header
// through trailer) to a callback, one at a time, re-arming only when asked.
// AcceptFrame calls Receive again itself after each frame, so FrameReceiver
// need only implement a single-shot receive.
type FrameReceiver interface {
	// Receive blocks until one frame is available (or ctx is done) and
	// invokes cb with its bytes, any I/O error, and a link-flag bitmask
	// (e.g. "received on a promiscuous socket").
	Receive(ctx context.Context, cb FrameCallback) error
}

// FrameCallback is invoked once per received frame. cb takes ownership of
// raw: the caller must not reuse or mutate it afterward.
type FrameCallback func(raw []byte, ioErr error, linkFlag uint32)

// OptionValidator validates an IPv4 header's options bytes; its
// implementation lives outside this package.
type OptionValidator interface {
	Valid(options []byte, quoteOnFailure bool) bool
}

// ProtocolHandler is invoked for protocols the core dispatches by tag but
// does not itself parse (ICMP, IGMP) — an upper-layer collaborator gets a
// look at the datagram instead of ordinary fan-out. Handle takes ownership
// of pkt: it must call pkt.Release() itself, directly or by passing it on
// to Demultiplex.
type ProtocolHandler interface {
	Handle(svc *Service, hdr Header, pkt *Packet)
}
