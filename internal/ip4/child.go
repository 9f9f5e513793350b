package ip4

import (
	"net"
	"sync"

	"github.com/google/gopacket/layers"
)

// ChildState tracks a child's own lifecycle, independent of the service's.
type ChildState int

const (
	ChildUnconfigured ChildState = iota
	ChildConfigured
	ChildDestroying
)

// ChildConfig is the filterable configuration of one consumer instance:
// what it wants to receive and from where.
type ChildConfig struct {
	// ReceiveDisabled marks a send-only child that never wants a copy of
	// inbound traffic. Fan-out otherwise makes a copy of every accepted
	// datagram for each accepting child, which is wasted work for sinks
	// that never read.
	ReceiveDisabled   bool
	AcceptPromiscuous bool
	AcceptIcmpErrors  bool
	AcceptAnyProtocol bool
	DefaultProtocol   layers.IPProtocol
	AcceptBroadcast   bool
	// UseDefaultAddress false means this child is bound to a specific,
	// non-default local address rather than floating on whatever address
	// the interface acquires.
	UseDefaultAddress bool
	Groups            []net.IP
	// ReceiveTimeout is the life, in timer ticks, assigned to every
	// packet enqueued for this child.
	ReceiveTimeout int
}

// DisableReceive returns a ChildConfig with ReceiveDisabled set, for
// constructing a send-only child without touching ReceiveTimeout.
func DisableReceive(cfg ChildConfig) ChildConfig {
	cfg.ReceiveDisabled = true
	return cfg
}

// queuedPacket is one datagram sitting in a child's receive queue, tagged
// with its own remaining life independent of the underlying Packet's.
type queuedPacket struct {
	pkt  *Packet
	life int
}

// RxToken represents one outstanding receive request a consumer has
// registered. Notify is invoked (from the dispatch pass, never inline
// during fan-out) once Wrapper has been filled in.
type RxToken struct {
	Status  Status
	Wrapper *Wrapper
	Notify  func(*RxToken)
}

// Child is one in-process consumer bound to (at most) one interface: its
// own receive queue, its own outstanding receive tokens, and the set of
// wrappers it has been handed but not yet recycled.
type Child struct {
	ID        string
	Interface *Interface
	Config    ChildConfig
	State     ChildState

	receivedQueue []*queuedPacket
	rxTokens      []*RxToken

	deliveredMu sync.Mutex
	delivered   map[*Wrapper]struct{}
}

// NewChild constructs a child in the unconfigured state; callers must set
// State to ChildConfigured before it can receive or accept fan-out.
func NewChild(id string, cfg ChildConfig) *Child {
	return &Child{
		ID:        id,
		Config:    cfg,
		State:     ChildUnconfigured,
		delivered: make(map[*Wrapper]struct{}),
	}
}

// Recv registers tok as an outstanding receive request. If a queued
// datagram is already waiting, the caller is expected to follow up with a
// delivery pass (InstanceDeliverPacket) rather than blocking here.
func (c *Child) Recv(tok *RxToken) Status {
	if c.State != ChildConfigured {
		return StatusNotStarted
	}
	c.rxTokens = append(c.rxTokens, tok)
	return StatusSuccess
}

// tickReceivedQueue ages every queued datagram by one tick, releasing and
// dropping any whose life has expired (Ip4PacketTimerTicking's per-instance
// queue walk).
func (c *Child) tickReceivedQueue() {
	kept := c.receivedQueue[:0]
	for _, qp := range c.receivedQueue {
		qp.life--
		if qp.life <= 0 {
			qp.pkt.Release()
			continue
		}
		kept = append(kept, qp)
	}
	c.receivedQueue = kept
}
