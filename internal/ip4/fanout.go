package ip4

import (
	"net"

	"github.com/google/gopacket/layers"
)

// Classifier supplies the address-relative classification the core does
// not implement itself: given a datagram's destination/source, decide its
// cast type relative to an interface's bound address, subnet and multicast
// membership. Its implementation lives outside this package.
type Classifier interface {
	// Classify computes the global cast type for a freshly validated
	// datagram, before any interface-local recompute.
	Classify(dst, src net.IP) CastType
	// NetClassify recomputes cast type relative to one interface's own
	// bound address and subnet.
	NetClassify(dst net.IP, iface *Interface) CastType
}

// Interface is one network interface, owning the children that receive on
// it. Configured gates whether it participates in fan-out at all (an
// interface can be added but administratively down); Address, separately,
// may be unset (unspecified) even on a configured interface — that's the
// "no bound address yet" state the acceptor filter and cast-type
// recompute both check for explicitly.
type Interface struct {
	Name        string
	Address     net.IP
	Configured  bool
	PromiscRecv bool
	Children    []*Child
}

// Wrapper is the datagram handed to a consumer: header, options and
// payload view, plus bookkeeping to recycle the backing Packet exactly
// once (Ip4WrapRxData).
type Wrapper struct {
	Header        Header
	Options       []layers.IPv4Option
	PayloadLength int
	Fragments     [][]byte
	Status        Status

	child *Child
	pkt   *Packet
}

// Recycle releases the wrapper's backing Packet and removes it from its
// child's delivered set. Consumers must call this exactly once per
// Wrapper they receive.
func (w *Wrapper) Recycle() {
	w.child.deliveredMu.Lock()
	delete(w.child.delivered, w)
	w.child.deliveredMu.Unlock()
	w.pkt.Release()
}

func buildWrapper(c *Child, pkt *Packet) *Wrapper {
	return &Wrapper{
		Header:        pkt.Header,
		Options:       pkt.Header.Options,
		PayloadLength: pkt.store.payloadLen(),
		Fragments:     pkt.FragmentTable(),
		Status:        pkt.Info.Status,
		child:         c,
		pkt:           pkt,
	}
}

// Demultiplex is the two-pass fan-out entry point (Ip4Demultiplex): every
// configured interface gets a chance to recompute the datagram's local
// cast type and enqueue it onto its children in pass one; pass two then
// runs a delivery attempt for every child of every configured interface. The core's
// own reference to pkt is always released exactly once.
func Demultiplex(svc *Service, hdr Header, pkt *Packet) Status {
	touched := 0
	for _, iface := range svc.Interfaces {
		if !iface.Configured {
			continue
		}
		touched += enqueueOnInterface(svc, iface, hdr, pkt)
	}
	pkt.Release()

	if touched == 0 {
		return StatusNotFound
	}

	for _, iface := range svc.Interfaces {
		if !iface.Configured {
			continue
		}
		for _, child := range iface.Children {
			InstanceDeliverPacket(svc, child)
		}
	}
	return StatusSuccess
}

func enqueueOnInterface(svc *Service, iface *Interface, hdr Header, pkt *Packet) int {
	local := computeLocalCast(hdr, pkt.Info.CastType, iface, svc.Classifier)
	if local == CastNone {
		return 0
	}

	saved := pkt.Info.CastType
	pkt.Info.CastType = local
	count := 0
	for _, child := range iface.Children {
		if InstanceEnqueuePacket(child, hdr, pkt) == StatusSuccess {
			count++
		}
	}
	pkt.Info.CastType = saved
	return count
}

// computeLocalCast recomputes a datagram's cast type relative to one
// interface: multicast and local-broadcast carry through as-is, everything
// else is reclassified against the interface's own bound address, falling
// back to promiscuous capture when the interface requests it.
func computeLocalCast(hdr Header, global CastType, iface *Interface, classifier Classifier) CastType {
	if global == CastMulticast || global == CastLocalBroadcast {
		return global
	}
	if iface.Address == nil || iface.Address.IsUnspecified() {
		return CastUnicast
	}
	nc := classifier.NetClassify(hdr.DstIP, iface)
	if nc == CastNone && iface.PromiscRecv {
		return CastPromiscuous
	}
	return nc
}

// InstanceEnqueuePacket runs the acceptor filter for one child and, if it
// accepts, clones the shared datagram onto the child's receive queue
// (Ip4InstanceEnquePacket).
func InstanceEnqueuePacket(child *Child, hdr Header, pkt *Packet) Status {
	if child.State != ChildConfigured {
		return StatusNotStarted
	}
	if !child.accepts(hdr, pkt) {
		return StatusInvalidParameter
	}
	clone := pkt.Clone()
	child.receivedQueue = append(child.receivedQueue, &queuedPacket{pkt: clone, life: child.Config.ReceiveTimeout})
	return StatusSuccess
}

// InstanceDeliverPacket matches queued datagrams against outstanding
// receive tokens for one child, wrapping each match (duplicating only if
// still shared) and queuing its notification onto the service's dispatch
// list rather than calling it inline (Ip4InstanceDeliverPacket).
func InstanceDeliverPacket(svc *Service, child *Child) Status {
	for len(child.receivedQueue) > 0 && len(child.rxTokens) > 0 {
		qp := child.receivedQueue[0]
		child.receivedQueue = child.receivedQueue[1:]

		var wrapped *Packet
		if qp.pkt.IsShared() {
			wrapped = qp.pkt.Duplicate()
			qp.pkt.Release()
		} else {
			wrapped = qp.pkt
		}

		wrap := buildWrapper(child, wrapped)

		child.deliveredMu.Lock()
		child.delivered[wrap] = struct{}{}
		child.deliveredMu.Unlock()

		tok := child.rxTokens[0]
		child.rxTokens = child.rxTokens[1:]
		tok.Status = StatusSuccess
		tok.Wrapper = wrap

		svc.dispatch = append(svc.dispatch, func() {
			if tok.Notify != nil {
				tok.Notify(tok)
			}
		})
	}
	return StatusSuccess
}
