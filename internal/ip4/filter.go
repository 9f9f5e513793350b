package ip4

import (
	"net"

	"github.com/google/gopacket/layers"
)

// icmpErrorTypes are the ICMPv4 message types that carry a quoted original
// IP header (destination unreachable, source quench, redirect, time
// exceeded, parameter problem) — the types Ip4InstanceFrameAcceptable peeks
// through to recover the protocol the error was actually about.
var icmpErrorTypes = map[byte]bool{
	3:  true, // destination unreachable
	4:  true, // source quench
	5:  true, // redirect
	11: true, // time exceeded
	12: true, // parameter problem
}

// icmpEmbeddedProtocol reads the protocol field of the IP header quoted
// inside an ICMPv4 error payload (8-byte ICMP header, then the offending
// IP header starting at its own byte 9).
func icmpEmbeddedProtocol(payload []byte) (layers.IPProtocol, bool) {
	const icmpHeaderLen = 8
	const embeddedProtoOffset = icmpHeaderLen + 9
	if len(payload) <= embeddedProtoOffset {
		return 0, false
	}
	return layers.IPProtocol(payload[embeddedProtoOffset]), true
}

// accepts runs the acceptor filter for this child: a strictly ordered set
// of gates, each of which can reject the datagram outright.
func (c *Child) accepts(hdr Header, pkt *Packet) bool {
	if c.Config.ReceiveDisabled {
		return false
	}
	if c.Config.AcceptPromiscuous {
		return true
	}

	proto := hdr.Protocol
	if proto == layers.IPProtocolICMPv4 {
		payload := pkt.Payload()
		if len(payload) > 0 && icmpErrorTypes[payload[0]] {
			if !c.Config.AcceptIcmpErrors {
				return false
			}
			if embedded, ok := icmpEmbeddedProtocol(payload); ok {
				proto = embedded
			}
		}
	}

	if !c.Config.AcceptAnyProtocol && proto != c.Config.DefaultProtocol {
		return false
	}

	switch pkt.Info.CastType {
	case CastLocalBroadcast, CastSubnetBroadcast:
		return c.Config.AcceptBroadcast
	case CastMulticast:
		// A child bound to a specific, non-default address whose interface
		// itself has no address configured yet accepts any multicast
		// datagram, since it can't yet know which groups it should filter on.
		if !c.Config.UseDefaultAddress && (c.Interface == nil || c.Interface.Address == nil || c.Interface.Address.IsUnspecified()) {
			return true
		}
		return containsGroup(c.Config.Groups, hdr.DstIP)
	default:
		return true
	}
}

func containsGroup(groups []net.IP, dst net.IP) bool {
	for _, g := range groups {
		if g.Equal(dst) {
			return true
		}
	}
	return false
}
