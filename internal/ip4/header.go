package ip4

import (
	"github.com/google/gopacket/layers"
)

// MinHeaderLen is the minimum on-wire IPv4 header length, in bytes.
const MinHeaderLen = 20

// MaxDatagramLen is the largest value a reassembled datagram's end offset
// may legally take; anything that would overflow it is malformed.
const MaxDatagramLen = 65535

// Header is the parsed, host-order datagram header. gopacket/layers decodes
// straight into host-order Go fields, so the "host order after ingress"
// contract falls out of using *layers.IPv4 directly rather than a
// hand-rolled wire struct.
type Header = *layers.IPv4

// headerLen returns the header length in bytes (IHL is counted in 4-byte
// words on the wire).
func headerLen(h Header) int {
	return int(h.IHL) * 4
}

// totalLen returns the datagram's declared total length, header and
// payload, in bytes.
func totalLen(h Header) int {
	return int(h.Length)
}

// fragOffset returns the fragment offset in bytes (the wire field counts
// 8-byte units).
func fragOffset(h Header) int {
	return int(h.FragOffset) * 8
}

func moreFragments(h Header) bool {
	return h.Flags&layers.IPv4MoreFragments != 0
}

func dontFragment(h Header) bool {
	return h.Flags&layers.IPv4DontFragment != 0
}
