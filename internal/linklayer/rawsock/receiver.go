// Package rawsock adapts golang.org/x/net/ipv4's RawConn into an
// ip4.FrameReceiver for hosts (or test environments) without AF_PACKET,
// reading whole IP datagrams directly off an IP_HDRINCL raw socket.
package rawsock

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"ip4core.dev/ip4core/internal/ip4"
)

// Receiver reads raw IPv4 datagrams from a bound network address, re-
// marshaling the header x/net/ipv4 parsed so the core sees a byte stream
// identical in shape to what AcceptFrame expects off the wire.
type Receiver struct {
	conn *ipv4.RawConn
	buf  []byte
}

// NewReceiver opens a raw IP socket on addr (e.g. "0.0.0.0" to receive
// every protocol, or a specific local address) and wraps it for reading.
func NewReceiver(addr string) (*Receiver, error) {
	packetConn, err := net.ListenPacket("ip4:ip", addr)
	if err != nil {
		return nil, fmt.Errorf("rawsock: listen: %w", err)
	}
	rawConn, err := ipv4.NewRawConn(packetConn)
	if err != nil {
		packetConn.Close()
		return nil, fmt.Errorf("rawsock: raw conn: %w", err)
	}
	return &Receiver{conn: rawConn, buf: make([]byte, 65535)}, nil
}

// Receive reads one datagram, reassembles its wire bytes (header then
// payload) from the parsed ipv4.Header and payload x/net/ipv4 hands back,
// and passes them to cb.
func (r *Receiver) Receive(ctx context.Context, cb ip4.FrameCallback) error {
	header, payload, _, err := r.conn.ReadFrom(r.buf)
	if err != nil {
		cb(nil, err, 0)
		return nil
	}

	raw, err := header.Marshal()
	if err != nil {
		cb(nil, err, 0)
		return nil
	}
	frame := append(raw, payload...)
	cb(frame, nil, 0)
	return nil
}

// Close releases the underlying raw socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
