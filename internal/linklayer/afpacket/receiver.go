// Package afpacket adapts gopacket/afpacket's TPacket ring-buffer capture
// into an ip4.FrameReceiver, stripping the Ethernet (and, if present, VLAN)
// header so the core only ever sees an IPv4 datagram's own bytes.
package afpacket

import (
	"context"
	"fmt"
	"os"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"ip4core.dev/ip4core/internal/ip4"
)

const (
	tpacketAlignment = 16
	tpacketHdrLen    = 52
	maxBlockSize     = 4 * 1024 * 1024
)

// Config holds the knobs needed to size and filter an AF_PACKET ring
// buffer.
type Config struct {
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	BPFFilter    string `mapstructure:"bpf_filter"`
}

// Receiver is an ip4.FrameReceiver backed by a single AF_PACKET TPacket
// socket. Receive reads one frame per call, as the interface contracts.
type Receiver struct {
	handle    *afpacket.TPacket
	device    string
	frameSize int
	blockSize int
	numBlocks int
	timeoutMs int
	fanoutID  uint16
	bpfFilter string
}

// NewReceiver computes ring-buffer geometry from cfg and opens the socket.
func NewReceiver(cfg Config) (*Receiver, error) {
	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("afpacket: %w", err)
	}
	r := &Receiver{
		device:    cfg.Device,
		frameSize: frameSize,
		blockSize: blockSize,
		numBlocks: numBlocks,
		timeoutMs: cfg.TimeoutMs,
		fanoutID:  cfg.FanoutID,
		bpfFilter: cfg.BPFFilter,
	}
	if err := r.open(); err != nil {
		return nil, fmt.Errorf("afpacket: %w", err)
	}
	return r, nil
}

func (r *Receiver) open() error {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(r.device),
		afpacket.OptFrameSize(r.frameSize),
		afpacket.OptBlockSize(r.blockSize),
		afpacket.OptNumBlocks(r.numBlocks),
		afpacket.OptPollTimeout(r.timeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return err
	}

	if r.fanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, r.fanoutID); err != nil {
			return err
		}
	}

	if r.bpfFilter != "" {
		compiled, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, r.frameSize, r.bpfFilter)
		if err != nil {
			return err
		}
		raw := make([]bpf.RawInstruction, len(compiled))
		for i, inst := range compiled {
			raw[i] = bpf.RawInstruction{Op: inst.Code, Jt: inst.Jt, Jf: inst.Jf, K: inst.K}
		}
		if err := tp.SetBPF(raw); err != nil {
			return err
		}
	}

	r.handle = tp
	return nil
}

const (
	ethHeaderLen  = 14
	etherTypeVLAN = 0x8100
	ipVersion4    = 0x40
)

// Receive reads one frame from the ring buffer, strips its Ethernet (and,
// if tagged, VLAN) header, and hands the IPv4 datagram bytes to cb.
// Read errors, poll timeouts included, are passed to cb as its I/O error.
// Non-IPv4 frames are passed through with a nil error and a zero-length
// payload; the core's short-frame check drops them.
func (r *Receiver) Receive(ctx context.Context, cb ip4.FrameCallback) error {
	data, _, err := r.handle.ReadPacketData()
	if err != nil {
		cb(nil, err, 0)
		return nil
	}

	payload := stripLinkHeader(data)
	if len(payload) == 0 || payload[0]&0xf0 != ipVersion4 {
		cb(nil, nil, 0)
		return nil
	}

	cb(payload, nil, 0)
	return nil
}

func stripLinkHeader(frame []byte) []byte {
	if len(frame) < ethHeaderLen {
		return nil
	}
	offset := ethHeaderLen
	etherType := uint16(frame[12])<<8 | uint16(frame[13])
	if etherType == etherTypeVLAN {
		offset += 4
	}
	if len(frame) <= offset {
		return nil
	}
	return frame[offset:]
}

// Close releases the underlying TPacket socket.
func (r *Receiver) Close() {
	r.handle.Close()
}

// recomputeSize derives AF_PACKET PACKET_MMAP ring geometry: frameSize
// aligned to tpacketAlignment, blockSize a multiple of both the page size
// and frameSize, capped at a practical maximum.
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer_size_mb must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap_len must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := ringBufferSizeMB * 1024 * 1024

	rawFrameSize := tpacketHdrLen + snapLen
	frameSize = ((rawFrameSize + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	minBlockSize := pageSize
	if minBlockSize < frameSize {
		minBlockSize = frameSize
	}

	blockSize = lcm(pageSize, frameSize)
	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}
	if blockSize > maxBlockSize {
		blockSize = (maxBlockSize / pageSize) * pageSize
	}

	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}

	if blockSize%frameSize != 0 {
		framesPerBlock := blockSize / frameSize
		if framesPerBlock < 1 {
			framesPerBlock = 1
		}
		blockSize = ((framesPerBlock*frameSize + pageSize - 1) / pageSize) * pageSize
	}

	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
