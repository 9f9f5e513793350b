package ip4

import (
	"context"
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// AcceptFrame is the ingress validator (Ip4AccpetFrame): it validates a raw
// frame, classifies and (if necessary) reassembles it, dispatches the
// result, and always re-arms the next receive and drains the dispatch
// queue before returning, unless the service is tearing down.
func (s *Service) AcceptFrame(ctx context.Context, raw []byte, ioErr error, linkFlag uint32) {
	defer func() {
		s.drainDispatch()
		if s.State != ServiceDestroying {
			if err := s.armReceive(ctx); err != nil {
				s.Logger.Errorf("re-arm receive failed: %v", err)
			}
		}
	}()

	if ioErr != nil {
		s.Logger.Debugf("frame receive error: %v", ioErr)
		return
	}
	if s.State == ServiceDestroying {
		return
	}

	if len(raw) < MinHeaderLen {
		s.Metrics.dropped()
		s.Logger.Debugf("drop: frame shorter than minimum header (%d bytes)", len(raw))
		return
	}

	headerLenRaw := int(raw[0]&0x0f) * 4
	totalLenRaw := int(binary.BigEndian.Uint16(raw[2:4]))
	if totalLenRaw < len(raw) {
		raw = raw[:totalLenRaw]
	}
	versionRaw := raw[0] >> 4

	if versionRaw != 4 || headerLenRaw < MinHeaderLen || totalLenRaw < headerLenRaw || totalLenRaw != len(raw) {
		s.Metrics.dropped()
		s.Logger.Debugf("drop: malformed header (version=%d headerLen=%d totalLen=%d frameLen=%d)",
			versionRaw, headerLenRaw, totalLenRaw, len(raw))
		return
	}

	if !verifyHeaderChecksum(raw[:headerLenRaw]) {
		s.Metrics.dropped()
		s.Logger.Debugf("drop: header checksum verification failed")
		return
	}

	hdr := &layers.IPv4{}
	if err := hdr.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		s.Metrics.dropped()
		s.Logger.Debugf("drop: header decode failed: %v", err)
		return
	}

	castType := s.Classifier.Classify(hdr.DstIP, hdr.SrcIP)
	start := fragOffset(hdr)
	length := totalLenRaw - headerLenRaw
	end := start + length

	if castType == CastNone || end > MaxDatagramLen {
		s.Metrics.dropped()
		s.Logger.Debugf("drop: unclassifiable destination or oversize datagram (end=%d)", end)
		return
	}

	if headerLenRaw > MinHeaderLen && s.OptionValidator != nil {
		if !s.OptionValidator.Valid(raw[MinHeaderLen:headerLenRaw], true) {
			s.Metrics.dropped()
			s.Logger.Debugf("drop: invalid IP options")
			return
		}
	}

	payload := raw[headerLenRaw:]
	info := ClipInfo{Start: start, End: end, Length: length, CastType: castType, LinkFlag: linkFlag}

	var pkt *Packet
	if moreFragments(hdr) || start != 0 {
		if dontFragment(hdr) {
			s.Metrics.dropped()
			s.Logger.Debugf("drop: fragment with Don't-Fragment set")
			return
		}
		if moreFragments(hdr) && length%8 != 0 {
			s.Metrics.dropped()
			s.Logger.Debugf("drop: non-final fragment length %d not a multiple of 8", length)
			return
		}
		s.Metrics.assemblyStarted()
		var status Status
		pkt, status = reassemble(s.table, hdr, info, payload, s.Metrics.assemblyFinished)
		if status != StatusSuccess {
			s.Metrics.dropped()
			s.Logger.Debugf("drop: fragment rejected during reassembly")
			return
		}
		if pkt == nil {
			// Accepted, datagram still incomplete; nothing to dispatch yet.
			return
		}
	} else {
		pkt = wrapDatagram(hdr, info, []fragmentView{{data: payload}}, nil)
	}

	s.dispatchDatagram(hdr, pkt)
}

func (s *Service) dispatchDatagram(hdr Header, pkt *Packet) {
	switch hdr.Protocol {
	case layers.IPProtocolICMPv4:
		if s.ICMPHandler != nil {
			s.ICMPHandler.Handle(s, hdr, pkt)
			return
		}
	case layers.IPProtocolIGMP:
		if s.IGMPHandler != nil {
			s.IGMPHandler.Handle(s, hdr, pkt)
			return
		}
	}
	if Demultiplex(s, hdr, pkt) == StatusSuccess {
		s.Metrics.delivered()
	}
}
