package ip4

// TxTimeoutIterator is the down-facing hook PacketTimerTick drives for the
// transmit side's own timeout bookkeeping. Its implementation lives outside
// this package; the core only needs somewhere to call.
type TxTimeoutIterator interface {
	IterateTimeouts()
}

// PacketTimerTick ages every in-progress assembly entry and every child's
// receive queue by exactly one unit, then drives the transmit-side timeout
// iteration. It takes no duration parameter: each call decrements every
// counter by exactly 1 regardless of wall-clock time, leaving tick-period
// choice entirely to the caller.
func PacketTimerTick(svc *Service) {
	expired := svc.table.tick()
	for _, e := range expired {
		svc.Logger.Debugf("assembly entry expired: id=%d protocol=%d", e.key.id, e.key.protocol)
	}

	for _, iface := range svc.Interfaces {
		for _, child := range iface.Children {
			child.tickReceivedQueue()
		}
	}

	if svc.TxTimeoutIterator != nil {
		svc.TxTimeoutIterator.IterateTimeouts()
	}
}
