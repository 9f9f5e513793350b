package ip4

// CastType classifies a datagram's destination relative to a bound address,
// used by NetClassify and the interface-local cast recompute.
type CastType int

const (
	CastNone CastType = iota
	CastUnicast
	CastLocalBroadcast
	CastSubnetBroadcast
	CastMulticast
	CastPromiscuous
)

// ClipInfo is the per-packet side-band metadata computed during reassembly
// and fan-out classification, carried alongside a Packet as a plain struct
// field.
type ClipInfo struct {
	Start    int
	End      int
	Length   int
	CastType CastType
	LinkFlag uint32
	Status   Status
	Life     int
}
