package ip4

import (
	"encoding/binary"
	"net"
)

// buildFrame assembles a minimal, checksum-valid IPv4 frame (no options)
// for use as test input to AcceptFrame/reassemble. fragOffsetUnits is in
// 8-byte units, matching the wire field.
func buildFrame(id uint16, proto byte, df, mf bool, fragOffsetUnits uint16, src, dst [4]byte, payload []byte) []byte {
	b := make([]byte, 20+len(payload))
	b[0] = 0x45
	binary.BigEndian.PutUint16(b[2:4], uint16(len(b)))
	binary.BigEndian.PutUint16(b[4:6], id)

	var flags uint16
	if df {
		flags |= 0x2
	}
	if mf {
		flags |= 0x1
	}
	binary.BigEndian.PutUint16(b[6:8], flags<<13|(fragOffsetUnits&0x1fff))

	b[8] = 64
	b[9] = proto
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	copy(b[20:], payload)

	csum := onesComplementChecksum(b[:20])
	binary.BigEndian.PutUint16(b[10:12], csum)
	return b
}

var testSrc = [4]byte{10, 0, 0, 1}
var testDst = [4]byte{10, 0, 0, 2}

// fakeClassifier treats every destination as a plain unicast-to-us match.
type fakeClassifier struct {
	result CastType
}

func (f *fakeClassifier) Classify(dst, src net.IP) CastType {
	return f.result
}
func (f *fakeClassifier) NetClassify(dst net.IP, iface *Interface) CastType {
	return f.result
}

type fakeLogger struct{}

func (fakeLogger) Debugf(string, ...interface{}) {}
func (fakeLogger) Infof(string, ...interface{})  {}
func (fakeLogger) Warnf(string, ...interface{})  {}
func (fakeLogger) Errorf(string, ...interface{}) {}
