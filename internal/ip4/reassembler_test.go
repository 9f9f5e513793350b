package ip4

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFrame(t *testing.T, raw []byte) (Header, []byte) {
	t.Helper()
	hdr := &layers.IPv4{}
	require.NoError(t, hdr.DecodeFromBytes(raw, gopacket.NilDecodeFeedback))
	payload := raw[headerLen(hdr):]
	return hdr, payload
}

func clipFor(hdr Header, payload []byte) ClipInfo {
	start := fragOffset(hdr)
	return ClipInfo{Start: start, End: start + len(payload), Length: len(payload), CastType: CastUnicast}
}

func TestReassembleOrderedNoOverlap(t *testing.T) {
	table := InitAssembleTable(17)

	f1 := buildFrame(1, 17, false, true, 0, testSrc, testDst, []byte("01234567"))
	f2 := buildFrame(1, 17, false, false, 1, testSrc, testDst, []byte("89ABCD"))

	h1, p1 := decodeFrame(t, f1)
	pkt, status := reassemble(table, h1, clipFor(h1, p1), p1, nil)
	require.Equal(t, StatusSuccess, status)
	require.Nil(t, pkt)

	h2, p2 := decodeFrame(t, f2)
	pkt, status = reassemble(table, h2, clipFor(h2, p2), p2, nil)
	require.Equal(t, StatusSuccess, status)
	require.NotNil(t, pkt)
	assert.Equal(t, []byte("0123456789ABCD"), pkt.Payload())
}

func TestReassembleOutOfOrder(t *testing.T) {
	table := InitAssembleTable(17)

	f2 := buildFrame(2, 17, false, false, 1, testSrc, testDst, []byte("89ABCD"))
	f1 := buildFrame(2, 17, false, true, 0, testSrc, testDst, []byte("01234567"))

	h2, p2 := decodeFrame(t, f2)
	pkt, status := reassemble(table, h2, clipFor(h2, p2), p2, nil)
	require.Equal(t, StatusSuccess, status)
	require.Nil(t, pkt)

	h1, p1 := decodeFrame(t, f1)
	pkt, status = reassemble(table, h1, clipFor(h1, p1), p1, nil)
	require.Equal(t, StatusSuccess, status)
	require.NotNil(t, pkt)
	assert.Equal(t, []byte("0123456789ABCD"), pkt.Payload())
}

func TestReassembleFullyCoveredDuplicateDropped(t *testing.T) {
	table := InitAssembleTable(17)

	f1 := buildFrame(3, 17, false, true, 0, testSrc, testDst, []byte("01234567"))
	h1, p1 := decodeFrame(t, f1)
	_, status := reassemble(table, h1, clipFor(h1, p1), p1, nil)
	require.Equal(t, StatusSuccess, status)

	// Exact duplicate of the first fragment arrives again.
	dup, status := reassemble(table, h1, clipFor(h1, p1), p1, nil)
	assert.Equal(t, StatusInvalidParameter, status)
	assert.Nil(t, dup)
}

func TestReassemblePartialOverlapTrimmed(t *testing.T) {
	table := InitAssembleTable(17)

	// First fragment: bytes [0,8). Second: bytes [4,14), overlapping [4,8).
	f1 := buildFrame(4, 17, false, true, 0, testSrc, testDst, []byte("01234567"))
	f2 := buildFrame(4, 17, false, false, 0 /* overwritten below */, testSrc, testDst, []byte("4567890123"))

	h1, p1 := decodeFrame(t, f1)
	_, status := reassemble(table, h1, clipFor(h1, p1), p1, nil)
	require.Equal(t, StatusSuccess, status)

	h2, p2 := decodeFrame(t, f2)
	info2 := ClipInfo{Start: 4, End: 14, Length: 10, CastType: CastUnicast}
	pkt, status := reassemble(table, h2, info2, p2, nil)
	require.Equal(t, StatusSuccess, status)
	require.NotNil(t, pkt)
	assert.Equal(t, []byte("01234567890123"), pkt.Payload())
}

func TestReassembleLeavesGapPending(t *testing.T) {
	table := InitAssembleTable(17)

	// Fragment at [0,8) and the last fragment (MF clear) at [16,24):
	// a hole remains at [8,16), so the datagram must stay pending even
	// though a last fragment has already arrived.
	f1 := buildFrame(5, 17, false, true, 0, testSrc, testDst, []byte("01234567"))
	h1, p1 := decodeFrame(t, f1)
	_, status := reassemble(table, h1, clipFor(h1, p1), p1, nil)
	require.Equal(t, StatusSuccess, status)

	f2 := buildFrame(5, 17, false, false, 2, testSrc, testDst, []byte("GHIJKLMN"))
	h2, p2 := decodeFrame(t, f2)
	info2 := clipFor(h2, p2)
	pkt, status := reassemble(table, h2, info2, p2, nil)
	assert.Equal(t, StatusSuccess, status)
	assert.Nil(t, pkt)
}

func TestReassembleWiderFragmentRemovesFullyCoveredSuccessor(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 7, protocol: layers.IPProtocolUDP}

	// Mid fragment first: bytes [16,24).
	mid := buildFrame(7, 17, false, true, 2, testSrc, testDst, []byte("ABCDEFGH"))
	hMid, pMid := decodeFrame(t, mid)
	pkt, status := reassemble(table, hMid, clipFor(hMid, pMid), pMid, nil)
	require.Equal(t, StatusSuccess, status)
	require.Nil(t, pkt)

	// Wide fragment covering [0,32) arrives later and fully subsumes mid.
	wide := buildFrame(7, 17, false, true, 0, testSrc, testDst, []byte("01234567890123456789012345678901"[:32]))
	hWide, pWide := decodeFrame(t, wide)
	pkt, status = reassemble(table, hWide, clipFor(hWide, pWide), pWide, nil)
	require.Equal(t, StatusSuccess, status)
	require.Nil(t, pkt, "datagram stays incomplete: neither fragment cleared MF")

	entry, created := table.lookupOrCreate(key)
	require.False(t, created)
	require.Len(t, entry.fragments, 1, "the fully-covered mid fragment must have been dropped")
	assert.Equal(t, 0, entry.fragments[0].start)
	assert.Equal(t, 32, entry.fragments[0].end)
	assert.Equal(t, 32, entry.curLen)
}

func TestReassembleRejectsMismatchedFinalLength(t *testing.T) {
	table := InitAssembleTable(17)

	// Last fragment (MF clear) claims the datagram ends at offset 24.
	last := buildFrame(8, 17, false, false, 2, testSrc, testDst, []byte("ABCDEFGH"))
	hLast, pLast := decodeFrame(t, last)
	pkt, status := reassemble(table, hLast, clipFor(hLast, pLast), pLast, nil)
	require.Equal(t, StatusSuccess, status)
	require.Nil(t, pkt)

	// A wider, still-fragmented overlap then fully covers it and ends at
	// offset 32 instead, leaving the entry's recorded length (24) stale.
	wide := buildFrame(8, 17, false, true, 0, testSrc, testDst, []byte("01234567890123456789012345678901"[:32]))
	hWide, pWide := decodeFrame(t, wide)
	pkt, status = reassemble(table, hWide, clipFor(hWide, pWide), pWide, nil)
	assert.Equal(t, StatusInvalidParameter, status)
	assert.Nil(t, pkt)
}

func TestReassembleOnReleaseFiresOnce(t *testing.T) {
	table := InitAssembleTable(17)
	released := 0

	f1 := buildFrame(6, 17, false, true, 0, testSrc, testDst, []byte("01234567"))
	f2 := buildFrame(6, 17, false, false, 1, testSrc, testDst, []byte("89ABCDEF"))

	h1, p1 := decodeFrame(t, f1)
	_, status := reassemble(table, h1, clipFor(h1, p1), p1, func() { released++ })
	require.Equal(t, StatusSuccess, status)

	h2, p2 := decodeFrame(t, f2)
	pkt, status := reassemble(table, h2, clipFor(h2, p2), p2, func() { released++ })
	require.Equal(t, StatusSuccess, status)
	require.NotNil(t, pkt)

	pkt.Release()
	assert.Equal(t, 1, released)
}
