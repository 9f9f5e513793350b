package ip4

import (
	"hash/fnv"

	"github.com/google/gopacket/layers"
)

// assembleKey is the 4-tuple an in-progress datagram is bucketed on:
// destination, source, identification, protocol.
type assembleKey struct {
	dst      [4]byte
	src      [4]byte
	id       uint16
	protocol layers.IPProtocol
}

func newAssembleKey(h Header) assembleKey {
	k := assembleKey{id: h.Id, protocol: h.Protocol}
	copy(k.dst[:], h.DstIP.To4())
	copy(k.src[:], h.SrcIP.To4())
	return k
}

// fragment is one inbound fragment awaiting reassembly: a contiguous byte
// range of the final datagram, not yet wrapped into a Packet.
type fragment struct {
	buf   []byte
	start int
	end   int
}

func (f *fragment) length() int { return f.end - f.start }

// trimHead drops newStart-f.start bytes off the front of the fragment,
// narrowing its range to [newStart, f.end).
func (f *fragment) trimHead(newStart int) {
	delta := newStart - f.start
	f.buf = f.buf[delta:]
	f.start = newStart
}

// trimTail drops f.end-newEnd bytes off the back, narrowing the range to
// [f.start, newEnd).
func (f *fragment) trimTail(newEnd int) {
	delta := f.end - newEnd
	f.buf = f.buf[:len(f.buf)-delta]
	f.end = newEnd
}

// assembleEntry tracks one datagram's in-progress reassembly: its sorted,
// non-overlapping fragment list plus the metadata captured from the
// fragment at offset zero.
type assembleEntry struct {
	key       assembleKey
	fragments []*fragment
	curLen    int
	totalLen  int // 0 until the last fragment (MF clear) has arrived
	head      Header
	info      ClipInfo
	life      int
}

const defaultAssembleLife = 120 // ticks before an incomplete entry is dropped

func newAssembleEntry(key assembleKey, life int) *assembleEntry {
	return &assembleEntry{key: key, life: life}
}

// assembleTable is the bucketed hash table of in-progress reassemblies,
// backed by plain slices per bucket rather than an intrusive linked list.
type assembleTable struct {
	buckets   [][]*assembleEntry
	entryLife int
}

// InitAssembleTable allocates a table with the given bucket count. Every
// entry starts with defaultAssembleLife ticks to live; SetEntryLife
// overrides that for configurations that want a different fragment
// lifetime.
func InitAssembleTable(bucketCount int) *assembleTable {
	if bucketCount <= 0 {
		bucketCount = 127
	}
	return &assembleTable{buckets: make([][]*assembleEntry, bucketCount), entryLife: defaultAssembleLife}
}

// SetEntryLife changes the tick count assigned to every newly created
// entry from this point on; in-progress entries are unaffected.
func (t *assembleTable) SetEntryLife(life int) {
	if life > 0 {
		t.entryLife = life
	}
}

// CleanAssembleTable discards every in-progress entry, releasing none of
// their fragments further (they were never handed to a consumer).
func CleanAssembleTable(t *assembleTable) {
	for i := range t.buckets {
		t.buckets[i] = nil
	}
}

func (t *assembleTable) bucketIndex(key assembleKey) int {
	h := fnv.New32a()
	h.Write(key.dst[:])
	h.Write(key.src[:])
	h.Write([]byte{byte(key.id >> 8), byte(key.id)})
	h.Write([]byte{byte(key.protocol)})
	return int(h.Sum32()) % len(t.buckets)
}

// lookupOrCreate returns the entry for key, creating and linking a fresh
// one if none exists yet.
func (t *assembleTable) lookupOrCreate(key assembleKey) (*assembleEntry, bool) {
	idx := t.bucketIndex(key)
	for _, e := range t.buckets[idx] {
		if e.key == key {
			return e, false
		}
	}
	e := newAssembleEntry(key, t.entryLife)
	t.buckets[idx] = append(t.buckets[idx], e)
	return e, true
}

// remove unlinks entry from its bucket. It does not release the entry's
// fragments; callers that are completing reassembly move ownership of the
// fragments into a Packet first.
func (t *assembleTable) remove(entry *assembleEntry) {
	idx := t.bucketIndex(entry.key)
	bucket := t.buckets[idx]
	for i, e := range bucket {
		if e == entry {
			t.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// tick ages every in-progress entry by one unit, evicting (and returning,
// for logging) any entry whose life has expired.
func (t *assembleTable) tick() []*assembleEntry {
	var expired []*assembleEntry
	for i := range t.buckets {
		bucket := t.buckets[i]
		kept := bucket[:0]
		for _, e := range bucket {
			e.life--
			if e.life <= 0 {
				expired = append(expired, e)
				continue
			}
			kept = append(kept, e)
		}
		t.buckets[i] = kept
	}
	return expired
}
