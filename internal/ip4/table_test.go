package ip4

import (
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketIndexStableForSameKey(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 42, protocol: layers.IPProtocolUDP}
	assert.Equal(t, table.bucketIndex(key), table.bucketIndex(key))
}

func TestInitAssembleTableDefaultEntryLifeIs120(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 99, protocol: layers.IPProtocolUDP}

	entry, created := table.lookupOrCreate(key)
	require.True(t, created)
	assert.Equal(t, 120, entry.life)
}

func TestLookupOrCreateReusesExistingEntry(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 1, protocol: layers.IPProtocolUDP}

	entry, created := table.lookupOrCreate(key)
	require.True(t, created)

	again, created2 := table.lookupOrCreate(key)
	assert.False(t, created2)
	assert.Same(t, entry, again)
}

func TestLookupOrCreateSeparatesDifferentKeys(t *testing.T) {
	table := InitAssembleTable(17)
	k1 := assembleKey{dst: testDst, src: testSrc, id: 1, protocol: layers.IPProtocolUDP}
	k2 := assembleKey{dst: testDst, src: testSrc, id: 2, protocol: layers.IPProtocolUDP}

	e1, _ := table.lookupOrCreate(k1)
	e2, _ := table.lookupOrCreate(k2)
	assert.NotSame(t, e1, e2)
}

func TestRemoveUnlinksEntry(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 1, protocol: layers.IPProtocolUDP}
	entry, _ := table.lookupOrCreate(key)

	table.remove(entry)

	_, created := table.lookupOrCreate(key)
	assert.True(t, created, "removed entry must not still be linked")
}

func TestTickEvictsExpiredEntries(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 1, protocol: layers.IPProtocolUDP}
	entry, _ := table.lookupOrCreate(key)
	entry.life = 2

	expired := table.tick()
	assert.Empty(t, expired)

	expired = table.tick()
	require.Len(t, expired, 1)
	assert.Same(t, entry, expired[0])

	_, created := table.lookupOrCreate(key)
	assert.True(t, created, "expired entry must have been unlinked")
}

func TestTickLeavesUnexpiredEntriesInPlace(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 1, protocol: layers.IPProtocolUDP}
	entry, _ := table.lookupOrCreate(key)
	entry.life = defaultAssembleLife

	table.tick()
	again, created := table.lookupOrCreate(key)
	assert.False(t, created)
	assert.Same(t, entry, again)
	assert.Equal(t, defaultAssembleLife-1, again.life)
}

func TestCleanAssembleTableDropsEverything(t *testing.T) {
	table := InitAssembleTable(17)
	key := assembleKey{dst: testDst, src: testSrc, id: 1, protocol: layers.IPProtocolUDP}
	table.lookupOrCreate(key)

	CleanAssembleTable(table)

	_, created := table.lookupOrCreate(key)
	assert.True(t, created)
}
