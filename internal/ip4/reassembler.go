package ip4

// reassemble inserts one fragment into the assembly table, trimming any
// overlap against its neighbors, and returns a finished Packet once the
// datagram is complete. A nil Packet with StatusSuccess means the fragment
// was accepted but the datagram is still incomplete; a nil Packet with
// StatusInvalidParameter means the fragment was dropped (fully redundant,
// or shorter than an already-present fragment at the same offset), or that
// the completion check found the last fragment not ending at the total
// length.
//
// The assembly entry is looked up or created first and stays in the table
// across a dropped-fragment return; only the completion test removes it,
// both when the datagram completes and when its final length check fails.
func reassemble(table *assembleTable, hdr Header, info ClipInfo, payload []byte, onRelease func()) (*Packet, Status) {
	key := newAssembleKey(hdr)
	entry, _ := table.lookupOrCreate(key)

	f := &fragment{buf: payload, start: info.Start, end: info.End}

	idx := sortSearchStart(entry.fragments, f.start)

	if idx > 0 {
		prev := entry.fragments[idx-1]
		if f.start < prev.end {
			if f.end <= prev.end {
				// Fully covered by the predecessor; drop silently.
				return nil, StatusInvalidParameter
			}
			f.trimHead(prev.end)
		}
	}

	entry.fragments = insertFragmentAt(entry.fragments, idx, f)

	cur := idx + 1
	for cur < len(entry.fragments) {
		node := entry.fragments[cur]
		if node.end <= f.end {
			// f fully covers this later fragment; drop it.
			entry.curLen -= node.length()
			entry.fragments = removeFragmentAt(entry.fragments, cur)
			continue
		}
		if node.start < f.end {
			if f.start == node.start {
				// f is shorter than an already-present fragment at the
				// same start; drop f and leave the entry as it was.
				entry.fragments = removeFragmentAt(entry.fragments, idx)
				return nil, StatusInvalidParameter
			}
			f.trimTail(node.start)
		}
		break
	}

	entry.curLen += f.length()

	if f.start == 0 {
		entry.head = hdr
		entry.info = info
	}
	if !moreFragments(hdr) && entry.totalLen == 0 {
		entry.totalLen = f.end
	}

	if entry.totalLen != 0 && entry.curLen >= entry.totalLen {
		table.remove(entry)
		last := entry.fragments[len(entry.fragments)-1]
		if last.end != entry.totalLen {
			return nil, StatusInvalidParameter
		}
		views := make([]fragmentView, len(entry.fragments))
		for i, ff := range entry.fragments {
			views[i] = fragmentView{data: ff.buf}
		}
		pkt := wrapDatagram(entry.head, entry.info, views, onRelease)
		return pkt, StatusSuccess
	}

	return nil, StatusSuccess
}

// sortSearchStart returns the index of the first fragment whose start
// offset is greater than start, i.e. the position a new fragment beginning
// at start should be inserted at.
func sortSearchStart(fragments []*fragment, start int) int {
	lo, hi := 0, len(fragments)
	for lo < hi {
		mid := (lo + hi) / 2
		if fragments[mid].start > start {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func insertFragmentAt(fragments []*fragment, idx int, f *fragment) []*fragment {
	fragments = append(fragments, nil)
	copy(fragments[idx+1:], fragments[idx:])
	fragments[idx] = f
	return fragments
}

func removeFragmentAt(fragments []*fragment, idx int) []*fragment {
	return append(fragments[:idx], fragments[idx+1:]...)
}
