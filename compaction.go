package ridgedb

import (
	"os"
	"sync"

	"github.com/mjpearson/ridgedb/serialize"
	"github.com/mjpearson/ridgedb/skiplist"
)

// CompactColumnFamily pairwise-merges a column family's SSTables across
// up to maxThreads concurrent workers. Grounded on the teacher's
// compact(), generalized from a single fixed pairing pass over the
// whole slice to a caller-sized, contiguous-range partition so the
// degree of parallelism is explicit rather than implied by goroutine
// count.
func (db *Database) CompactColumnFamily(name string, maxThreads int) error {
	db.cfLock.RLock()
	cf, ok := db.columnFamilies[name]
	db.cfLock.RUnlock()
	if !ok {
		return newErr("CompactColumnFamily", KindNotFound, nil)
	}
	return compactColumnFamily(cf, maxThreads)
}

func compactColumnFamily(cf *ColumnFamily, maxThreads int) error {
	cf.sstablesLock.Lock()
	defer cf.sstablesLock.Unlock()

	n := len(cf.sstables)
	if n < 2 {
		return newErr("compactColumnFamily", KindConflict, nil)
	}
	if maxThreads < 1 {
		maxThreads = 1
	}

	pairs := n / 2
	if maxThreads > pairs {
		maxThreads = pairs
	}
	if maxThreads < 1 {
		maxThreads = 1
	}

	type rangeBounds struct{ start, end int }
	ranges := make([]rangeBounds, 0, maxThreads)
	base := pairs / maxThreads
	extra := pairs % maxThreads
	pairIdx := 0
	for w := 0; w < maxThreads; w++ {
		count := base
		if w < extra {
			count++
		}
		if count == 0 {
			continue
		}
		ranges = append(ranges, rangeBounds{start: pairIdx * 2, end: (pairIdx + count) * 2})
		pairIdx += count
	}

	type mergedSlot struct {
		index  int
		result *SSTable
		failed bool
	}

	var wg sync.WaitGroup
	resultsLock := sync.Mutex{}
	var results []mergedSlot

	for _, r := range ranges {
		wg.Add(1)
		go func(r rangeBounds) {
			defer wg.Done()
			for i := r.start; i+1 < r.end; i += 2 {
				merged, err := pairMerge(cf, cf.sstables[i], cf.sstables[i+1])
				resultsLock.Lock()
				if err != nil {
					results = append(results, mergedSlot{index: i, failed: true})
				} else {
					results = append(results, mergedSlot{index: i, result: merged})
				}
				resultsLock.Unlock()
			}
		}(r)
	}
	wg.Wait()

	replacement := make([]*SSTable, 0, len(cf.sstables))
	merged := make(map[int]mergedSlot, len(results))
	for _, r := range results {
		merged[r.index] = r
	}

	for i := 0; i < len(cf.sstables); {
		slot, isPairStart := merged[i]
		if isPairStart {
			switch {
			case slot.failed:
				replacement = append(replacement, cf.sstables[i], cf.sstables[i+1])
			case slot.result != nil:
				replacement = append(replacement, slot.result)
			}
			i += 2
			continue
		}
		replacement = append(replacement, cf.sstables[i])
		i++
	}

	cf.sstables = replacement
	return nil
}

// pairMerge merges sstable a (older) and b (newer) into one new SSTable,
// dropping tombstones and expired entries, with the explicit
// newer-wins convention: when both sides hold the same key, b's value
// is kept. Grounded on the per-pair goroutine body inside the teacher's
// compact().
func pairMerge(cf *ColumnFamily, a, b *SSTable) (*SSTable, error) {
	id := cf.idGen.Next()
	merged, err := createSSTable(cf.dir, id, cf.config.Compressed)
	if err != nil {
		return nil, err
	}

	// Ephemeral merge index: every record from both tables, tombstones
	// included, is Put into a skip list keyed by its byte key, so the
	// later collect call (b, the newer table) naturally overwrites a's
	// entry on collision, and an in-order iterator then yields the merged
	// set in ascending key order for materialize, matching how flush
	// builds an SSTable from its own skip-list snapshot. Tombstones and
	// expired entries are dropped only after the overwrite, so a newer
	// delete in b removes a's value instead of letting it survive.
	index := skiplist.New(cf.config.MemtableMaxLevel, cf.config.MemtableProbability)

	collect := func(sst *SSTable) error {
		last := sst.pager.Count() - 1
		for pg := sst.firstRecordPage; pg <= last; pg++ {
			data, err := sst.pager.GetPage(pg)
			if err != nil {
				return err
			}
			rec, err := serialize.DeserializeKV(data, sst.compressed)
			if err != nil {
				continue
			}
			index.Put(rec.Key, rec.Value, rec.TTL)
		}
		return nil
	}

	// a is older; collect it first so b's values win on key collision.
	if err := collect(a); err != nil {
		_ = merged.close()
		return nil, newErr("pairMerge", KindIO, err)
	}
	if err := collect(b); err != nil {
		_ = merged.close()
		return nil, newErr("pairMerge", KindIO, err)
	}

	records := make([]serialize.KVRecord, 0, index.Count())
	it := skiplist.NewIterator(index)
	for it.Next() {
		key, value, ttl := it.Current()
		if isTombstone(value) || recordExpired(ttl) {
			continue
		}
		records = append(records, serialize.KVRecord{Key: key, Value: value, TTL: ttl})
	}
	index.Destroy()

	ok, err := merged.materialize(records)
	if err != nil {
		_ = merged.close()
		return nil, err
	}

	aPath, bPath := a.pager.FileName(), b.pager.FileName()
	if err := a.close(); err != nil {
		return nil, newErr("pairMerge", KindIO, err)
	}
	if err := b.close(); err != nil {
		return nil, newErr("pairMerge", KindIO, err)
	}
	if err := os.Remove(aPath); err != nil {
		return nil, newErr("pairMerge", KindIO, err)
	}
	if err := os.Remove(bPath); err != nil {
		return nil, newErr("pairMerge", KindIO, err)
	}

	if !ok {
		// Every entry across both SSTables was a tombstone or expired:
		// the pair is dropped with no replacement.
		_ = merged.close()
		_ = os.Remove(merged.pager.FileName())
		return nil, nil
	}

	return merged, nil
}
