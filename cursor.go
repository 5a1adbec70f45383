package ridgedb

import (
	"github.com/mjpearson/ridgedb/serialize"
	"github.com/mjpearson/ridgedb/skiplist"
)

// Cursor iterates a column family's contents: the memtable first, then
// each SSTable from newest to oldest. It never merges across levels, so
// a key can legitimately surface more than once (an older, shadowed
// value in an SSTable after its live memtable entry has already been
// seen). Grounded on the teacher's Iterator, split per column family
// and exposing Prev in addition to Next as spec.md §3/§4.8 require.
//
// The SSTable list is snapshotted when the cursor is created: a
// concurrent flush or compaction does not change which SSTables this
// cursor walks, matching the engine's documented lack of snapshot
// isolation (the memtable side is still live).
type Cursor struct {
	cf *ColumnFamily

	memtableIter *skiplist.Iterator
	onMemtable   bool

	sstables    []*SSTable
	sstableIdx  int // index into sstables, newest-first traversal order
	sstableIter *sstableIterator

	started bool
}

// errTombstoned/errExpired are the distinguished non-fatal errors
// Get returns when the current record is a deletion marker or has aged
// out, per spec.md §4.8. errCursorNotPositioned is returned by Get
// before the first Next/Prev call.
var (
	errCursorNotPositioned = newErr("Cursor.Get", KindState, nil)
	errTombstoned          = newErr("Cursor.Get", KindNotFound, nil)
	errExpired             = newErr("Cursor.Get", KindNotFound, nil)
)

// NewCursor opens a cursor over a column family, positioned before the
// first record.
func (db *Database) NewCursor(columnFamily string) (*Cursor, error) {
	cf, err := db.columnFamily(columnFamily)
	if err != nil {
		return nil, err
	}

	cf.memtableLock.RLock()
	memtableIter := skiplist.NewIterator(cf.memtable)
	cf.memtableLock.RUnlock()

	cf.sstablesLock.RLock()
	snapshot := make([]*SSTable, len(cf.sstables))
	copy(snapshot, cf.sstables)
	cf.sstablesLock.RUnlock()

	return &Cursor{
		cf:           cf,
		memtableIter: memtableIter,
		onMemtable:   true,
		sstables:     snapshot,
		sstableIdx:   len(snapshot), // one past the newest; Next decrements into range
	}, nil
}

// sstableIterator walks one SSTable's record pages (the pages after the
// bloom filter's page chain) forward or backward.
type sstableIterator struct {
	sst     *SSTable
	current int64
}

func newSSTableIteratorAtStart(sst *SSTable) *sstableIterator {
	return &sstableIterator{sst: sst, current: sst.firstRecordPage - 1}
}

func newSSTableIteratorAtEnd(sst *SSTable) *sstableIterator {
	return &sstableIterator{sst: sst, current: sst.pager.Count()}
}

func (it *sstableIterator) next() bool {
	last := it.sst.pager.Count() - 1
	if it.current >= last {
		return false
	}
	it.current++
	return true
}

func (it *sstableIterator) prev() bool {
	if it.current <= it.sst.firstRecordPage {
		return false
	}
	it.current--
	return true
}

func (it *sstableIterator) record() (serialize.KVRecord, bool) {
	data, err := it.sst.pager.GetPage(it.current)
	if err != nil {
		return serialize.KVRecord{}, false
	}
	rec, err := serialize.DeserializeKV(data, it.sst.compressed)
	if err != nil {
		return serialize.KVRecord{}, false
	}
	return rec, true
}

// Next advances the cursor, moving from the memtable into progressively
// older SSTables (newest first) once the memtable is exhausted. A
// sstableIter that fails to advance is discarded immediately (set to
// nil) rather than left parked on its last record, so a subsequent
// Prev does not silently skip that record by stepping back from it.
func (c *Cursor) Next() bool {
	c.started = true

	if c.onMemtable {
		if c.memtableIter.Next() {
			return true
		}
		c.onMemtable = false
	}

	for {
		if c.sstableIter != nil && c.sstableIter.next() {
			return true
		}
		c.sstableIter = nil

		c.sstableIdx--
		if c.sstableIdx < 0 {
			c.sstableIdx = -1
			return false
		}
		c.sstableIter = newSSTableIteratorAtStart(c.sstables[c.sstableIdx])
	}
}

// Prev retreats the cursor symmetrically: from the oldest SSTable
// (index 0) back toward the newest, and finally back into the memtable
// — the exact reverse of Next's order. A cursor that has never moved
// starts, on its first Prev, at the oldest SSTable's last record rather
// than jumping into the memtable (which Next visits first, not last).
func (c *Cursor) Prev() bool {
	fresh := !c.started
	c.started = true

	if fresh {
		c.onMemtable = false
		c.sstableIdx = -1
	}

	if !c.onMemtable {
		for {
			if c.sstableIter != nil && c.sstableIter.prev() {
				return true
			}
			c.sstableIter = nil

			c.sstableIdx++
			if c.sstableIdx >= len(c.sstables) {
				break
			}
			c.sstableIter = newSSTableIteratorAtEnd(c.sstables[c.sstableIdx])
		}

		c.onMemtable = true
		c.sstableIter = nil
		c.sstableIdx = len(c.sstables)
	}

	return c.memtableIter.Prev()
}

// Get returns the key and value at the cursor's current position. It
// returns a distinguished, non-fatal error if the current record is a
// tombstone or has expired, so the caller can choose to skip it.
func (c *Cursor) Get() ([]byte, []byte, error) {
	if !c.started {
		return nil, nil, errCursorNotPositioned
	}

	if c.onMemtable {
		key, value, ttl := c.memtableIter.Current()
		if isTombstone(value) {
			return key, nil, errTombstoned
		}
		if recordExpired(ttl) {
			return key, nil, errExpired
		}
		return key, value, nil
	}

	rec, ok := c.sstableIter.record()
	if !ok {
		return nil, nil, newErr("Cursor.Get", KindCorruption, nil)
	}
	if isTombstone(rec.Value) {
		return rec.Key, nil, errTombstoned
	}
	if recordExpired(rec.TTL) {
		return rec.Key, nil, errExpired
	}
	return rec.Key, rec.Value, nil
}
