package ridgedb

import "time"

// tombstoneValue is the fixed 4-byte sentinel marking a deletion. Any
// value of this exact length and content IS a tombstone, per the data
// model's reserved-value invariant.
var tombstoneValue = []byte{0xde, 0xad, 0xbe, 0xef}

// noExpiry is the TTL value meaning "does not expire". The source
// treats both -1 and 0 as non-expiring in different code paths; this
// reimplementation settles on "ttl <= 0 means no expiry" uniformly.
const noExpiry int64 = 0

func isTombstone(value []byte) bool {
	if len(value) != len(tombstoneValue) {
		return false
	}
	for i := range value {
		if value[i] != tombstoneValue[i] {
			return false
		}
	}
	return true
}

func recordExpired(ttl int64) bool {
	if ttl <= 0 {
		return false
	}
	return time.Now().Unix() >= ttl
}

// put inserts a live value into the memtable, overwriting any existing
// entry for key.
func (cf *ColumnFamily) put(key, value []byte, ttl int64) {
	cf.memtable.Put(key, value, ttl)
}

// delete shadows key with a tombstone, never removing it from the
// index directly, so the deletion is visible to a flush that is racing
// an older SSTable entry for the same key.
func (cf *ColumnFamily) delete(key []byte) {
	cf.memtable.Put(key, tombstoneValue, noExpiry)
}

// searchMemtable looks up key in the live memtable. found is false if
// the key is absent; tombstoned is true if the key is present but
// shadowed by a delete.
func (cf *ColumnFamily) searchMemtable(key []byte) (value []byte, found, tombstoned bool) {
	v, ttl, ok := cf.memtable.Get(key)
	if !ok {
		return nil, false, false
	}
	if isTombstone(v) {
		return nil, true, true
	}
	if recordExpired(ttl) {
		return nil, false, false
	}
	return v, true, false
}

// shouldFlush reports whether the memtable has grown past this column
// family's configured flush threshold.
func (cf *ColumnFamily) shouldFlush() bool {
	return cf.memtable.Size() >= cf.config.MemtableFlushThreshold
}
