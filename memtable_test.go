package ridgedb

import (
	"testing"

	"github.com/mjpearson/ridgedb/skiplist"
)

func TestIsTombstone(t *testing.T) {
	if !isTombstone(tombstoneValue) {
		t.Fatal("expected the sentinel value to be recognized as a tombstone")
	}
	if isTombstone([]byte("not a tombstone")) {
		t.Fatal("expected an ordinary value not to be recognized as a tombstone")
	}
	if isTombstone([]byte{0xde, 0xad, 0xbe}) {
		t.Fatal("expected a shorter value to not collide with the tombstone sentinel")
	}
}

func TestRecordExpired(t *testing.T) {
	if recordExpired(noExpiry) {
		t.Fatal("a zero ttl must never expire")
	}
	if recordExpired(-5) {
		t.Fatal("a negative ttl must never expire")
	}
	if !recordExpired(1) {
		t.Fatal("a ttl far in the past must be expired")
	}
}

func TestColumnFamilyPutDeleteSearchMemtable(t *testing.T) {
	cfg := ColumnFamilyConfig{
		Name:                   "cf",
		MemtableFlushThreshold: DefaultFlushThresholdBytes,
		MemtableMaxLevel:       DefaultMaxLevel,
		MemtableProbability:    DefaultProbability,
	}
	dir := t.TempDir()
	cf, err := createColumnFamily(dir, cfg)
	if err != nil {
		t.Fatalf("createColumnFamily: %v", err)
	}

	cf.put([]byte("k"), []byte("v"), noExpiry)
	value, found, tombstoned := cf.searchMemtable([]byte("k"))
	if !found || tombstoned || string(value) != "v" {
		t.Fatalf("got value=%q found=%v tombstoned=%v, want v/true/false", value, found, tombstoned)
	}

	cf.delete([]byte("k"))
	_, found, tombstoned = cf.searchMemtable([]byte("k"))
	if !found || !tombstoned {
		t.Fatalf("got found=%v tombstoned=%v, want true/true after delete", found, tombstoned)
	}

	_, found, _ = cf.searchMemtable([]byte("never-written"))
	if found {
		t.Fatalf("expected a never-written key to be unfound")
	}
}

func TestShouldFlush(t *testing.T) {
	// Built directly rather than through createColumnFamily, which
	// enforces a production-sized minimum flush threshold that would
	// make this test write megabytes of data just to cross it.
	cfg := ColumnFamilyConfig{
		Name:                   "cf",
		MemtableFlushThreshold: 16,
		MemtableMaxLevel:       DefaultMaxLevel,
		MemtableProbability:    DefaultProbability,
	}
	cf := &ColumnFamily{
		config:   cfg,
		memtable: skiplist.New(cfg.MemtableMaxLevel, cfg.MemtableProbability),
	}

	if cf.shouldFlush() {
		t.Fatal("an empty memtable should not need a flush")
	}

	cf.put([]byte("0123456789"), []byte("0123456789"), noExpiry)
	if !cf.shouldFlush() {
		t.Fatal("expected shouldFlush once the memtable exceeds its threshold")
	}
}
