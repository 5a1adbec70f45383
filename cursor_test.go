package ridgedb

import (
	"bytes"
	"testing"
)

func TestCursorForwardIteration(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		if err := db.Put(defaultColumnFamilyName, []byte(k), []byte(v), noExpiry); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	cur, err := db.NewCursor(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}

	got := make(map[string]string)
	for cur.Next() {
		k, v, err := cur.Get()
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got[string(k)] = string(v)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %s: got %q, want %q", k, got[k], v)
		}
	}
}

func TestCursorGetBeforeNextErrors(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	cur, err := db.NewCursor(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if _, _, err := cur.Get(); err != errCursorNotPositioned {
		t.Fatalf("expected errCursorNotPositioned, got %v", err)
	}
}

func TestCursorSurfacesTombstone(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Put(defaultColumnFamilyName, []byte("k"), []byte("v"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Delete(defaultColumnFamilyName, []byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	cur, err := db.NewCursor(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}
	if !cur.Next() {
		t.Fatalf("expected at least one record")
	}
	if _, _, err := cur.Get(); err != errTombstoned {
		t.Fatalf("expected errTombstoned, got %v", err)
	}
}

func TestCursorPrevWithoutNextStartsAtOldestSSTable(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	cf, err := db.columnFamily(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("columnFamily: %v", err)
	}

	if err := db.Put(defaultColumnFamilyName, []byte("flushed"), []byte("1"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	flushSync(t, db, cf)

	if err := db.Put(defaultColumnFamilyName, []byte("live"), []byte("2"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	cur, err := db.NewCursor(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}

	if !cur.Prev() {
		t.Fatalf("expected Prev to find the flushed sstable record")
	}
	k, v, err := cur.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(k) != "flushed" || string(v) != "1" {
		t.Fatalf("got %q=%q, want flushed=1", k, v)
	}

	// The sstable is exhausted; the next Prev should fall back into the
	// still-live memtable entry.
	if !cur.Prev() {
		t.Fatalf("expected Prev to then find the live memtable record")
	}
	k, v, err = cur.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(k) != "live" || string(v) != "2" {
		t.Fatalf("got %q=%q, want live=2", k, v)
	}

	if cur.Prev() {
		t.Fatalf("expected Prev to be exhausted")
	}
}

func TestCursorForwardThenBackwardIsSymmetric(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for _, k := range keys {
		if err := db.Put(defaultColumnFamilyName, k, k, noExpiry); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	cur, err := db.NewCursor(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}

	var forward [][]byte
	for cur.Next() {
		k, _, err := cur.Get()
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		forward = append(forward, append([]byte(nil), k...))
	}
	if len(forward) != len(keys) {
		t.Fatalf("forward pass visited %d keys, want %d", len(forward), len(keys))
	}

	var backward [][]byte
	for cur.Prev() {
		k, _, err := cur.Get()
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		backward = append(backward, append([]byte(nil), k...))
	}
	if len(backward) != len(forward) {
		t.Fatalf("backward pass visited %d keys, want %d", len(backward), len(forward))
	}
	for i, k := range backward {
		want := forward[len(forward)-1-i]
		if !bytes.Equal(k, want) {
			t.Fatalf("backward[%d] = %q, want %q (forward reversed)", i, k, want)
		}
	}
}
