package ridgedb

import (
	"testing"

	"github.com/mjpearson/ridgedb/serialize"
)

func TestTransactionCommit(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	txn, err := db.Begin(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn.Put([]byte("a"), []byte("1"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Put([]byte("b"), []byte("2"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for _, kv := range []struct{ k, v string }{{"a", "1"}, {"b", "2"}} {
		got, err := db.Get(defaultColumnFamilyName, []byte(kv.k))
		if err != nil {
			t.Fatalf("Get %s: %v", kv.k, err)
		}
		if string(got) != kv.v {
			t.Fatalf("Get %s: got %q, want %q", kv.k, got, kv.v)
		}
	}
}

func TestTransactionRollbackRestoresPriorValue(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Put(defaultColumnFamilyName, []byte("k"), []byte("original"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	txn, err := db.Begin(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn.Put([]byte("k"), []byte("changed"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := db.Get(defaultColumnFamilyName, []byte("k"))
	if err != nil || string(got) != "changed" {
		t.Fatalf("Get after commit: got %q, %v, want changed", got, err)
	}

	if err := txn.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	got, err = db.Get(defaultColumnFamilyName, []byte("k"))
	if err != nil || string(got) != "original" {
		t.Fatalf("Get after rollback: got %q, %v, want original", got, err)
	}
}

func TestTransactionRollbackDeletesNewKey(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	txn, err := db.Begin(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn.Put([]byte("brandnew"), []byte("v"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := db.Get(defaultColumnFamilyName, []byte("brandnew")); !IsNotFound(err) {
		t.Fatalf("expected not-found after rolling back a key that had no prior value, got %v", err)
	}
}

func TestTransactionPartialRollbackAfterMidCommitFailure(t *testing.T) {
	db, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Put(defaultColumnFamilyName, []byte("k1"), []byte("before1"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	txn, err := db.Begin(defaultColumnFamilyName)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn.Put([]byte("k1"), []byte("after1"), noExpiry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Delete([]byte("k2")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Force an invalid op onto the tail of the queue directly, simulating
	// a mid-commit failure so Commit must roll back the ops already
	// applied before it.
	txn.ops = append(txn.ops, &txnOp{opCode: serialize.OpCode(99), key: []byte("bogus")})

	if err := txn.Commit(); err == nil {
		t.Fatalf("expected Commit to fail on the invalid trailing op")
	}

	got, err := db.Get(defaultColumnFamilyName, []byte("k1"))
	if err != nil || string(got) != "before1" {
		t.Fatalf("k1 after failed commit: got %q, %v, want before1", got, err)
	}
}
