package ridgedb

import (
	"bytes"
	"testing"

	"github.com/mjpearson/ridgedb/serialize"
)

func TestWALAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := openWAL(dir, false)
	if err != nil {
		t.Fatalf("openWAL: %v", err)
	}
	defer w.close()

	ops := []serialize.Operation{
		{OpCode: serialize.OpPut, Key: []byte("a"), Value: []byte("1"), ColumnFamily: "default"},
		{OpCode: serialize.OpPut, Key: []byte("b"), Value: []byte("2"), ColumnFamily: "default"},
		{OpCode: serialize.OpDelete, Key: []byte("a"), Value: tombstoneValue, ColumnFamily: "default"},
	}
	for _, op := range ops {
		if err := w.Append(op); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var replayed []serialize.Operation
	w.Replay(func(op serialize.Operation) {
		replayed = append(replayed, op)
	})

	if len(replayed) != len(ops) {
		t.Fatalf("replayed %d ops, want %d", len(replayed), len(ops))
	}
	for i, op := range ops {
		if !bytes.Equal(replayed[i].Key, op.Key) || !bytes.Equal(replayed[i].Value, op.Value) {
			t.Fatalf("op %d: got %+v, want %+v", i, replayed[i], op)
		}
	}
}

func TestWALCompressedAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := openWAL(dir, true)
	if err != nil {
		t.Fatalf("openWAL: %v", err)
	}
	defer w.close()

	op := serialize.Operation{
		OpCode:       serialize.OpPut,
		Key:          bytes.Repeat([]byte("k"), 200),
		Value:        bytes.Repeat([]byte("v"), 2000),
		ColumnFamily: "default",
	}
	if err := w.Append(op); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var got serialize.Operation
	found := false
	w.Replay(func(op serialize.Operation) {
		got = op
		found = true
	})
	if !found {
		t.Fatalf("expected one replayed op")
	}
	if !bytes.Equal(got.Value, op.Value) {
		t.Fatalf("value mismatch after compressed round trip")
	}
}

func TestWALTruncate(t *testing.T) {
	dir := t.TempDir()
	w, err := openWAL(dir, false)
	if err != nil {
		t.Fatalf("openWAL: %v", err)
	}
	defer w.close()

	for i := 0; i < 5; i++ {
		if err := w.Append(serialize.Operation{OpCode: serialize.OpPut, Key: []byte{byte(i)}, Value: []byte{byte(i)}, ColumnFamily: "default"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	checkpoint := w.Checkpoint()
	if err := w.Append(serialize.Operation{OpCode: serialize.OpPut, Key: []byte("after"), Value: []byte("v"), ColumnFamily: "default"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := w.Truncate(checkpoint); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	var replayed []serialize.Operation
	w.Replay(func(op serialize.Operation) { replayed = append(replayed, op) })
	if len(replayed) != 1 || string(replayed[0].Key) != "after" {
		t.Fatalf("expected only the post-checkpoint op to survive, got %+v", replayed)
	}
}
