package serialize

import (
	"bytes"
	"testing"
)

func TestKVRoundTripUncompressed(t *testing.T) {
	rec := KVRecord{Key: []byte("hello"), Value: []byte("world"), TTL: 12345}

	data, err := SerializeKV(rec, false)
	if err != nil {
		t.Fatalf("SerializeKV: %v", err)
	}
	got, err := DeserializeKV(data, false)
	if err != nil {
		t.Fatalf("DeserializeKV: %v", err)
	}
	if !bytes.Equal(got.Key, rec.Key) || !bytes.Equal(got.Value, rec.Value) || got.TTL != rec.TTL {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestKVRoundTripCompressed(t *testing.T) {
	rec := KVRecord{
		Key:   bytes.Repeat([]byte("abc"), 50),
		Value: bytes.Repeat([]byte("xyz123"), 50),
		TTL:   -1,
	}

	data, err := SerializeKV(rec, true)
	if err != nil {
		t.Fatalf("SerializeKV: %v", err)
	}
	got, err := DeserializeKV(data, true)
	if err != nil {
		t.Fatalf("DeserializeKV: %v", err)
	}
	if !bytes.Equal(got.Key, rec.Key) || !bytes.Equal(got.Value, rec.Value) || got.TTL != rec.TTL {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestOperationRoundTrip(t *testing.T) {
	op := Operation{
		OpCode:       OpPut,
		Key:          []byte("k"),
		Value:        []byte("v"),
		TTL:          0,
		ColumnFamily: "default",
	}

	data, err := SerializeOperation(op, false)
	if err != nil {
		t.Fatalf("SerializeOperation: %v", err)
	}
	got, err := DeserializeOperation(data, false)
	if err != nil {
		t.Fatalf("DeserializeOperation: %v", err)
	}
	if got.OpCode != op.OpCode || !bytes.Equal(got.Key, op.Key) || !bytes.Equal(got.Value, op.Value) ||
		got.TTL != op.TTL || got.ColumnFamily != op.ColumnFamily {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, op)
	}
}

func TestOperationDeleteRoundTripCompressed(t *testing.T) {
	op := Operation{
		OpCode:       OpDelete,
		Key:          []byte("deleted-key"),
		Value:        []byte("prior-value-for-rollback"),
		TTL:          999,
		ColumnFamily: "cf_a",
	}

	data, err := SerializeOperation(op, true)
	if err != nil {
		t.Fatalf("SerializeOperation: %v", err)
	}
	got, err := DeserializeOperation(data, true)
	if err != nil {
		t.Fatalf("DeserializeOperation: %v", err)
	}
	if got.OpCode != OpDelete || !bytes.Equal(got.Value, op.Value) || got.ColumnFamily != op.ColumnFamily {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, op)
	}
}

func TestColumnFamilyConfigRoundTrip(t *testing.T) {
	cfg := ColumnFamilyConfig{
		Name:           "events",
		FlushThreshold: 1024 * 1024 * 4,
		MaxLevel:       12,
		Probability:    0.5,
		Compressed:     true,
	}

	data, err := SerializeColumnFamilyConfig(cfg)
	if err != nil {
		t.Fatalf("SerializeColumnFamilyConfig: %v", err)
	}
	got, err := DeserializeColumnFamilyConfig(data)
	if err != nil {
		t.Fatalf("DeserializeColumnFamilyConfig: %v", err)
	}
	if got != cfg {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, cfg)
	}
}

func TestEmptyKeyValue(t *testing.T) {
	rec := KVRecord{Key: []byte{}, Value: []byte{}, TTL: 0}

	data, err := SerializeKV(rec, false)
	if err != nil {
		t.Fatalf("SerializeKV: %v", err)
	}
	got, err := DeserializeKV(data, false)
	if err != nil {
		t.Fatalf("DeserializeKV: %v", err)
	}
	if len(got.Key) != 0 || len(got.Value) != 0 {
		t.Fatalf("expected empty key/value, got %+v", got)
	}
}
