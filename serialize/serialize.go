// Package serialize implements the length-prefixed binary codecs the
// core assumes from its serializer collaborator: key-value records,
// operations (the WAL's unit of durability), and column-family configs.
// Bloom filters are encoded by the bloomfilter package itself. Grounded on the teacher's encodeKv/decodeKV and
// encodeOp/decodeOp functions, generalized to take a compression flag
// per record (matching column_family_config.compressed / the WAL's
// compressed_wal flag) and, for operations, to carry the column-family
// name the spec's Operation type requires.
package serialize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mjpearson/ridgedb/compressor"
)

// compressionWindow matches the teacher's COMPRESSION_WINDOW_SIZE.
const compressionWindow = 1024 * 32

// OpCode distinguishes a WAL/transaction operation.
type OpCode int32

const (
	OpPut OpCode = iota
	OpDelete
)

// KVRecord is the unit stored in the memtable and written, one per page,
// into an SSTable.
type KVRecord struct {
	Key   []byte
	Value []byte
	TTL   int64
}

// Operation is the unit appended to the write-ahead log and replayed on
// open.
type Operation struct {
	OpCode       OpCode
	Key          []byte
	Value        []byte
	TTL          int64
	ColumnFamily string
}

func compressBytes(b []byte) ([]byte, error) {
	c, err := compressor.NewCompressor(compressionWindow)
	if err != nil {
		return nil, err
	}
	return c.Compress(b), nil
}

func decompressBytes(b []byte) ([]byte, error) {
	c, err := compressor.NewCompressor(compressionWindow)
	if err != nil {
		return nil, err
	}
	return c.Decompress(b), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, int32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("serialize: invalid length prefix %d", n)
	}
	if int(n) > r.Len() {
		return nil, ErrShortBuffer
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// SerializeKV encodes a key-value record, optionally compressing the key
// and value independently (matching the teacher's per-field
// compression).
func SerializeKV(rec KVRecord, compressed bool) ([]byte, error) {
	key, value := rec.Key, rec.Value
	if compressed {
		var err error
		key, err = compressBytes(key)
		if err != nil {
			return nil, err
		}
		value, err = compressBytes(value)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := writeBytes(&buf, key); err != nil {
		return nil, err
	}
	if err := writeBytes(&buf, value); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, rec.TTL); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeKV decodes a key-value record previously produced by
// SerializeKV.
func DeserializeKV(data []byte, compressed bool) (KVRecord, error) {
	r := bytes.NewReader(data)

	key, err := readBytes(r)
	if err != nil {
		return KVRecord{}, err
	}
	value, err := readBytes(r)
	if err != nil {
		return KVRecord{}, err
	}
	var ttl int64
	if err := binary.Read(r, binary.LittleEndian, &ttl); err != nil {
		return KVRecord{}, err
	}

	if compressed {
		key, err = decompressBytes(key)
		if err != nil {
			return KVRecord{}, err
		}
		value, err = decompressBytes(value)
		if err != nil {
			return KVRecord{}, err
		}
	}

	return KVRecord{Key: key, Value: value, TTL: ttl}, nil
}

// SerializeOperation encodes an Operation for appending to the WAL.
func SerializeOperation(op Operation, compressed bool) ([]byte, error) {
	key, value := op.Key, op.Value
	if compressed {
		var err error
		key, err = compressBytes(key)
		if err != nil {
			return nil, err
		}
		value, err = compressBytes(value)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, int32(op.OpCode)); err != nil {
		return nil, err
	}
	if err := writeBytes(&buf, key); err != nil {
		return nil, err
	}
	if err := writeBytes(&buf, value); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, op.TTL); err != nil {
		return nil, err
	}
	if err := writeBytes(&buf, []byte(op.ColumnFamily)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeOperation decodes an Operation previously produced by
// SerializeOperation.
func DeserializeOperation(data []byte, compressed bool) (Operation, error) {
	r := bytes.NewReader(data)

	var opCode int32
	if err := binary.Read(r, binary.LittleEndian, &opCode); err != nil {
		return Operation{}, err
	}

	key, err := readBytes(r)
	if err != nil {
		return Operation{}, err
	}
	value, err := readBytes(r)
	if err != nil {
		return Operation{}, err
	}
	var ttl int64
	if err := binary.Read(r, binary.LittleEndian, &ttl); err != nil {
		return Operation{}, err
	}
	cfName, err := readBytes(r)
	if err != nil {
		return Operation{}, err
	}

	if compressed {
		key, err = decompressBytes(key)
		if err != nil {
			return Operation{}, err
		}
		value, err = decompressBytes(value)
		if err != nil {
			return Operation{}, err
		}
	}

	return Operation{
		OpCode:       OpCode(opCode),
		Key:          key,
		Value:        value,
		TTL:          ttl,
		ColumnFamily: string(cfName),
	}, nil
}

// ColumnFamilyConfig round-trips a column family's persisted
// configuration file.
type ColumnFamilyConfig struct {
	Name           string
	FlushThreshold int64
	MaxLevel       int32
	Probability    float64
	Compressed     bool
}

// SerializeColumnFamilyConfig encodes a ColumnFamilyConfig for the
// per-family config file (named CONFIG inside the family's directory).
func SerializeColumnFamilyConfig(cfg ColumnFamilyConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeBytes(&buf, []byte(cfg.Name)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, cfg.FlushThreshold); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, cfg.MaxLevel); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, cfg.Probability); err != nil {
		return nil, err
	}
	var compressedByte byte
	if cfg.Compressed {
		compressedByte = 1
	}
	if err := buf.WriteByte(compressedByte); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeColumnFamilyConfig decodes a ColumnFamilyConfig previously
// produced by SerializeColumnFamilyConfig.
func DeserializeColumnFamilyConfig(data []byte) (ColumnFamilyConfig, error) {
	r := bytes.NewReader(data)

	name, err := readBytes(r)
	if err != nil {
		return ColumnFamilyConfig{}, err
	}
	var cfg ColumnFamilyConfig
	cfg.Name = string(name)

	if err := binary.Read(r, binary.LittleEndian, &cfg.FlushThreshold); err != nil {
		return ColumnFamilyConfig{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &cfg.MaxLevel); err != nil {
		return ColumnFamilyConfig{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &cfg.Probability); err != nil {
		return ColumnFamilyConfig{}, err
	}
	compressedByte, err := r.ReadByte()
	if err != nil {
		return ColumnFamilyConfig{}, err
	}
	cfg.Compressed = compressedByte == 1

	return cfg, nil
}

// ErrShortBuffer is returned when a buffer ends before a length-prefixed
// field can be fully read.
var ErrShortBuffer = errors.New("serialize: short buffer")
