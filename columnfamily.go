package ridgedb

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/mjpearson/ridgedb/idgen"
	"github.com/mjpearson/ridgedb/serialize"
	"github.com/mjpearson/ridgedb/skiplist"
)

// configFileName is the name of the persisted column family config file
// inside a column family's own subdirectory.
const configFileName = "CONFIG"

// ColumnFamilyConfig describes a column family's tuning knobs. Grounded
// on the teacher's Open(directory, memtableFlushThreshold,
// compactionInterval, logging, compress, args...) parameter list,
// generalized to one config struct per isolated keyspace instead of one
// set of knobs for the whole database.
type ColumnFamilyConfig struct {
	Name                   string
	MemtableFlushThreshold int64
	MemtableMaxLevel       int
	MemtableProbability    float64
	Compressed             bool
}

// Validate enforces the minimums a column family needs to behave
// sanely: a name long enough to be meaningful, a flush threshold big
// enough that flushes aren't constant, a skip list tall enough to stay
// balanced, and a probability that keeps the skip list's expected
// height bounded.
func (c ColumnFamilyConfig) Validate() error {
	if len(c.Name) < minNameLength {
		return newErr("ColumnFamilyConfig.Validate", KindInvalidArgument, nil)
	}
	if c.MemtableFlushThreshold < minFlushThresholdBytes {
		return newErr("ColumnFamilyConfig.Validate", KindInvalidArgument, nil)
	}
	if c.MemtableMaxLevel < minMaxLevel {
		return newErr("ColumnFamilyConfig.Validate", KindInvalidArgument, nil)
	}
	if c.MemtableProbability < minProbability {
		return newErr("ColumnFamilyConfig.Validate", KindInvalidArgument, nil)
	}
	return nil
}

func (c ColumnFamilyConfig) toWire() serialize.ColumnFamilyConfig {
	return serialize.ColumnFamilyConfig{
		Name:           c.Name,
		FlushThreshold: c.MemtableFlushThreshold,
		MaxLevel:       int32(c.MemtableMaxLevel),
		Probability:    c.MemtableProbability,
		Compressed:     c.Compressed,
	}
}

func fromWireConfig(w serialize.ColumnFamilyConfig) ColumnFamilyConfig {
	return ColumnFamilyConfig{
		Name:                   w.Name,
		MemtableFlushThreshold: w.FlushThreshold,
		MemtableMaxLevel:       int(w.MaxLevel),
		MemtableProbability:    w.Probability,
		Compressed:             w.Compressed,
	}
}

// ColumnFamily is an isolated keyspace: its own memtable, its own
// on-disk SSTables, its own id generator, and its own locks. Grounded on
// the teacher's K4 struct, split so every field that used to describe
// the single global keyspace now describes one of potentially many.
type ColumnFamily struct {
	config ColumnFamilyConfig
	dir    string

	memtable     *skiplist.SkipList
	memtableLock sync.RWMutex

	sstables     []*SSTable
	sstablesLock sync.RWMutex

	idGen *idgen.Generator
}

func columnFamilyDir(dbPath, name string) string {
	return filepath.Join(dbPath, name)
}

// createColumnFamily makes a new, empty column family on disk and
// returns it in memory. The caller must already hold db.cfLock.
func createColumnFamily(dbPath string, cfg ColumnFamilyConfig) (*ColumnFamily, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir := columnFamilyDir(dbPath, cfg.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, newErr("createColumnFamily", KindIO, err)
	}

	wire, err := serialize.SerializeColumnFamilyConfig(cfg.toWire())
	if err != nil {
		return nil, newErr("createColumnFamily", KindCorruption, err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), wire, 0644); err != nil {
		return nil, newErr("createColumnFamily", KindIO, err)
	}

	return &ColumnFamily{
		config:   cfg,
		dir:      dir,
		memtable: skiplist.New(cfg.MemtableMaxLevel, cfg.MemtableProbability),
		sstables: make([]*SSTable, 0),
		idGen:    idgen.New(0),
	}, nil
}

// loadColumnFamily opens an existing column family directory: its
// persisted config, its SSTable files (sorted oldest-first, as the
// teacher's loadSSTables does), and seeds its id generator past the
// highest id found on disk.
func loadColumnFamily(dir string) (*ColumnFamily, error) {
	raw, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		return nil, newErr("loadColumnFamily", KindIO, err)
	}
	wire, err := serialize.DeserializeColumnFamilyConfig(raw)
	if err != nil {
		return nil, newErr("loadColumnFamily", KindCorruption, err)
	}
	cfg := fromWireConfig(wire)

	cf := &ColumnFamily{
		config:   cfg,
		dir:      dir,
		memtable: skiplist.New(cfg.MemtableMaxLevel, cfg.MemtableProbability),
		sstables: make([]*SSTable, 0),
		idGen:    idgen.New(0),
	}

	if err := cf.loadSSTables(); err != nil {
		return nil, err
	}

	return cf, nil
}

// drop removes a column family's entire directory from disk, after
// closing every SSTable pager it has open.
func (cf *ColumnFamily) drop() error {
	cf.sstablesLock.Lock()
	defer cf.sstablesLock.Unlock()

	for _, sst := range cf.sstables {
		_ = sst.close()
	}
	if err := os.RemoveAll(cf.dir); err != nil {
		return newErr("ColumnFamily.drop", KindIO, err)
	}
	return nil
}

func (cf *ColumnFamily) close() error {
	cf.sstablesLock.Lock()
	defer cf.sstablesLock.Unlock()

	for _, sst := range cf.sstables {
		if err := sst.close(); err != nil {
			return newErr("ColumnFamily.close", KindIO, err)
		}
	}
	return nil
}
