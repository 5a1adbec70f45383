// Package ridgedb implements an embedded key-value storage engine
// organized as a log-structured merge tree with column-family
// isolation. Applications embed it as a library: one process opens a
// database directory and owns it exclusively for the lifetime of the
// process.
package ridgedb

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/mjpearson/ridgedb/queue"
	"github.com/mjpearson/ridgedb/serialize"
)

// Database is the top-level handle: it owns the shared WAL, the
// background flush worker, and the dynamic set of column families.
// Grounded on the teacher's K4 struct, split so what used to be a
// single keyspace's fields now live on ColumnFamily, with the WAL and
// flush pipeline promoted to shared, database-wide infrastructure.
type Database struct {
	opts Options

	cfLock         sync.RWMutex
	columnFamilies map[string]*ColumnFamily

	wal *WAL

	flushQueue *queue.Queue[flushItem]
	flushLock  sync.Mutex
	flushCond  *sync.Cond
	stopFlush  bool

	wg sync.WaitGroup
}

// defaultColumnFamilyName is created automatically on first Open if no
// column families exist yet, mirroring the teacher's single implicit
// keyspace for callers that don't need isolation.
const defaultColumnFamilyName = "default"

// Open opens (or creates) a database at opts.Path: it creates the
// directory if needed, opens the shared WAL, loads every existing
// column family subdirectory, replays the WAL into each one's memtable,
// and starts the background flush worker. Grounded on the teacher's
// Open/loadSSTables/RecoverFromWAL.
func Open(opts Options) (*Database, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, newErr("Open", KindIO, err)
	}

	wal, err := openWAL(opts.Path, opts.CompressedWAL)
	if err != nil {
		return nil, err
	}

	db := &Database{
		opts:           opts,
		columnFamilies: make(map[string]*ColumnFamily),
		wal:            wal,
		flushQueue:     queue.New[flushItem](),
	}
	db.flushCond = sync.NewCond(&db.flushLock)

	if err := db.loadColumnFamilies(); err != nil {
		_ = wal.close()
		return nil, err
	}

	if len(db.columnFamilies) == 0 {
		if _, err := db.CreateColumnFamily(ColumnFamilyConfig{
			Name:                   defaultColumnFamilyName,
			MemtableFlushThreshold: opts.DefaultFlushThresholdBytes,
			MemtableMaxLevel:       opts.DefaultMaxLevel,
			MemtableProbability:    opts.DefaultProbability,
			Compressed:             opts.CompressedWAL,
		}); err != nil {
			_ = wal.close()
			return nil, err
		}
	}

	db.replayWAL()

	db.wg.Add(1)
	go db.flushWorker()

	db.logf("database opened at %s", opts.Path)

	return db, nil
}

// loadColumnFamilies scans opts.Path for column family subdirectories
// (any directory holding a CONFIG file) and loads each one.
func (db *Database) loadColumnFamilies() error {
	entries, err := os.ReadDir(db.opts.Path)
	if err != nil {
		return newErr("loadColumnFamilies", KindIO, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(db.opts.Path, e.Name())
		if _, err := os.Stat(filepath.Join(dir, configFileName)); err != nil {
			continue
		}
		cf, err := loadColumnFamily(dir)
		if err != nil {
			db.logf("failed to load column family %s: %v", e.Name(), err)
			continue
		}
		db.columnFamilies[e.Name()] = cf
	}

	return nil
}

// replayWAL dispatches every operation currently in the WAL to the
// column family it names, applying it directly to that family's
// memtable. Best-effort: Replay itself stops silently at the first
// corrupt entry, and an operation naming an unknown or already-dropped
// column family is skipped.
func (db *Database) replayWAL() {
	db.wal.Replay(func(op serialize.Operation) {
		db.cfLock.RLock()
		cf, ok := db.columnFamilies[op.ColumnFamily]
		db.cfLock.RUnlock()
		if !ok {
			return
		}

		cf.memtableLock.Lock()
		switch op.OpCode {
		case serialize.OpPut:
			cf.put(op.Key, op.Value, op.TTL)
		case serialize.OpDelete:
			cf.delete(op.Key)
		}
		cf.memtableLock.Unlock()
	})
}

// Close flushes any non-empty memtables, stops the background flush
// worker (letting it drain whatever remains in the queue first), and
// closes every column family's SSTables and the WAL. Grounded on the
// teacher's Close.
func (db *Database) Close() error {
	db.cfLock.RLock()
	for name, cf := range db.columnFamilies {
		cf.memtableLock.Lock()
		if cf.memtable.Count() > 0 {
			db.enqueueFlush(name, cf)
		}
		cf.memtableLock.Unlock()
	}
	db.cfLock.RUnlock()

	db.flushLock.Lock()
	db.stopFlush = true
	db.flushCond.Signal()
	db.flushLock.Unlock()

	db.wg.Wait()

	db.cfLock.Lock()
	defer db.cfLock.Unlock()
	for _, cf := range db.columnFamilies {
		if err := cf.close(); err != nil {
			return err
		}
	}

	return db.wal.close()
}

func (db *Database) logf(format string, args ...interface{}) {
	db.opts.logf(format, args...)
}

// columnFamily looks up a column family by name under the shared lock.
func (db *Database) columnFamily(name string) (*ColumnFamily, error) {
	db.cfLock.RLock()
	defer db.cfLock.RUnlock()

	cf, ok := db.columnFamilies[name]
	if !ok {
		return nil, newErr("columnFamily", KindNotFound, nil)
	}
	return cf, nil
}

// CreateColumnFamily creates and registers a new, empty column family.
// Fails with a conflict error if the name is already in use.
func (db *Database) CreateColumnFamily(cfg ColumnFamilyConfig) (*ColumnFamily, error) {
	db.cfLock.Lock()
	defer db.cfLock.Unlock()

	if _, exists := db.columnFamilies[cfg.Name]; exists {
		return nil, newErr("CreateColumnFamily", KindConflict, nil)
	}

	cf, err := createColumnFamily(db.opts.Path, cfg)
	if err != nil {
		return nil, err
	}

	db.columnFamilies[cfg.Name] = cf
	return cf, nil
}

// DropColumnFamily removes a column family and its on-disk directory
// entirely.
func (db *Database) DropColumnFamily(name string) error {
	db.cfLock.Lock()
	defer db.cfLock.Unlock()

	cf, ok := db.columnFamilies[name]
	if !ok {
		return newErr("DropColumnFamily", KindConflict, nil)
	}

	if err := cf.drop(); err != nil {
		return err
	}

	delete(db.columnFamilies, name)
	return nil
}

// Put durably writes key/value into columnFamily. ttl <= 0 means the
// entry never expires; a positive ttl is an absolute Unix-second
// deadline. The WAL is appended before the memtable is mutated.
func (db *Database) Put(columnFamily string, key, value []byte, ttl int64) error {
	if key == nil || value == nil {
		return newErr("Put", KindInvalidArgument, nil)
	}
	if isTombstone(value) {
		return newErr("Put", KindInvalidArgument, nil)
	}

	cf, err := db.columnFamily(columnFamily)
	if err != nil {
		return err
	}

	cf.memtableLock.Lock()
	defer cf.memtableLock.Unlock()

	if err := db.wal.Append(serialize.Operation{
		OpCode:       serialize.OpPut,
		Key:          key,
		Value:        value,
		TTL:          ttl,
		ColumnFamily: columnFamily,
	}); err != nil {
		return err
	}

	cf.put(key, value, ttl)

	if cf.shouldFlush() {
		db.enqueueFlush(columnFamily, cf)
	}

	return nil
}

// Delete removes key from columnFamily by writing a tombstone.
func (db *Database) Delete(columnFamily string, key []byte) error {
	if key == nil {
		return newErr("Delete", KindInvalidArgument, nil)
	}

	cf, err := db.columnFamily(columnFamily)
	if err != nil {
		return err
	}

	cf.memtableLock.Lock()
	defer cf.memtableLock.Unlock()

	if err := db.wal.Append(serialize.Operation{
		OpCode:       serialize.OpDelete,
		Key:          key,
		Value:        tombstoneValue,
		ColumnFamily: columnFamily,
	}); err != nil {
		return err
	}

	cf.delete(key)

	if cf.shouldFlush() {
		db.enqueueFlush(columnFamily, cf)
	}

	return nil
}

// Get reads key from columnFamily: the memtable is checked first, then
// each SSTable newest-to-oldest. A missing key, a tombstoned key, and
// an expired key are all reported as "not found" — callers that need to
// distinguish them should use a Cursor instead.
func (db *Database) Get(columnFamily string, key []byte) ([]byte, error) {
	if key == nil {
		return nil, newErr("Get", KindInvalidArgument, nil)
	}

	cf, err := db.columnFamily(columnFamily)
	if err != nil {
		return nil, err
	}

	cf.memtableLock.RLock()
	value, found, tombstoned := cf.searchMemtable(key)
	cf.memtableLock.RUnlock()
	if found {
		if tombstoned {
			return nil, newErr("Get", KindNotFound, nil)
		}
		return value, nil
	}

	cf.sstablesLock.RLock()
	defer cf.sstablesLock.RUnlock()

	for i := len(cf.sstables) - 1; i >= 0; i-- {
		value, hit, err := cf.sstables[i].get(key)
		if err != nil {
			return nil, err
		}
		if hit {
			if value == nil {
				// Tombstoned or expired in this table: shadows any
				// older value for the same key, so stop here.
				return nil, newErr("Get", KindNotFound, nil)
			}
			return value, nil
		}
	}

	return nil, newErr("Get", KindNotFound, nil)
}
