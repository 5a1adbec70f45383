package ridgedb

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mjpearson/ridgedb/bloomfilter"
	"github.com/mjpearson/ridgedb/pager"
	"github.com/mjpearson/ridgedb/serialize"
)

// sstableExtension matches the teacher's SSTABLE_EXTENSION.
const sstableExtension = ".sst"

// SSTable is one immutable, sorted run on disk: a bloom filter covering
// every key it holds, followed by one record per page in ascending
// key order. Grounded on the teacher's SSTable struct and createSSTable/
// sstableFilename/SSTableIterator, with the cuckoo-filter perfect index
// replaced by a bloom-gated linear scan per the fixed-bit-size filter
// contract.
type SSTable struct {
	pager           *pager.Pager
	lock            sync.RWMutex
	compressed      bool
	firstRecordPage int64
	id              uint64
}

func sstableFilename(id uint64) string {
	return fmt.Sprintf("sstable_%d%s", id, sstableExtension)
}

// sstableIDFromFilename parses the id back out of a sstable_<id>.sst
// name; used when loading existing SSTables to seed the id generator.
func sstableIDFromFilename(name string) (uint64, bool) {
	if !strings.HasSuffix(name, sstableExtension) {
		return 0, false
	}
	trimmed := strings.TrimSuffix(name, sstableExtension)
	trimmed = strings.TrimPrefix(trimmed, "sstable_")
	id, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// createSSTable creates a brand new, empty SSTable file under dir.
func createSSTable(dir string, id uint64, compressed bool) (*SSTable, error) {
	p, err := pager.OpenPager(filepath.Join(dir, sstableFilename(id)), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, newErr("createSSTable", KindIO, err)
	}
	return &SSTable{pager: p, compressed: compressed, id: id}, nil
}

// openSSTable opens an existing SSTable file and recomputes the page at
// which records begin, from the reconstructed length of the bloom
// filter's page chain (always a multiple of the pager's page size).
func openSSTable(path string, id uint64, compressed bool) (*SSTable, error) {
	p, err := pager.OpenPager(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, newErr("openSSTable", KindIO, err)
	}

	sst := &SSTable{pager: p, compressed: compressed, id: id}

	if p.Count() > 0 {
		raw, err := p.GetPage(0)
		if err != nil {
			return nil, newErr("openSSTable", KindCorruption, err)
		}
		sst.firstRecordPage = int64(len(raw)) / pager.PAGE_SIZE
	}

	return sst, nil
}

func (sst *SSTable) close() error {
	if err := sst.pager.Close(); err != nil {
		return newErr("SSTable.close", KindIO, err)
	}
	return nil
}

func (sst *SSTable) filename() string {
	return filepath.Base(sst.pager.FileName())
}

// materialize writes a bloom filter covering every entry in records
// (page 0..k) followed by one record per page (page k+1..end), in the
// order the caller supplies them (ascending key order is the caller's
// responsibility, matching the skip list's natural iteration order). It
// reports ok=false without writing anything if records is empty, per
// the "abort rather than write an empty filter page" rule.
func (sst *SSTable) materialize(records []serialize.KVRecord) (ok bool, err error) {
	sst.lock.Lock()
	defer sst.lock.Unlock()

	if len(records) == 0 {
		return false, nil
	}

	filter := bloomfilter.New(len(records), 0.01)
	for _, rec := range records {
		filter.Add(rec.Key)
	}
	if filter.Empty() {
		return false, nil
	}

	filterBytes, err := filter.Serialize()
	if err != nil {
		return false, newErr("SSTable.materialize", KindCorruption, err)
	}
	if _, err := sst.pager.Write(filterBytes); err != nil {
		return false, newErr("SSTable.materialize", KindIO, err)
	}
	sst.firstRecordPage = sst.pager.Count()

	for _, rec := range records {
		data, err := serialize.SerializeKV(rec, sst.compressed)
		if err != nil {
			return false, newErr("SSTable.materialize", KindCorruption, err)
		}
		if _, err := sst.pager.Write(data); err != nil {
			return false, newErr("SSTable.materialize", KindIO, err)
		}
	}

	return true, nil
}

// get answers a point read from this SSTable: a bloom-filter check
// followed, on a possible hit, by a linear page scan comparing keys.
// hit is true whenever the key is located in this table at all — live,
// tombstoned, or expired — so the caller knows to stop scanning older
// SSTables rather than treating a shadowed key as merely absent here.
func (sst *SSTable) get(key []byte) (value []byte, hit bool, err error) {
	sst.lock.RLock()
	defer sst.lock.RUnlock()

	if sst.pager.Count() == 0 {
		return nil, false, nil
	}

	filterData, err := sst.pager.GetPage(0)
	if err != nil {
		return nil, false, newErr("SSTable.get", KindIO, err)
	}
	filter, err := bloomfilter.Deserialize(filterData)
	if err != nil {
		return nil, false, newErr("SSTable.get", KindCorruption, err)
	}
	if !filter.Check(key) {
		return nil, false, nil
	}

	lastPage := sst.pager.Count() - 1
	for pg := sst.firstRecordPage; pg <= lastPage; pg++ {
		data, err := sst.pager.GetPage(pg)
		if err != nil {
			return nil, false, newErr("SSTable.get", KindIO, err)
		}
		rec, err := serialize.DeserializeKV(data, sst.compressed)
		if err != nil {
			continue
		}
		if !bytes.Equal(rec.Key, key) {
			continue
		}
		if isTombstone(rec.Value) || recordExpired(rec.TTL) {
			return nil, true, nil
		}
		return rec.Value, true, nil
	}

	return nil, false, nil
}

// loadSSTables scans a column family's directory for every *.sst file,
// sorted oldest-first by modification time (matching the teacher's
// loadSSTables), opens each one, and seeds the id generator past the
// highest id observed on disk. Resolves Open Question 5 by loading
// every .sst file found rather than assuming a contiguous 0..n-1 range.
func (cf *ColumnFamily) loadSSTables() error {
	entries, err := os.ReadDir(cf.dir)
	if err != nil {
		return newErr("loadSSTables", KindIO, err)
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sstableExtension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files {
		id, ok := sstableIDFromFilename(f.name)
		if !ok {
			continue
		}
		sst, err := openSSTable(filepath.Join(cf.dir, f.name), id, cf.config.Compressed)
		if err != nil {
			continue
		}
		cf.sstables = append(cf.sstables, sst)
		cf.idGen.Observe(id)
	}

	return nil
}
