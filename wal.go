package ridgedb

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/mjpearson/ridgedb/pager"
	"github.com/mjpearson/ridgedb/serialize"
)

// walFileName matches the teacher's WAL_EXTENSION, used here as the
// whole filename since the database has exactly one WAL shared across
// every column family.
const walFileName = ".wal"

// WAL is the write-ahead log: one paged file per database, one page per
// operation, shared across every column family (each operation records
// its own column family name). Grounded on the teacher's wal field
// (a *pager.Pager) and backgroundWalWriter/encodeOp/decodeOp, but
// tightened to append synchronously per §4.1a's redesign: Append
// returns only once the operation has landed in the pager, so a crash
// immediately after a successful Put/Delete/TxnCommit return cannot
// lose that mutation.
type WAL struct {
	pager      *pager.Pager
	lock       sync.Mutex
	compressed bool
	// discarded counts the pages Truncate has removed from the front of
	// the log, so a checkpoint taken before a truncation still names the
	// same operation afterwards.
	discarded int64
}

func openWAL(dbPath string, compressed bool) (*WAL, error) {
	p, err := pager.OpenPager(filepath.Join(dbPath, walFileName), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, newErr("openWAL", KindIO, err)
	}
	return &WAL{pager: p, compressed: compressed}, nil
}

// Append serializes op and writes it as the next WAL page, waiting for
// the write to land before returning.
func (w *WAL) Append(op serialize.Operation) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	data, err := serialize.SerializeOperation(op, w.compressed)
	if err != nil {
		return newErr("WAL.Append", KindCorruption, err)
	}
	if _, err := w.pager.Write(data); err != nil {
		return newErr("WAL.Append", KindIO, err)
	}
	return nil
}

// Replay iterates every operation currently in the WAL, in page order,
// invoking visit for each. It stops at the first deserialization or
// read failure without returning an error, matching the best-effort
// recovery contract: a corrupted tail must not prevent Open from
// succeeding.
func (w *WAL) Replay(visit func(serialize.Operation)) {
	w.lock.Lock()
	defer w.lock.Unlock()

	last := w.pager.Count() - 1
	for pg := int64(0); pg <= last; pg++ {
		data, err := w.pager.GetPage(pg)
		if err != nil {
			return
		}
		op, err := serialize.DeserializeOperation(data, w.compressed)
		if err != nil {
			return
		}
		visit(op)
	}
}

// Checkpoint returns the WAL's current position (pages already discarded
// plus the current page count), recorded alongside a frozen memtable
// snapshot when it is enqueued for flush: every page before this mark
// holds an operation that snapshot already covers.
func (w *WAL) Checkpoint() int64 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.discarded + w.pager.Count()
}

// Truncate discards every page before checkpoint, keeping everything
// appended since (operations against whatever memtable replaced the one
// that was just flushed). The pager can only shrink a file from the
// tail, so this works by reading the surviving tail pages, truncating
// the file to empty, and rewriting them from page 0.
func (w *WAL) Truncate(checkpoint int64) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	total := w.pager.Count()
	drop := checkpoint - w.discarded
	if drop <= 0 || drop > total {
		return nil
	}

	tail := make([][]byte, 0, total-drop)
	for pg := drop; pg < total; pg++ {
		data, err := w.pager.GetPage(pg)
		if err != nil {
			return newErr("WAL.Truncate", KindIO, err)
		}
		tail = append(tail, data)
	}

	if err := w.pager.Truncate(0); err != nil {
		return newErr("WAL.Truncate", KindIO, err)
	}
	w.discarded += drop
	for _, data := range tail {
		if _, err := w.pager.Write(data); err != nil {
			return newErr("WAL.Truncate", KindIO, err)
		}
	}
	return nil
}

func (w *WAL) close() error {
	if err := w.pager.Close(); err != nil {
		return newErr("WAL.close", KindIO, err)
	}
	return nil
}
