package ridgedb

import (
	"github.com/mjpearson/ridgedb/serialize"
)

// txnOp is one queued mutation inside a transaction, together with the
// rollback operation that undoes it once applied. Grounded on the
// teacher's Operation/Rollback pair, generalized so a PUT's rollback
// carries the key's *prior* value (captured when the op is queued)
// rather than an unconditional DELETE, per §4.7's redesign of Open
// Question 2.
type txnOp struct {
	opCode     serialize.OpCode
	key, value []byte
	ttl        int64
	rollback   txnRollback
	committed  bool
}

type txnRollback struct {
	opCode serialize.OpCode
	key    []byte
	value  []byte
	ttl    int64
	// hadPriorValue is false when the key did not exist before this
	// txnOp, so rollback must delete it rather than restore a value.
	hadPriorValue bool
}

// Transaction batches PUT/DELETE operations against a single column
// family, applying them to the memtable only at Commit and undoing
// whatever was applied so far on Rollback. Grounded on the teacher's
// Transaction/BeginTransaction/AddOperation/Commit/Rollback.
type Transaction struct {
	db           *Database
	columnFamily string
	ops          []*txnOp
}

// Begin starts a new transaction scoped to one column family.
func (db *Database) Begin(columnFamily string) (*Transaction, error) {
	db.cfLock.RLock()
	_, ok := db.columnFamilies[columnFamily]
	db.cfLock.RUnlock()
	if !ok {
		return nil, newErr("Begin", KindNotFound, nil)
	}
	return &Transaction{db: db, columnFamily: columnFamily}, nil
}

// Put queues a PUT. The rollback captures whatever value (if any) the
// key held immediately before this op, so Rollback can restore exact
// pre-transaction state instead of merely deleting the key.
func (txn *Transaction) Put(key, value []byte, ttl int64) error {
	if key == nil || value == nil {
		return newErr("Transaction.Put", KindInvalidArgument, nil)
	}
	if isTombstone(value) {
		return newErr("Transaction.Put", KindInvalidArgument, nil)
	}

	cf, err := txn.db.columnFamily(txn.columnFamily)
	if err != nil {
		return err
	}

	cf.memtableLock.RLock()
	prior, found, tombstoned := cf.searchMemtable(key)
	cf.memtableLock.RUnlock()

	rb := txnRollback{key: key}
	if found && !tombstoned {
		rb.opCode = serialize.OpPut
		rb.value = prior
		rb.hadPriorValue = true
	} else {
		rb.opCode = serialize.OpDelete
	}

	txn.ops = append(txn.ops, &txnOp{opCode: serialize.OpPut, key: key, value: value, ttl: ttl, rollback: rb})
	return nil
}

// Delete queues a DELETE, capturing the key's current value (if any) so
// Rollback can restore it.
func (txn *Transaction) Delete(key []byte) error {
	if key == nil {
		return newErr("Transaction.Delete", KindInvalidArgument, nil)
	}

	cf, err := txn.db.columnFamily(txn.columnFamily)
	if err != nil {
		return err
	}

	cf.memtableLock.RLock()
	prior, found, tombstoned := cf.searchMemtable(key)
	cf.memtableLock.RUnlock()

	rb := txnRollback{key: key}
	if found && !tombstoned {
		rb.opCode = serialize.OpPut
		rb.value = prior
		rb.hadPriorValue = true
	} else {
		rb.opCode = serialize.OpDelete
	}

	txn.ops = append(txn.ops, &txnOp{opCode: serialize.OpDelete, key: key, rollback: rb})
	return nil
}

// Commit applies every queued operation to the memtable in order,
// WAL-appending each as it is applied (resolving Open Question 1: the
// source only queued these for the background wal writer without
// waiting), then checks the flush threshold once at the end. On any
// failure mid-commit it rolls back whatever was already applied.
func (txn *Transaction) Commit() error {
	cf, err := txn.db.columnFamily(txn.columnFamily)
	if err != nil {
		return err
	}

	cf.memtableLock.Lock()
	defer cf.memtableLock.Unlock()

	for _, op := range txn.ops {
		if err := txn.db.wal.Append(serialize.Operation{
			OpCode:       op.opCode,
			Key:          op.key,
			Value:        op.value,
			TTL:          op.ttl,
			ColumnFamily: txn.columnFamily,
		}); err != nil {
			txn.rollbackLocked(cf)
			return err
		}

		switch op.opCode {
		case serialize.OpPut:
			cf.put(op.key, op.value, op.ttl)
		case serialize.OpDelete:
			cf.delete(op.key)
		default:
			txn.rollbackLocked(cf)
			return newErr("Transaction.Commit", KindInvalidArgument, nil)
		}
		op.committed = true
	}

	if cf.shouldFlush() {
		txn.db.enqueueFlush(txn.columnFamily, cf)
	}

	return nil
}

// Rollback undoes every committed operation, in reverse order, applying
// each rollback op to the memtable (and WAL) the same way a normal
// write would be applied.
func (txn *Transaction) Rollback() error {
	cf, err := txn.db.columnFamily(txn.columnFamily)
	if err != nil {
		return err
	}

	cf.memtableLock.Lock()
	defer cf.memtableLock.Unlock()

	txn.rollbackLocked(cf)
	return nil
}

// rollbackLocked applies rollback ops in reverse order. Caller must
// already hold cf.memtableLock.
func (txn *Transaction) rollbackLocked(cf *ColumnFamily) {
	for i := len(txn.ops) - 1; i >= 0; i-- {
		op := txn.ops[i]
		if !op.committed {
			continue
		}

		rb := op.rollback
		_ = txn.db.wal.Append(serialize.Operation{
			OpCode:       rb.opCode,
			Key:          rb.key,
			Value:        rb.value,
			TTL:          rb.ttl,
			ColumnFamily: txn.columnFamily,
		})

		if rb.hadPriorValue {
			cf.put(rb.key, rb.value, rb.ttl)
		} else {
			cf.delete(rb.key)
		}
		op.committed = false
	}
}
