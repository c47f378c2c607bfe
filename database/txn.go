package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/tevino/abool"

	"github.com/safing/recordstore/database/record"
	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/log"
)

// Txn buffers writes until they are committed or rolled back.
// Only one transaction is open per store: beginning a new one discards the
// buffer of the previous one, whose handle then returns ErrTxnClosed.
type Txn struct {
	store *Store
	id    string

	ops []*txnOp
	// index maps cache keys to their op in ops.
	index              map[string]int
	deletedCollections map[string]struct{}
	opsLock            sync.Mutex

	closed *abool.AtomicBool
}

type txnOp struct {
	storage.Op
	record *record.User
}

// Begin opens a new transaction, superseding the currently open one.
func (s *Store) Begin() *Txn {
	txn := &Txn{
		store:              s,
		id:                 uuid.Must(uuid.NewV4()).String(),
		index:              make(map[string]int),
		deletedCollections: make(map[string]struct{}),
		closed:             abool.New(),
	}

	s.activeTxnLock.Lock()
	previous := s.activeTxn
	s.activeTxn = txn
	s.activeTxnLock.Unlock()

	if previous != nil && previous.close() {
		log.Debugf("database: transaction %s superseded by %s", previous.id, txn.id)
	}
	log.Tracef("database: began transaction %s", txn.id)
	return txn
}

// InTransaction returns whether a transaction is open.
func (s *Store) InTransaction() bool {
	s.activeTxnLock.Lock()
	defer s.activeTxnLock.Unlock()

	return s.activeTxn != nil && s.activeTxn.Active()
}

func (s *Store) releaseTxn(txn *Txn) {
	s.activeTxnLock.Lock()
	defer s.activeTxnLock.Unlock()

	if s.activeTxn == txn {
		s.activeTxn = nil
	}
}

// close marks the transaction as closed and drops its buffer.
// It returns false if it was already closed.
func (t *Txn) close() bool {
	if !t.closed.SetToIf(false, true) {
		return false
	}

	t.opsLock.Lock()
	t.ops = nil
	t.index = nil
	t.deletedCollections = nil
	t.opsLock.Unlock()
	return true
}

// ID returns the unique ID of the transaction.
func (t *Txn) ID() string {
	return t.id
}

// Active returns whether the transaction can still be used.
func (t *Txn) Active() bool {
	return t.closed.IsNotSet()
}

// Len returns the number of buffered operations.
func (t *Txn) Len() int {
	t.opsLock.Lock()
	defer t.opsLock.Unlock()

	var n int
	for _, op := range t.ops {
		if op != nil {
			n++
		}
	}
	return n
}

// add buffers the op, replacing a buffered op for the same key.
// Must be called with opsLock held.
func (t *Txn) add(op *txnOp) {
	if op.IsCollectionDelete() {
		// Drop everything buffered for the collection before.
		for i, existing := range t.ops {
			if existing != nil && existing.Collection == op.Collection {
				t.ops[i] = nil
				if !existing.IsCollectionDelete() {
					delete(t.index, cacheKey(existing.Collection, existing.Key))
				}
			}
		}
		t.deletedCollections[op.Collection] = struct{}{}
		t.ops = append(t.ops, op)
		return
	}

	ck := cacheKey(op.Collection, op.Key)
	if i, ok := t.index[ck]; ok {
		t.ops[i] = op
		return
	}
	t.index[ck] = len(t.ops)
	t.ops = append(t.ops, op)
}

// Put buffers the record. Nothing is written until Commit.
func (t *Txn) Put(collection, key string, r *record.User) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: missing record", ErrInvalidArgument)
	}

	data, err := r.Marshal(t.store.format)
	if err != nil {
		return err
	}

	t.opsLock.Lock()
	defer t.opsLock.Unlock()

	if t.closed.IsSet() {
		return ErrTxnClosed
	}
	t.add(&txnOp{
		Op: storage.Op{
			Collection: collection,
			Key:        key,
			Data:       data,
		},
		record: copyUser(r),
	})
	return nil
}

// Delete buffers the deletion of the record. An empty key deletes the whole
// collection, including what was buffered for it before.
func (t *Txn) Delete(collection, key string) error {
	if key == "" {
		if err := checkCollection(collection); err != nil {
			return err
		}
	} else if err := checkKey(collection, key); err != nil {
		return err
	}

	t.opsLock.Lock()
	defer t.opsLock.Unlock()

	if t.closed.IsSet() {
		return ErrTxnClosed
	}
	t.add(&txnOp{
		Op: storage.Op{
			Collection: collection,
			Key:        key,
			Delete:     true,
		},
	})
	return nil
}

// Get returns the record as it would be after a commit: buffered writes are
// returned first, everything else is read from the store.
func (t *Txn) Get(collection, key string) (*record.User, error) {
	if err := checkKey(collection, key); err != nil {
		return nil, err
	}

	t.opsLock.Lock()
	if t.closed.IsSet() {
		t.opsLock.Unlock()
		return nil, ErrTxnClosed
	}
	if i, ok := t.index[cacheKey(collection, key)]; ok {
		op := t.ops[i]
		t.opsLock.Unlock()
		if op.Delete {
			return nil, nil
		}
		return copyUser(op.record), nil
	}
	_, collectionDeleted := t.deletedCollections[collection]
	t.opsLock.Unlock()

	if collectionDeleted {
		return nil, nil
	}
	return t.store.Get(collection, key)
}

// Rollback discards the transaction. Rolling back a closed transaction does
// nothing.
func (t *Txn) Rollback() {
	started := time.Now()
	if !t.close() {
		return
	}
	t.store.releaseTxn(t)
	t.store.finish(OpRollback, "", "", t.id, started, nil)
	log.Tracef("database: rolled back transaction %s", t.id)
}

// Commit writes all buffered operations. The transaction is closed
// afterwards, whether the commit succeeded or not.
func (t *Txn) Commit() (err error) {
	started := time.Now()

	t.opsLock.Lock()
	if !t.closed.SetToIf(false, true) {
		t.opsLock.Unlock()
		return ErrTxnClosed
	}
	ops := make([]*txnOp, 0, len(t.ops))
	for _, op := range t.ops {
		if op != nil {
			ops = append(ops, op)
		}
	}
	t.ops = nil
	t.index = nil
	t.deletedCollections = nil
	t.opsLock.Unlock()

	s := t.store
	s.releaseTxn(t)

	if len(ops) == 0 {
		return nil
	}
	if s.closed.IsSet() {
		return ErrShuttingDown
	}

	defer func() {
		s.finish(OpCommit, "", "", t.id, started, err)
	}()

	collections := make([]string, 0, len(ops))
	storageOps := make([]storage.Op, 0, len(ops))
	for _, op := range ops {
		collections = append(collections, op.Collection)
		storageOps = append(storageOps, op.Op)
	}

	unlock := s.locks.lockMany(collections)
	applyErr := s.storage.Apply(storageOps)
	for _, op := range ops {
		switch {
		case op.IsCollectionDelete():
			s.cache.removeCollection(op.Collection)
		case op.Delete || applyErr != nil:
			s.cache.remove(op.Collection, op.Key)
		default:
			s.cache.set(op.Collection, op.Key, op.record)
		}
	}
	unlock()

	for _, op := range ops {
		e := &Event{
			Op:         OpPut,
			Collection: op.Collection,
			Key:        op.Key,
			TxnID:      t.id,
			Err:        applyErr,
			Time:       started,
			Duration:   time.Since(started),
		}
		switch {
		case op.IsCollectionDelete():
			e.Op = OpDeleteCollection
		case op.Delete:
			e.Op = OpDelete
		}
		s.subs.publish(e)
	}

	switch {
	case applyErr == nil:
		log.Debugf("database: committed transaction %s with %d operations", t.id, len(ops))
		return nil
	case errors.Is(applyErr, storage.ErrPartialApply):
		log.Errorf("database: transaction %s was only partially committed: %s", t.id, applyErr)
		return fmt.Errorf("%w: %w", ErrPartialCommit, applyErr)
	default:
		log.Warningf("database: failed to commit transaction %s: %s", t.id, applyErr)
		return fmt.Errorf("database: failed to commit transaction %s: %w", t.id, applyErr)
	}
}
