// Package leveldbstore implements store.Store on top of
// github.com/syndtr/goleveldb, the way the teacher's datxdb.LDBDatabase
// wraps the same engine (see DESIGN.md). Tables are namespaced by a
// prefix of the table name and a 0x00 separator within LevelDB's single
// flat keyspace; a
// VictoriaMetrics/fastcache instance sits in front of the blocks table as
// a hot-block read cache, mirroring the teacher's CreateDB/db.Meter
// instrumented-wrapper pattern.
package leveldbstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nanocurrency/nanogod/store"
)

// Store is a LevelDB-backed store.Store. A single writerMu serializes
// write transactions (spec.md §5 single-writer discipline); readers take
// a LevelDB snapshot and never block on writerMu.
type Store struct {
	db         *leveldb.DB
	blockCache *fastcache.Cache

	writerMu sync.Mutex
}

// Open opens (creating if absent) a LevelDB store at path, with a
// blockCacheBytes-sized in-memory read cache for the blocks table.
func Open(path string, blockCacheBytes int) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrIO, err)
	}
	if blockCacheBytes <= 0 {
		blockCacheBytes = 32 * 1024 * 1024
	}
	return &Store{
		db:         db,
		blockCache: fastcache.New(blockCacheBytes),
	}, nil
}

func (s *Store) Close() error {
	s.blockCache.Reset()
	return s.db.Close()
}

func tableKey(table string, key []byte) []byte {
	out := make([]byte, 0, len(table)+1+len(key))
	out = append(out, table...)
	out = append(out, 0x00)
	out = append(out, key...)
	return out
}

func (s *Store) Begin(ctx context.Context, writable bool) (store.Txn, error) {
	if !writable {
		snap, err := s.db.GetSnapshot()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrIO, err)
		}
		return &txn{store: s, snap: snap, writable: false}, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	acquired := make(chan struct{})
	go func() {
		s.writerMu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine above will still acquire the lock eventually and
		// release nothing; to avoid leaking it we wait for it in the
		// background and unlock immediately.
		go func() { <-acquired; s.writerMu.Unlock() }()
		return nil, ctx.Err()
	}
	return &txn{store: s, batch: new(leveldb.Batch), writable: true, overlay: make(map[string][]byte)}, nil
}

// txn implements store.Txn. Read transactions read through a LevelDB
// snapshot; write transactions buffer into a leveldb.Batch applied
// atomically on Commit. overlay mirrors the batch's pending writes (a
// nil value marks a pending delete) so Get observes a transaction's own
// uncommitted writes, matching the read-your-writes behavior apply() and
// rollback() depend on when they touch the same key twice in one
// transaction.
type txn struct {
	store    *Store
	snap     *leveldb.Snapshot
	batch    *leveldb.Batch
	overlay  map[string][]byte
	writable bool
	done     bool
}

func (t *txn) Writable() bool { return t.writable }

func (t *txn) Get(table string, key []byte) ([]byte, bool, error) {
	k := tableKey(table, key)
	if t.writable {
		if v, ok := t.overlay[string(k)]; ok {
			if v == nil {
				return nil, false, nil
			}
			return v, true, nil
		}
	}
	if table == store.TableBlocks {
		if v, ok := t.store.blockCache.HasGet(nil, k); ok {
			return v, true, nil
		}
	}
	var (
		v   []byte
		err error
	)
	if t.writable {
		v, err = t.store.db.Get(k, nil)
	} else {
		v, err = t.snap.Get(k, nil)
	}
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrIO, err)
	}
	if table == store.TableBlocks {
		t.store.blockCache.Set(k, v)
	}
	return v, true, nil
}

func (t *txn) Put(table string, key, value []byte) error {
	if !t.writable {
		return fmt.Errorf("store: Put on read-only transaction")
	}
	k := tableKey(table, key)
	t.batch.Put(k, value)
	t.overlay[string(k)] = value
	if table == store.TableBlocks {
		t.store.blockCache.Set(k, value)
	}
	return nil
}

func (t *txn) Delete(table string, key []byte) error {
	if !t.writable {
		return fmt.Errorf("store: Delete on read-only transaction")
	}
	k := tableKey(table, key)
	t.batch.Delete(k)
	t.overlay[string(k)] = nil
	if table == store.TableBlocks {
		t.store.blockCache.Del(k)
	}
	return nil
}

func (t *txn) Cursor(table string, start []byte) store.Cursor {
	prefix := append([]byte(table), 0x00)
	var rng *util.Range
	if len(start) == 0 {
		rng = util.BytesPrefix(prefix)
	} else {
		rng = &util.Range{Start: tableKey(table, start), Limit: util.BytesPrefix(prefix).Limit}
	}
	var it iterator.Iterator
	if t.writable {
		it = t.store.db.NewIterator(rng, nil)
	} else {
		it = t.snap.NewIterator(rng, nil)
	}
	return &cursor{it: it, prefixLen: len(prefix)}
}

func (t *txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		defer t.store.writerMu.Unlock()
		if err := t.store.db.Write(t.batch, nil); err != nil {
			return fmt.Errorf("%w: %v", store.ErrIO, err)
		}
		return nil
	}
	t.snap.Release()
	return nil
}

func (t *txn) Discard() {
	if t.done {
		return
	}
	t.done = true
	if t.writable {
		t.store.writerMu.Unlock()
		return
	}
	t.snap.Release()
}

type cursor struct {
	it        iterator.Iterator
	prefixLen int
	started   bool
}

func (c *cursor) Next() bool {
	if !c.started {
		c.started = true
		return c.it.First()
	}
	return c.it.Next()
}

func (c *cursor) Key() []byte {
	return c.it.Key()[c.prefixLen:]
}

func (c *cursor) Value() []byte { return c.it.Value() }

func (c *cursor) Close() { c.it.Release() }
