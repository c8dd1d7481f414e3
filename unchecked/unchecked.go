// Package unchecked implements the unchecked buffer (spec.md §4.4):
// bounded staging for blocks whose previous or source dependency is not
// yet present in the ledger, keyed by the missing hash so the block
// processor can re-dispatch them the moment that hash arrives.
package unchecked

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

// DependencyKind distinguishes which field of the staged block was
// unresolved, mirroring the gap_previous / gap_source split in
// ledgertypes.ProcessResult.
type DependencyKind uint8

const (
	DependsOnPrevious DependencyKind = iota
	DependsOnSource
)

// Entry is a single staged block, waiting on Missing to appear.
type Entry struct {
	Block   *ledgertypes.Block
	Missing ledgertypes.Hash
	Kind    DependencyKind
}

// DefaultCapacity bounds the number of distinct missing-hash keys held at
// once (spec.md §4.4 "Bounded capacity evicts oldest entries first").
// Each key may fan out to several dependent blocks, so actual staged
// block count can exceed this.
const DefaultCapacity = 65536

// Buffer is the unchecked dependency cache. Safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	cache *lru.Cache[ledgertypes.Hash, []Entry]

	onEvict func(missing ledgertypes.Hash, dropped []Entry)
}

// Option configures a Buffer at construction.
type Option func(*Buffer)

// WithEvictHandler registers a callback invoked when the LRU policy
// drops a key's entries to make room for a new one, so callers can log
// or count the loss rather than have it pass silently. The callback runs
// inside Put while the Buffer's lock is held.
func WithEvictHandler(f func(missing ledgertypes.Hash, dropped []Entry)) Option {
	return func(b *Buffer) { b.onEvict = f }
}

func New(capacity int, opts ...Option) (*Buffer, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{}
	for _, opt := range opts {
		opt(b)
	}
	cache, err := lru.NewWithEvict[ledgertypes.Hash, []Entry](capacity, func(key ledgertypes.Hash, value []Entry) {
		if b.onEvict != nil {
			b.onEvict(key, value)
		}
	})
	if err != nil {
		return nil, err
	}
	b.cache = cache
	return b, nil
}

// Put stages e under its Missing hash, appending to any blocks already
// waiting on the same dependency (spec.md §4.4 "several unchecked blocks
// may legitimately depend on the same missing hash").
func (b *Buffer) Put(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, _ := b.cache.Get(e.Missing)
	b.cache.Add(e.Missing, append(existing, e))
}

// Release removes and returns every entry waiting on missing, for
// re-dispatch once that hash has been successfully processed (spec.md
// §4.4 "On successful processing of a hash, drain and re-enqueue every
// unchecked entry keyed by it").
func (b *Buffer) Release(missing ledgertypes.Hash) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, ok := b.cache.Get(missing)
	if !ok {
		return nil
	}
	b.cache.Remove(missing)
	return entries
}

// Len returns the number of distinct missing-hash keys currently staged.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len()
}

// Contains reports whether any block is staged against missing, without
// releasing it.
func (b *Buffer) Contains(missing ledgertypes.Hash) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Contains(missing)
}
