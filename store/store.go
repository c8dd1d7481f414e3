// Package store defines the durable, transactional key/value contract the
// ledger and every other component is built on (spec.md §4.1). It is
// intentionally storage-engine agnostic; store/leveldbstore supplies the
// only implementation this repository ships.
package store

import "context"

// Table names are the node's logical namespaces (spec.md §4.1, §6). Each
// is a distinct key space within the backing engine; key encodings are
// owned by the callers (ledger, unchecked, vote, ...), not by Store
// itself. Naming mirrors the one-const-per-table convention in
// AKJUS-bsc-erigon/erigon-lib/kv/tables.go.
const (
	TableAccounts           = "accounts"            // account -> AccountInfo
	TableBlocks             = "blocks"              // hash -> block + sideband
	TablePending            = "pending"              // (destination, send hash) -> PendingValue
	TableRepresentation     = "representation"       // representative account -> cached weight
	TableUnchecked          = "unchecked"            // missing hash -> multi-value staged blocks
	TableConfirmationHeight = "confirmation_height"  // account -> ConfirmationHeightInfo
	TablePruned             = "pruned"               // hash -> presence marker
	TableFrontiers          = "frontiers"            // hash -> account (reverse lookup)
	TableVote               = "vote"                 // representative -> highest-sequence vote
	TableOnlineWeight       = "online_weight"         // sample timestamp -> weight
	TablePeers              = "peers"                 // peer address -> last-seen metadata
	TableFinalVote          = "final_vote"            // (account, root) -> final vote hash
	TableVersion            = "version"               // fixed key -> schema version
)

// AllTables enumerates every logical namespace, for implementations that
// need to pre-create column families / prefixes.
var AllTables = []string{
	TableAccounts, TableBlocks, TablePending, TableRepresentation,
	TableUnchecked, TableConfirmationHeight, TablePruned, TableFrontiers,
	TableVote, TableOnlineWeight, TablePeers, TableFinalVote, TableVersion,
}

// SchemaVersion is the schema version this build of the node expects.
// Store.Open fails read-write transactions (and, for read-only mounts,
// every transaction) against a mismatched on-disk version (spec.md §4.1,
// ErrVersionMismatch is fatal per spec.md §7).
const SchemaVersion = 1

// versionKey is the fixed key the version record lives at within
// TableVersion.
var versionKey = []byte("schema_version")

func VersionKey() []byte { return versionKey }

// Cursor iterates a table in key order. It is only valid for the lifetime
// of the transaction that created it (spec.md §4.1 "cursors are valid
// only within their transaction").
type Cursor interface {
	// Next advances the cursor and reports whether an entry was found.
	Next() bool
	Key() []byte
	Value() []byte
	Close()
}

// Txn is a single store transaction: either a read-only snapshot or the
// one live write transaction (spec.md §4.1 "A write transaction serializes
// with all other writers; concurrent readers see the pre-write
// snapshot.").
type Txn interface {
	Writable() bool

	Get(table string, key []byte) ([]byte, bool, error)
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error

	// Cursor starts at the first key >= start (nil means the first key in
	// the table) and iterates in ascending key order.
	Cursor(table string, start []byte) Cursor

	// Commit finalizes a write transaction, or releases a read snapshot.
	Commit() error
	// Discard abandons the transaction without committing. Safe to call
	// after Commit (no-op).
	Discard()
}

// Store is the durable multi-table backend. Implementations must provide
// single-writer serialization: Begin(true) blocks until any prior write
// transaction has Committed or been Discarded (spec.md §5 "at most one
// [thread] holds a write transaction").
type Store interface {
	// Begin starts a transaction. ctx is honored only while waiting to
	// acquire the write lock (spec.md §5 suspension point (a)); once
	// granted, the transaction itself is not context-cancellable.
	Begin(ctx context.Context, writable bool) (Txn, error)

	Close() error
}

// ErrIO and ErrVersionMismatch are fatal per spec.md §7; ErrTxnConflict is
// retryable.
type StoreError string

func (e StoreError) Error() string { return string(e) }

const (
	ErrIO              = StoreError("store: io error")
	ErrVersionMismatch = StoreError("store: schema version mismatch")
	ErrTxnConflict     = StoreError("store: transaction conflict, retry")
)
