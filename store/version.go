package store

import "encoding/binary"

// GetVersion reads the schema version record, or (0, false) if the store
// has never been versioned (a brand-new database).
func GetVersion(txn Txn) (uint64, bool, error) {
	v, ok, err := txn.Get(TableVersion, versionKey)
	if err != nil || !ok {
		return 0, ok, err
	}
	return binary.BigEndian.Uint64(v), true, nil
}

// SetVersion writes the schema version record.
func SetVersion(txn Txn, version uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], version)
	return txn.Put(TableVersion, versionKey, buf[:])
}

// CheckAndInitVersion enforces spec.md §4.1's "a mismatch in read-only
// mode is fatal" contract: a fresh store is stamped with SchemaVersion; an
// existing store must match exactly.
func CheckAndInitVersion(txn Txn) error {
	v, ok, err := GetVersion(txn)
	if err != nil {
		return err
	}
	if !ok {
		return SetVersion(txn, SchemaVersion)
	}
	if v != SchemaVersion {
		return ErrVersionMismatch
	}
	return nil
}
