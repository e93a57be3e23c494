// Package boltutil holds the small helpers shared by the bbolt backed stores:
// opening a database file with sane options and encoding ordered keys.
package boltutil

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Open opens (or creates) the bolt database at path. Parent directories are
// created as needed and a one second lock timeout keeps a second process from
// blocking forever.
func Open(path string) (*bolt.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// EnsureBuckets creates the named top-level buckets if missing.
func EnsureBuckets(db *bolt.DB, names ...[]byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Itob encodes v as an 8-byte big-endian key so cursor order matches numeric order.
func Itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Btoi decodes a key produced by Itob.
func Btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// PutJSON marshals v and stores it under key.
func PutJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return b.Put(key, data)
}

// GetJSON loads key into v. found is false when the key is absent. Values are
// decoded inside the transaction, so nothing aliases bolt's mmap after return.
func GetJSON(b *bolt.Bucket, key []byte, v any) (found bool, err error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := GetJSONBytes(data, v); err != nil {
		return true, fmt.Errorf("key %s: %w", key, err)
	}
	return true, nil
}

// GetJSONBytes decodes a raw bucket value into v.
func GetJSONBytes(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return nil
}
