package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const dbFileName = "possync.db"

// BoltDB wraps the bbolt database with bucket management
type BoltDB struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// NewBoltDB opens (or creates) the database under dataDir and ensures all
// buckets exist.
func NewBoltDB(dataDir string, logger *zap.SugaredLogger) (*BoltDB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, dbFileName)
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	b := &BoltDB{db: db, logger: logger}
	if err := b.ensureBuckets(); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

func (b *BoltDB) ensureBuckets() error {
	buckets := []string{
		TokenBucket,
		ProductCacheBucket,
		SyncMetaBucket,
		PendingSyncBucket,
		MetaBucket,
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		// Stamp schema version on first open
		meta := tx.Bucket([]byte(MetaBucket))
		if meta.Get([]byte(SchemaVersionKey)) == nil {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, CurrentSchemaVersion)
			if err := meta.Put([]byte(SchemaVersionKey), buf); err != nil {
				return fmt.Errorf("failed to write schema version: %w", err)
			}
		}
		return nil
	})
}

// Close closes the underlying database
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Put stores a value under key in the named bucket
func (b *BoltDB) Put(bucket, key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return bkt.Put([]byte(key), value)
	})
}

// Get retrieves a value by key from the named bucket; returns nil if absent
func (b *BoltDB) Get(bucket, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		if v := bkt.Get([]byte(key)); v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	return value, err
}

// Delete removes a key from the named bucket
func (b *BoltDB) Delete(bucket, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return bkt.Delete([]byte(key))
	})
}

// ForEach iterates all key/value pairs in the named bucket
func (b *BoltDB) ForEach(bucket string, fn func(k, v []byte) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return bkt.ForEach(fn)
	})
}

// ClearBucket removes every key in the named bucket
func (b *BoltDB) ClearBucket(bucket string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucket)); err != nil {
			return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
		}
		_, err := tx.CreateBucket([]byte(bucket))
		return err
	})
}

// GetSchemaVersion returns the stored schema version
func (b *BoltDB) GetSchemaVersion() (uint64, error) {
	v, err := b.Get(MetaBucket, SchemaVersionKey)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("schema version missing or malformed")
	}
	return binary.BigEndian.Uint64(v), nil
}

// Backup writes a consistent copy of the database to destPath
func (b *BoltDB) Backup(destPath string) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		defer f.Close()

		if _, err := tx.WriteTo(f); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		return nil
	})
}
