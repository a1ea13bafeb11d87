// Package storage provides the durable key-value store backing the token
// cache, the dual-write product cache, and sync metadata.
package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"possync-go/internal/types"
)

// Manager provides a unified interface for storage operations
type Manager struct {
	db     *BoltDB
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

// NewManager creates a new storage manager
func NewManager(dataDir string, logger *zap.SugaredLogger) (*Manager, error) {
	db, err := NewBoltDB(dataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create bolt database: %w", err)
	}

	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the storage manager
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Token operations

// SaveToken persists the auth token together with its decoded expiry.
func (m *Manager) SaveToken(token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := &TokenRecord{
		Token:     token,
		ExpiresAt: expiresAt,
		Stored:    time.Now(),
	}

	data, err := record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	return m.db.Put(TokenBucket, AuthTokenKey, data)
}

// GetToken returns the persisted token record, or nil if none is stored.
func (m *Manager) GetToken() (*TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := m.db.Get(TokenBucket, AuthTokenKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var record TokenRecord
	if err := record.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}
	return &record, nil
}

// DeleteToken removes the persisted token.
func (m *Manager) DeleteToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Delete(TokenBucket, AuthTokenKey)
}

// Product cache operations
//
// The cached product array is read-modify-written as a whole blob under a
// fixed key; there is no row-level locking.

// GetProductCache loads the locally cached product array. Returns an empty
// slice when nothing has been cached yet.
func (m *Manager) GetProductCache() ([]*types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := m.db.Get(ProductCacheBucket, ProductCacheKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []*types.Product{}, nil
	}

	var products []*types.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product cache: %w", err)
	}
	return products, nil
}

// SaveProductCache overwrites the locally cached product array.
func (m *Manager) SaveProductCache(products []*types.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("failed to marshal product cache: %w", err)
	}

	return m.db.Put(ProductCacheBucket, ProductCacheKey, data)
}

// Sync metadata operations

// SetSyncTime records the last successful refresh time for a resource key
// (ProductsSyncTimeKey or OrdersSyncTimeKey).
func (m *Manager) SetSyncTime(key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := t.MarshalText()
	if err != nil {
		return fmt.Errorf("failed to marshal sync time: %w", err)
	}
	return m.db.Put(SyncMetaBucket, key, data)
}

// GetSyncTime returns the last successful refresh time for a resource key;
// the zero time means no refresh has been recorded.
func (m *Manager) GetSyncTime(key string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := m.db.Get(SyncMetaBucket, key)
	if err != nil {
		return time.Time{}, err
	}
	if data == nil {
		return time.Time{}, nil
	}

	var t time.Time
	if err := t.UnmarshalText(data); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse sync time: %w", err)
	}
	return t, nil
}

// Pending sync queue (vestigial)
//
// Creation is synchronous in the current design so the queue is always
// drained on write; these operations remain as the seam for offline support.

// EnqueuePendingSync stores a record awaiting upload, keyed by local id.
func (m *Manager) EnqueuePendingSync(record *PendingSyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.Created.IsZero() {
		record.Created = time.Now()
	}

	data, err := record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal pending sync record: %w", err)
	}
	return m.db.Put(PendingSyncBucket, record.LocalID, data)
}

// ListPendingSync returns all records awaiting upload.
func (m *Manager) ListPendingSync() ([]*PendingSyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*PendingSyncRecord
	err := m.db.ForEach(PendingSyncBucket, func(k, v []byte) error {
		var record PendingSyncRecord
		if err := record.UnmarshalBinary(v); err != nil {
			m.logger.Warnf("Failed to unmarshal pending sync record %s: %v", string(k), err)
			return nil // continue to next record
		}
		records = append(records, &record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RemovePendingSync deletes a queued record once it has been uploaded.
func (m *Manager) RemovePendingSync(localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Delete(PendingSyncBucket, localID)
}

// ClearPendingSync drops the whole queue.
func (m *Manager) ClearPendingSync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.ClearBucket(PendingSyncBucket)
}

// Maintenance operations

// Backup creates a backup of the database
func (m *Manager) Backup(destPath string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.db.Backup(destPath)
}

// GetSchemaVersion returns the current schema version
func (m *Manager) GetSchemaVersion() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.db.GetSchemaVersion()
}
