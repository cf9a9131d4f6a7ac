package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptsBucketName = "receipts"
	settingsBucketName = "settings"
	collectionKey      = "collection"
	settingsKey        = "settings"
)

// MetadataStore persists the receipt collection and settings. Each save
// rewrites the whole value; there are no incremental updates.
type MetadataStore interface {
	// LoadReceipts returns the persisted collection, newest first.
	// A store with no collection yet returns an empty slice.
	LoadReceipts() ([]*Receipt, error)

	// SaveReceipts replaces the persisted collection
	SaveReceipts(receipts []*Receipt) error

	// LoadSettings returns the persisted settings, or DefaultSettings if none
	LoadSettings() (Settings, error)

	// SaveSettings replaces the persisted settings
	SaveSettings(settings Settings) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the MetadataStore interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptsBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(settingsBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// LoadReceipts reads the whole collection
func (b *BoltDB) LoadReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(receiptsBucketName)).Get([]byte(collectionKey))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &receipts); err != nil {
			return fmt.Errorf("unmarshaling receipts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// null entries carry no record
	kept := receipts[:0]
	for _, r := range receipts {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// SaveReceipts writes the whole collection
func (b *BoltDB) SaveReceipts(receipts []*Receipt) error {
	if receipts == nil {
		receipts = []*Receipt{}
	}
	data, err := json.Marshal(receipts)
	if err != nil {
		return fmt.Errorf("marshaling receipts: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(receiptsBucketName)).Put([]byte(collectionKey), data)
	})
}

// LoadSettings reads the settings object
func (b *BoltDB) LoadSettings() (Settings, error) {
	settings := DefaultSettings()
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(settingsBucketName)).Get([]byte(settingsKey))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("unmarshaling settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return DefaultSettings(), err
	}
	return settings, nil
}

// SaveSettings writes the settings object
func (b *BoltDB) SaveSettings(settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucketName)).Put([]byte(settingsKey), data)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
