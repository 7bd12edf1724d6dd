package receipt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName  = "receipts"
	vendorBucketName   = "vendor_categories"
	settingsBucketName = "settings"

	settingsKey = "settings"

	defaultCurrency = "USD"
)

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt saves a receipt to the database
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt from the database
	DeleteReceipt(id string) error

	// LookupVendorCategory returns the learned category for a vendor, if any
	LookupVendorCategory(vendor string) (string, bool)

	// RecordVendorCategory remembers a human-confirmed category for a vendor.
	// Last write wins per vendor; entries never expire.
	RecordVendorCategory(vendor, category string) error

	// GetSettings returns the stored user preferences
	GetSettings() (*Settings, error)

	// SaveSettings stores the user preferences
	SaveSettings(settings *Settings) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptBucketName, vendorBucketName, settingsBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt not found: %s", id)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.Delete([]byte(id))
	})
}

// LookupVendorCategory returns the learned category for a vendor. The key
// is normalized to lower case, so lookups are case-insensitive.
func (b *BoltDB) LookupVendorCategory(vendor string) (string, bool) {
	var category string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(vendorBucketName))
		data := bucket.Get([]byte(normalizeVendorKey(vendor)))
		if data == nil {
			return fmt.Errorf("vendor not found")
		}
		category = string(data)
		return nil
	})
	if err != nil {
		return "", false
	}
	return category, true
}

// Lookup implements extraction.VendorMemory.
func (b *BoltDB) Lookup(vendor string) (string, bool) {
	return b.LookupVendorCategory(vendor)
}

// RecordVendorCategory remembers a human-confirmed category for a vendor
func (b *BoltDB) RecordVendorCategory(vendor, category string) error {
	key := normalizeVendorKey(vendor)
	if key == "" {
		return fmt.Errorf("vendor name is required")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(vendorBucketName))
		return bucket.Put([]byte(key), []byte(category))
	})
}

// GetSettings returns the stored user preferences, falling back to
// defaults when nothing has been saved yet.
func (b *BoltDB) GetSettings() (*Settings, error) {
	settings := &Settings{Currency: defaultCurrency}
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucketName))
		data := bucket.Get([]byte(settingsKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, settings)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	return settings, nil
}

// SaveSettings stores the user preferences
func (b *BoltDB) SaveSettings(settings *Settings) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucketName))
		data, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("marshaling settings: %w", err)
		}
		return bucket.Put([]byte(settingsKey), data)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func normalizeVendorKey(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
