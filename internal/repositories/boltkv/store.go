// Package boltkv implements the register's durable local key-value storage
// on top of a single bbolt data file. Readers degrade to defaults when the
// file is missing or holds corrupt data so a damaged store never prevents the
// register from starting.
package boltkv

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketSettings = "settings"
	bucketLedger   = "ledger"

	keySettings = "register"
	keyLedger   = "attempts"
)

// Store wraps the shared bbolt database handle used by every repository.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the data file and ensures all buckets
// exist. The open blocks at most one second waiting for the file lock so a
// stale lock from a crashed process surfaces as an error instead of a hang.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltkv: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketSettings, bucketLedger} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltkv: init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying data file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the data file is still readable, for health probes.
func (s *Store) Ping() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("boltkv: store is not open")
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketSettings)) == nil {
			return fmt.Errorf("boltkv: settings bucket missing")
		}
		return nil
	})
}

func (s *Store) get(bucket, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("boltkv: store is not open")
	}
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			value = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltkv: get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

func (s *Store) put(bucket, key string, value []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("boltkv: store is not open")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("boltkv: put %s/%s: %w", bucket, key, err)
	}
	return nil
}
