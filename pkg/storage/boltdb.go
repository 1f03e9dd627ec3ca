package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store using a local BoltDB file. One bucket per
// collection, members are big-endian keys with empty values.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func memberKey(member int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(member))
	return key
}

// Add inserts members into the collection bucket
func (s *BoltStore) Add(ctx context.Context, collection string, members ...int64) error {
	if len(members) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", collection, err)
		}
		for _, m := range members {
			if err := b.Put(memberKey(m), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of keys in the collection bucket
func (s *BoltStore) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		n = int64(b.Stats().KeyN)
		return nil
	})
	return n, err
}

// Members returns the members of a collection in ascending order
func (s *BoltStore) Members(ctx context.Context, collection string) ([]int64, error) {
	var out []int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out = append(out, int64(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	return out, err
}

// Delete drops the collection bucket
func (s *BoltStore) Delete(ctx context.Context, collection string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(collection))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Ping always succeeds for an open local file
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
