// Package boltdb provides a tdk.CacheStore using boltdb, so that cached step
// results survive between runs of the command.
package boltdb

import (
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

var entryBucket = []byte("entries")

// Cache is a tdk.CacheStore which keeps entries in a single bolt file.
type Cache struct {
	Db  *bolt.DB
	now func() time.Time
}

var _ tdk.CacheStore = &Cache{}

// NewCache opens or creates the cache file.
func NewCache(filename string) (*Cache, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entryBucket)
		return errors.Wrap(err, "creating entries bucket")
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return &Cache{Db: db, now: time.Now}, nil
}

// Get implements tdk.CacheStore.
func (c *Cache) Get(key string) (value []byte, expires time.Time, ok bool, err error) {
	err = c.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket).Get([]byte(key))
		if b == nil {
			return nil
		}
		// bolt's slices are only valid inside the transaction
		v, exp, err := tdk.DecodeEntry(b)
		if err != nil {
			return err
		}
		value = append([]byte(nil), v...)
		expires, ok = exp, true
		return nil
	})
	if err != nil {
		return nil, time.Time{}, false, errors.Wrapf(err, "getting %s", key)
	}
	return value, expires, ok, nil
}

// Put implements tdk.CacheStore.
func (c *Cache) Put(key string, value []byte, expires time.Time) error {
	err := c.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entryBucket).Put([]byte(key), tdk.EncodeEntry(value, expires))
	})
	return errors.Wrapf(err, "putting %s", key)
}

// Prune deletes expired entries and returns how many there were.
func (c *Cache) Prune() (int, error) {
	now := c.now()
	n := 0
	err := c.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if _, exp, err := tdk.DecodeEntry(v); err != nil || !exp.After(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return errors.Wrap(err, "deleting entry")
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

// Close syncs and closes the underlying boltdb.
func (c *Cache) Close() error {
	err := c.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return c.Db.Close()
}
