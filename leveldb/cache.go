// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package leveldb provides a tdk.CacheStore using leveldb.
package leveldb

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tripdata/tdk"
)

var entryPrefix = []byte("entry/")

// Cache is a tdk.CacheStore which stores entries in a leveldb directory.
type Cache struct {
	db  *leveldb.DB
	now func() time.Time
}

var _ tdk.CacheStore = &Cache{}

// NewCache opens or creates a Cache in dirname.
func NewCache(dirname string) (*Cache, error) {
	if err := os.MkdirAll(dirname, 0700); err != nil {
		return nil, errors.Wrap(err, "creating cache directory")
	}
	db, err := leveldb.OpenFile(dirname, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return &Cache{db: db, now: time.Now}, nil
}

func entryKey(key string) []byte {
	return append(append([]byte(nil), entryPrefix...), key...)
}

// Get implements tdk.CacheStore.
func (c *Cache) Get(key string) ([]byte, time.Time, bool, error) {
	b, err := c.db.Get(entryKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, time.Time{}, false, nil
	} else if err != nil {
		return nil, time.Time{}, false, errors.Wrapf(err, "getting %s", key)
	}
	v, exp, err := tdk.DecodeEntry(b)
	if err != nil {
		return nil, time.Time{}, false, errors.Wrapf(err, "decoding %s", key)
	}
	return v, exp, true, nil
}

// Put implements tdk.CacheStore.
func (c *Cache) Put(key string, value []byte, expires time.Time) error {
	err := c.db.Put(entryKey(key), tdk.EncodeEntry(value, expires), &opt.WriteOptions{Sync: true})
	return errors.Wrapf(err, "putting %s", key)
}

// Prune deletes expired entries and returns how many there were.
func (c *Cache) Prune() (int, error) {
	now := c.now()
	batch := new(leveldb.Batch)
	iter := c.db.NewIterator(util.BytesPrefix(entryPrefix), nil)
	for iter.Next() {
		if _, exp, err := tdk.DecodeEntry(iter.Value()); err != nil || !exp.After(now) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, errors.Wrap(err, "iterating entries")
	}
	if err := c.db.Write(batch, nil); err != nil {
		return 0, errors.Wrap(err, "deleting expired entries")
	}
	return batch.Len(), nil
}

// Close closes the underlying leveldb.
func (c *Cache) Close() error {
	return errors.Wrap(c.db.Close(), "closing leveldb")
}
