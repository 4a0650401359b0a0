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

package leveldb_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/leveldb"
	"github.com/tripdata/tdk/test"
)

func TestCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := leveldb.NewCache(dir)
	test.ErrNil(t, err, "NewCache")

	exp := time.Now().Add(time.Hour)
	key := tdk.CacheKey("get-data", "https://host/yellow_2022-01.parquet")
	test.ErrNil(t, c.Put(key, []byte("parquet"), exp), "Put")
	test.ErrNil(t, c.Put("stale", []byte("x"), time.Now().Add(-time.Hour)), "Put stale")

	v, got, ok, err := c.Get(key)
	test.ErrNil(t, err, "Get")
	if !ok || string(v) != "parquet" || !got.Equal(exp) {
		t.Fatalf("Get: %q %v %v", v, got, ok)
	}

	test.ErrNil(t, c.Close(), "Close")
	c, err = leveldb.NewCache(dir)
	test.ErrNil(t, err, "reopening")
	defer c.Close()

	n, err := c.Prune()
	test.ErrNil(t, err, "Prune")
	test.MustBe(t, 1, n)
	if _, _, ok, _ := c.Get(key); !ok {
		t.Fatal("entry lost")
	}
}

func TestCacheConcurrent(t *testing.T) {
	c, err := leveldb.NewCache(t.TempDir())
	test.ErrNil(t, err, "NewCache")
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := tdk.CacheKey("step", string(rune('a'+i)))
			if err := c.Put(key, []byte{byte(i)}, time.Now().Add(time.Minute)); err != nil {
				t.Errorf("put %d: %v", i, err)
			}
			if v, _, ok, err := c.Get(key); err != nil || !ok || v[0] != byte(i) {
				t.Errorf("get %d: %v %v %v", i, v, ok, err)
			}
		}(i)
	}
	wg.Wait()
}
