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

package boltdb_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tripdata/tdk/boltdb"
	"github.com/tripdata/tdk/test"
)

func TestCache(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "cache.db")
	c, err := boltdb.NewCache(fname)
	test.ErrNil(t, err, "NewCache")

	exp := time.Now().Add(time.Hour).Round(0)
	test.ErrNil(t, c.Put("a", []byte("hello"), exp), "Put a")
	test.ErrNil(t, c.Put("old", []byte("bye"), time.Now().Add(-time.Minute)), "Put old")

	v, got, ok, err := c.Get("a")
	test.ErrNil(t, err, "Get a")
	if !ok || string(v) != "hello" || !got.Equal(exp) {
		t.Fatalf("Get a: %q %v %v", v, got, ok)
	}
	if _, _, ok, _ := c.Get("nope"); ok {
		t.Fatal("unexpected hit")
	}

	// entries survive reopening
	test.ErrNil(t, c.Close(), "Close")
	c, err = boltdb.NewCache(fname)
	test.ErrNil(t, err, "reopening")
	defer c.Close()
	if _, _, ok, _ := c.Get("a"); !ok {
		t.Fatal("entry lost on reopen")
	}

	n, err := c.Prune()
	test.ErrNil(t, err, "Prune")
	test.MustBe(t, 1, n)
	if _, _, ok, _ := c.Get("old"); ok {
		t.Fatal("expired entry not pruned")
	}
	if _, _, ok, _ := c.Get("a"); !ok {
		t.Fatal("live entry pruned")
	}
}
