package tdk

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

// CacheStore persists step outputs keyed by cache key. Implementations must be
// safe for concurrent use since fanned-out runs share a store.
type CacheStore interface {
	// Get returns the value stored under key and its expiry time. ok is false
	// if there is no entry.
	Get(key string) (value []byte, expires time.Time, ok bool, err error)
	// Put stores value under key, replacing any existing entry.
	Put(key string, value []byte, expires time.Time) error
	Close() error
}

// Codec converts step outputs to and from bytes for a CacheStore.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// CacheKey derives the store key for a step from the step name and the
// step's own key for its input.
func CacheKey(step, inputKey string) string {
	h := sha256.New()
	h.Write([]byte(step))
	h.Write([]byte{0})
	h.Write([]byte(inputKey))
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeEntry prefixes value with its expiry time so that stores which only
// hold bytes can persist both.
func EncodeEntry(value []byte, expires time.Time) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expires.UnixNano()))
	copy(buf[8:], value)
	return buf
}

// DecodeEntry reverses EncodeEntry. The returned value aliases b.
func DecodeEntry(b []byte) (value []byte, expires time.Time, err error) {
	if len(b) < 8 {
		return nil, time.Time{}, errors.Errorf("cache entry too short: %d bytes", len(b))
	}
	ns := int64(binary.BigEndian.Uint64(b[:8]))
	return b[8:], time.Unix(0, ns), nil
}

// MemoryCache is an in-process CacheStore. Entries are lost on exit, and may be
// evicted early when the cache is over its size limit.
type MemoryCache struct {
	c   *ristretto.Cache
	now func() time.Time
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache returns a MemoryCache holding up to maxBytes of values.
func NewMemoryCache(maxBytes int64) (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating ristretto cache")
	}
	return &MemoryCache{c: c, now: time.Now}, nil
}

// Get implements CacheStore.
func (m *MemoryCache) Get(key string) ([]byte, time.Time, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, time.Time{}, false, nil
	}
	e := v.(memEntry)
	return e.value, e.expires, true, nil
}

// Put implements CacheStore. The entry is visible to Get once Put returns.
func (m *MemoryCache) Put(key string, value []byte, expires time.Time) error {
	ttl := expires.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	if !m.c.SetWithTTL(key, memEntry{value: buf, expires: expires}, int64(len(buf))+1, ttl) {
		return errors.Errorf("cache rejected entry of %d bytes", len(buf))
	}
	m.c.Wait()
	return nil
}

// Close implements CacheStore.
func (m *MemoryCache) Close() error {
	m.c.Close()
	return nil
}
