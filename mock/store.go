package mock

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

// Bucket is an in-memory tdk.ObjectStore. It is safe for concurrent use.
type Bucket struct {
	Name string

	mu      sync.Mutex
	objects map[string][]byte
	fails   map[string]int
	uploads map[string]int
}

var _ tdk.ObjectStore = &Bucket{}

// NewBucket returns an empty Bucket.
func NewBucket(name string) *Bucket {
	return &Bucket{
		Name:    name,
		objects: make(map[string][]byte),
		fails:   make(map[string]int),
		uploads: make(map[string]int),
	}
}

// FailUploads makes the next n uploads to key fail.
func (b *Bucket) FailUploads(key string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails[key] = n
}

// Uploads returns how many uploads to key were attempted.
func (b *Bucket) Uploads(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads[key]
}

// Object returns the contents stored under key.
func (b *Bucket) Object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.objects[key]
	return v, ok
}

// Put stores data under key directly.
func (b *Bucket) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
}

// Upload implements tdk.ObjectStore.
func (b *Bucket) Upload(ctx context.Context, path, key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "reading upload")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads[key]++
	if b.fails[key] > 0 {
		b.fails[key]--
		return "", errors.New("upload interrupted")
	}
	b.objects[key] = data
	return "mem://" + b.Name + "/" + key, nil
}

// Download implements tdk.ObjectStore.
func (b *Bucket) Download(ctx context.Context, key, path string) (tdk.ArtifactHandle, error) {
	data, ok := b.Object(key)
	if !ok {
		return tdk.ArtifactHandle{}, tdk.Permanent(errors.Errorf("no object %s", key))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tdk.ArtifactHandle{}, errors.Wrap(err, "creating directory")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return tdk.ArtifactHandle{}, errors.Wrap(err, "writing download")
	}
	return tdk.LocalArtifact(path), nil
}

// List implements tdk.ObjectStore.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements tdk.ObjectStore.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}
