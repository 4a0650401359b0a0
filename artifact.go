package tdk

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// ArtifactKind says where an artifact lives.
type ArtifactKind int

const (
	// LocalFile artifacts are paths on the local file system.
	LocalFile ArtifactKind = iota
	// StorageObject artifacts are object paths in a bucket.
	StorageObject
	// WarehouseTable artifacts are fully qualified table names.
	WarehouseTable
)

func (k ArtifactKind) String() string {
	switch k {
	case LocalFile:
		return "file"
	case StorageObject:
		return "object"
	case WarehouseTable:
		return "table"
	}
	return fmt.Sprintf("ArtifactKind(%d)", int(k))
}

// ArtifactHandle is a reference to externally persisted data. It carries only
// identity and location, never the data itself.
type ArtifactHandle struct {
	Kind     ArtifactKind
	Location string
}

// LocalArtifact returns a handle for a local file path.
func LocalArtifact(path string) ArtifactHandle {
	return ArtifactHandle{Kind: LocalFile, Location: path}
}

func (h ArtifactHandle) String() string {
	return h.Kind.String() + ":" + h.Location
}

// Artifacter is implemented by step outputs which carry artifact handles
// alongside other data. The runner tracks every returned handle for cleanup.
type Artifacter interface {
	Artifacts() []ArtifactHandle
}

// CleanupFunc releases an artifact.
type CleanupFunc func(ctx context.Context, h ArtifactHandle) error

// RemoveLocal is the default CleanupFunc. It removes local files and ignores
// other kinds of artifact. A file which is already gone results in a
// CleanupWarning.
func RemoveLocal(ctx context.Context, h ArtifactHandle) error {
	if h.Kind != LocalFile {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &CleanupWarning{Artifact: h, Err: err}
	}
	err := os.Remove(h.Location)
	if err != nil {
		return &CleanupWarning{Artifact: h, Err: errors.Wrap(err, "removing file")}
	}
	return nil
}

// tracker holds the handles created during a single run which have not yet
// been cleaned up.
type tracker struct {
	mu      sync.Mutex
	handles []ArtifactHandle
}

func (t *tracker) add(hs ...ArtifactHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range hs {
		dup := false
		for _, existing := range t.handles {
			if existing == h {
				dup = true
				break
			}
		}
		if !dup {
			t.handles = append(t.handles, h)
		}
	}
}

// drain returns the tracked handles in reverse creation order and forgets
// them.
func (t *tracker) drain() []ArtifactHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ArtifactHandle, len(t.handles))
	for i, h := range t.handles {
		out[len(t.handles)-1-i] = h
	}
	t.handles = nil
	return out
}

type trackerKey struct{}

// Track registers h for cleanup at the end of the current run. Steps use it
// for scratch artifacts they create but don't return. It reports false if ctx
// doesn't belong to a run.
func Track(ctx context.Context, h ArtifactHandle) bool {
	t, ok := ctx.Value(trackerKey{}).(*tracker)
	if !ok {
		return false
	}
	t.add(h)
	return true
}

func artifactsOf(v interface{}) []ArtifactHandle {
	switch a := v.(type) {
	case ArtifactHandle:
		return []ArtifactHandle{a}
	case *ArtifactHandle:
		if a != nil {
			return []ArtifactHandle{*a}
		}
	case Artifacter:
		return a.Artifacts()
	}
	return nil
}
