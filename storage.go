package tdk

import "context"

// ObjectStore is a bucket of named objects, such as an S3 or GCS bucket.
// Keys use forward slashes.
type ObjectStore interface {
	// Upload copies the local file at path to key and returns the object's
	// URI.
	Upload(ctx context.Context, path, key string) (uri string, err error)
	// Download copies key to the local file at path, creating directories as
	// needed, and returns a handle to the local copy.
	Download(ctx context.Context, key, path string) (ArtifactHandle, error)
	// List returns the keys starting with prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// StorageArtifact returns a handle for an object in a bucket.
func StorageArtifact(uri string) ArtifactHandle {
	return ArtifactHandle{Kind: StorageObject, Location: uri}
}
