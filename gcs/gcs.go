// Package gcs implements tdk.ObjectStore on Google Cloud Storage.
package gcs

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tripdata/tdk"
)

// Store is a tdk.ObjectStore backed by a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
}

var _ tdk.ObjectStore = &Store{}

// NewStore returns a Store for bucket. With no options the client uses
// application default credentials; pass option.WithCredentialsFile to use a
// service account key.
func NewStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, &tdk.ConfigurationError{Key: "bucket", Err: tdk.ErrMissingParam}
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) uri(key string) string {
	return "gs://" + s.bucket + "/" + key
}

// Upload implements tdk.ObjectStore.
func (s *Store) Upload(ctx context.Context, path, key string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", tdk.Permanent(errors.Wrap(err, "opening file"))
	}
	defer f.Close()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", classify(errors.Wrapf(err, "uploading %s", s.uri(key)))
	}
	if err := w.Close(); err != nil {
		return "", classify(errors.Wrapf(err, "finishing upload of %s", s.uri(key)))
	}
	return s.uri(key), nil
}

// Download implements tdk.ObjectStore.
func (s *Store) Download(ctx context.Context, key, path string) (tdk.ArtifactHandle, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return tdk.ArtifactHandle{}, classify(errors.Wrapf(err, "opening %s", s.uri(key)))
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tdk.ArtifactHandle{}, errors.Wrap(err, "creating directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return tdk.ArtifactHandle{}, errors.Wrap(err, "creating temp file")
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return tdk.ArtifactHandle{}, classify(errors.Wrapf(err, "downloading %s", s.uri(key)))
	}
	return tdk.LocalArtifact(path), nil
}

// List implements tdk.ObjectStore. GCS lists in lexical order already.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(errors.Wrap(err, "listing objects"))
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Delete implements tdk.ObjectStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err == nil {
		return nil
	}
	return classify(errors.Wrapf(err, "deleting %s", s.uri(key)))
}

// classify marks errors which retrying can't fix as permanent.
func classify(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return tdk.Permanent(err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code == http.StatusRequestTimeout:
		case gerr.Code >= 400 && gerr.Code < 500:
			return tdk.Permanent(err)
		}
	}
	return err
}
