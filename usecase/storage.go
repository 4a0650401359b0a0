package usecase

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/aws/s3"
	"github.com/tripdata/tdk/gcs"
)

// BucketBlock is an object storage config block such as "dte-bucket-block".
type BucketBlock struct {
	Store           string `mapstructure:"store"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Credentials     string `mapstructure:"credentials"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Storage describes the bucket a flow reads or writes.
type Storage struct {
	Store       string `help:"Object store: s3 or gcs."`
	Bucket      string `help:"Bucket name."`
	Region      string `help:"S3 region."`
	Endpoint    string `help:"S3 compatible endpoint, e.g. a local MinIO. Implies path style addressing."`
	Credentials string `help:"GCP service account key file."`
	BucketBlock string `help:"Config block describing the bucket, e.g. dte-bucket-block."`

	// Objects is used instead of opening a store when set.
	Objects tdk.ObjectStore `flag:"-"`

	access, secret string
}

// NewStorage returns the default Storage.
func NewStorage() Storage {
	return Storage{Store: "gcs"}
}

// Resolve fills fields which have no value from BucketBlock.
func (s *Storage) Resolve(c *Common) error {
	var b BucketBlock
	if err := c.LoadBlock(s.BucketBlock, &b); err != nil {
		return err
	}
	if s.BucketBlock != "" && b.Store != "" {
		s.Store = b.Store
	}
	s.Bucket = first(s.Bucket, b.Bucket)
	s.Region = first(s.Region, b.Region)
	s.Endpoint = first(s.Endpoint, b.Endpoint)
	s.Credentials = first(s.Credentials, b.Credentials)
	s.access, s.secret = b.AccessKeyID, b.SecretAccessKey
	return nil
}

// Open returns Objects if set, or else opens the configured store. A store
// which must be closed is closed by c.Close.
func (s *Storage) Open(ctx context.Context, c *Common) (tdk.ObjectStore, error) {
	if s.Objects != nil {
		return s.Objects, nil
	}
	switch strings.ToLower(s.Store) {
	case "s3":
		opts := []s3.StoreOption{s3.OptStoreBucket(s.Bucket)}
		if s.Region != "" {
			opts = append(opts, s3.OptStoreRegion(s.Region))
		}
		if s.Endpoint != "" {
			opts = append(opts, s3.OptStoreEndpoint(s.Endpoint))
		}
		if s.access != "" {
			opts = append(opts, s3.OptStoreCredentials(s.access, s.secret))
		}
		store, err := s3.NewStore(opts...)
		if err != nil {
			return nil, errors.Wrap(err, "opening s3 store")
		}
		s.Objects = store
	case "gcs":
		var opts []option.ClientOption
		if s.Credentials != "" {
			opts = append(opts, option.WithCredentialsFile(s.Credentials))
		}
		store, err := gcs.NewStore(ctx, s.Bucket, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "opening gcs store")
		}
		c.Defer(store)
		s.Objects = store
	default:
		return nil, &tdk.ConfigurationError{Key: "store", Err: errors.Errorf("unknown object store %q", s.Store)}
	}
	return s.Objects, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
