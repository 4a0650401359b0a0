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

// Package s3 implements tdk.ObjectStore on Amazon S3 and S3 compatible
// services.
package s3

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

// StoreOption is a functional option type for s3.Store.
type StoreOption func(s *Store)

// OptStoreBucket is a StoreOption which sets the S3 bucket for a Store.
func OptStoreBucket(bucket string) StoreOption {
	return func(s *Store) {
		s.bucket = bucket
	}
}

// OptStoreRegion is a StoreOption which sets the AWS region for a Store.
func OptStoreRegion(region string) StoreOption {
	return func(s *Store) {
		s.region = region
	}
}

// OptStoreEndpoint points the Store at an S3 compatible service such as
// minio. Path style addressing is used with a custom endpoint.
func OptStoreEndpoint(endpoint string) StoreOption {
	return func(s *Store) {
		s.endpoint = endpoint
	}
}

// OptStoreCredentials sets static credentials. Without it the default AWS
// credential chain is used.
func OptStoreCredentials(id, secret string) StoreOption {
	return func(s *Store) {
		if id != "" {
			s.creds = credentials.NewStaticCredentials(id, secret, "")
		}
	}
}

// OptStoreClients replaces the AWS clients, mainly for testing.
func OptStoreClients(api s3iface.S3API, up s3manageriface.UploaderAPI, down s3manageriface.DownloaderAPI) StoreOption {
	return func(s *Store) {
		s.s3 = api
		s.uploader = up
		s.downloader = down
	}
}

// Store is a tdk.ObjectStore backed by an S3 bucket.
type Store struct {
	bucket   string
	region   string
	endpoint string
	creds    *credentials.Credentials

	s3         s3iface.S3API
	uploader   s3manageriface.UploaderAPI
	downloader s3manageriface.DownloaderAPI
}

var _ tdk.ObjectStore = &Store{}

// NewStore returns a new Store with the options applied.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		region: "us-east-1",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bucket == "" {
		return nil, &tdk.ConfigurationError{Key: "bucket", Err: tdk.ErrMissingParam}
	}
	if s.s3 != nil {
		return s, nil
	}

	cfg := &aws.Config{Region: aws.String(s.region), Credentials: s.creds}
	if s.endpoint != "" {
		cfg.Endpoint = aws.String(s.endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	client := s3.New(sess)
	s.s3 = client
	s.uploader = s3manager.NewUploaderWithClient(client)
	s.downloader = s3manager.NewDownloaderWithClient(client)
	return s, nil
}

func (s *Store) uri(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// Upload implements tdk.ObjectStore.
func (s *Store) Upload(ctx context.Context, path, key string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", tdk.Permanent(errors.Wrap(err, "opening file"))
	}
	defer f.Close()
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", classify(errors.Wrapf(err, "uploading %s", s.uri(key)))
	}
	return s.uri(key), nil
}

// Download implements tdk.ObjectStore.
func (s *Store) Download(ctx context.Context, key, path string) (tdk.ArtifactHandle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tdk.ArtifactHandle{}, errors.Wrap(err, "creating directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return tdk.ArtifactHandle{}, errors.Wrap(err, "creating temp file")
	}
	_, err = s.downloader.DownloadWithContext(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "closing temp file")
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

// List implements tdk.ObjectStore.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.s3.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	if err != nil {
		return nil, classify(errors.Wrap(err, "listing objects"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete implements tdk.ObjectStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return classify(errors.Wrapf(err, "deleting %s", s.uri(key)))
}

// classify marks errors which retrying can't fix as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return tdk.Permanent(err)
		}
	}
	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() >= 400 && rf.StatusCode() < 500 && rf.StatusCode() != 429 {
		return tdk.Permanent(err)
	}
	return err
}
