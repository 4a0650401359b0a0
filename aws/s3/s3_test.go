package s3

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/tripdata/tdk"
)

// fakeBucket is an in-memory bucket serving the S3 API calls, uploads and
// downloads a Store makes.
type fakeBucket struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (f *fakeBucket) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeBucket) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = b
	return &s3manager.UploadOutput{Location: "s3://" + *in.Bucket + "/" + *in.Key}, nil
}

func (f *fakeBucket) Download(w io.WriterAt, in *s3.GetObjectInput, opts ...func(*s3manager.Downloader)) (int64, error) {
	return f.DownloadWithContext(context.Background(), w, in, opts...)
}

func (f *fakeBucket) DownloadWithContext(ctx aws.Context, w io.WriterAt, in *s3.GetObjectInput, opts ...func(*s3manager.Downloader)) (int64, error) {
	f.mu.Lock()
	b, ok := f.objects[*in.Key]
	f.mu.Unlock()
	if !ok {
		return 0, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	n, err := w.WriteAt(b, 0)
	return int64(n), err
}

func (f *fakeBucket) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	// one object per page
	for i, k := range keys {
		page := &s3.ListObjectsV2Output{Contents: []*s3.Object{{Key: aws.String(k)}}}
		if !fn(page, i == len(keys)-1) {
			break
		}
	}
	return nil
}

func (f *fakeBucket) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestNewStore(t *testing.T) {
	if _, err := NewStore(OptStoreRegion("us-east-1")); tdk.ExitCode(err) != tdk.ExitConfiguration {
		t.Fatalf("expected configuration error without bucket, got %v", err)
	}
	s, err := NewStore(OptStoreBucket("dtc-data-lake"), OptStoreRegion("eu-west-1"), OptStoreEndpoint("http://localhost:9000"), OptStoreCredentials("minio", "minio123"))
	if err != nil {
		t.Fatalf("getting new store: %v", err)
	}
	if s.bucket != "dtc-data-lake" {
		t.Fatalf("wrong bucket name: %s", s.bucket)
	}
	if s.region != "eu-west-1" {
		t.Fatalf("wrong region name: %s", s.region)
	}
	if s.uploader == nil || s.downloader == nil {
		t.Fatal("transfer managers not set up")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	fake := newFakeBucket()
	s, err := NewStore(OptStoreBucket("dtc-data-lake"), OptStoreClients(fake, fake, fake))
	if err != nil {
		t.Fatalf("getting new store: %v", err)
	}
	ctx := context.Background()
	dir := t.TempDir()
	local := filepath.Join(dir, "data", "yellow", "yellow_tripdata_2022-01.parquet")
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("parquet bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	uri, err := s.Upload(ctx, local, "data/yellow/yellow_tripdata_2022-01.parquet")
	if err != nil {
		t.Fatalf("uploading: %v", err)
	}
	if uri != "s3://dtc-data-lake/data/yellow/yellow_tripdata_2022-01.parquet" {
		t.Fatalf("unexpected uri %s", uri)
	}
	if _, err := s.Upload(ctx, local, "data/yellow/yellow_tripdata_2022-02.parquet"); err != nil {
		t.Fatalf("uploading: %v", err)
	}

	keys, err := s.List(ctx, "data/yellow/")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(keys) != 2 || keys[0] != "data/yellow/yellow_tripdata_2022-01.parquet" {
		t.Fatalf("unexpected keys %v", keys)
	}

	dst := filepath.Join(dir, "down", "yellow_tripdata_2022-01.parquet")
	h, err := s.Download(ctx, keys[0], dst)
	if err != nil {
		t.Fatalf("downloading: %v", err)
	}
	if h != tdk.LocalArtifact(dst) {
		t.Fatalf("unexpected handle %v", h)
	}
	b, err := os.ReadFile(dst)
	if err != nil || !bytes.Equal(b, []byte("parquet bytes")) {
		t.Fatalf("downloaded %q, %v", b, err)
	}

	_, err = s.Download(ctx, "data/green/nope.parquet", filepath.Join(dir, "down", "nope.parquet"))
	if !tdk.IsPermanent(err) {
		t.Fatalf("missing key should be permanent, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "down"))
	if len(entries) != 1 {
		t.Fatalf("failed download left files behind: %d entries", len(entries))
	}

	if err := s.Delete(ctx, keys[1]); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	keys, _ = s.List(ctx, "")
	if len(keys) != 1 {
		t.Fatalf("expected 1 key after delete, got %v", keys)
	}
}
