package buckettowarehouse_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/bigquery"
	"github.com/tripdata/tdk/file"
	"github.com/tripdata/tdk/mock"
	"github.com/tripdata/tdk/parquet"
	"github.com/tripdata/tdk/test"
	"github.com/tripdata/tdk/usecase/buckettowarehouse"
)

type job struct {
	table       string
	rows        int
	nulls       int
	disposition bq.TableWriteDisposition
}

type fakeJobs struct {
	dir  string
	mu   sync.Mutex
	jobs []job
}

func (f *fakeJobs) RunLoad(ctx context.Context, t bigquery.Table, r io.Reader, disposition bq.TableWriteDisposition) error {
	tmp, err := os.CreateTemp(f.dir, "chunk-*.parquet")
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, r)
	tmp.Close()
	if err != nil {
		return err
	}
	ds, err := parquet.ReadFile(tmp.Name())
	if err != nil {
		return err
	}
	nulls, err := ds.NullCount("passenger_count")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job{table: t.String(), rows: ds.Len(), nulls: nulls, disposition: disposition})
	return nil
}

func putTrips(t *testing.T, b *mock.Bucket, trip file.Trip, n int) {
	t.Helper()
	path := filepath.Join(t.TempDir(), trip.Name())
	test.ErrNil(t, file.Write(path, test.Trips(t, n)), "writing trips")
	data, err := os.ReadFile(path)
	test.ErrNil(t, err, "reading trips")
	b.Put(trip.ObjectKey(), data)
}

func newMain(t *testing.T, b *mock.Bucket, jobs *fakeJobs) *buckettowarehouse.Main {
	t.Helper()
	m := buckettowarehouse.NewMain()
	m.WorkDir = t.TempDir()
	m.Cache = "memory"
	m.RetryDelay = time.Millisecond
	m.Log = &mock.RecordingLogger{}
	m.Bucket = b.Name
	m.Objects = b
	m.Jobs = jobs
	m.ProjectID = "vast-bounty-142716"
	m.Credentials = "sa.json"
	m.DestinationTable = "trips_data_all.rides"
	return m
}

func TestBucketToWarehouse(t *testing.T) {
	b := mock.NewBucket("dtc-data-lake")
	putTrips(t, b, file.Trip{Color: "yellow", Year: 2022, Month: 1}, 25)
	jobs := &fakeJobs{dir: t.TempDir()}
	m := newMain(t, b, jobs)
	m.ChunkSize = 10

	test.ErrNil(t, m.Run(context.Background()), "Run")

	test.MustBe(t, len(jobs.jobs), 3)
	rows := 0
	for _, j := range jobs.jobs {
		test.MustBe(t, j.table, "vast-bounty-142716.trips_data_all.rides")
		test.MustBe(t, j.nulls, 0)
		test.MustBe(t, j.disposition, bq.WriteAppend)
		rows += j.rows
	}
	test.MustBe(t, rows, 25)
	test.NoFiles(t, m.WorkDir)
	if !m.Log.(*mock.RecordingLogger).Contains("pre: missing passenger_count count: 9") {
		t.Fatalf("null count not logged")
	}
}

func TestBucketToWarehouseReplace(t *testing.T) {
	b := mock.NewBucket("dtc-data-lake")
	putTrips(t, b, file.Trip{Color: "yellow", Year: 2022, Month: 1}, 25)
	jobs := &fakeJobs{dir: t.TempDir()}
	m := newMain(t, b, jobs)
	m.ChunkSize = 10
	m.Mode = "replace"

	test.ErrNil(t, m.Run(context.Background()), "Run")
	test.MustBe(t, jobs.jobs[0].disposition, bq.WriteTruncate)
	test.MustBe(t, jobs.jobs[1].disposition, bq.WriteAppend)
	test.MustBe(t, jobs.jobs[2].disposition, bq.WriteAppend)
}

func TestBucketToWarehouseMissingObject(t *testing.T) {
	b := mock.NewBucket("dtc-data-lake")
	jobs := &fakeJobs{dir: t.TempDir()}
	m := newMain(t, b, jobs)

	err := m.Run(context.Background())
	var fe *tdk.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	test.MustBe(t, len(jobs.jobs), 0)
	test.MustBe(t, tdk.ExitCode(err), tdk.ExitFetch)
}

func TestBucketToWarehouseMissingProject(t *testing.T) {
	b := mock.NewBucket("dtc-data-lake")
	m := newMain(t, b, &fakeJobs{dir: t.TempDir()})
	m.ProjectID = ""

	err := m.Run(context.Background())
	var ce *tdk.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	test.MustBe(t, ce.Key, "project_id")
}

func TestBucketToWarehouseBadTable(t *testing.T) {
	b := mock.NewBucket("dtc-data-lake")
	putTrips(t, b, file.Trip{Color: "yellow", Year: 2022, Month: 1}, 5)
	m := newMain(t, b, &fakeJobs{dir: t.TempDir()})
	m.DestinationTable = "rides"

	err := m.Run(context.Background())
	test.MustBe(t, tdk.ExitCode(err), tdk.ExitConfiguration)
}
