package bigquery_test

import (
	"context"
	"io"
	"os"
	"testing"

	bq "cloud.google.com/go/bigquery"
	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/bigquery"
	"github.com/tripdata/tdk/parquet"
	"github.com/tripdata/tdk/test"
)

type job struct {
	table       bigquery.Table
	rows        int
	disposition bq.TableWriteDisposition
}

type fakeRunner struct {
	dir    string
	jobs   []job
	failAt int
}

func (f *fakeRunner) RunLoad(ctx context.Context, t bigquery.Table, r io.Reader, disposition bq.TableWriteDisposition) error {
	if f.failAt > 0 && len(f.jobs)+1 == f.failAt {
		return errors.New("quota exceeded")
	}
	tmp, err := os.CreateTemp(f.dir, "*.parquet")
	if err != nil {
		return err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, r); err != nil {
		return err
	}
	ds, err := parquet.ReadFile(tmp.Name())
	if err != nil {
		return err
	}
	f.jobs = append(f.jobs, job{table: t, rows: ds.Len(), disposition: disposition})
	return nil
}

func TestParseTable(t *testing.T) {
	tbl, err := bigquery.ParseTable("vast-bounty-142716", "trips_data_all.rides")
	test.ErrNil(t, err, "ParseTable")
	test.MustBe(t, bigquery.Table{Project: "vast-bounty-142716", Dataset: "trips_data_all", Table: "rides"}, tbl)
	tbl, err = bigquery.ParseTable("", "other.trips_data_all.rides")
	test.ErrNil(t, err, "ParseTable")
	test.MustBe(t, "other", tbl.Project)
	for _, bad := range []string{"rides", "a.b.c.d"} {
		if _, err := bigquery.ParseTable("p", bad); tdk.ExitCode(err) != tdk.ExitConfiguration {
			t.Fatalf("%s: expected configuration error, got %v", bad, err)
		}
	}
}

func TestLoaderChunks(t *testing.T) {
	tbl := bigquery.Table{Project: "p", Dataset: "trips_data_all", Table: "rides"}
	tests := []struct {
		mode tdk.Mode
		exp  []bq.TableWriteDisposition
	}{
		{tdk.Replace, []bq.TableWriteDisposition{bq.WriteTruncate, bq.WriteAppend, bq.WriteAppend}},
		{tdk.Append, []bq.TableWriteDisposition{bq.WriteAppend, bq.WriteAppend, bq.WriteAppend}},
	}
	for _, tst := range tests {
		runner := &fakeRunner{dir: t.TempDir()}
		l := bigquery.NewLoader(runner)
		l.ChunkSize = 4
		l.TempDir = t.TempDir()
		n, err := l.Load(context.Background(), tbl, test.Trips(t, 10), tst.mode)
		test.ErrNil(t, err, string(tst.mode))
		test.MustBe(t, 10, n)
		got := make([]bq.TableWriteDisposition, len(runner.jobs))
		rows := make([]int, len(runner.jobs))
		for i, j := range runner.jobs {
			got[i] = j.disposition
			rows[i] = j.rows
		}
		test.MustBe(t, tst.exp, got, string(tst.mode))
		test.MustBe(t, []int{4, 4, 2}, rows)

		entries, _ := os.ReadDir(l.TempDir)
		test.MustBe(t, 0, len(entries), "temp files")
	}
}

func TestLoaderFailure(t *testing.T) {
	runner := &fakeRunner{dir: t.TempDir(), failAt: 2}
	l := bigquery.NewLoader(runner)
	l.ChunkSize = 3
	l.TempDir = t.TempDir()
	n, err := l.Load(context.Background(), bigquery.Table{Project: "p", Dataset: "d", Table: "t"}, test.Trips(t, 7), tdk.Append)
	if err == nil {
		t.Fatal("expected error")
	}
	test.MustBe(t, 3, n)
}
